package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withGraphServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	old := GraphBaseURL
	GraphBaseURL = server.URL
	t.Cleanup(func() {
		GraphBaseURL = old
		server.Close()
	})
	return server
}

func TestMetaFacebookTextPost(t *testing.T) {
	var path, message string
	withGraphServer(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, r.ParseForm())
		message = r.PostFormValue("message")
		w.Write([]byte(`{"id": "page_post_1"}`))
	})

	svc := NewMetaService(Facebook, "app", "secret", newTestHTTPClient())
	result := svc.PostText(context.Background(), "hello page", "tok", PostOptions{PageID: "page1"})

	require.True(t, result.Success, result.ErrorMessage)
	assert.Equal(t, "/page1/feed", path)
	assert.Equal(t, "hello page", message)
	assert.Equal(t, "page_post_1", result.PlatformPostID)
}

func TestMetaInstagramTextPostRequiresMedia(t *testing.T) {
	svc := NewMetaService(Instagram, "app", "secret", newTestHTTPClient())
	result := svc.PostText(context.Background(), "just text", "tok", PostOptions{AccountID: "ig1"})

	require.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "requires an image or video")
}

func TestMetaInstagramContainerProtocol(t *testing.T) {
	var calls []string
	withGraphServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Path)
		switch r.URL.Path {
		case "/ig1/media":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "https://cdn/pic.jpg", r.PostFormValue("image_url"))
			w.Write([]byte(`{"id": "container_1"}`))
		case "/ig1/media_publish":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "container_1", r.PostFormValue("creation_id"))
			w.Write([]byte(`{"id": "media_1"}`))
		case "/media_1":
			w.Write([]byte(`{"permalink": "https://instagram.com/p/abc"}`))
		default:
			t.Fatalf("unexpected request: %s", r.URL.Path)
		}
	})

	svc := NewMetaService(Instagram, "app", "secret", newTestHTTPClient())
	result := svc.PostImage(context.Background(), "caption", "https://cdn/pic.jpg", "tok", PostOptions{AccountID: "ig1"})

	require.True(t, result.Success, result.ErrorMessage)
	assert.Equal(t, "media_1", result.PlatformPostID)
	assert.Equal(t, "https://instagram.com/p/abc", result.PlatformPostURL)
	assert.Equal(t, []string{"/ig1/media", "/ig1/media_publish", "/media_1"}, calls)
}

func TestMetaInstagramPublishStepFailure(t *testing.T) {
	var publishCalls int
	withGraphServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ig1/media":
			w.Write([]byte(`{"id": "container_1"}`))
		case "/ig1/media_publish":
			publishCalls++
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error": {"message": "Media not ready", "code": 9007}}`))
		default:
			t.Fatalf("unexpected request: %s", r.URL.Path)
		}
	})

	svc := NewMetaService(Instagram, "app", "secret", newTestHTTPClient())
	result := svc.PostImage(context.Background(), "caption", "https://cdn/pic.jpg", "tok", PostOptions{AccountID: "ig1"})

	// Container created but unpublished: the post failed and the container is
	// not retried.
	require.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "Media not ready")
	assert.Equal(t, 1, publishCalls)
}

func TestMetaErrorCodeMapping(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		wantKind ErrorKind
	}{
		{"expired token", 190, KindAuthentication},
		{"app rate limit", 4, KindRateLimit},
		{"permission denied", 200, KindPermanentAPI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withGraphServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error": {"message": "boom", "code": ` + strconv.Itoa(tt.code) + `}}`))
			})

			svc := NewMetaService(Facebook, "app", "secret", newTestHTTPClient()).(*metaService)
			_, perr := svc.postForm(context.Background(), "/page1/feed", nil)

			require.NotNil(t, perr)
			assert.Equal(t, tt.wantKind, perr.Kind)
		})
	}
}

func TestMetaThreadsTwoStepPost(t *testing.T) {
	withGraphServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/th1/threads":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "TEXT", r.PostFormValue("media_type"))
			w.Write([]byte(`{"id": "tc_1"}`))
		case "/th1/threads_publish":
			w.Write([]byte(`{"id": "thread_1"}`))
		default:
			t.Fatalf("unexpected request: %s", r.URL.Path)
		}
	})

	svc := NewMetaService(Threads, "app", "secret", newTestHTTPClient())
	result := svc.PostText(context.Background(), "a thread", "tok", PostOptions{AccountID: "th1"})

	require.True(t, result.Success, result.ErrorMessage)
	assert.Equal(t, "thread_1", result.PlatformPostID)
	assert.Equal(t, "https://threads.net/t/thread_1", result.PlatformPostURL)
}
