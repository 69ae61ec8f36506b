package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withXRPCServer(t *testing.T, handler http.HandlerFunc) {
	t.Helper()
	server := httptest.NewServer(handler)
	old := BlueskyBaseURL
	BlueskyBaseURL = server.URL
	t.Cleanup(func() {
		BlueskyBaseURL = old
		server.Close()
	})
}

func TestBlueskyPostTextCreatesSessionThenRecord(t *testing.T) {
	var sessionBody, recordBody map[string]any
	withXRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/com.atproto.server.createSession":
			json.NewDecoder(r.Body).Decode(&sessionBody)
			w.Write([]byte(`{"accessJwt": "jwt-1", "did": "did:plc:abc", "handle": "alice.bsky.social"}`))
		case "/com.atproto.repo.createRecord":
			assert.Equal(t, "Bearer jwt-1", r.Header.Get("Authorization"))
			json.NewDecoder(r.Body).Decode(&recordBody)
			w.Write([]byte(`{"uri": "at://did:plc:abc/app.bsky.feed.post/3kabc", "cid": "cid1"}`))
		default:
			t.Fatalf("unexpected request: %s", r.URL.Path)
		}
	})

	svc := NewBlueskyService(newTestHTTPClient())
	result := svc.PostText(context.Background(), "hello sky", "app-password", PostOptions{Handle: "alice.bsky.social"})

	require.True(t, result.Success, result.ErrorMessage)
	assert.Equal(t, "at://did:plc:abc/app.bsky.feed.post/3kabc", result.PlatformPostID)
	assert.Equal(t, "https://bsky.app/profile/alice.bsky.social/post/3kabc", result.PlatformPostURL)

	assert.Equal(t, "alice.bsky.social", sessionBody["identifier"])
	assert.Equal(t, "app-password", sessionBody["password"])
	assert.Equal(t, "did:plc:abc", recordBody["repo"])
	assert.Equal(t, "app.bsky.feed.post", recordBody["collection"])
}

func TestBlueskyMissingCredentialsFailWithoutRequest(t *testing.T) {
	svc := NewBlueskyService(newTestHTTPClient())

	noHandle := svc.PostText(context.Background(), "hi", "pw", PostOptions{})
	require.False(t, noHandle.Success)
	assert.Contains(t, noHandle.ErrorMessage, "missing handle")

	noPassword := svc.PostText(context.Background(), "hi", "", PostOptions{Handle: "alice"})
	require.False(t, noPassword.Success)
	assert.Contains(t, noPassword.ErrorMessage, "missing app password")
}

func TestBlueskyBadCredentials(t *testing.T) {
	withXRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "AuthenticationRequired", "message": "Invalid identifier or password"}`))
	})

	svc := NewBlueskyService(newTestHTTPClient())
	result := svc.PostText(context.Background(), "hi", "wrong", PostOptions{Handle: "alice"})

	require.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "Invalid identifier or password")
}

func TestBlueskyPostImageUploadsBlob(t *testing.T) {
	imageServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	}))
	defer imageServer.Close()

	var blobContentType string
	var recordBody map[string]any
	withXRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/com.atproto.server.createSession":
			w.Write([]byte(`{"accessJwt": "jwt-1", "did": "did:plc:abc", "handle": "alice"}`))
		case "/com.atproto.repo.uploadBlob":
			blobContentType = r.Header.Get("Content-Type")
			w.Write([]byte(`{"blob": {"$type": "blob", "ref": {"$link": "bafy"}, "mimeType": "image/png", "size": 9}}`))
		case "/com.atproto.repo.createRecord":
			json.NewDecoder(r.Body).Decode(&recordBody)
			w.Write([]byte(`{"uri": "at://did:plc:abc/app.bsky.feed.post/3kimg", "cid": "cid2"}`))
		default:
			t.Fatalf("unexpected request: %s", r.URL.Path)
		}
	})

	svc := NewBlueskyService(newTestHTTPClient())
	result := svc.PostImage(context.Background(), "look", imageServer.URL+"/pic.png", "pw", PostOptions{Handle: "alice"})

	require.True(t, result.Success, result.ErrorMessage)
	assert.Equal(t, "image/png", blobContentType)

	record := recordBody["record"].(map[string]any)
	embed := record["embed"].(map[string]any)
	assert.Equal(t, "app.bsky.embed.images", embed["$type"])
}

func TestBlueskyPostImageRejectsMissingSource(t *testing.T) {
	imageServer := httptest.NewServer(http.NotFoundHandler())
	defer imageServer.Close()

	var uploadCalled bool
	withXRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/com.atproto.server.createSession":
			w.Write([]byte(`{"accessJwt": "jwt-1", "did": "did:plc:abc", "handle": "alice"}`))
		case "/com.atproto.repo.uploadBlob":
			uploadCalled = true
		default:
			t.Fatalf("unexpected request: %s", r.URL.Path)
		}
	})

	svc := NewBlueskyService(newTestHTTPClient())
	result := svc.PostImage(context.Background(), "look", imageServer.URL+"/gone.png", "pw", PostOptions{Handle: "alice"})

	require.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "failed to fetch image")
	assert.False(t, uploadCalled)
}

func TestBlueskyPostVideoUnsupported(t *testing.T) {
	svc := NewBlueskyService(newTestHTTPClient())
	result := svc.PostVideo(context.Background(), "v", "https://cdn/v.mp4", "pw", PostOptions{Handle: "alice"})

	require.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "not supported")
}

func TestBlueskyGetEngagement(t *testing.T) {
	withXRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/com.atproto.server.createSession":
			w.Write([]byte(`{"accessJwt": "jwt-1", "did": "did:plc:abc", "handle": "alice"}`))
		case "/app.bsky.feed.getPosts":
			assert.Equal(t, "at://did:plc:abc/app.bsky.feed.post/3kabc", r.URL.Query().Get("uris"))
			w.Write([]byte(`{"posts": [{"likeCount": 12, "replyCount": 3, "repostCount": 5}]}`))
		default:
			t.Fatalf("unexpected request: %s", r.URL.Path)
		}
	})

	svc := NewBlueskyService(newTestHTTPClient())
	engagement, err := svc.GetEngagement(context.Background(),
		"at://did:plc:abc/app.bsky.feed.post/3kabc", "pw", PostOptions{Handle: "alice"})

	require.NoError(t, err)
	assert.Equal(t, EngagementData{Likes: 12, Comments: 3, Shares: 5}, engagement)
}
