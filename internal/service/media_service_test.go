package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/crosspost/internal/httpclient"
	"github.com/maheshrc27/crosspost/internal/models"
)

// pngBytes is a minimal buffer carrying the PNG magic number, enough for
// content sniffing.
var pngBytes = append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, make([]byte, 64)...)

type fakeUploader struct {
	key         string
	contentType string
	uploaded    []byte
	fail        bool
}

func (u *fakeUploader) UploadToR2(ctx context.Context, key string, file []byte, filetype string) (string, error) {
	if u.fail {
		return "", assert.AnError
	}
	u.key = key
	u.contentType = filetype
	u.uploaded = file
	return "https://cdn.example/" + key, nil
}

func mediaTestClient() *httpclient.Client {
	return httpclient.New(httpclient.Config{MaxAttempts: 1})
}

func igAccount() *models.SocialAccount {
	return &models.SocialAccount{Platform: "instagram"}
}

func TestAspectRatioForPrefersAccountSetting(t *testing.T) {
	acc := &models.SocialAccount{Platform: "instagram", AspectRatio: "1:1"}
	assert.Equal(t, "1:1", AspectRatioFor(acc))
}

func TestAspectRatioForPlatformDefaults(t *testing.T) {
	assert.Equal(t, "4:5", AspectRatioFor(&models.SocialAccount{Platform: "instagram"}))
	assert.Equal(t, "9:16", AspectRatioFor(&models.SocialAccount{Platform: "tiktok"}))
	assert.Equal(t, "16:9", AspectRatioFor(&models.SocialAccount{Platform: "linkedin"}))
	assert.Equal(t, "16:9", AspectRatioFor(&models.SocialAccount{Platform: "somethingelse"}))
}

func TestPrepareReturnsExistingVariant(t *testing.T) {
	var cropCalled bool
	assets := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/img_4x5.jpg" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer assets.Close()

	crop := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cropCalled = true
		w.Write(pngBytes)
	}))
	defer crop.Close()

	uploader := &fakeUploader{}
	svc := NewMediaService(mediaTestClient(), uploader, crop.URL)

	got := svc.Prepare(context.Background(), assets.URL+"/img.jpg", igAccount())

	assert.Equal(t, assets.URL+"/img_4x5.jpg", got)
	assert.False(t, cropCalled)
	assert.Empty(t, uploader.key)
}

func TestPrepareCropsAndUploadsWhenNoVariant(t *testing.T) {
	assets := httptest.NewServer(http.NotFoundHandler())
	defer assets.Close()

	var cropReq struct {
		ImageURL    string `json:"image_url"`
		AspectRatio string `json:"aspect_ratio"`
	}
	crop := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/crop", r.URL.Path)
		require.NoError(t, jsonDecode(r, &cropReq))
		w.Write(pngBytes)
	}))
	defer crop.Close()

	uploader := &fakeUploader{}
	svc := NewMediaService(mediaTestClient(), uploader, crop.URL)

	assetURL := assets.URL + "/img.jpg"
	got := svc.Prepare(context.Background(), assetURL, igAccount())

	assert.Equal(t, "https://cdn.example/"+uploader.key, got)
	assert.Equal(t, assetURL, cropReq.ImageURL)
	assert.Equal(t, "4:5", cropReq.AspectRatio)
	assert.Equal(t, "image/png", uploader.contentType)
	assert.Contains(t, uploader.key, "_4x5.png")
	assert.Equal(t, pngBytes, uploader.uploaded)
}

func TestPrepareDegradesWhenCropServiceFails(t *testing.T) {
	assets := httptest.NewServer(http.NotFoundHandler())
	defer assets.Close()

	crop := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer crop.Close()

	svc := NewMediaService(mediaTestClient(), &fakeUploader{}, crop.URL)

	assetURL := assets.URL + "/img.jpg"
	assert.Equal(t, assetURL, svc.Prepare(context.Background(), assetURL, igAccount()))
}

func TestPrepareDegradesWhenCropReturnsNonImage(t *testing.T) {
	assets := httptest.NewServer(http.NotFoundHandler())
	defer assets.Close()

	crop := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": "quota exceeded"}`))
	}))
	defer crop.Close()

	svc := NewMediaService(mediaTestClient(), &fakeUploader{}, crop.URL)

	assetURL := assets.URL + "/img.jpg"
	assert.Equal(t, assetURL, svc.Prepare(context.Background(), assetURL, igAccount()))
}

func TestPrepareDegradesWhenUploadFails(t *testing.T) {
	assets := httptest.NewServer(http.NotFoundHandler())
	defer assets.Close()

	crop := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(pngBytes)
	}))
	defer crop.Close()

	svc := NewMediaService(mediaTestClient(), &fakeUploader{fail: true}, crop.URL)

	assetURL := assets.URL + "/img.jpg"
	assert.Equal(t, assetURL, svc.Prepare(context.Background(), assetURL, igAccount()))
}

func TestPrepareDegradesWithoutCropService(t *testing.T) {
	assets := httptest.NewServer(http.NotFoundHandler())
	defer assets.Close()

	svc := NewMediaService(mediaTestClient(), &fakeUploader{}, "")

	assetURL := assets.URL + "/img.jpg"
	assert.Equal(t, assetURL, svc.Prepare(context.Background(), assetURL, igAccount()))
}

func jsonDecode(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
