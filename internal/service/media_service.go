package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/h2non/filetype"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/maheshrc27/crosspost/internal/httpclient"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/platform"
)

// objectUploader is the slice of R2Service media preparation needs.
type objectUploader interface {
	UploadToR2(ctx context.Context, key string, file []byte, filetype string) (string, error)
}

// MediaService prepares an image for a target account's preferred aspect
// ratio. Preparation is strictly best-effort: any failure along the way
// degrades to the original asset URL, never to a failed publish.
type MediaService struct {
	http           *httpclient.Client
	uploader       objectUploader
	cropServiceURL string
}

func NewMediaService(hc *httpclient.Client, uploader objectUploader, cropServiceURL string) *MediaService {
	return &MediaService{http: hc, uploader: uploader, cropServiceURL: cropServiceURL}
}

// AspectRatioFor picks the account's preferred ratio, falling back to the
// platform default (4:5 Instagram and Threads, 9:16 TikTok, 16:9 elsewhere).
func AspectRatioFor(account *models.SocialAccount) string {
	if account.AspectRatio != "" {
		return account.AspectRatio
	}
	if ratio, ok := platform.DefaultAspectRatios[platform.Platform(account.Platform)]; ok {
		return ratio
	}
	return "16:9"
}

// Prepare returns the URL to publish for assetURL: a preexisting variant if
// one is already stored, a freshly cropped variant if the crop service can
// produce one, or the original asset when neither works.
func (s *MediaService) Prepare(ctx context.Context, assetURL string, account *models.SocialAccount) string {
	ratio := AspectRatioFor(account)

	if variantURL := s.variantURL(assetURL, ratio); variantURL != "" {
		if s.exists(ctx, variantURL) {
			return variantURL
		}
	}

	cropped, contentType, err := s.crop(ctx, assetURL, ratio)
	if err != nil {
		slog.Warn("media preparation degraded to original asset",
			"asset", assetURL, "ratio", ratio, "error", err)
		return assetURL
	}

	key, err := gonanoid.New()
	if err != nil {
		return assetURL
	}
	if ext := extensionFor(contentType); ext != "" {
		key += "_" + strings.ReplaceAll(ratio, ":", "x") + "." + ext
	}

	uploadedURL, err := s.uploader.UploadToR2(ctx, key, cropped, contentType)
	if err != nil {
		slog.Warn("variant upload failed, using original asset", "asset", assetURL, "error", err)
		return assetURL
	}
	return uploadedURL
}

// variantURL derives the storage URL a previously prepared variant would live
// at: the asset name with the ratio appended before the extension.
func (s *MediaService) variantURL(assetURL, ratio string) string {
	dot := strings.LastIndex(assetURL, ".")
	slash := strings.LastIndex(assetURL, "/")
	if dot <= slash {
		return ""
	}
	return assetURL[:dot] + "_" + strings.ReplaceAll(ratio, ":", "x") + assetURL[dot:]
}

// exists probes with HEAD first; some object stores reject HEAD, so a ranged
// GET for the first byte is the fallback.
func (s *MediaService) exists(ctx context.Context, url string) bool {
	status, err := s.http.Head(ctx, url)
	if err == nil && status == http.StatusOK {
		return true
	}

	resp, err := s.http.Do(ctx, http.MethodGet, url, &httpclient.Options{
		Headers: map[string]string{"Range": "bytes=0-0"},
	})
	if err != nil {
		return false
	}
	return resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent
}

// crop asks the crop service for a variant of the asset at the given ratio
// and returns the image bytes with their sniffed content type.
func (s *MediaService) crop(ctx context.Context, assetURL, ratio string) ([]byte, string, error) {
	if s.cropServiceURL == "" {
		return nil, "", platform.NewError(platform.KindMediaPreparation, "", "crop service not configured")
	}

	body, _ := json.Marshal(map[string]string{
		"image_url":    assetURL,
		"aspect_ratio": ratio,
	})
	resp, err := s.http.Do(ctx, http.MethodPost, s.cropServiceURL+"/crop", &httpclient.Options{
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
	})
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", platform.NewError(platform.KindMediaPreparation, "",
			fmt.Sprintf("crop service returned HTTP %d", resp.StatusCode))
	}
	if len(resp.Body) == 0 {
		return nil, "", platform.NewError(platform.KindMediaPreparation, "", "crop service returned empty body")
	}

	kind, err := filetype.Match(resp.Body)
	if err != nil || !filetype.IsImage(resp.Body) {
		return nil, "", platform.NewError(platform.KindMediaPreparation, "", "crop service returned a non-image body")
	}
	return resp.Body, kind.MIME.Value, nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	default:
		return ""
	}
}
