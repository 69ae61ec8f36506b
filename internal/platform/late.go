package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/maheshrc27/crosspost/internal/httpclient"
)

// LateBaseURL is the aggregator API root. Overridden in tests.
var LateBaseURL = "https://getlate.dev/api/v1"

// lateService posts through the LATE aggregator for networks where direct
// integration needs heavyweight developer approval (Instagram, Threads,
// TikTok, X). One instance per target platform, all sharing the same API key.
type lateService struct {
	platform Platform
	apiKey   string
	http     *httpclient.Client
}

func NewLateService(p Platform, apiKey string, hc *httpclient.Client) (Service, error) {
	switch p {
	case Instagram, Threads, Tiktok, X:
	default:
		return nil, fmt.Errorf("late service does not support platform %q", p)
	}
	if apiKey == "" {
		return nil, NewError(KindAuthentication, p, "LATE API key not configured")
	}
	return &lateService{platform: p, apiKey: apiKey, http: hc}, nil
}

func (s *lateService) headers(accessToken string) map[string]string {
	key := s.apiKey
	// Accounts stored with the managed marker use the server-wide key; a
	// per-account key overrides it.
	if accessToken != "" && accessToken != "LATE_MANAGED" {
		key = accessToken
	}
	return map[string]string{
		"Authorization": "Bearer " + key,
		"Content-Type":  "application/json",
	}
}

// lateType converts our platform name to LATE's (LATE says "twitter", not "x").
func (s *lateService) lateType() string {
	if s.platform == X {
		return "twitter"
	}
	return string(s.platform)
}

type latePlatformConfig struct {
	Platform  string `json:"platform"`
	AccountID string `json:"accountId"`
	PostType  string `json:"postType,omitempty"`
}

type lateMediaItem struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type latePayload struct {
	Content        string               `json:"content"`
	MediaItems     []lateMediaItem      `json:"mediaItems,omitempty"`
	Platforms      []latePlatformConfig `json:"platforms"`
	PublishNow     bool                 `json:"publishNow"`
	TiktokSettings map[string]any       `json:"tiktokSettings,omitempty"`
}

type lateResponse struct {
	Post struct {
		ID string `json:"_id"`
	} `json:"post"`
	ID              string `json:"id"`
	PostID          string `json:"postId"`
	URL             string `json:"url"`
	PostURL         string `json:"postUrl"`
	Status          string `json:"status"`
	Error           string `json:"error"`
	Message         string `json:"message"`
	PlatformResults []struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	} `json:"platformResults"`
}

func (s *lateService) PostText(ctx context.Context, content, accessToken string, opts PostOptions) PostResult {
	return s.createPost(ctx, accessToken, latePayload{
		Content:    content,
		Platforms:  s.platformConfigs(opts, ""),
		PublishNow: true,
	})
}

func (s *lateService) PostImage(ctx context.Context, content, imageURL, accessToken string, opts PostOptions) PostResult {
	payload := latePayload{
		Content:    content,
		MediaItems: []lateMediaItem{{Type: "image", URL: imageURL}},
		Platforms:  s.platformConfigs(opts, opts.PostType),
		PublishNow: true,
	}
	if s.platform == Tiktok {
		payload.TiktokSettings = tiktokSettings()
	}
	return s.createPost(ctx, accessToken, payload)
}

func (s *lateService) PostVideo(ctx context.Context, content, videoURL, accessToken string, opts PostOptions) PostResult {
	postType := opts.PostType
	if s.platform == Instagram && postType == "" {
		postType = "reel"
	}
	payload := latePayload{
		Content:    content,
		MediaItems: []lateMediaItem{{Type: "video", URL: videoURL}},
		Platforms:  s.platformConfigs(opts, postType),
		PublishNow: true,
	}
	if s.platform == Tiktok {
		payload.TiktokSettings = tiktokSettings()
	}
	return s.createPost(ctx, accessToken, payload)
}

func (s *lateService) platformConfigs(opts PostOptions, postType string) []latePlatformConfig {
	pc := latePlatformConfig{Platform: s.lateType(), AccountID: opts.AccountID}
	if s.platform == Instagram && postType != "" {
		pc.PostType = postType
	}
	return []latePlatformConfig{pc}
}

func tiktokSettings() map[string]any {
	return map[string]any{
		"privacy_level":             "PUBLIC_TO_EVERYONE",
		"allow_comment":             true,
		"allow_duet":                true,
		"allow_stitch":              true,
		"content_preview_confirmed": true,
		"express_consent_given":     true,
	}
}

func (s *lateService) createPost(ctx context.Context, accessToken string, payload latePayload) PostResult {
	if payload.Platforms[0].AccountID == "" {
		return PostResult{
			Success:      false,
			Platform:     s.platform,
			ErrorMessage: fmt.Sprintf("no %s account connected in LATE", s.platform),
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return PostResult{Success: false, Platform: s.platform, ErrorMessage: err.Error()}
	}

	resp, err := s.http.Do(ctx, http.MethodPost, LateBaseURL+"/posts", &httpclient.Options{
		Headers: s.headers(accessToken),
		Body:    body,
	})
	if err != nil {
		slog.Error("late post failed", "platform", s.platform, "error", err)
		return PostResult{Success: false, Platform: s.platform, ErrorMessage: err.Error()}
	}

	result, perr := s.checkResponse(resp)
	if perr != nil {
		return PostResult{Success: false, Platform: s.platform, ErrorMessage: perr.Message}
	}

	// LATE can accept the request but report a per-platform failure inline.
	for _, pr := range result.PlatformResults {
		if pr.Status == "failed" {
			msg := pr.Error
			if msg == "" {
				msg = "publishing failed"
			}
			return PostResult{Success: false, Platform: s.platform, ErrorMessage: msg}
		}
	}

	postID := result.Post.ID
	if postID == "" {
		postID = result.ID
	}
	if postID == "" {
		postID = result.PostID
	}
	postURL := result.URL
	if postURL == "" {
		postURL = result.PostURL
	}

	return PostResult{
		Success:         true,
		Platform:        s.platform,
		PlatformPostID:  postID,
		PlatformPostURL: postURL,
	}
}

// checkResponse normalizes a LATE response into the error taxonomy. A 2xx
// body that carries status=failed or an error field is still a failure.
func (s *lateService) checkResponse(resp *httpclient.Response) (*lateResponse, *Error) {
	var result lateResponse
	if len(resp.Body) > 0 {
		json.Unmarshal(resp.Body, &result)
	}

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		if result.Status == "failed" || result.Error != "" {
			msg := result.Error
			if msg == "" {
				msg = result.Message
			}
			if msg == "" {
				msg = "LATE API error"
			}
			return nil, &Error{Kind: KindPermanentAPI, Platform: s.platform, Message: msg, StatusCode: resp.StatusCode}
		}
		return &result, nil
	}

	msg := result.Error
	if msg == "" {
		msg = result.Message
	}
	if msg == "" {
		msg = fmt.Sprintf("LATE API error: HTTP %d", resp.StatusCode)
	}

	kind := KindPermanentAPI
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		kind = KindAuthentication
	case http.StatusTooManyRequests:
		kind = KindRateLimit
	}
	return nil, &Error{Kind: kind, Platform: s.platform, Message: msg, StatusCode: resp.StatusCode}
}

func (s *lateService) DeletePost(ctx context.Context, postID, accessToken string, opts PostOptions) error {
	resp, err := s.http.Do(ctx, http.MethodDelete, LateBaseURL+"/posts/"+postID, &httpclient.Options{
		Headers: s.headers(accessToken),
	})
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return NewError(KindPermanentAPI, s.platform, fmt.Sprintf("LATE delete failed: HTTP %d", resp.StatusCode))
	}
	return nil
}

// GetEngagement returns zeros; LATE is a posting API and exposes no metrics.
func (s *lateService) GetEngagement(ctx context.Context, postID, accessToken string, opts PostOptions) (EngagementData, error) {
	return EngagementData{}, nil
}

func (s *lateService) ReplyToComment(ctx context.Context, commentID, content, accessToken string, opts PostOptions) CommentResult {
	return CommentResult{
		Success:      false,
		Platform:     s.platform,
		ErrorMessage: "comment replies not supported via LATE API",
	}
}

func (s *lateService) GetComments(ctx context.Context, postID, accessToken string, opts PostOptions) ([]Comment, error) {
	return nil, nil
}

type lateAccount struct {
	ID             string `json:"_id"`
	Platform       string `json:"platform"`
	Username       string `json:"username"`
	DisplayName    string `json:"displayName"`
	ProfilePicture string `json:"profilePicture"`
	IsActive       bool   `json:"isActive"`
}

// GetProfile resolves the active LATE account connected for this platform.
func (s *lateService) GetProfile(ctx context.Context, accessToken string, opts PostOptions) (Profile, error) {
	resp, err := s.http.Do(ctx, http.MethodGet, LateBaseURL+"/accounts", &httpclient.Options{
		Headers: s.headers(accessToken),
	})
	if err != nil {
		return Profile{}, err
	}
	if _, perr := s.checkResponse(resp); perr != nil {
		return Profile{}, perr
	}

	var parsed struct {
		Accounts []lateAccount `json:"accounts"`
	}
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return Profile{}, NewError(KindPermanentAPI, s.platform, "invalid LATE accounts response")
	}

	for _, acc := range parsed.Accounts {
		if acc.Platform == s.lateType() && acc.IsActive {
			name := acc.DisplayName
			if name == "" {
				name = acc.Username
			}
			return Profile{
				ID:             acc.ID,
				Name:           name,
				Username:       acc.Username,
				ProfilePicture: acc.ProfilePicture,
			}, nil
		}
	}
	return Profile{}, NewError(KindPermanentAPI, s.platform,
		fmt.Sprintf("no %s account connected in LATE", s.platform))
}

// RefreshToken is a no-op: LATE uses a long-lived API key, not OAuth tokens.
func (s *lateService) RefreshToken(ctx context.Context, refreshToken string) (Token, error) {
	return Token{AccessToken: refreshToken}, nil
}
