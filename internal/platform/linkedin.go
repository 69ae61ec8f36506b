package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/maheshrc27/crosspost/internal/httpclient"
)

// LinkedinRestBaseURL is the versioned REST API root. Overridden in tests.
var LinkedinRestBaseURL = "https://api.linkedin.com/rest"

// LinkedinAPIBaseURL serves the OIDC userinfo endpoint.
var LinkedinAPIBaseURL = "https://api.linkedin.com/v2"

var linkedinOAuthEndpoint = oauth2.Endpoint{
	AuthURL:  "https://www.linkedin.com/oauth/v2/authorization",
	TokenURL: "https://www.linkedin.com/oauth/v2/accessToken",
}

// linkedinService is the direct REST adapter. Image posts are a three-step
// protocol (initializeUpload, PUT the bytes, create the post); any step
// failing reports the whole operation as failed.
type linkedinService struct {
	clientID     string
	clientSecret string
	http         *httpclient.Client
}

func NewLinkedinService(clientID, clientSecret string, hc *httpclient.Client) Service {
	return &linkedinService{clientID: clientID, clientSecret: clientSecret, http: hc}
}

func (s *linkedinService) restHeaders(accessToken string) map[string]string {
	return map[string]string{
		"Authorization":             "Bearer " + accessToken,
		"Content-Type":              "application/json",
		"X-Restli-Protocol-Version": "2.0.0",
		"LinkedIn-Version":          "202401",
	}
}

func (s *linkedinService) checkResponse(resp *httpclient.Response) *Error {
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var body struct {
		Message          string `json:"message"`
		ServiceErrorCode int    `json:"serviceErrorCode"`
	}
	json.Unmarshal(resp.Body, &body)

	msg := body.Message
	if msg == "" {
		msg = fmt.Sprintf("LinkedIn API error: HTTP %d", resp.StatusCode)
	}

	kind := KindPermanentAPI
	switch {
	case resp.StatusCode == http.StatusUnauthorized || body.ServiceErrorCode == 65600 || body.ServiceErrorCode == 65601:
		kind = KindAuthentication
		msg = "LinkedIn authentication failed: " + msg
	case resp.StatusCode == http.StatusTooManyRequests:
		kind = KindRateLimit
		msg = "LinkedIn API rate limit exceeded: " + msg
	}
	return &Error{Kind: kind, Platform: Linkedin, Message: msg, StatusCode: resp.StatusCode}
}

type linkedinPostBody struct {
	Author       string         `json:"author"`
	Commentary   string         `json:"commentary"`
	Visibility   string         `json:"visibility"`
	Distribution map[string]any `json:"distribution"`
	Content      map[string]any `json:"content,omitempty"`
	Lifecycle    string         `json:"lifecycleState"`
}

func (s *linkedinService) createPost(ctx context.Context, accessToken string, post linkedinPostBody) PostResult {
	body, _ := json.Marshal(post)
	resp, err := s.http.Do(ctx, http.MethodPost, LinkedinRestBaseURL+"/posts", &httpclient.Options{
		Headers: s.restHeaders(accessToken),
		Body:    body,
	})
	if err != nil {
		slog.Error("linkedin post failed", "error", err)
		return PostResult{Success: false, Platform: Linkedin, ErrorMessage: err.Error()}
	}
	if perr := s.checkResponse(resp); perr != nil {
		return PostResult{Success: false, Platform: Linkedin, ErrorMessage: perr.Message}
	}

	// LinkedIn returns the new post urn in a response header, not the body.
	postID := resp.Header.Get("x-restli-id")
	return PostResult{
		Success:         true,
		Platform:        Linkedin,
		PlatformPostID:  postID,
		PlatformPostURL: "https://www.linkedin.com/feed/update/" + postID,
	}
}

func (s *linkedinService) PostText(ctx context.Context, content, accessToken string, opts PostOptions) PostResult {
	if opts.PersonURN == "" {
		return PostResult{Success: false, Platform: Linkedin, ErrorMessage: "missing person URN for account"}
	}
	return s.createPost(ctx, accessToken, linkedinPostBody{
		Author:     opts.PersonURN,
		Commentary: content,
		Visibility: "PUBLIC",
		Distribution: map[string]any{
			"feedDistribution":               "MAIN_FEED",
			"targetEntities":                 []any{},
			"thirdPartyDistributionChannels": []any{},
		},
		Lifecycle: "PUBLISHED",
	})
}

func (s *linkedinService) PostImage(ctx context.Context, content, imageURL, accessToken string, opts PostOptions) PostResult {
	if opts.PersonURN == "" {
		return PostResult{Success: false, Platform: Linkedin, ErrorMessage: "missing person URN for account"}
	}

	initBody, _ := json.Marshal(map[string]any{
		"initializeUploadRequest": map[string]string{"owner": opts.PersonURN},
	})
	initResp, err := s.http.Do(ctx, http.MethodPost, LinkedinRestBaseURL+"/images?action=initializeUpload", &httpclient.Options{
		Headers: s.restHeaders(accessToken),
		Body:    initBody,
	})
	if err != nil {
		return PostResult{Success: false, Platform: Linkedin, ErrorMessage: err.Error()}
	}
	if perr := s.checkResponse(initResp); perr != nil {
		return PostResult{Success: false, Platform: Linkedin,
			ErrorMessage: "failed to initialize image upload: " + perr.Message}
	}

	var init struct {
		Value struct {
			UploadURL string `json:"uploadUrl"`
			Image     string `json:"image"`
		} `json:"value"`
	}
	if err := json.Unmarshal(initResp.Body, &init); err != nil || init.Value.UploadURL == "" {
		return PostResult{Success: false, Platform: Linkedin, ErrorMessage: "invalid upload initialization response"}
	}

	imgResp, err := s.http.Get(ctx, imageURL, nil)
	if err != nil {
		return PostResult{Success: false, Platform: Linkedin,
			ErrorMessage: fmt.Sprintf("failed to fetch image: %v", err)}
	}

	uploadResp, err := s.http.Do(ctx, http.MethodPut, init.Value.UploadURL, &httpclient.Options{
		Headers: map[string]string{
			"Authorization": "Bearer " + accessToken,
			"Content-Type":  "application/octet-stream",
		},
		Body: imgResp.Body,
	})
	if err != nil {
		return PostResult{Success: false, Platform: Linkedin, ErrorMessage: err.Error()}
	}
	if uploadResp.StatusCode != http.StatusOK && uploadResp.StatusCode != http.StatusCreated {
		return PostResult{Success: false, Platform: Linkedin, ErrorMessage: "failed to upload image"}
	}

	return s.createPost(ctx, accessToken, linkedinPostBody{
		Author:     opts.PersonURN,
		Commentary: content,
		Visibility: "PUBLIC",
		Distribution: map[string]any{
			"feedDistribution":               "MAIN_FEED",
			"targetEntities":                 []any{},
			"thirdPartyDistributionChannels": []any{},
		},
		Content:   map[string]any{"media": map[string]string{"id": init.Value.Image}},
		Lifecycle: "PUBLISHED",
	})
}

// PostVideo appends the video link to the text; native video upload needs
// Marketing API access.
func (s *linkedinService) PostVideo(ctx context.Context, content, videoURL, accessToken string, opts PostOptions) PostResult {
	return s.PostText(ctx, content+"\n\n"+videoURL, accessToken, opts)
}

func (s *linkedinService) DeletePost(ctx context.Context, postID, accessToken string, opts PostOptions) error {
	resp, err := s.http.Do(ctx, http.MethodDelete, LinkedinRestBaseURL+"/posts/"+postID, &httpclient.Options{
		Headers: s.restHeaders(accessToken),
	})
	if err != nil {
		return err
	}
	if perr := s.checkResponse(resp); perr != nil {
		return perr
	}
	return nil
}

// GetEngagement returns zeros; the socialActions API needs Marketing API
// permissions this integration does not request.
func (s *linkedinService) GetEngagement(ctx context.Context, postID, accessToken string, opts PostOptions) (EngagementData, error) {
	return EngagementData{}, nil
}

func (s *linkedinService) ReplyToComment(ctx context.Context, commentID, content, accessToken string, opts PostOptions) CommentResult {
	return CommentResult{
		Success:      false,
		Platform:     Linkedin,
		ErrorMessage: "LinkedIn comment replies require additional API permissions",
	}
}

func (s *linkedinService) GetComments(ctx context.Context, postID, accessToken string, opts PostOptions) ([]Comment, error) {
	return nil, nil
}

func (s *linkedinService) GetProfile(ctx context.Context, accessToken string, opts PostOptions) (Profile, error) {
	resp, err := s.http.Get(ctx, LinkedinAPIBaseURL+"/userinfo", map[string]string{
		"Authorization": "Bearer " + accessToken,
	})
	if err != nil {
		return Profile{}, err
	}
	if perr := s.checkResponse(resp); perr != nil {
		return Profile{}, perr
	}

	var data struct {
		Sub     string `json:"sub"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture string `json:"picture"`
	}
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		return Profile{}, NewError(KindPermanentAPI, Linkedin, "invalid userinfo response")
	}
	return Profile{
		ID:             data.Sub,
		Name:           data.Name,
		Username:       data.Email,
		ProfilePicture: data.Picture,
	}, nil
}

// RefreshToken runs the standard OAuth2 refresh grant.
func (s *linkedinService) RefreshToken(ctx context.Context, refreshToken string) (Token, error) {
	conf := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     linkedinOAuthEndpoint,
	}

	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return Token{}, NewError(KindAuthentication, Linkedin,
			fmt.Sprintf("failed to refresh LinkedIn token: %v", err))
	}

	newRefresh := tok.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}
	return Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: newRefresh,
		ExpiresIn:    int64(time.Until(tok.Expiry).Seconds()),
	}, nil
}
