package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/maheshrc27/crosspost/internal/httpclient"
)

// GraphBaseURL is the Meta Graph API root. Overridden in tests.
var GraphBaseURL = "https://graph.facebook.com/v19.0"

// metaService is the direct Graph API adapter shared by Facebook, Instagram
// and Threads. Facebook posts to a page feed in one call; Instagram and
// Threads use the two-step container protocol: create a media container,
// then publish it. A publish failure after container creation is reported as
// a failed post; the orphaned container is not retried.
type metaService struct {
	platform  Platform
	appID     string
	appSecret string
	http      *httpclient.Client
}

func NewMetaService(p Platform, appID, appSecret string, hc *httpclient.Client) Service {
	return &metaService{platform: p, appID: appID, appSecret: appSecret, http: hc}
}

type metaError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// checkResponse maps Graph API errors into the taxonomy. Meta signals auth
// and throttling through error codes as often as through HTTP status.
func (s *metaService) checkResponse(resp *httpclient.Response) (map[string]any, *Error) {
	var data map[string]any
	json.Unmarshal(resp.Body, &data)

	var me metaError
	json.Unmarshal(resp.Body, &me)

	if resp.StatusCode == http.StatusOK && me.Error.Message == "" {
		return data, nil
	}

	message := me.Error.Message
	if message == "" {
		message = fmt.Sprintf("Meta API error: HTTP %d", resp.StatusCode)
	}
	code := me.Error.Code

	switch {
	case resp.StatusCode == http.StatusUnauthorized || code == 190 || code == 102 || code == 104:
		return nil, &Error{
			Kind:       KindAuthentication,
			Platform:   s.platform,
			Message:    "Meta API authentication failed: " + message,
			StatusCode: resp.StatusCode,
		}
	case resp.StatusCode == http.StatusTooManyRequests || code == 4 || code == 17 || code == 341:
		return nil, &Error{
			Kind:       KindRateLimit,
			Platform:   s.platform,
			Message:    "Meta API rate limit exceeded: " + message,
			StatusCode: resp.StatusCode,
		}
	default:
		return nil, &Error{
			Kind:       KindPermanentAPI,
			Platform:   s.platform,
			Message:    message,
			StatusCode: resp.StatusCode,
		}
	}
}

func (s *metaService) postForm(ctx context.Context, endpoint string, form url.Values) (map[string]any, *Error) {
	resp, err := s.http.Do(ctx, http.MethodPost, GraphBaseURL+endpoint, &httpclient.Options{
		Headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
		Body:    []byte(form.Encode()),
	})
	if err != nil {
		var perr *Error
		if e, ok := err.(*Error); ok {
			perr = e
		} else {
			perr = NewError(KindTransientNetwork, s.platform, err.Error())
		}
		return nil, perr
	}
	return s.checkResponse(resp)
}

func (s *metaService) PostText(ctx context.Context, content, accessToken string, opts PostOptions) PostResult {
	switch s.platform {
	case Instagram:
		return PostResult{
			Success:      false,
			Platform:     s.platform,
			ErrorMessage: "Instagram requires an image or video for posts",
		}
	case Threads:
		return s.postThreads(ctx, content, "", accessToken, opts.AccountID)
	}

	form := url.Values{}
	form.Set("message", content)
	form.Set("access_token", accessToken)

	data, perr := s.postForm(ctx, "/"+opts.PageID+"/feed", form)
	if perr != nil {
		slog.Error("meta text post failed", "platform", s.platform, "error", perr.Message)
		return PostResult{Success: false, Platform: s.platform, ErrorMessage: perr.Message}
	}

	id, _ := data["id"].(string)
	if id == "" {
		return PostResult{Success: false, Platform: s.platform, ErrorMessage: "no post id returned"}
	}
	return PostResult{
		Success:         true,
		Platform:        s.platform,
		PlatformPostID:  id,
		PlatformPostURL: "https://facebook.com/" + id,
	}
}

func (s *metaService) PostImage(ctx context.Context, content, imageURL, accessToken string, opts PostOptions) PostResult {
	switch s.platform {
	case Instagram:
		return s.postInstagramMedia(ctx, content, imageURL, "", accessToken, opts.AccountID)
	case Facebook:
		return s.postFacebookPhoto(ctx, content, imageURL, accessToken, opts.PageID)
	case Threads:
		return s.postThreads(ctx, content, imageURL, accessToken, opts.AccountID)
	}
	return PostResult{Success: false, Platform: s.platform,
		ErrorMessage: fmt.Sprintf("unsupported platform: %s", s.platform)}
}

func (s *metaService) PostVideo(ctx context.Context, content, videoURL, accessToken string, opts PostOptions) PostResult {
	switch s.platform {
	case Instagram:
		return s.postInstagramMedia(ctx, content, "", videoURL, accessToken, opts.AccountID)
	case Facebook:
		form := url.Values{}
		form.Set("file_url", videoURL)
		form.Set("description", content)
		form.Set("access_token", accessToken)
		data, perr := s.postForm(ctx, "/"+opts.PageID+"/videos", form)
		if perr != nil {
			return PostResult{Success: false, Platform: s.platform, ErrorMessage: perr.Message}
		}
		id, _ := data["id"].(string)
		return PostResult{
			Success:         id != "",
			Platform:        s.platform,
			PlatformPostID:  id,
			PlatformPostURL: "https://facebook.com/" + id,
		}
	}
	return PostResult{Success: false, Platform: s.platform,
		ErrorMessage: fmt.Sprintf("video posts not supported on %s via Meta API", s.platform)}
}

// postInstagramMedia runs the container protocol: create, then publish. Both
// steps must succeed for the post to count; a container left unpublished is
// surfaced as failure and never retried here.
func (s *metaService) postInstagramMedia(ctx context.Context, caption, imageURL, videoURL, accessToken, userID string) PostResult {
	form := url.Values{}
	form.Set("caption", caption)
	form.Set("access_token", accessToken)
	if videoURL != "" {
		form.Set("media_type", "REELS")
		form.Set("video_url", videoURL)
	} else {
		form.Set("image_url", imageURL)
	}

	createData, perr := s.postForm(ctx, "/"+userID+"/media", form)
	if perr != nil {
		slog.Error("instagram container creation failed", "error", perr.Message)
		return PostResult{Success: false, Platform: s.platform, ErrorMessage: perr.Message}
	}
	containerID, _ := createData["id"].(string)
	if containerID == "" {
		return PostResult{Success: false, Platform: s.platform, ErrorMessage: "container creation failed"}
	}

	publishForm := url.Values{}
	publishForm.Set("creation_id", containerID)
	publishForm.Set("access_token", accessToken)

	publishData, perr := s.postForm(ctx, "/"+userID+"/media_publish", publishForm)
	if perr != nil {
		slog.Error("instagram publish failed", "container_id", containerID, "error", perr.Message)
		return PostResult{Success: false, Platform: s.platform, ErrorMessage: perr.Message}
	}
	mediaID, _ := publishData["id"].(string)
	if mediaID == "" {
		return PostResult{Success: false, Platform: s.platform, ErrorMessage: "publish failed"}
	}

	return PostResult{
		Success:         true,
		Platform:        s.platform,
		PlatformPostID:  mediaID,
		PlatformPostURL: s.instagramPermalink(ctx, mediaID, accessToken),
	}
}

// instagramPermalink is best-effort; an empty URL is fine.
func (s *metaService) instagramPermalink(ctx context.Context, mediaID, accessToken string) string {
	q := url.Values{}
	q.Set("fields", "permalink")
	q.Set("access_token", accessToken)

	resp, err := s.http.Do(ctx, http.MethodGet, GraphBaseURL+"/"+mediaID, &httpclient.Options{Query: q})
	if err != nil {
		return ""
	}
	var data struct {
		Permalink string `json:"permalink"`
	}
	json.Unmarshal(resp.Body, &data)
	return data.Permalink
}

func (s *metaService) postFacebookPhoto(ctx context.Context, caption, imageURL, accessToken, pageID string) PostResult {
	form := url.Values{}
	form.Set("url", imageURL)
	form.Set("caption", caption)
	form.Set("access_token", accessToken)

	data, perr := s.postForm(ctx, "/"+pageID+"/photos", form)
	if perr != nil {
		slog.Error("facebook photo post failed", "error", perr.Message)
		return PostResult{Success: false, Platform: s.platform, ErrorMessage: perr.Message}
	}
	id, _ := data["id"].(string)
	if id == "" {
		return PostResult{Success: false, Platform: s.platform, ErrorMessage: "no post id returned"}
	}
	return PostResult{
		Success:         true,
		Platform:        s.platform,
		PlatformPostID:  id,
		PlatformPostURL: "https://facebook.com/" + id,
	}
}

func (s *metaService) postThreads(ctx context.Context, text, imageURL, accessToken, userID string) PostResult {
	form := url.Values{}
	form.Set("text", text)
	form.Set("access_token", accessToken)
	if imageURL != "" {
		form.Set("media_type", "IMAGE")
		form.Set("image_url", imageURL)
	} else {
		form.Set("media_type", "TEXT")
	}

	createData, perr := s.postForm(ctx, "/"+userID+"/threads", form)
	if perr != nil {
		return PostResult{Success: false, Platform: Threads, ErrorMessage: perr.Message}
	}
	containerID, _ := createData["id"].(string)
	if containerID == "" {
		return PostResult{Success: false, Platform: Threads, ErrorMessage: "container creation failed"}
	}

	publishForm := url.Values{}
	publishForm.Set("creation_id", containerID)
	publishForm.Set("access_token", accessToken)

	publishData, perr := s.postForm(ctx, "/"+userID+"/threads_publish", publishForm)
	if perr != nil {
		return PostResult{Success: false, Platform: Threads, ErrorMessage: perr.Message}
	}
	id, _ := publishData["id"].(string)
	if id == "" {
		return PostResult{Success: false, Platform: Threads, ErrorMessage: "publish failed"}
	}
	return PostResult{
		Success:         true,
		Platform:        Threads,
		PlatformPostID:  id,
		PlatformPostURL: "https://threads.net/t/" + id,
	}
}

func (s *metaService) DeletePost(ctx context.Context, postID, accessToken string, opts PostOptions) error {
	q := url.Values{}
	q.Set("access_token", accessToken)

	resp, err := s.http.Do(ctx, http.MethodDelete, GraphBaseURL+"/"+postID, &httpclient.Options{Query: q})
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return NewError(KindPermanentAPI, s.platform, fmt.Sprintf("delete failed: HTTP %d", resp.StatusCode))
	}
	return nil
}

func (s *metaService) GetEngagement(ctx context.Context, postID, accessToken string, opts PostOptions) (EngagementData, error) {
	fields := "like_count,comments_count,shares"
	if s.platform == Instagram {
		fields = "like_count,comments_count,impressions,reach"
	}

	q := url.Values{}
	q.Set("fields", fields)
	q.Set("access_token", accessToken)

	resp, err := s.http.Do(ctx, http.MethodGet, GraphBaseURL+"/"+postID, &httpclient.Options{Query: q})
	if err != nil {
		return EngagementData{}, err
	}

	var data struct {
		LikeCount     int `json:"like_count"`
		CommentsCount int `json:"comments_count"`
		Shares        struct {
			Count int `json:"count"`
		} `json:"shares"`
		Impressions int `json:"impressions"`
		Reach       int `json:"reach"`
	}
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		return EngagementData{}, NewError(KindPermanentAPI, s.platform, "invalid engagement response")
	}

	return EngagementData{
		Likes:       data.LikeCount,
		Comments:    data.CommentsCount,
		Shares:      data.Shares.Count,
		Impressions: data.Impressions,
		Reach:       data.Reach,
	}, nil
}

func (s *metaService) ReplyToComment(ctx context.Context, commentID, content, accessToken string, opts PostOptions) CommentResult {
	form := url.Values{}
	form.Set("message", content)
	form.Set("access_token", accessToken)

	data, perr := s.postForm(ctx, "/"+commentID+"/replies", form)
	if perr != nil {
		return CommentResult{Success: false, Platform: s.platform, ErrorMessage: perr.Message}
	}
	id, _ := data["id"].(string)
	if id == "" {
		return CommentResult{Success: false, Platform: s.platform, ErrorMessage: "no comment id returned"}
	}
	return CommentResult{Success: true, Platform: s.platform, CommentID: id}
}

func (s *metaService) GetComments(ctx context.Context, postID, accessToken string, opts PostOptions) ([]Comment, error) {
	q := url.Values{}
	q.Set("fields", "id,text,from,like_count,timestamp")
	q.Set("access_token", accessToken)

	resp, err := s.http.Do(ctx, http.MethodGet, GraphBaseURL+"/"+postID+"/comments", &httpclient.Options{Query: q})
	if err != nil {
		return nil, err
	}

	var data struct {
		Data []struct {
			ID   string `json:"id"`
			Text string `json:"text"`
			From struct {
				Name string `json:"name"`
			} `json:"from"`
			Timestamp string `json:"timestamp"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		return nil, NewError(KindPermanentAPI, s.platform, "invalid comments response")
	}

	comments := make([]Comment, 0, len(data.Data))
	for _, c := range data.Data {
		comments = append(comments, Comment{
			ID:        c.ID,
			Text:      c.Text,
			Username:  c.From.Name,
			Timestamp: c.Timestamp,
		})
	}
	return comments, nil
}

func (s *metaService) GetProfile(ctx context.Context, accessToken string, opts PostOptions) (Profile, error) {
	endpoint := "me"
	if opts.AccountID != "" {
		endpoint = opts.AccountID
	}
	fields := "id,username,name,profile_picture_url"
	if s.platform == Facebook {
		fields = "id,name,picture"
	}

	q := url.Values{}
	q.Set("fields", fields)
	q.Set("access_token", accessToken)

	resp, err := s.http.Do(ctx, http.MethodGet, GraphBaseURL+"/"+endpoint, &httpclient.Options{Query: q})
	if err != nil {
		return Profile{}, err
	}
	data, perr := s.checkResponse(resp)
	if perr != nil {
		return Profile{}, perr
	}

	prof := Profile{}
	prof.ID, _ = data["id"].(string)
	prof.Name, _ = data["name"].(string)
	prof.Username, _ = data["username"].(string)
	if prof.Username == "" {
		prof.Username = prof.Name
	}
	prof.ProfilePicture, _ = data["profile_picture_url"].(string)
	return prof, nil
}

// RefreshToken exchanges the current token for a fresh long-lived one.
func (s *metaService) RefreshToken(ctx context.Context, refreshToken string) (Token, error) {
	q := url.Values{}
	q.Set("grant_type", "fb_exchange_token")
	q.Set("client_id", s.appID)
	q.Set("client_secret", s.appSecret)
	q.Set("fb_exchange_token", refreshToken)

	resp, err := s.http.Do(ctx, http.MethodGet, GraphBaseURL+"/oauth/access_token", &httpclient.Options{Query: q})
	if err != nil {
		return Token{}, err
	}
	if _, perr := s.checkResponse(resp); perr != nil {
		return Token{}, perr
	}

	var token Token
	if err := json.Unmarshal(resp.Body, &token); err != nil {
		return Token{}, NewError(KindPermanentAPI, s.platform, "invalid token response")
	}
	if token.AccessToken == "" {
		return Token{}, NewError(KindAuthentication, s.platform, "no access token returned")
	}
	return token, nil
}
