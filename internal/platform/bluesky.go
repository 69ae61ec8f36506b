package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maheshrc27/crosspost/internal/httpclient"
)

// BlueskyBaseURL is the AT Protocol XRPC root. Overridden in tests.
var BlueskyBaseURL = "https://bsky.social/xrpc"

// blueskyService talks the AT Protocol directly. Credentials are a handle
// plus app password; a session is created per operation since app-password
// sessions are cheap and the scheduler calls are infrequent.
type blueskyService struct {
	http *httpclient.Client
}

func NewBlueskyService(hc *httpclient.Client) Service {
	return &blueskyService{http: hc}
}

type blueskySession struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
	DID        string `json:"did"`
	Handle     string `json:"handle"`
}

func (s *blueskyService) createSession(ctx context.Context, handle, appPassword string) (*blueskySession, error) {
	if handle == "" {
		return nil, NewError(KindAuthentication, Bluesky, "missing handle for account")
	}
	if appPassword == "" {
		return nil, NewError(KindAuthentication, Bluesky, "missing app password for account")
	}

	body, _ := json.Marshal(map[string]string{
		"identifier": handle,
		"password":   appPassword,
	})
	resp, err := s.http.Do(ctx, http.MethodPost, BlueskyBaseURL+"/com.atproto.server.createSession", &httpclient.Options{
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, s.xrpcError(resp, "createSession")
	}

	var session blueskySession
	if err := json.Unmarshal(resp.Body, &session); err != nil || session.AccessJwt == "" {
		return nil, NewError(KindAuthentication, Bluesky, "invalid session response")
	}
	return &session, nil
}

func (s *blueskyService) xrpcError(resp *httpclient.Response, op string) *Error {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	json.Unmarshal(resp.Body, &body)

	msg := body.Message
	if msg == "" {
		msg = body.Error
	}
	if msg == "" {
		msg = fmt.Sprintf("%s failed: HTTP %d", op, resp.StatusCode)
	}

	kind := KindPermanentAPI
	switch {
	case resp.StatusCode == http.StatusUnauthorized || body.Error == "AuthenticationRequired" || body.Error == "InvalidToken":
		kind = KindAuthentication
	case resp.StatusCode == http.StatusTooManyRequests:
		kind = KindRateLimit
	}
	return &Error{Kind: kind, Platform: Bluesky, Message: msg, StatusCode: resp.StatusCode}
}

type blueskyRecordRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

func (s *blueskyService) createRecord(ctx context.Context, session *blueskySession, record map[string]any) (*blueskyRecordRef, error) {
	body, _ := json.Marshal(map[string]any{
		"repo":       session.DID,
		"collection": "app.bsky.feed.post",
		"record":     record,
	})
	resp, err := s.http.Do(ctx, http.MethodPost, BlueskyBaseURL+"/com.atproto.repo.createRecord", &httpclient.Options{
		Headers: map[string]string{
			"Content-Type":  "application/json",
			"Authorization": "Bearer " + session.AccessJwt,
		},
		Body: body,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, s.xrpcError(resp, "createRecord")
	}

	var ref blueskyRecordRef
	if err := json.Unmarshal(resp.Body, &ref); err != nil || ref.URI == "" {
		return nil, NewError(KindPermanentAPI, Bluesky, "no record uri returned")
	}
	return &ref, nil
}

// webURL converts an at:// record URI into a bsky.app permalink.
func webURL(handle, recordURI string) string {
	parts := strings.Split(recordURI, "/")
	rkey := parts[len(parts)-1]
	return fmt.Sprintf("https://bsky.app/profile/%s/post/%s", handle, rkey)
}

func (s *blueskyService) PostText(ctx context.Context, content, accessToken string, opts PostOptions) PostResult {
	session, err := s.createSession(ctx, opts.Handle, accessToken)
	if err != nil {
		return PostResult{Success: false, Platform: Bluesky, ErrorMessage: err.Error()}
	}

	ref, err := s.createRecord(ctx, session, map[string]any{
		"$type":     "app.bsky.feed.post",
		"text":      content,
		"createdAt": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		slog.Error("bluesky text post failed", "handle", opts.Handle, "error", err)
		return PostResult{Success: false, Platform: Bluesky, ErrorMessage: err.Error()}
	}

	return PostResult{
		Success:         true,
		Platform:        Bluesky,
		PlatformPostID:  ref.URI,
		PlatformPostURL: webURL(opts.Handle, ref.URI),
	}
}

func (s *blueskyService) PostImage(ctx context.Context, content, imageURL, accessToken string, opts PostOptions) PostResult {
	session, err := s.createSession(ctx, opts.Handle, accessToken)
	if err != nil {
		return PostResult{Success: false, Platform: Bluesky, ErrorMessage: err.Error()}
	}

	// The image has to live in the user's repo as a blob before it can be
	// embedded, so fetch it and re-upload.
	imgResp, err := s.http.Get(ctx, imageURL, nil)
	if err != nil {
		return PostResult{Success: false, Platform: Bluesky,
			ErrorMessage: fmt.Sprintf("failed to fetch image: %v", err)}
	}
	if imgResp.StatusCode < 200 || imgResp.StatusCode > 299 {
		return PostResult{Success: false, Platform: Bluesky,
			ErrorMessage: fmt.Sprintf("failed to fetch image: HTTP %d", imgResp.StatusCode)}
	}
	contentType := imgResp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	blobResp, err := s.http.Do(ctx, http.MethodPost, BlueskyBaseURL+"/com.atproto.repo.uploadBlob", &httpclient.Options{
		Headers: map[string]string{
			"Content-Type":  contentType,
			"Authorization": "Bearer " + session.AccessJwt,
		},
		Body: imgResp.Body,
	})
	if err != nil {
		return PostResult{Success: false, Platform: Bluesky, ErrorMessage: err.Error()}
	}
	if blobResp.StatusCode != http.StatusOK {
		return PostResult{Success: false, Platform: Bluesky,
			ErrorMessage: s.xrpcError(blobResp, "uploadBlob").Message}
	}

	var blob struct {
		Blob map[string]any `json:"blob"`
	}
	if err := json.Unmarshal(blobResp.Body, &blob); err != nil || blob.Blob == nil {
		return PostResult{Success: false, Platform: Bluesky, ErrorMessage: "invalid blob response"}
	}

	ref, err := s.createRecord(ctx, session, map[string]any{
		"$type":     "app.bsky.feed.post",
		"text":      content,
		"createdAt": time.Now().UTC().Format(time.RFC3339),
		"embed": map[string]any{
			"$type": "app.bsky.embed.images",
			"images": []map[string]any{
				{"alt": "", "image": blob.Blob},
			},
		},
	})
	if err != nil {
		slog.Error("bluesky image post failed", "handle", opts.Handle, "error", err)
		return PostResult{Success: false, Platform: Bluesky, ErrorMessage: err.Error()}
	}

	return PostResult{
		Success:         true,
		Platform:        Bluesky,
		PlatformPostID:  ref.URI,
		PlatformPostURL: webURL(opts.Handle, ref.URI),
	}
}

func (s *blueskyService) PostVideo(ctx context.Context, content, videoURL, accessToken string, opts PostOptions) PostResult {
	return PostResult{
		Success:      false,
		Platform:     Bluesky,
		ErrorMessage: "video posts are not supported on Bluesky",
	}
}

func (s *blueskyService) DeletePost(ctx context.Context, postID, accessToken string, opts PostOptions) error {
	session, err := s.createSession(ctx, opts.Handle, accessToken)
	if err != nil {
		return err
	}

	// postID is the at:// uri; the delete call wants repo + rkey.
	parts := strings.Split(postID, "/")
	if len(parts) < 2 {
		return NewError(KindPermanentAPI, Bluesky, "invalid post uri: "+postID)
	}
	rkey := parts[len(parts)-1]

	body, _ := json.Marshal(map[string]string{
		"repo":       session.DID,
		"collection": "app.bsky.feed.post",
		"rkey":       rkey,
	})
	resp, err := s.http.Do(ctx, http.MethodPost, BlueskyBaseURL+"/com.atproto.repo.deleteRecord", &httpclient.Options{
		Headers: map[string]string{
			"Content-Type":  "application/json",
			"Authorization": "Bearer " + session.AccessJwt,
		},
		Body: body,
	})
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return s.xrpcError(resp, "deleteRecord")
	}
	return nil
}

func (s *blueskyService) GetEngagement(ctx context.Context, postID, accessToken string, opts PostOptions) (EngagementData, error) {
	session, err := s.createSession(ctx, opts.Handle, accessToken)
	if err != nil {
		return EngagementData{}, err
	}

	q := url.Values{}
	q.Set("uris", postID)

	resp, err := s.http.Do(ctx, http.MethodGet, BlueskyBaseURL+"/app.bsky.feed.getPosts", &httpclient.Options{
		Headers: map[string]string{"Authorization": "Bearer " + session.AccessJwt},
		Query:   q,
	})
	if err != nil {
		return EngagementData{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return EngagementData{}, s.xrpcError(resp, "getPosts")
	}

	var data struct {
		Posts []struct {
			LikeCount   int `json:"likeCount"`
			ReplyCount  int `json:"replyCount"`
			RepostCount int `json:"repostCount"`
		} `json:"posts"`
	}
	if err := json.Unmarshal(resp.Body, &data); err != nil || len(data.Posts) == 0 {
		return EngagementData{}, nil
	}

	p := data.Posts[0]
	return EngagementData{
		Likes:    p.LikeCount,
		Comments: p.ReplyCount,
		Shares:   p.RepostCount,
	}, nil
}

func (s *blueskyService) ReplyToComment(ctx context.Context, commentID, content, accessToken string, opts PostOptions) CommentResult {
	session, err := s.createSession(ctx, opts.Handle, accessToken)
	if err != nil {
		return CommentResult{Success: false, Platform: Bluesky, ErrorMessage: err.Error()}
	}

	// Resolve the parent record's cid so the reply ref is complete.
	q := url.Values{}
	q.Set("uris", commentID)
	resp, err := s.http.Do(ctx, http.MethodGet, BlueskyBaseURL+"/app.bsky.feed.getPosts", &httpclient.Options{
		Headers: map[string]string{"Authorization": "Bearer " + session.AccessJwt},
		Query:   q,
	})
	if err != nil {
		return CommentResult{Success: false, Platform: Bluesky, ErrorMessage: err.Error()}
	}
	var parent struct {
		Posts []struct {
			URI string `json:"uri"`
			CID string `json:"cid"`
		} `json:"posts"`
	}
	if err := json.Unmarshal(resp.Body, &parent); err != nil || len(parent.Posts) == 0 {
		return CommentResult{Success: false, Platform: Bluesky, ErrorMessage: "parent post not found"}
	}

	parentRef := map[string]string{"uri": parent.Posts[0].URI, "cid": parent.Posts[0].CID}
	ref, err := s.createRecord(ctx, session, map[string]any{
		"$type":     "app.bsky.feed.post",
		"text":      content,
		"createdAt": time.Now().UTC().Format(time.RFC3339),
		"reply": map[string]any{
			"root":   parentRef,
			"parent": parentRef,
		},
	})
	if err != nil {
		return CommentResult{Success: false, Platform: Bluesky, ErrorMessage: err.Error()}
	}
	return CommentResult{Success: true, Platform: Bluesky, CommentID: ref.URI}
}

func (s *blueskyService) GetComments(ctx context.Context, postID, accessToken string, opts PostOptions) ([]Comment, error) {
	session, err := s.createSession(ctx, opts.Handle, accessToken)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("uri", postID)

	resp, err := s.http.Do(ctx, http.MethodGet, BlueskyBaseURL+"/app.bsky.feed.getPostThread", &httpclient.Options{
		Headers: map[string]string{"Authorization": "Bearer " + session.AccessJwt},
		Query:   q,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, s.xrpcError(resp, "getPostThread")
	}

	var data struct {
		Thread struct {
			Replies []struct {
				Post struct {
					URI    string `json:"uri"`
					Author struct {
						Handle string `json:"handle"`
					} `json:"author"`
					Record struct {
						Text      string `json:"text"`
						CreatedAt string `json:"createdAt"`
					} `json:"record"`
				} `json:"post"`
			} `json:"replies"`
		} `json:"thread"`
	}
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		return nil, NewError(KindPermanentAPI, Bluesky, "invalid thread response")
	}

	comments := make([]Comment, 0, len(data.Thread.Replies))
	for _, r := range data.Thread.Replies {
		comments = append(comments, Comment{
			ID:        r.Post.URI,
			Text:      r.Post.Record.Text,
			Username:  r.Post.Author.Handle,
			Timestamp: r.Post.Record.CreatedAt,
		})
	}
	return comments, nil
}

func (s *blueskyService) GetProfile(ctx context.Context, accessToken string, opts PostOptions) (Profile, error) {
	session, err := s.createSession(ctx, opts.Handle, accessToken)
	if err != nil {
		return Profile{}, err
	}

	q := url.Values{}
	q.Set("actor", session.Handle)

	resp, err := s.http.Do(ctx, http.MethodGet, BlueskyBaseURL+"/app.bsky.actor.getProfile", &httpclient.Options{
		Headers: map[string]string{"Authorization": "Bearer " + session.AccessJwt},
		Query:   q,
	})
	if err != nil {
		return Profile{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Profile{}, s.xrpcError(resp, "getProfile")
	}

	var data struct {
		DID         string `json:"did"`
		Handle      string `json:"handle"`
		DisplayName string `json:"displayName"`
		Avatar      string `json:"avatar"`
	}
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		return Profile{}, NewError(KindPermanentAPI, Bluesky, "invalid profile response")
	}
	name := data.DisplayName
	if name == "" {
		name = data.Handle
	}
	return Profile{
		ID:             data.DID,
		Name:           name,
		Username:       data.Handle,
		ProfilePicture: data.Avatar,
	}, nil
}

// RefreshToken is not applicable: app-password accounts authenticate with a
// fresh session per call, so there is nothing to refresh.
func (s *blueskyService) RefreshToken(ctx context.Context, refreshToken string) (Token, error) {
	return Token{AccessToken: refreshToken}, nil
}
