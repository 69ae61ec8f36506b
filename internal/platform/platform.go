package platform

import (
	"context"

	"github.com/maheshrc27/crosspost/internal/platform/kind"
)

// Platform identifies one external social network. The underlying type lives
// in the kind package; the constants stay here with the adapters.
type Platform = kind.Platform

const (
	Bluesky   Platform = "bluesky"
	Facebook  Platform = "facebook"
	Instagram Platform = "instagram"
	Threads   Platform = "threads"
	Tiktok    Platform = "tiktok"
	X         Platform = "x"
	Linkedin  Platform = "linkedin"
)

// PostResult is the outcome of a post operation. Post methods report expected
// failures (rejected content, expired tokens, network exhaustion) through
// Success=false and ErrorMessage rather than through the error return, so the
// orchestrator can always record an outcome per target.
type PostResult struct {
	Success         bool     `json:"success"`
	Platform        Platform `json:"platform"`
	PlatformPostID  string   `json:"platform_post_id,omitempty"`
	PlatformPostURL string   `json:"platform_post_url,omitempty"`
	ErrorMessage    string   `json:"error_message,omitempty"`
}

type CommentResult struct {
	Success      bool     `json:"success"`
	Platform     Platform `json:"platform"`
	CommentID    string   `json:"comment_id,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`
}

type EngagementData struct {
	Likes       int `json:"likes"`
	Comments    int `json:"comments"`
	Shares      int `json:"shares"`
	Impressions int `json:"impressions"`
	Reach       int `json:"reach"`
}

type Comment struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
}

type Profile struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profile_picture"`
}

// Token is the result of a credential refresh.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
}

// PostOptions carries network-specific routing hints. All fields are opaque
// to the orchestrator; each adapter reads only the ones it needs.
type PostOptions struct {
	AccountID string // platform user/account id (Meta user id, LATE account id)
	PageID    string // Facebook page id
	Handle    string // Bluesky handle
	PersonURN string // LinkedIn person URN
	PostType  string // Instagram: feed, story, reel
}

// Service is the capability contract implemented once per network. Post
// methods never return an error for recoverable outcomes; errors are reserved
// for adapter misuse (missing required credential or routing hint is reported
// inside the PostResult as well, keeping the fan-out loop uniform).
type Service interface {
	PostText(ctx context.Context, content, accessToken string, opts PostOptions) PostResult
	PostImage(ctx context.Context, content, imageURL, accessToken string, opts PostOptions) PostResult
	PostVideo(ctx context.Context, content, videoURL, accessToken string, opts PostOptions) PostResult
	DeletePost(ctx context.Context, postID, accessToken string, opts PostOptions) error
	GetEngagement(ctx context.Context, postID, accessToken string, opts PostOptions) (EngagementData, error)
	ReplyToComment(ctx context.Context, commentID, content, accessToken string, opts PostOptions) CommentResult
	GetComments(ctx context.Context, postID, accessToken string, opts PostOptions) ([]Comment, error)
	GetProfile(ctx context.Context, accessToken string, opts PostOptions) (Profile, error)
	RefreshToken(ctx context.Context, refreshToken string) (Token, error)
}

// DefaultAspectRatios are the per-network crop ratios applied when the
// connected account has no explicit preference.
var DefaultAspectRatios = map[Platform]string{
	Instagram: "4:5",
	Facebook:  "16:9",
	Threads:   "4:5",
	Tiktok:    "9:16",
	X:         "16:9",
	Bluesky:   "16:9",
	Linkedin:  "16:9",
}
