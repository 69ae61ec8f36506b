package models

import (
	"database/sql"
	"time"
)

type Post struct {
	ID          int64          `db:"id" json:"id"`
	UserID      int64          `db:"user_id" json:"user_id"`
	Content     string         `db:"content" json:"content"`
	PostType    string         `db:"post_type" json:"post_type"` // text, image, video, story, reel
	MediaURLs   []string       `db:"media_urls" json:"media_urls"`
	ScheduledAt sql.NullTime   `db:"scheduled_at" json:"scheduled_at"`
	PublishedAt sql.NullTime   `db:"published_at" json:"published_at"`
	Status      string         `db:"status" json:"status"`
	Targets     []*PostTarget  `db:"-" json:"targets,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// PostTarget is the per-network delivery record for one Post. Its status
// mirrors the post status enum and only moves forward.
type PostTarget struct {
	ID              int64        `db:"id" json:"id"`
	PostID          int64        `db:"post_id" json:"post_id"`
	SocialAccountID int64        `db:"social_account_id" json:"social_account_id"`
	Content         string       `db:"content" json:"content,omitempty"` // optional override of the master content
	Status          string       `db:"status" json:"status"`
	PlatformPostID  string       `db:"platform_post_id" json:"platform_post_id,omitempty"`
	PlatformPostURL string       `db:"platform_post_url" json:"platform_post_url,omitempty"`
	ErrorMessage    string       `db:"error_message" json:"error_message,omitempty"`
	LikesCount      int          `db:"likes_count" json:"likes_count"`
	CommentsCount   int          `db:"comments_count" json:"comments_count"`
	SharesCount     int          `db:"shares_count" json:"shares_count"`
	Impressions     int          `db:"impressions" json:"impressions"`
	Reach           int          `db:"reach" json:"reach"`
	PublishedAt     sql.NullTime `db:"published_at" json:"published_at"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
}

const (
	PostStatusDraft      = "draft"
	PostStatusScheduled  = "scheduled"
	PostStatusPublishing = "publishing"
	PostStatusPublished  = "published"
	PostStatusFailed     = "failed"
)

const (
	PostTypeText  = "text"
	PostTypeImage = "image"
	PostTypeVideo = "video"
	PostTypeStory = "story"
	PostTypeReel  = "reel"
)
