package models

import (
	"time"
)

// SocialAccount holds a user's connected credential for one network. The
// access token is AES-GCM encrypted at rest and treated as an opaque string
// by the publishing pipeline. For Bluesky it holds the app password, for
// LATE-managed accounts it holds the LateManagedMarker.
type SocialAccount struct {
	ID              int64     `db:"id" json:"id"`
	UserID          int64     `db:"user_id" json:"user_id"`
	Platform        string    `db:"platform" json:"platform"`
	AccountID       string    `db:"account_id" json:"account_id"`
	AccountName     string    `db:"account_name" json:"account_name"`
	AccountUsername string    `db:"account_username" json:"account_username"`
	ProfilePicture  string    `db:"profile_picture_url" json:"profile_picture"`
	PageID          string    `db:"page_id" json:"page_id,omitempty"`
	AccessToken     string    `db:"access_token" json:"-"`
	RefreshToken    string    `db:"refresh_token" json:"-"`
	TokenExpiresAt  time.Time `db:"token_expires_at" json:"token_expires_at"`
	AspectRatio     string    `db:"preferred_aspect_ratio" json:"preferred_aspect_ratio"`
	IsActive        bool      `db:"is_active" json:"is_active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// LateManagedMarker in the access_token column means the account is posted
// through the LATE aggregator using the server-wide API key.
const LateManagedMarker = "LATE_MANAGED"
