package transfer

// PostCreation is the request body for creating a post. ScheduledAt is
// RFC 3339; empty means publish immediately.
type PostCreation struct {
	Content     string           `json:"content"`
	PostType    string           `json:"post_type"`
	MediaURLs   []string         `json:"media_urls"`
	ScheduledAt string           `json:"scheduled_at"`
	Draft       bool             `json:"draft"`
	Targets     []TargetCreation `json:"targets"`
}

type TargetCreation struct {
	SocialAccountID int64  `json:"social_account_id"`
	Content         string `json:"content,omitempty"`
}

// PublishOutcome is the per-target response after a publish run.
type PublishOutcome struct {
	TargetID        int64  `json:"target_id"`
	Success         bool   `json:"success"`
	Platform        string `json:"platform,omitempty"`
	PlatformPostID  string `json:"platform_post_id,omitempty"`
	PlatformPostURL string `json:"platform_post_url,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

// SchedulerStatus is the operational snapshot of the polling loop.
type SchedulerStatus struct {
	Running         bool  `json:"running"`
	IntervalSeconds int64 `json:"interval_seconds"`
}
