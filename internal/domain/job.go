package domain

import "time"

// Platform identifies the social network a job publishes to.
type Platform string

const (
	PlatformFacebook  Platform = "FACEBOOK"
	PlatformInstagram Platform = "INSTAGRAM"
	PlatformYouTube   Platform = "YOUTUBE"
)

// ContentType identifies what kind of content a job carries.
type ContentType string

const (
	ContentTypePost  ContentType = "POST"
	ContentTypeReel  ContentType = "REEL"
	ContentTypeStory ContentType = "STORY"
	ContentTypeVideo ContentType = "VIDEO"
	ContentTypeLive  ContentType = "LIVE"
)

// Job status constants. PUBLISHING is ephemeral and never persisted;
// the in-flight set in the scheduler engine tracks it instead.
const (
	JobStatusScheduled  = "SCHEDULED"
	JobStatusPublishing = "PUBLISHING"
	JobStatusPublished  = "PUBLISHED"
	JobStatusFailed     = "FAILED"
	JobStatusCancelled  = "CANCELLED"
)

// IsTerminal reports whether a status admits no further transitions.
func IsTerminal(status string) bool {
	switch status {
	case JobStatusPublished, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Payload carries the platform- and content-type-specific publish fields.
// Persisted as a JSON column so the jobs table stays platform-agnostic.
type Payload struct {
	Message     string `json:"message,omitempty"`
	Caption     string `json:"caption,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Tags        string `json:"tags,omitempty"` // comma-separated

	PageID    string `json:"page_id,omitempty"`    // Facebook
	IGUserID  string `json:"ig_user_id,omitempty"` // Instagram
	ChannelID string `json:"channel_id,omitempty"` // YouTube

	AccessToken string `json:"access_token,omitempty"`

	MediaURL  string `json:"media_url,omitempty"`  // hosted media (Instagram)
	SourceURL string `json:"source_url,omitempty"` // video source (YouTube)
	EndTime   string `json:"end_time,omitempty"`   // live broadcast end (RFC3339)
}

// Job is the central scheduling entity: one publish request with a
// durable lifecycle state. The JobStore row is the source of truth;
// timers are derived from it on startup.
type Job struct {
	ID          string
	Platform    Platform
	ContentType ContentType
	Payload     Payload
	MediaID     string
	ScheduledAt time.Time
	Status      string
	ExternalID  string
	LastError   string
	PublishedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DueNow reports whether the job's due time has already passed at t.
func (j *Job) DueNow(t time.Time) bool {
	return !j.ScheduledAt.After(t)
}
