package dto

import (
	"fmt"
	"strings"
	"time"

	"github.com/kaushalkrishnax/inflow-backend/internal/domain"
)

// ScheduleRequest carries the multipart form fields of a submission.
// The media file itself arrives as the "media" file part.
type ScheduleRequest struct {
	Platform    string `form:"platform" binding:"required"`
	ContentType string `form:"content_type" binding:"required"`
	ScheduledAt string `form:"scheduled_at"`

	Message     string `form:"message"`
	Caption     string `form:"caption"`
	Title       string `form:"title"`
	Description string `form:"description"`
	Tags        string `form:"tags"`

	PageID    string `form:"page_id"`
	IGUserID  string `form:"ig_user_id"`
	ChannelID string `form:"channel_id"`

	AccessToken string `form:"access_token" binding:"required"`

	MediaURL  string `form:"media_url"`
	SourceURL string `form:"source_url"`
	EndTime   string `form:"end_time"`
}

// TimeRemaining describes how far away a scheduled publish is.
type TimeRemaining struct {
	Seconds   int64  `json:"seconds"`
	Formatted string `json:"formatted"`
}

// ScheduledResponse is returned with 201 when a job is deferred.
type ScheduledResponse struct {
	JobID         string        `json:"job_id"`
	Platform      string        `json:"platform"`
	ContentType   string        `json:"content_type"`
	Status        string        `json:"status"`
	ScheduledAt   string        `json:"scheduled_at"`
	TimeRemaining TimeRemaining `json:"time_remaining"`
}

// PublishedResponse is returned with 200 when a job published
// immediately.
type PublishedResponse struct {
	JobID       string `json:"job_id"`
	Platform    string `json:"platform"`
	ContentType string `json:"content_type"`
	Status      string `json:"status"`
	ExternalID  string `json:"external_id"`
	PublishedAt string `json:"published_at"`
}

// JobDTO is the listing and detail representation of a job.
type JobDTO struct {
	JobID       string `json:"job_id"`
	Platform    string `json:"platform"`
	ContentType string `json:"content_type"`
	Status      string `json:"status"`
	ScheduledAt string `json:"scheduled_at"`
	ExternalID  string `json:"external_id,omitempty"`
	LastError   string `json:"last_error,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// ListJobsRequest carries the optional listing filters.
type ListJobsRequest struct {
	Platform    string `form:"platform"`
	ContentType string `form:"content_type"`
	Status      string `form:"status"`
}

// ListJobsResponse carries the jobs sorted by due time plus a grouping
// by content type.
type ListJobsResponse struct {
	Count         int                 `json:"count"`
	Jobs          []JobDTO            `json:"jobs"`
	GroupedByType map[string][]JobDTO `json:"grouped_by_type"`
}

// CancelResponse reports the outcome of a cancellation. Cancelled is
// false when the job was already terminal and nothing changed.
type CancelResponse struct {
	JobID          string `json:"job_id"`
	PreviousStatus string `json:"previous_status"`
	Cancelled      bool   `json:"cancelled"`
}

// FromJob converts a domain job to its DTO.
func FromJob(job *domain.Job) JobDTO {
	out := JobDTO{
		JobID:       job.ID,
		Platform:    string(job.Platform),
		ContentType: string(job.ContentType),
		Status:      job.Status,
		ScheduledAt: job.ScheduledAt.Format(time.RFC3339),
		ExternalID:  job.ExternalID,
		LastError:   job.LastError,
		CreatedAt:   job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   job.UpdatedAt.Format(time.RFC3339),
	}
	if job.PublishedAt != nil {
		out.PublishedAt = job.PublishedAt.Format(time.RFC3339)
	}
	return out
}

// NewTimeRemaining computes the remaining time until fireAt as seen
// from now.
func NewTimeRemaining(now, fireAt time.Time) TimeRemaining {
	remaining := fireAt.Sub(now)
	return TimeRemaining{
		Seconds:   int64(remaining.Seconds()),
		Formatted: FormatTimeRemaining(remaining),
	}
}

// FormatTimeRemaining renders a duration as "2d 3h 4m", skipping
// zero-valued units and dropping seconds once days are shown. Negative
// durations render as "Overdue".
func FormatTimeRemaining(d time.Duration) string {
	total := int64(d.Seconds())
	if total < 0 {
		return "Overdue"
	}

	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	parts := make([]string, 0, 4)
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if seconds > 0 && days == 0 {
		parts = append(parts, fmt.Sprintf("%ds", seconds))
	}

	return strings.Join(parts, " ")
}
