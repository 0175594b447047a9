package scheduler

import (
	"github.com/kaushalkrishnax/inflow-backend/internal/domain"
)

// supportedContent maps each platform to the content types it accepts.
var supportedContent = map[domain.Platform]map[domain.ContentType]bool{
	domain.PlatformFacebook: {
		domain.ContentTypePost:  true,
		domain.ContentTypeReel:  true,
		domain.ContentTypeStory: true,
		domain.ContentTypeVideo: true,
	},
	domain.PlatformInstagram: {
		domain.ContentTypePost:  true,
		domain.ContentTypeReel:  true,
		domain.ContentTypeStory: true,
	},
	domain.PlatformYouTube: {
		domain.ContentTypeVideo: true,
		domain.ContentTypeLive:  true,
	},
}

// validate rejects a submission before anything is persisted. Rules are
// per platform and content type; a failed check surfaces as a
// domain.ValidationError naming the offending field.
func validate(job *domain.Job) error {
	types, ok := supportedContent[job.Platform]
	if !ok {
		return domain.NewValidationError("platform", "must be one of FACEBOOK, INSTAGRAM, YOUTUBE")
	}

	if !types[job.ContentType] {
		return domain.NewValidationError("content_type",
			"not supported for platform "+string(job.Platform))
	}

	if job.Payload.AccessToken == "" {
		return domain.NewValidationError("access_token", "is required")
	}

	switch job.Platform {
	case domain.PlatformFacebook:
		return validateFacebook(job)
	case domain.PlatformInstagram:
		return validateInstagram(job)
	case domain.PlatformYouTube:
		return validateYouTube(job)
	}

	return nil
}

func validateFacebook(job *domain.Job) error {
	if job.Payload.PageID == "" {
		return domain.NewValidationError("page_id", "is required for Facebook")
	}

	switch job.ContentType {
	case domain.ContentTypePost:
		if job.Payload.Message == "" && job.MediaID == "" {
			return domain.NewValidationError("message", "a post needs a message or media")
		}
	case domain.ContentTypeReel, domain.ContentTypeStory, domain.ContentTypeVideo:
		if job.MediaID == "" {
			return domain.NewValidationError("media", "is required for this content type")
		}
	}

	return nil
}

func validateInstagram(job *domain.Job) error {
	if job.Payload.IGUserID == "" {
		return domain.NewValidationError("ig_user_id", "is required for Instagram")
	}

	if job.Payload.MediaURL == "" {
		return domain.NewValidationError("media_url", "is required for Instagram")
	}

	return nil
}

func validateYouTube(job *domain.Job) error {
	if job.Payload.Title == "" {
		return domain.NewValidationError("title", "is required for YouTube")
	}

	switch job.ContentType {
	case domain.ContentTypeVideo:
		if job.Payload.SourceURL == "" {
			return domain.NewValidationError("source_url", "is required for YouTube videos")
		}
	case domain.ContentTypeLive:
		if job.ScheduledAt.IsZero() {
			return domain.NewValidationError("scheduled_at", "is required for live broadcasts")
		}
	}

	return nil
}
