package platform

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kaushalkrishnax/inflow-backend/internal/domain"
)

// InstagramConfig holds Graph API endpoints and the container readiness
// polling parameters.
type InstagramConfig struct {
	BaseURL      string
	APIVersion   string
	PollInterval time.Duration
	PollRetries  int
}

// Instagram publishes through the content publishing API: a media
// container is created from a hosted URL, optionally polled until the
// platform finishes processing it, then published to the account.
type Instagram struct {
	cfg    InstagramConfig
	client *http.Client
	logger *slog.Logger
}

// NewInstagram creates the Instagram adapter. Instagram only accepts
// hosted media URLs, so no MediaSource is involved.
func NewInstagram(cfg InstagramConfig, client *http.Client, logger *slog.Logger) *Instagram {
	if client == nil {
		client = http.DefaultClient
	}
	return &Instagram{
		cfg:    cfg,
		client: client,
		logger: logger,
	}
}

func (ig *Instagram) endpoint(path string) string {
	return fmt.Sprintf("%s/%s/%s", ig.cfg.BaseURL, ig.cfg.APIVersion, path)
}

// Publish implements Adapter for Instagram accounts.
func (ig *Instagram) Publish(ctx context.Context, job *domain.Job) (string, error) {
	creationID, err := ig.createContainer(ctx, job)
	if err != nil {
		return "", err
	}

	// Reels are transcoded asynchronously; publishing before the
	// container reaches FINISHED is rejected by the platform.
	if job.ContentType == domain.ContentTypeReel {
		if err := ig.waitForContainer(ctx, job, creationID); err != nil {
			return "", err
		}
	}

	return ig.publishContainer(ctx, job, creationID)
}

// createContainer registers the hosted media with the account and
// returns the container's creation id.
func (ig *Instagram) createContainer(ctx context.Context, job *domain.Job) (string, error) {
	params := url.Values{}
	params.Set("access_token", job.Payload.AccessToken)
	if job.Payload.Caption != "" {
		params.Set("caption", job.Payload.Caption)
	}

	mediaURL := job.Payload.MediaURL
	isVideo := looksLikeVideoURL(mediaURL)

	switch job.ContentType {
	case domain.ContentTypeReel:
		params.Set("media_type", "REELS")
		params.Set("video_url", mediaURL)
	case domain.ContentTypeStory:
		params.Set("media_type", "STORIES")
		if isVideo {
			params.Set("video_url", mediaURL)
		} else {
			params.Set("image_url", mediaURL)
		}
	default:
		if isVideo {
			params.Set("media_type", "VIDEO")
			params.Set("video_url", mediaURL)
		} else {
			params.Set("image_url", mediaURL)
		}
	}

	endpoint := ig.endpoint(job.Payload.IGUserID+"/media") + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := ig.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("instagram container creation failed: %w", err)
	}

	var out graphIDResponse
	if err := decodeResponse(domain.PlatformInstagram, resp, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("instagram container response missing id")
	}

	ig.logger.Debug("Instagram container created",
		slog.String("job_id", job.ID),
		slog.String("creation_id", out.ID),
	)

	return out.ID, nil
}

type containerStatus struct {
	StatusCode string `json:"status_code"`
}

// waitForContainer polls the container until it reaches FINISHED.
// An ERROR status surfaces as a platform error and exhausting the
// retry budget surfaces as ErrPublishTimeout.
func (ig *Instagram) waitForContainer(ctx context.Context, job *domain.Job, creationID string) error {
	params := url.Values{}
	params.Set("fields", "status_code")
	params.Set("access_token", job.Payload.AccessToken)
	endpoint := ig.endpoint(creationID) + "?" + params.Encode()

	for attempt := 0; attempt <= ig.cfg.PollRetries; attempt++ {
		if attempt > 0 {
			if err := wait(ctx, ig.cfg.PollInterval); err != nil {
				return err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}

		resp, err := ig.client.Do(req)
		if err != nil {
			return fmt.Errorf("instagram container status check failed: %w", err)
		}

		var status containerStatus
		if err := decodeResponse(domain.PlatformInstagram, resp, &status); err != nil {
			return err
		}

		ig.logger.Debug("Instagram container status",
			slog.String("job_id", job.ID),
			slog.String("creation_id", creationID),
			slog.String("status_code", status.StatusCode),
			slog.Int("attempt", attempt+1),
		)

		switch status.StatusCode {
		case "FINISHED":
			return nil
		case "ERROR":
			return &domain.PlatformError{
				Platform:   domain.PlatformInstagram,
				StatusCode: http.StatusOK,
				Body:       fmt.Sprintf("container %s entered ERROR state", creationID),
			}
		}
	}

	return fmt.Errorf("%w: instagram container %s not ready after %d checks",
		domain.ErrPublishTimeout, creationID, ig.cfg.PollRetries+1)
}

// publishContainer publishes a ready container and returns the media id.
func (ig *Instagram) publishContainer(ctx context.Context, job *domain.Job, creationID string) (string, error) {
	params := url.Values{}
	params.Set("creation_id", creationID)
	params.Set("access_token", job.Payload.AccessToken)
	endpoint := ig.endpoint(job.Payload.IGUserID+"/media_publish") + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := ig.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("instagram publish failed: %w", err)
	}

	var out graphIDResponse
	if err := decodeResponse(domain.PlatformInstagram, resp, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("instagram publish response missing id")
	}

	return out.ID, nil
}

// looksLikeVideoURL guesses media kind from the hosted URL's extension.
func looksLikeVideoURL(mediaURL string) bool {
	u, err := url.Parse(mediaURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	for _, ext := range []string{".mp4", ".mov", ".m4v", ".avi", ".webm"} {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}
