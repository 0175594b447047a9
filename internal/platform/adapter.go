package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kaushalkrishnax/inflow-backend/internal/domain"
	"github.com/kaushalkrishnax/inflow-backend/internal/media"
)

// Adapter encapsulates the publish protocol for one platform. Adapters
// never touch the job store; they return the platform's identifier for
// the published content, or an error, and the scheduler engine performs
// the one authoritative state transition.
type Adapter interface {
	Publish(ctx context.Context, job *domain.Job) (externalID string, err error)
}

// MediaSource resolves a job's media reference to a local file entry.
type MediaSource interface {
	Get(id string) (*media.Entry, error)
}

// graphIDResponse is the minimal object most Graph API calls return.
type graphIDResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

// decodeResponse reads a platform response, surfacing non-2xx bodies
// verbatim as a PlatformError and decoding JSON otherwise.
func decodeResponse(platform domain.Platform, resp *http.Response, out interface{}) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", platform, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &domain.PlatformError{
			Platform:   platform,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", platform, err)
	}

	return nil
}

// wait sleeps for d or until the context is cancelled. A zero or
// negative duration returns immediately, which is what tests inject.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// isVideoMime reports whether a declared MIME type is a video.
func isVideoMime(mimeType string) bool {
	return strings.HasPrefix(mimeType, "video/")
}
