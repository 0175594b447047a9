package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kaushalkrishnax/inflow-backend/internal/domain"
	"github.com/kaushalkrishnax/inflow-backend/internal/media"
)

// FacebookConfig holds Graph API endpoints and the reel protocol waits.
type FacebookConfig struct {
	BaseURL        string
	APIVersion     string
	ProcessingWait time.Duration
	PublishWait    time.Duration
}

// Facebook publishes pages content via the Graph API: direct feed posts,
// multipart photo/video uploads, the three-phase reel upload session, and
// the upload-then-attach story flow.
type Facebook struct {
	cfg    FacebookConfig
	client *http.Client
	media  MediaSource
	logger *slog.Logger
}

// NewFacebook creates the Facebook adapter.
func NewFacebook(cfg FacebookConfig, client *http.Client, mediaSource MediaSource, logger *slog.Logger) *Facebook {
	if client == nil {
		client = http.DefaultClient
	}
	return &Facebook{
		cfg:    cfg,
		client: client,
		media:  mediaSource,
		logger: logger,
	}
}

func (f *Facebook) endpoint(pageID, edge string) string {
	return fmt.Sprintf("%s/%s/%s/%s", f.cfg.BaseURL, f.cfg.APIVersion, pageID, edge)
}

// Publish implements Adapter for Facebook pages.
func (f *Facebook) Publish(ctx context.Context, job *domain.Job) (string, error) {
	switch job.ContentType {
	case domain.ContentTypePost:
		if job.MediaID == "" {
			return f.publishTextPost(ctx, job)
		}
		entry, err := f.media.Get(job.MediaID)
		if err != nil {
			return "", err
		}
		if isVideoMime(entry.MimeType) {
			return f.publishVideo(ctx, job, entry)
		}
		return f.publishPhoto(ctx, job, entry)

	case domain.ContentTypeVideo:
		entry, err := f.media.Get(job.MediaID)
		if err != nil {
			return "", err
		}
		return f.publishVideo(ctx, job, entry)

	case domain.ContentTypeReel:
		entry, err := f.media.Get(job.MediaID)
		if err != nil {
			return "", err
		}
		return f.publishReel(ctx, job, entry)

	case domain.ContentTypeStory:
		entry, err := f.media.Get(job.MediaID)
		if err != nil {
			return "", err
		}
		return f.publishStory(ctx, job, entry)
	}

	return "", fmt.Errorf("facebook does not support content type %s", job.ContentType)
}

// publishTextPost creates a plain feed post.
func (f *Facebook) publishTextPost(ctx context.Context, job *domain.Job) (string, error) {
	form := url.Values{}
	form.Set("message", job.Payload.Message)
	form.Set("published", "true")
	form.Set("access_token", job.Payload.AccessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint(job.Payload.PageID, "feed"), strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("facebook feed post failed: %w", err)
	}

	var out graphIDResponse
	if err := decodeResponse(domain.PlatformFacebook, resp, &out); err != nil {
		return "", err
	}

	return out.ID, nil
}

// publishPhoto uploads an image with its caption in one multipart request.
func (f *Facebook) publishPhoto(ctx context.Context, job *domain.Job, entry *media.Entry) (string, error) {
	fields := map[string]string{
		"access_token": job.Payload.AccessToken,
		"caption":      job.Payload.Message,
	}

	var out graphIDResponse
	if err := f.uploadMultipart(ctx, f.endpoint(job.Payload.PageID, "photos"), fields, entry, &out); err != nil {
		return "", err
	}

	return out.ID, nil
}

// publishVideo uploads a video with title and description attached.
func (f *Facebook) publishVideo(ctx context.Context, job *domain.Job, entry *media.Entry) (string, error) {
	title := job.Payload.Title
	if title == "" {
		title = truncate(job.Payload.Message, 100)
	}
	description := job.Payload.Description
	if description == "" {
		description = job.Payload.Message
	}

	fields := map[string]string{
		"access_token": job.Payload.AccessToken,
		"title":        title,
		"description":  description,
		"published":    "true",
	}

	var out graphIDResponse
	if err := f.uploadMultipart(ctx, f.endpoint(job.Payload.PageID, "videos"), fields, entry, &out); err != nil {
		return "", err
	}

	return out.ID, nil
}

// reelSession is the response of the upload_phase=start call.
type reelSession struct {
	VideoID   string `json:"video_id"`
	UploadURL string `json:"upload_url"`
}

// publishReel runs the three-phase reel protocol: start an upload
// session, stream the file to the returned upload URL, then finish and
// publish. The two waits give the platform time to process between
// phases.
func (f *Facebook) publishReel(ctx context.Context, job *domain.Job, entry *media.Entry) (string, error) {
	session, err := f.startReelSession(ctx, job)
	if err != nil {
		return "", err
	}
	if session.VideoID == "" || session.UploadURL == "" {
		return "", fmt.Errorf("facebook reel session missing video_id or upload_url")
	}

	if err := f.uploadReelBytes(ctx, job, session.UploadURL, entry); err != nil {
		return "", err
	}

	if err := wait(ctx, f.cfg.ProcessingWait); err != nil {
		return "", err
	}

	finish := map[string]string{
		"upload_phase": "finish",
		"video_state":  "PUBLISHED",
		"description":  job.Payload.Description,
		"video_id":     session.VideoID,
		"access_token": job.Payload.AccessToken,
	}

	var out graphIDResponse
	if err := f.postJSON(ctx, f.endpoint(job.Payload.PageID, "video_reels"), finish, &out); err != nil {
		return "", err
	}

	if err := wait(ctx, f.cfg.PublishWait); err != nil {
		return "", err
	}

	reelID := out.PostID
	if reelID == "" {
		reelID = out.ID
	}
	if reelID == "" {
		return "", fmt.Errorf("facebook reel finish response missing id")
	}

	return reelID, nil
}

func (f *Facebook) startReelSession(ctx context.Context, job *domain.Job) (*reelSession, error) {
	start := map[string]string{
		"upload_phase": "start",
		"access_token": job.Payload.AccessToken,
	}

	var session reelSession
	if err := f.postJSON(ctx, f.endpoint(job.Payload.PageID, "video_reels"), start, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (f *Facebook) uploadReelBytes(ctx context.Context, job *domain.Job, uploadURL string, entry *media.Entry) error {
	file, err := os.Open(entry.Path)
	if err != nil {
		return fmt.Errorf("failed to open reel file: %w", err)
	}
	defer file.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, file)
	if err != nil {
		return err
	}
	req.ContentLength = entry.Size
	req.Header.Set("Authorization", "OAuth "+job.Payload.AccessToken)
	req.Header.Set("offset", "0")
	req.Header.Set("file_size", strconv.FormatInt(entry.Size, 10))
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("facebook reel upload failed: %w", err)
	}

	return decodeResponse(domain.PlatformFacebook, resp, nil)
}

// publishStory uploads the media unpublished, then attaches it to the
// story edge matching its type. Unpublished intermediates are never
// publicly visible, so a failure here leaves no partial artifacts.
func (f *Facebook) publishStory(ctx context.Context, job *domain.Job, entry *media.Entry) (string, error) {
	isVideo := isVideoMime(entry.MimeType)

	uploadEdge := "photos"
	if isVideo {
		uploadEdge = "videos"
	}

	fields := map[string]string{
		"access_token": job.Payload.AccessToken,
		"published":    "false",
	}

	var uploaded graphIDResponse
	if err := f.uploadMultipart(ctx, f.endpoint(job.Payload.PageID, uploadEdge), fields, entry, &uploaded); err != nil {
		return "", err
	}

	attach := map[string]string{
		"access_token": job.Payload.AccessToken,
	}
	storyEdge := "photo_stories"
	if isVideo {
		storyEdge = "video_stories"
		attach["video_id"] = uploaded.ID
		attach["upload_phase"] = "finish"
	} else {
		attach["photo_id"] = uploaded.ID
	}

	var story graphIDResponse
	if err := f.postJSON(ctx, f.endpoint(job.Payload.PageID, storyEdge), attach, &story); err != nil {
		return "", err
	}

	if story.ID != "" {
		return story.ID, nil
	}
	return uploaded.ID, nil
}

// uploadMultipart sends the entry file under the "source" field together
// with the given form fields.
func (f *Facebook) uploadMultipart(ctx context.Context, endpoint string, fields map[string]string, entry *media.Entry, out interface{}) error {
	file, err := os.Open(entry.Path)
	if err != nil {
		return fmt.Errorf("failed to open media file: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return fmt.Errorf("failed to write form field: %w", err)
		}
	}

	part, err := writer.CreateFormFile("source", entry.OriginalName)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("failed to copy media into request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	f.logger.Debug("Uploading media to Facebook",
		slog.String("endpoint", endpoint),
		slog.String("media_id", entry.ID),
		slog.Int64("size", entry.Size),
	)

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("facebook media upload failed: %w", err)
	}

	return decodeResponse(domain.PlatformFacebook, resp, out)
}

func (f *Facebook) postJSON(ctx context.Context, endpoint string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("facebook request failed: %w", err)
	}

	return decodeResponse(domain.PlatformFacebook, resp, out)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
