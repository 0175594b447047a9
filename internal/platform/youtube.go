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
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/kaushalkrishnax/inflow-backend/internal/domain"
)

// YouTubeConfig holds the Data API and upload endpoints.
type YouTubeConfig struct {
	BaseURL       string
	UploadBaseURL string
}

// YouTube publishes videos via the Data API multipart upload and wires
// live broadcasts to ingestion streams.
type YouTube struct {
	cfg    YouTubeConfig
	client *http.Client
	logger *slog.Logger
}

// NewYouTube creates the YouTube adapter.
func NewYouTube(cfg YouTubeConfig, client *http.Client, logger *slog.Logger) *YouTube {
	if client == nil {
		client = http.DefaultClient
	}
	return &YouTube{
		cfg:    cfg,
		client: client,
		logger: logger,
	}
}

// Publish implements Adapter for YouTube channels.
func (yt *YouTube) Publish(ctx context.Context, job *domain.Job) (string, error) {
	switch job.ContentType {
	case domain.ContentTypeVideo:
		return yt.uploadVideo(ctx, job)
	case domain.ContentTypeLive:
		return yt.createLiveBroadcast(ctx, job)
	}
	return "", fmt.Errorf("youtube does not support content type %s", job.ContentType)
}

type videoSnippet struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

type videoStatus struct {
	PrivacyStatus           string `json:"privacyStatus"`
	PublishAt               string `json:"publishAt,omitempty"`
	SelfDeclaredMadeForKids bool   `json:"selfDeclaredMadeForKids"`
}

type videoResource struct {
	Snippet videoSnippet `json:"snippet"`
	Status  videoStatus  `json:"status"`
}

// uploadVideo streams the source video into a multipart insert. A job
// that was scheduled for the future when submitted goes up private with
// publishAt so YouTube flips it public at the due time; everything else
// is public immediately.
func (yt *YouTube) uploadVideo(ctx context.Context, job *domain.Job) (string, error) {
	source, err := yt.fetchSource(ctx, job.Payload.SourceURL)
	if err != nil {
		return "", err
	}
	defer source.Close()

	resource := videoResource{
		Snippet: videoSnippet{
			Title:       job.Payload.Title,
			Description: job.Payload.Description,
			Tags:        splitTags(job.Payload.Tags),
		},
		Status: videoStatus{
			PrivacyStatus:           "public",
			SelfDeclaredMadeForKids: false,
		},
	}
	if job.ScheduledAt.After(time.Now()) {
		resource.Status.PrivacyStatus = "private"
		resource.Status.PublishAt = job.ScheduledAt.UTC().Format(time.RFC3339)
	}

	metadata, err := json.Marshal(resource)
	if err != nil {
		return "", fmt.Errorf("failed to encode video metadata: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := writer.CreatePart(metaHeader)
	if err != nil {
		return "", fmt.Errorf("failed to create metadata part: %w", err)
	}
	if _, err := metaPart.Write(metadata); err != nil {
		return "", fmt.Errorf("failed to write metadata part: %w", err)
	}

	mediaHeader := textproto.MIMEHeader{}
	mediaHeader.Set("Content-Type", "video/*")
	mediaPart, err := writer.CreatePart(mediaHeader)
	if err != nil {
		return "", fmt.Errorf("failed to create media part: %w", err)
	}
	if _, err := io.Copy(mediaPart, source); err != nil {
		return "", fmt.Errorf("failed to stream video into upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize upload body: %w", err)
	}

	endpoint := yt.cfg.UploadBaseURL + "/upload/youtube/v3/videos?uploadType=multipart&part=snippet,status"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+job.Payload.AccessToken)
	req.Header.Set("Content-Type", "multipart/related; boundary="+writer.Boundary())

	yt.logger.Debug("Uploading video to YouTube",
		slog.String("job_id", job.ID),
		slog.String("privacy_status", resource.Status.PrivacyStatus),
	)

	resp, err := yt.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("youtube upload failed: %w", err)
	}

	var out graphIDResponse
	if err := decodeResponse(domain.PlatformYouTube, resp, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("youtube upload response missing id")
	}

	return out.ID, nil
}

// fetchSource opens a stream on the hosted video so the upload never
// buffers the whole file in memory.
func (yt *YouTube) fetchSource(ctx context.Context, sourceURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := yt.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch video source: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("video source returned status %d", resp.StatusCode)
	}

	return resp.Body, nil
}

type liveBroadcast struct {
	ID      string `json:"id"`
	Snippet struct {
		Title              string `json:"title"`
		Description        string `json:"description,omitempty"`
		ScheduledStartTime string `json:"scheduledStartTime"`
		ScheduledEndTime   string `json:"scheduledEndTime,omitempty"`
	} `json:"snippet"`
	Status struct {
		PrivacyStatus           string `json:"privacyStatus"`
		SelfDeclaredMadeForKids bool   `json:"selfDeclaredMadeForKids"`
	} `json:"status"`
}

type liveStream struct {
	ID      string `json:"id"`
	Snippet struct {
		Title string `json:"title"`
	} `json:"snippet"`
	CDN struct {
		FrameRate     string `json:"frameRate"`
		IngestionType string `json:"ingestionType"`
		Resolution    string `json:"resolution"`
	} `json:"cdn"`
}

// createLiveBroadcast inserts a broadcast, inserts an ingestion stream,
// and binds them. The first failure aborts the sequence; an unbound
// broadcast is harmless and the platform garbage-collects it.
func (yt *YouTube) createLiveBroadcast(ctx context.Context, job *domain.Job) (string, error) {
	broadcast := liveBroadcast{}
	broadcast.Snippet.Title = job.Payload.Title
	broadcast.Snippet.Description = job.Payload.Description
	broadcast.Snippet.ScheduledStartTime = job.ScheduledAt.UTC().Format(time.RFC3339)
	broadcast.Snippet.ScheduledEndTime = job.Payload.EndTime
	broadcast.Status.PrivacyStatus = "public"
	broadcast.Status.SelfDeclaredMadeForKids = false

	var createdBroadcast liveBroadcast
	if err := yt.postResource(ctx, job,
		"/youtube/v3/liveBroadcasts?part=snippet,status",
		broadcast, &createdBroadcast); err != nil {
		return "", err
	}
	if createdBroadcast.ID == "" {
		return "", fmt.Errorf("youtube broadcast response missing id")
	}

	stream := liveStream{}
	stream.Snippet.Title = job.Payload.Title
	stream.CDN.FrameRate = "variable"
	stream.CDN.IngestionType = "rtmp"
	stream.CDN.Resolution = "variable"

	var createdStream liveStream
	if err := yt.postResource(ctx, job,
		"/youtube/v3/liveStreams?part=snippet,cdn",
		stream, &createdStream); err != nil {
		return "", err
	}
	if createdStream.ID == "" {
		return "", fmt.Errorf("youtube stream response missing id")
	}

	bindPath := fmt.Sprintf("/youtube/v3/liveBroadcasts/bind?id=%s&streamId=%s&part=id",
		url.QueryEscape(createdBroadcast.ID), url.QueryEscape(createdStream.ID))
	if err := yt.postResource(ctx, job, bindPath, nil, nil); err != nil {
		return "", err
	}

	yt.logger.Info("Live broadcast bound to stream",
		slog.String("job_id", job.ID),
		slog.String("broadcast_id", createdBroadcast.ID),
		slog.String("stream_id", createdStream.ID),
	)

	return createdBroadcast.ID, nil
}

func (yt *YouTube) postResource(ctx context.Context, job *domain.Job, path string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, yt.cfg.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+job.Payload.AccessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := yt.client.Do(req)
	if err != nil {
		return fmt.Errorf("youtube request failed: %w", err)
	}

	return decodeResponse(domain.PlatformYouTube, resp, out)
}

// splitTags turns a comma-separated tag string into a slice, dropping
// empty entries.
func splitTags(tags string) []string {
	if tags == "" {
		return nil
	}
	parts := strings.Split(tags, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
