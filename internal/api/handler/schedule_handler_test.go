package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaushalkrishnax/inflow-backend/internal/api/dto"
	"github.com/kaushalkrishnax/inflow-backend/internal/domain"
	"github.com/kaushalkrishnax/inflow-backend/internal/media"
	"github.com/kaushalkrishnax/inflow-backend/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeScheduler scripts the engine's behavior per test.
type fakeScheduler struct {
	submitFn func(ctx context.Context, job *domain.Job) (*domain.Job, error)
	cancelFn func(ctx context.Context, jobID string) (*domain.Job, string, error)
	getFn    func(ctx context.Context, jobID string) (*domain.Job, error)
	listFn   func(ctx context.Context, filter store.Filter) ([]*domain.Job, error)

	submitted *domain.Job
}

func (f *fakeScheduler) Submit(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	f.submitted = job
	return f.submitFn(ctx, job)
}

func (f *fakeScheduler) Cancel(ctx context.Context, jobID string) (*domain.Job, string, error) {
	return f.cancelFn(ctx, jobID)
}

func (f *fakeScheduler) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	return f.getFn(ctx, jobID)
}

func (f *fakeScheduler) List(ctx context.Context, filter store.Filter) ([]*domain.Job, error) {
	return f.listFn(ctx, filter)
}

type fakeMediaSaver struct {
	saved   *media.Entry
	removed []string
}

func (f *fakeMediaSaver) Save(originalName, mimeType string, r io.Reader) (*media.Entry, error) {
	io.Copy(io.Discard, r)
	f.saved = &media.Entry{
		ID:           "media-test",
		OriginalName: originalName,
		MimeType:     mimeType,
	}
	return f.saved, nil
}

func (f *fakeMediaSaver) Remove(id string) {
	f.removed = append(f.removed, id)
}

func newTestRouter(sched Scheduler, saver MediaSaver) *gin.Engine {
	h := NewScheduleHandler(&Dependencies{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Scheduler: sched,
		Media:     saver,
	})

	r := gin.New()
	r.POST("/api/v1/schedule", h.ScheduleContent)
	r.GET("/api/v1/jobs", h.ListJobs)
	r.GET("/api/v1/jobs/:job_id", h.GetJob)
	r.POST("/api/v1/jobs/:job_id/cancel", h.CancelJob)
	return r
}

func multipartBody(t *testing.T, fields map[string]string, fileName string, fileContent []byte) (*bytes.Buffer, string) {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}

	if fileName != "" {
		part, err := writer.CreateFormFile("media", fileName)
		require.NoError(t, err)
		_, err = part.Write(fileContent)
		require.NoError(t, err)
	}

	require.NoError(t, writer.Close())
	return &body, writer.FormDataContentType()
}

func TestScheduleContent_FutureJobReturns201(t *testing.T) {
	scheduledAt := time.Now().Add(2 * time.Hour).Truncate(time.Second)

	sched := &fakeScheduler{
		submitFn: func(_ context.Context, job *domain.Job) (*domain.Job, error) {
			job.ID = uuid.New().String()
			job.Status = domain.JobStatusScheduled
			return job, nil
		},
	}

	r := newTestRouter(sched, &fakeMediaSaver{})

	body, contentType := multipartBody(t, map[string]string{
		"platform":     "FACEBOOK",
		"content_type": "POST",
		"message":      "hello",
		"page_id":      "page-1",
		"access_token": "token-1",
		"scheduled_at": scheduledAt.Format(time.RFC3339),
	}, "", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/schedule", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var resp dto.ScheduledResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.JobStatusScheduled, resp.Status)
	assert.NotEmpty(t, resp.JobID)
	assert.Positive(t, resp.TimeRemaining.Seconds)
	assert.Contains(t, resp.TimeRemaining.Formatted, "h")

	assert.Equal(t, "hello", sched.submitted.Payload.Message)
	assert.Equal(t, scheduledAt.Unix(), sched.submitted.ScheduledAt.Unix())
}

func TestScheduleContent_ImmediateJobReturns200(t *testing.T) {
	publishedAt := time.Now()

	sched := &fakeScheduler{
		submitFn: func(_ context.Context, job *domain.Job) (*domain.Job, error) {
			job.ID = "job-now"
			job.Status = domain.JobStatusPublished
			job.ExternalID = "ext-1"
			job.PublishedAt = &publishedAt
			return job, nil
		},
	}

	r := newTestRouter(sched, &fakeMediaSaver{})

	body, contentType := multipartBody(t, map[string]string{
		"platform":     "FACEBOOK",
		"content_type": "POST",
		"message":      "now",
		"page_id":      "page-1",
		"access_token": "token-1",
	}, "", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/schedule", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.PublishedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.JobStatusPublished, resp.Status)
	assert.Equal(t, "ext-1", resp.ExternalID)
	assert.NotEmpty(t, resp.PublishedAt)
}

func TestScheduleContent_MediaUploadIsStored(t *testing.T) {
	sched := &fakeScheduler{
		submitFn: func(_ context.Context, job *domain.Job) (*domain.Job, error) {
			job.ID = "job-media"
			job.Status = domain.JobStatusScheduled
			job.ScheduledAt = time.Now().Add(time.Hour)
			return job, nil
		},
	}
	saver := &fakeMediaSaver{}

	r := newTestRouter(sched, saver)

	body, contentType := multipartBody(t, map[string]string{
		"platform":     "FACEBOOK",
		"content_type": "REEL",
		"page_id":      "page-1",
		"access_token": "token-1",
		"scheduled_at": time.Now().Add(time.Hour).Format(time.RFC3339),
	}, "reel.mp4", []byte("videobytes"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/schedule", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, saver.saved)
	assert.Equal(t, "reel.mp4", saver.saved.OriginalName)
	assert.Equal(t, "media-test", sched.submitted.MediaID)
}

func TestScheduleContent_ValidationErrorReturns400(t *testing.T) {
	sched := &fakeScheduler{
		submitFn: func(_ context.Context, _ *domain.Job) (*domain.Job, error) {
			return nil, domain.NewValidationError("page_id", "is required for Facebook")
		},
	}

	r := newTestRouter(sched, &fakeMediaSaver{})

	body, contentType := multipartBody(t, map[string]string{
		"platform":     "FACEBOOK",
		"content_type": "POST",
		"message":      "hi",
		"access_token": "token-1",
	}, "", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/schedule", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "page_id")
}

func TestScheduleContent_RejectedSubmissionReleasesMedia(t *testing.T) {
	sched := &fakeScheduler{
		submitFn: func(_ context.Context, _ *domain.Job) (*domain.Job, error) {
			return nil, domain.NewValidationError("page_id", "is required for Facebook")
		},
	}
	saver := &fakeMediaSaver{}

	r := newTestRouter(sched, saver)

	body, contentType := multipartBody(t, map[string]string{
		"platform":     "FACEBOOK",
		"content_type": "REEL",
		"access_token": "token-1",
	}, "reel.mp4", []byte("videobytes"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/schedule", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, saver.saved)
	assert.Equal(t, []string{"media-test"}, saver.removed)
}

func TestScheduleContent_FailedPublishKeepsMediaReleaseWithEngine(t *testing.T) {
	// A FAILED result means the engine already performed the terminal
	// transition and released the media; the handler must not double it.
	sched := &fakeScheduler{
		submitFn: func(_ context.Context, job *domain.Job) (*domain.Job, error) {
			job.ID = "job-fail"
			job.Status = domain.JobStatusFailed
			return job, &domain.PlatformError{
				Platform:   domain.PlatformFacebook,
				StatusCode: 400,
				Body:       "bad token",
			}
		},
	}
	saver := &fakeMediaSaver{}

	r := newTestRouter(sched, saver)

	body, contentType := multipartBody(t, map[string]string{
		"platform":     "FACEBOOK",
		"content_type": "REEL",
		"page_id":      "page-1",
		"access_token": "token-1",
	}, "reel.mp4", []byte("videobytes"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/schedule", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, saver.removed)
}

func TestScheduleContent_MissingRequiredFieldsReturns400(t *testing.T) {
	r := newTestRouter(&fakeScheduler{}, &fakeMediaSaver{})

	body, contentType := multipartBody(t, map[string]string{
		"content_type": "POST",
	}, "", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/schedule", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScheduleContent_ImmediatePublishFailureReturns500(t *testing.T) {
	sched := &fakeScheduler{
		submitFn: func(_ context.Context, job *domain.Job) (*domain.Job, error) {
			job.ID = "job-fail"
			job.Status = domain.JobStatusFailed
			job.LastError = "FACEBOOK API error (status 400): bad token"
			return job, &domain.PlatformError{
				Platform:   domain.PlatformFacebook,
				StatusCode: 400,
				Body:       "bad token",
			}
		},
	}

	r := newTestRouter(sched, &fakeMediaSaver{})

	body, contentType := multipartBody(t, map[string]string{
		"platform":     "FACEBOOK",
		"content_type": "POST",
		"message":      "hi",
		"page_id":      "page-1",
		"access_token": "token-1",
	}, "", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/schedule", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "bad token")
	assert.Contains(t, w.Body.String(), "job-fail")
}

func TestCancelJob(t *testing.T) {
	tests := []struct {
		name           string
		cancelFn       func(ctx context.Context, jobID string) (*domain.Job, string, error)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "cancelled",
			cancelFn: func(_ context.Context, jobID string) (*domain.Job, string, error) {
				return &domain.Job{ID: jobID, Status: domain.JobStatusCancelled}, domain.JobStatusScheduled, nil
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"cancelled":true`,
		},
		{
			name: "not found",
			cancelFn: func(_ context.Context, _ string) (*domain.Job, string, error) {
				return nil, "", domain.ErrJobNotFound
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   "Job not found",
		},
		{
			name: "in flight",
			cancelFn: func(_ context.Context, _ string) (*domain.Job, string, error) {
				return nil, domain.JobStatusPublishing, domain.ErrPublishInFlight
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   "being published",
		},
		{
			name: "already terminal is idempotent",
			cancelFn: func(_ context.Context, jobID string) (*domain.Job, string, error) {
				return &domain.Job{ID: jobID, Status: domain.JobStatusPublished}, domain.JobStatusPublished, nil
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"cancelled":false`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(&fakeScheduler{cancelFn: tt.cancelFn}, &fakeMediaSaver{})

			req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/job-1/cancel", nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
		})
	}
}

func TestGetJob(t *testing.T) {
	now := time.Now()
	sched := &fakeScheduler{
		getFn: func(_ context.Context, jobID string) (*domain.Job, error) {
			if jobID != "job-1" {
				return nil, domain.ErrJobNotFound
			}
			return &domain.Job{
				ID:          "job-1",
				Platform:    domain.PlatformYouTube,
				ContentType: domain.ContentTypeVideo,
				Status:      domain.JobStatusPublished,
				ExternalID:  "yt-1",
				ScheduledAt: now,
				PublishedAt: &now,
				CreatedAt:   now,
				UpdatedAt:   now,
			}, nil
		},
	}

	r := newTestRouter(sched, &fakeMediaSaver{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/job-1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.JobDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "job-1", resp.JobID)
	assert.Equal(t, "yt-1", resp.ExternalID)
	assert.NotEmpty(t, resp.PublishedAt)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/jobs/missing", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListJobs_GroupsByContentType(t *testing.T) {
	now := time.Now()
	var gotFilter store.Filter

	sched := &fakeScheduler{
		listFn: func(_ context.Context, filter store.Filter) ([]*domain.Job, error) {
			gotFilter = filter
			return []*domain.Job{
				{ID: "a", Platform: domain.PlatformFacebook, ContentType: domain.ContentTypePost, Status: domain.JobStatusScheduled, ScheduledAt: now, CreatedAt: now, UpdatedAt: now},
				{ID: "b", Platform: domain.PlatformFacebook, ContentType: domain.ContentTypeReel, Status: domain.JobStatusScheduled, ScheduledAt: now, CreatedAt: now, UpdatedAt: now},
				{ID: "c", Platform: domain.PlatformFacebook, ContentType: domain.ContentTypePost, Status: domain.JobStatusPublished, ScheduledAt: now, CreatedAt: now, UpdatedAt: now},
			}, nil
		},
	}

	r := newTestRouter(sched, &fakeMediaSaver{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs?platform=FACEBOOK", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "FACEBOOK", gotFilter.Platform)

	var resp dto.ListJobsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Count)
	assert.Len(t, resp.Jobs, 3)
	assert.Len(t, resp.GroupedByType["posts"], 2)
	assert.Len(t, resp.GroupedByType["reels"], 1)
}
