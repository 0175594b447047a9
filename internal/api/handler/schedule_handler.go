package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kaushalkrishnax/inflow-backend/internal/api/dto"
	"github.com/kaushalkrishnax/inflow-backend/internal/domain"
	"github.com/kaushalkrishnax/inflow-backend/internal/store"
)

// ScheduleContent handles POST /api/v1/schedule
// Accepts a multipart submission, stores the media file if present, and
// either schedules the job or publishes it immediately.
func (h *ScheduleHandler) ScheduleContent(c *gin.Context) {
	h.logger.Info("ScheduleContent called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
	)

	var req dto.ScheduleRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.Error("Invalid request", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	job := &domain.Job{
		Platform:    domain.Platform(req.Platform),
		ContentType: domain.ContentType(req.ContentType),
		Payload: domain.Payload{
			Message:     req.Message,
			Caption:     req.Caption,
			Title:       req.Title,
			Description: req.Description,
			Tags:        req.Tags,
			PageID:      req.PageID,
			IGUserID:    req.IGUserID,
			ChannelID:   req.ChannelID,
			AccessToken: req.AccessToken,
			MediaURL:    req.MediaURL,
			SourceURL:   req.SourceURL,
			EndTime:     req.EndTime,
		},
	}

	if req.ScheduledAt != "" {
		scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "scheduled_at must be RFC3339",
			})
			return
		}
		job.ScheduledAt = scheduledAt
	}

	if fileHeader, err := c.FormFile("media"); err == nil {
		file, err := fileHeader.Open()
		if err != nil {
			h.logger.Error("Failed to open uploaded media", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to read uploaded media",
			})
			return
		}
		defer file.Close()

		entry, err := h.media.Save(fileHeader.Filename, fileHeader.Header.Get("Content-Type"), file)
		if err != nil {
			h.logger.Error("Failed to store uploaded media", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to store uploaded media",
			})
			return
		}
		job.MediaID = entry.ID
	}

	result, err := h.scheduler.Submit(c.Request.Context(), job)
	if err != nil {
		// A rejected submission persists no job row, so no terminal
		// transition will ever release the uploaded media. A FAILED
		// result means the engine already released it.
		if result == nil && job.MediaID != "" {
			h.media.Remove(job.MediaID)
		}
		h.respondSubmitError(c, result, err)
		return
	}

	if result.Status == domain.JobStatusScheduled {
		c.JSON(http.StatusCreated, dto.ScheduledResponse{
			JobID:         result.ID,
			Platform:      string(result.Platform),
			ContentType:   string(result.ContentType),
			Status:        result.Status,
			ScheduledAt:   result.ScheduledAt.Format(time.RFC3339),
			TimeRemaining: dto.NewTimeRemaining(time.Now(), result.ScheduledAt),
		})
		return
	}

	publishedAt := ""
	if result.PublishedAt != nil {
		publishedAt = result.PublishedAt.Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, dto.PublishedResponse{
		JobID:       result.ID,
		Platform:    string(result.Platform),
		ContentType: string(result.ContentType),
		Status:      result.Status,
		ExternalID:  result.ExternalID,
		PublishedAt: publishedAt,
	})
}

// respondSubmitError maps Submit errors to HTTP status codes.
func (h *ScheduleHandler) respondSubmitError(c *gin.Context, job *domain.Job, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": validationErr.Error(),
			"field": validationErr.Field,
		})
		return
	}

	if errors.Is(err, domain.ErrDuplicateID) {
		c.JSON(http.StatusConflict, gin.H{
			"error": "A job with this id already exists",
		})
		return
	}

	// An immediate publish that failed leaves a FAILED job behind; the
	// platform's reason goes back to the caller verbatim.
	if job != nil && job.Status == domain.JobStatusFailed {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":  err.Error(),
			"job_id": job.ID,
			"status": job.Status,
		})
		return
	}

	h.logger.Error("Failed to submit job", slog.String("error", err.Error()))
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "Failed to schedule content",
	})
}

// CancelJob handles POST /api/v1/jobs/:job_id/cancel
// Cancels a scheduled job. Cancellation is idempotent; a publish
// attempt already in flight is not pre-empted.
func (h *ScheduleHandler) CancelJob(c *gin.Context) {
	jobID := c.Param("job_id")

	h.logger.Info("CancelJob called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("job_id", jobID),
	)

	job, previous, err := h.scheduler.Cancel(c.Request.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
		case errors.Is(err, domain.ErrPublishInFlight):
			c.JSON(http.StatusConflict, gin.H{
				"error": "Job is currently being published and cannot be cancelled",
			})
		default:
			h.logger.Error("Failed to cancel job", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to cancel job",
			})
		}
		return
	}

	c.JSON(http.StatusOK, dto.CancelResponse{
		JobID:          job.ID,
		PreviousStatus: previous,
		Cancelled:      job.Status == domain.JobStatusCancelled && previous != domain.JobStatusCancelled,
	})
}

// GetJob handles GET /api/v1/jobs/:job_id
// Retrieves detailed information about a specific job
func (h *ScheduleHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	h.logger.Info("GetJob called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("job_id", jobID),
	)

	job, err := h.scheduler.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}

		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, dto.FromJob(job))
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs grouped by content type, with optional filters.
func (h *ScheduleHandler) ListJobs(c *gin.Context) {
	h.logger.Info("ListJobs called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("query", c.Request.URL.RawQuery),
	)

	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	jobs, err := h.scheduler.List(c.Request.Context(), store.Filter{
		Platform:    req.Platform,
		ContentType: req.ContentType,
		Status:      req.Status,
	})
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	flat := make([]dto.JobDTO, 0, len(jobs))
	grouped := make(map[string][]dto.JobDTO)
	for _, job := range jobs {
		item := dto.FromJob(job)
		flat = append(flat, item)

		key := groupKey(job.ContentType)
		grouped[key] = append(grouped[key], item)
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Count:         len(jobs),
		Jobs:          flat,
		GroupedByType: grouped,
	})
}

// groupKey maps a content type to its listing bucket.
func groupKey(contentType domain.ContentType) string {
	switch contentType {
	case domain.ContentTypePost:
		return "posts"
	case domain.ContentTypeReel:
		return "reels"
	case domain.ContentTypeStory:
		return "stories"
	case domain.ContentTypeVideo:
		return "videos"
	case domain.ContentTypeLive:
		return "live"
	}
	return strings.ToLower(string(contentType))
}
