package handler

import (
	"context"
	"io"
	"log/slog"

	"github.com/kaushalkrishnax/inflow-backend/internal/domain"
	"github.com/kaushalkrishnax/inflow-backend/internal/media"
	"github.com/kaushalkrishnax/inflow-backend/internal/store"
)

// Scheduler is the engine surface the handlers need. Satisfied by
// scheduler.Engine.
type Scheduler interface {
	Submit(ctx context.Context, job *domain.Job) (*domain.Job, error)
	Cancel(ctx context.Context, jobID string) (*domain.Job, string, error)
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	List(ctx context.Context, filter store.Filter) ([]*domain.Job, error)
}

// MediaSaver stores an uploaded file and returns its entry. Remove
// releases an entry whose submission never produced a job row.
type MediaSaver interface {
	Save(originalName, mimeType string, r io.Reader) (*media.Entry, error)
	Remove(id string)
}

// HealthChecker reports whether a backing service is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Scheduler Scheduler
	Media     MediaSaver
	Database  HealthChecker
}

// ScheduleHandler handles content scheduling HTTP requests
type ScheduleHandler struct {
	logger    *slog.Logger
	scheduler Scheduler
	media     MediaSaver
}

// NewScheduleHandler creates a new ScheduleHandler instance
func NewScheduleHandler(deps *Dependencies) *ScheduleHandler {
	return &ScheduleHandler{
		logger:    deps.Logger,
		scheduler: deps.Scheduler,
		media:     deps.Media,
	}
}
