package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kaushalkrishnax/inflow-backend/internal/domain"
	"github.com/kaushalkrishnax/inflow-backend/internal/platform"
	"github.com/kaushalkrishnax/inflow-backend/internal/store"
	"github.com/kaushalkrishnax/inflow-backend/internal/timer"
)

// JobStore is the persistence surface the engine needs. Satisfied by
// store.JobStore.
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	UpdateStatus(ctx context.Context, jobID, newStatus string, fields store.StatusFields) error
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	ListPending(ctx context.Context) ([]*domain.Job, error)
	List(ctx context.Context, filter store.Filter) ([]*domain.Job, error)
}

// MediaStore releases a job's media file once the job is terminal.
type MediaStore interface {
	Remove(id string)
}

// EventSink receives lifecycle notifications for terminal transitions.
type EventSink interface {
	JobPublished(ctx context.Context, job *domain.Job)
	JobFailed(ctx context.Context, job *domain.Job, reason string)
	JobCancelled(ctx context.Context, job *domain.Job)
}

// Engine owns the job lifecycle: it validates and persists submissions,
// arms one timer per future job, runs publish attempts through the
// platform adapters, and performs the single authoritative terminal
// transition for each job. The store row is the source of truth; timers
// and the in-flight set are derived state.
type Engine struct {
	store    JobStore
	media    MediaStore
	timers   *timer.Registry
	adapters map[domain.Platform]platform.Adapter
	events   EventSink
	logger   *slog.Logger
	now      func() time.Time

	// mu serializes cancellation against the start of a publish attempt
	// so a job is never both cancelled and published.
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewEngine creates a scheduler engine. events may be nil when no
// broker is configured.
func NewEngine(jobStore JobStore, mediaStore MediaStore, timers *timer.Registry, adapters map[domain.Platform]platform.Adapter, events EventSink, logger *slog.Logger) *Engine {
	return &Engine{
		store:    jobStore,
		media:    mediaStore,
		timers:   timers,
		adapters: adapters,
		events:   events,
		logger:   logger,
		now:      time.Now,
		inFlight: make(map[string]struct{}),
	}
}

// Submit validates and persists a new job. A job due in the future gets
// a timer; a job that is due now (or has no future due time) is
// published synchronously before Submit returns. The returned job
// reflects the outcome: SCHEDULED, PUBLISHED, or FAILED with the
// publish error also returned.
func (e *Engine) Submit(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	if err := validate(job); err != nil {
		return nil, err
	}

	if job.ID == "" {
		job.ID = uuid.New().String()
	}

	now := e.now()
	job.CreatedAt = now
	job.UpdatedAt = now
	job.Status = domain.JobStatusScheduled

	// Instagram stories expire after 24 hours, so deferred publishing
	// is pointless; they always go out immediately.
	immediate := job.DueNow(now) ||
		(job.Platform == domain.PlatformInstagram && job.ContentType == domain.ContentTypeStory)

	if job.ScheduledAt.IsZero() {
		job.ScheduledAt = now
		immediate = true
	}

	if err := e.store.Create(ctx, job); err != nil {
		return nil, err
	}

	if immediate {
		e.logger.Info("Job due immediately, publishing now",
			slog.String("job_id", job.ID),
			slog.String("platform", string(job.Platform)),
			slog.String("content_type", string(job.ContentType)),
		)
		return e.publishNow(ctx, job.ID)
	}

	e.timers.Arm(job.ID, job.ScheduledAt, e.fireFunc(job.ID))

	e.logger.Info("Job scheduled",
		slog.String("job_id", job.ID),
		slog.String("platform", string(job.Platform)),
		slog.String("content_type", string(job.ContentType)),
		slog.Time("scheduled_at", job.ScheduledAt),
	)

	return job, nil
}

// fireFunc returns the timer callback for a job. Callbacks run on their
// own goroutine and must never panic the process, so the error is
// absorbed into the job row.
func (e *Engine) fireFunc(jobID string) func() {
	return func() {
		if _, err := e.publishNow(context.Background(), jobID); err != nil {
			e.logger.Error("Scheduled publish failed",
				slog.String("job_id", jobID),
				slog.Any("error", err),
			)
		}
	}
}

// publishNow runs one publish attempt for a job that should go out now.
// The job is re-read under the lock so a cancellation that won the race
// is honored and the adapter is never invoked for it.
func (e *Engine) publishNow(ctx context.Context, jobID string) (*domain.Job, error) {
	e.mu.Lock()

	if _, busy := e.inFlight[jobID]; busy {
		e.mu.Unlock()
		return nil, domain.ErrPublishInFlight
	}

	job, err := e.store.Get(ctx, jobID)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}

	if job.Status != domain.JobStatusScheduled {
		e.mu.Unlock()
		e.logger.Info("Skipping publish, job no longer scheduled",
			slog.String("job_id", jobID),
			slog.String("status", job.Status),
		)
		return job, nil
	}

	e.inFlight[jobID] = struct{}{}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.inFlight, jobID)
		e.mu.Unlock()
	}()

	adapter, ok := e.adapters[job.Platform]
	if !ok {
		err := fmt.Errorf("no adapter registered for platform %s", job.Platform)
		return e.markFailed(ctx, job, err)
	}

	job.Status = domain.JobStatusPublishing

	e.logger.Info("Publishing job",
		slog.String("job_id", job.ID),
		slog.String("platform", string(job.Platform)),
		slog.String("content_type", string(job.ContentType)),
	)

	externalID, err := adapter.Publish(ctx, job)
	if err != nil {
		return e.markFailed(ctx, job, err)
	}

	publishedAt := e.now()
	if err := e.store.UpdateStatus(ctx, job.ID, domain.JobStatusPublished, store.StatusFields{
		ExternalID:  externalID,
		PublishedAt: &publishedAt,
	}); err != nil {
		return nil, err
	}

	job.Status = domain.JobStatusPublished
	job.ExternalID = externalID
	job.PublishedAt = &publishedAt

	e.releaseMedia(job)

	if e.events != nil {
		e.events.JobPublished(ctx, job)
	}

	e.logger.Info("Job published",
		slog.String("job_id", job.ID),
		slog.String("platform", string(job.Platform)),
		slog.String("external_id", externalID),
	)

	return job, nil
}

// markFailed records a terminal failure. There is no automatic retry;
// the caller resubmits if they want another attempt.
func (e *Engine) markFailed(ctx context.Context, job *domain.Job, cause error) (*domain.Job, error) {
	reason := cause.Error()

	if err := e.store.UpdateStatus(ctx, job.ID, domain.JobStatusFailed, store.StatusFields{
		LastError: reason,
	}); err != nil {
		e.logger.Error("Failed to record job failure",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
		return nil, err
	}

	job.Status = domain.JobStatusFailed
	job.LastError = reason

	e.releaseMedia(job)

	if e.events != nil {
		e.events.JobFailed(ctx, job, reason)
	}

	e.logger.Error("Job failed",
		slog.String("job_id", job.ID),
		slog.String("platform", string(job.Platform)),
		slog.String("error", reason),
	)

	return job, cause
}

// Cancel cancels a scheduled job, returning the job and the status it
// held before the call. A job whose publish attempt is already running
// returns ErrPublishInFlight and the attempt is not pre-empted. A job
// already terminal is returned unchanged so cancellation is idempotent.
func (e *Engine) Cancel(ctx context.Context, jobID string) (*domain.Job, string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, busy := e.inFlight[jobID]; busy {
		return nil, domain.JobStatusPublishing, domain.ErrPublishInFlight
	}

	job, err := e.store.Get(ctx, jobID)
	if err != nil {
		return nil, "", err
	}

	previous := job.Status

	if domain.IsTerminal(job.Status) {
		return job, previous, nil
	}

	e.timers.Cancel(jobID)

	if err := e.store.UpdateStatus(ctx, jobID, domain.JobStatusCancelled, store.StatusFields{
		ExternalID: job.ExternalID,
	}); err != nil {
		return nil, "", err
	}

	job.Status = domain.JobStatusCancelled

	e.releaseMedia(job)

	if e.events != nil {
		e.events.JobCancelled(ctx, job)
	}

	e.logger.Info("Job cancelled",
		slog.String("job_id", jobID),
		slog.String("previous_status", previous),
	)

	return job, previous, nil
}

// Get returns one job by id.
func (e *Engine) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	return e.store.Get(ctx, jobID)
}

// List returns jobs matching the filter.
func (e *Engine) List(ctx context.Context, filter store.Filter) ([]*domain.Job, error) {
	return e.store.List(ctx, filter)
}

// Recover rebuilds timers from the store after a restart. Jobs whose
// due time passed while the process was down get exactly one immediate
// publish attempt; future jobs get their timer re-armed.
func (e *Engine) Recover(ctx context.Context) error {
	pending, err := e.store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pending jobs: %w", err)
	}

	now := e.now()
	rearmed, overdue := 0, 0

	for _, job := range pending {
		if job.DueNow(now) {
			overdue++
		} else {
			rearmed++
		}
		// Arm treats a past due time as fire-now, which covers both.
		e.timers.Arm(job.ID, job.ScheduledAt, e.fireFunc(job.ID))
	}

	e.logger.Info("Recovery complete",
		slog.Int("pending", len(pending)),
		slog.Int("rearmed", rearmed),
		slog.Int("overdue", overdue),
	)

	return nil
}

// InFlight reports whether a publish attempt for the job is running.
func (e *Engine) InFlight(jobID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, busy := e.inFlight[jobID]
	return busy
}

// Shutdown stops all armed timers. Pending jobs stay SCHEDULED in the
// store and are picked up by Recover on the next start.
func (e *Engine) Shutdown() {
	e.timers.Shutdown()
}

func (e *Engine) releaseMedia(job *domain.Job) {
	if job.MediaID != "" {
		e.media.Remove(job.MediaID)
	}
}
