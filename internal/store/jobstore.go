package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/kaushalkrishnax/inflow-backend/internal/domain"
)

// pqUniqueViolation is the PostgreSQL error code for unique_violation.
const pqUniqueViolation = "23505"

// JobStore persists scheduled jobs in PostgreSQL. Every write is durable
// before the call returns; there is no caching layer in front of it.
type JobStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewJobStore creates a JobStore on top of an open database handle.
func NewJobStore(db *sqlx.DB, logger *slog.Logger) *JobStore {
	return &JobStore{
		db:     db,
		logger: logger,
	}
}

// jobRow mirrors one scheduled_jobs row.
type jobRow struct {
	JobID       string         `db:"job_id"`
	Platform    string         `db:"platform"`
	ContentType string         `db:"content_type"`
	Payload     []byte         `db:"payload"`
	MediaID     sql.NullString `db:"media_id"`
	ScheduledAt time.Time      `db:"scheduled_at"`
	Status      string         `db:"status"`
	ExternalID  sql.NullString `db:"external_id"`
	LastError   sql.NullString `db:"last_error"`
	PublishedAt sql.NullTime   `db:"published_at"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r *jobRow) toDomain() (*domain.Job, error) {
	job := &domain.Job{
		ID:          r.JobID,
		Platform:    domain.Platform(r.Platform),
		ContentType: domain.ContentType(r.ContentType),
		MediaID:     r.MediaID.String,
		ScheduledAt: r.ScheduledAt,
		Status:      r.Status,
		ExternalID:  r.ExternalID.String,
		LastError:   r.LastError.String,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}

	if r.PublishedAt.Valid {
		t := r.PublishedAt.Time
		job.PublishedAt = &t
	}

	if len(r.Payload) > 0 {
		if err := json.Unmarshal(r.Payload, &job.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode job payload: %w", err)
		}
	}

	return job, nil
}

const jobColumns = `
	job_id, platform, content_type, payload, media_id,
	scheduled_at, status, external_id, last_error, published_at,
	created_at, updated_at
`

// Create persists a new job with status SCHEDULED. Returns
// domain.ErrDuplicateID when the id already exists.
func (s *JobStore) Create(ctx context.Context, job *domain.Job) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode job payload: %w", err)
	}

	query := `
		INSERT INTO scheduled_jobs (
			job_id, platform, content_type, payload, media_id,
			scheduled_at, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, NULLIF($5, ''),
			$6, $7, $8, $9
		)
	`

	_, err = s.db.ExecContext(
		ctx,
		query,
		job.ID,
		string(job.Platform),
		string(job.ContentType),
		payload,
		job.MediaID,
		job.ScheduledAt,
		domain.JobStatusScheduled,
		job.CreatedAt,
		job.UpdatedAt,
	)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return domain.ErrDuplicateID
		}
		return fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Info("Job persisted",
		slog.String("job_id", job.ID),
		slog.String("platform", string(job.Platform)),
		slog.String("content_type", string(job.ContentType)),
		slog.Time("scheduled_at", job.ScheduledAt),
	)

	return nil
}

// StatusFields carries the columns written together with a status change.
// The update is a single statement so the transition is atomic.
type StatusFields struct {
	ExternalID  string
	LastError   string
	PublishedAt *time.Time
}

// UpdateStatus transitions a job to newStatus and writes the outcome
// fields in the same statement. Returns domain.ErrJobNotFound when no
// row matches.
func (s *JobStore) UpdateStatus(ctx context.Context, jobID, newStatus string, fields StatusFields) error {
	query := `
		UPDATE scheduled_jobs
		SET status = $1,
		    external_id = NULLIF($2, ''),
		    last_error = NULLIF($3, ''),
		    published_at = $4,
		    updated_at = NOW()
		WHERE job_id = $5
	`

	result, err := s.db.ExecContext(ctx, query, newStatus, fields.ExternalID, fields.LastError, fields.PublishedAt, jobID)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return domain.ErrJobNotFound
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("status", newStatus),
	)

	return nil
}

// Get returns a single job by id, or domain.ErrJobNotFound.
func (s *JobStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM scheduled_jobs WHERE job_id = $1`

	var row jobRow
	if err := s.db.GetContext(ctx, &row, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return row.toDomain()
}

// ListPending returns every SCHEDULED job ordered by due time ascending.
// Used by Recover() at startup and by the listing endpoint.
func (s *JobStore) ListPending(ctx context.Context) ([]*domain.Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM scheduled_jobs
		WHERE status = $1
		ORDER BY scheduled_at ASC`

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, domain.JobStatusScheduled); err != nil {
		return nil, fmt.Errorf("failed to list pending jobs: %w", err)
	}

	return rowsToDomain(rows)
}

// Filter narrows List results.
type Filter struct {
	Platform    string
	ContentType string
	Status      string
}

// List returns jobs matching the filter, ordered by due time ascending.
func (s *JobStore) List(ctx context.Context, filter Filter) ([]*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM scheduled_jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Platform != "" {
		query += fmt.Sprintf(" AND platform = $%d", argIdx)
		args = append(args, filter.Platform)
		argIdx++
	}

	if filter.ContentType != "" {
		query += fmt.Sprintf(" AND content_type = $%d", argIdx)
		args = append(args, filter.ContentType)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	query += " ORDER BY scheduled_at ASC"

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return rowsToDomain(rows)
}

func rowsToDomain(rows []jobRow) ([]*domain.Job, error) {
	jobs := make([]*domain.Job, 0, len(rows))
	for i := range rows {
		job, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
