package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/kaushalkrishnax/inflow-backend/internal/domain"
)

// Routing keys for job lifecycle events.
const (
	RoutingKeyPublished = "jobs.published"
	RoutingKeyFailed    = "jobs.failed"
	RoutingKeyCancelled = "jobs.cancelled"
)

// Broker is the messaging surface the publisher needs. Satisfied by
// shared/rabbitmq.Client.
type Broker interface {
	Publish(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// JobEvent is the wire format of one lifecycle event.
type JobEvent struct {
	JobID       string    `json:"job_id"`
	Platform    string    `json:"platform"`
	ContentType string    `json:"content_type"`
	Status      string    `json:"status"`
	ExternalID  string    `json:"external_id,omitempty"`
	Error       string    `json:"error,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher emits job lifecycle events to the message broker. Emission
// is best-effort: the job's durable state transition has already
// happened, so a broker failure is logged and swallowed.
type Publisher struct {
	broker Broker
	logger *slog.Logger
}

// NewPublisher creates an event publisher.
func NewPublisher(broker Broker, logger *slog.Logger) *Publisher {
	return &Publisher{
		broker: broker,
		logger: logger,
	}
}

// JobPublished emits a jobs.published event.
func (p *Publisher) JobPublished(ctx context.Context, job *domain.Job) {
	p.emit(ctx, RoutingKeyPublished, JobEvent{
		JobID:       job.ID,
		Platform:    string(job.Platform),
		ContentType: string(job.ContentType),
		Status:      domain.JobStatusPublished,
		ExternalID:  job.ExternalID,
		OccurredAt:  time.Now().UTC(),
	})
}

// JobFailed emits a jobs.failed event.
func (p *Publisher) JobFailed(ctx context.Context, job *domain.Job, reason string) {
	p.emit(ctx, RoutingKeyFailed, JobEvent{
		JobID:       job.ID,
		Platform:    string(job.Platform),
		ContentType: string(job.ContentType),
		Status:      domain.JobStatusFailed,
		Error:       reason,
		OccurredAt:  time.Now().UTC(),
	})
}

// JobCancelled emits a jobs.cancelled event.
func (p *Publisher) JobCancelled(ctx context.Context, job *domain.Job) {
	p.emit(ctx, RoutingKeyCancelled, JobEvent{
		JobID:       job.ID,
		Platform:    string(job.Platform),
		ContentType: string(job.ContentType),
		Status:      domain.JobStatusCancelled,
		OccurredAt:  time.Now().UTC(),
	})
}

func (p *Publisher) emit(ctx context.Context, routingKey string, event JobEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to encode job event",
			slog.String("job_id", event.JobID),
			slog.Any("error", err),
		)
		return
	}

	if err := p.broker.Publish(ctx, routingKey, body, "application/json"); err != nil {
		p.logger.Error("Failed to emit job event",
			slog.String("job_id", event.JobID),
			slog.String("routing_key", routingKey),
			slog.Any("error", err),
		)
		return
	}

	p.logger.Debug("Job event emitted",
		slog.String("job_id", event.JobID),
		slog.String("routing_key", routingKey),
	)
}
