package timer

import (
	"log/slog"
	"sync"
	"time"
)

// Registry holds at most one armed one-shot timer per job id. It is
// process-local and never persisted: the scheduler engine rebuilds it
// from the job store on every start.
type Registry struct {
	logger *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewRegistry creates an empty timer registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger: logger,
		timers: make(map[string]*time.Timer),
	}
}

// Arm registers fn to run at fireAt on its own goroutine. Re-arming an
// id cancels the previous timer first. A fireAt in the past fires
// immediately (still asynchronously, never on the caller's goroutine).
func (r *Registry) Arm(id string, fireAt time.Time, fn func()) {
	delay := time.Until(fireAt)

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.timers[id]; ok {
		prev.Stop()
		delete(r.timers, id)
	}

	if delay <= 0 {
		go fn()
		r.logger.Debug("Timer fired immediately",
			slog.String("job_id", id),
		)
		return
	}

	r.timers[id] = time.AfterFunc(delay, func() {
		r.mu.Lock()
		delete(r.timers, id)
		r.mu.Unlock()
		fn()
	})

	r.logger.Debug("Timer armed",
		slog.String("job_id", id),
		slog.Time("fire_at", fireAt),
		slog.Duration("delay", delay),
	)
}

// Cancel stops a pending timer. It returns true only if a timer was
// armed and had not fired yet; cancelling an unknown or already-fired
// id is an idempotent no-op.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.timers[id]
	if !ok {
		return false
	}

	delete(r.timers, id)
	stopped := t.Stop()

	r.logger.Debug("Timer cancelled",
		slog.String("job_id", id),
		slog.Bool("stopped", stopped),
	)

	return stopped
}

// Count returns the number of armed timers. Diagnostic.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// Shutdown stops every armed timer.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
}
