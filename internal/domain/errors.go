package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job id has no row in the store.
	ErrJobNotFound = errors.New("job not found")

	// ErrDuplicateID is returned when creating a job whose id already exists.
	ErrDuplicateID = errors.New("job id already exists")

	// ErrPublishInFlight is returned when cancelling a job whose publish
	// attempt is already running; the attempt is not pre-empted.
	ErrPublishInFlight = errors.New("publish already in flight")

	// ErrMediaNotFound is returned when a media entry id is unknown.
	ErrMediaNotFound = errors.New("media entry not found")

	// ErrPublishTimeout is returned when a bounded platform wait is
	// exhausted, e.g. Instagram reel readiness polling.
	ErrPublishTimeout = errors.New("publish timed out waiting for platform")
)

// ValidationError rejects a submission before anything is persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// PlatformError carries a platform API failure verbatim so callers see
// the platform's own reason string.
type PlatformError struct {
	Platform   Platform
	StatusCode int
	Body       string
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Platform, e.StatusCode, e.Body)
}
