package queue

import (
	"errors"
	"fmt"
)

// Handler errors are classified before they cross the handler/queue
// boundary so retry bookkeeping is never ambiguous about retryability.
// A ValidationError fails the job immediately; a DegradedError marks a
// best-effort collaborator failure and never fails the job; everything
// else is transient and subject to the retry policy.

// ValidationError means required input was missing or malformed. It is
// non-retryable and its message is passed through to clients verbatim.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// DegradedError records a failed best-effort step (upload, notification).
// It is logged by the caller and never changes the job's own outcome.
type DegradedError struct {
	Op  string
	Err error
}

func (e *DegradedError) Error() string {
	return fmt.Sprintf("%s degraded: %v", e.Op, e.Err)
}

func (e *DegradedError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a handler error is subject to the retry
// policy. Validation failures go straight to failed.
func Retryable(err error) bool {
	return err != nil && !IsValidation(err)
}

// ErrNotCancellable is returned when cancellation is requested for a job
// that is already active or terminal.
var ErrNotCancellable = errors.New("job is not cancellable")

// ErrNotFound is returned when a job id is unknown.
var ErrNotFound = errors.New("job not found")

// ErrDedupConflict is returned when an insert loses the race for a dedup
// key against a concurrent submission.
var ErrDedupConflict = errors.New("dedup key already held")
