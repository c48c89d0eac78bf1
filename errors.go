package jobq

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("jobq: no store configured")
	ErrStoreClosed = errors.New("jobq: store closed")

	// Not found errors.
	ErrJobNotFound   = errors.New("jobq: job not found")
	ErrQueueNotFound = errors.New("jobq: queue not registered")
	ErrSchedNotFound = errors.New("jobq: scheduled definition not found")
	ErrDLQNotFound   = errors.New("jobq: dead-letter entry not found")

	// Admission errors.
	ErrValidation   = errors.New("jobq: invalid job options")
	ErrDuplicateJob = errors.New("jobq: duplicate job within dedup window")
	ErrJobExists    = errors.New("jobq: job already exists")

	// Execution errors.
	ErrJobTimeout = errors.New("jobq: job execution timed out")

	// Lifecycle errors.
	ErrPaused       = errors.New("jobq: engine paused")
	ErrShuttingDown = errors.New("jobq: engine shutting down")

	// Registration errors.
	ErrProcessorRegistered = errors.New("jobq: processor already registered for queue")
)

// nonRetryableError marks a processor error that must not be retried.
type nonRetryableError struct {
	err error
}

func (e *nonRetryableError) Error() string { return e.err.Error() }

func (e *nonRetryableError) Unwrap() error { return e.err }

// NonRetryable wraps a processor error so the failed job is dead-lettered
// immediately instead of being retried. Returns nil if err is nil.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &nonRetryableError{err: err}
}

// IsNonRetryable reports whether err (or any error it wraps) was marked
// with NonRetryable.
func IsNonRetryable(err error) bool {
	var nr *nonRetryableError
	return errors.As(err, &nr)
}
