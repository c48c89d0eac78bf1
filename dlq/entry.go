// Package dlq implements the dead-letter queue: terminal storage for
// jobs that exhausted their retry budget or were shed on queue overflow,
// with inspection and replay operations.
package dlq

import (
	"time"

	"github.com/rickicode/MikrotikBilling-sub003/id"
)

// Reason explains why a job was dead-lettered.
type Reason string

const (
	// ReasonFailed means the job exhausted its attempt budget.
	ReasonFailed Reason = "failed"
	// ReasonQueueFull means the job was evicted from an over-length
	// ready list to shed backpressure.
	ReasonQueueFull Reason = "queue_full"
)

// Entry is a dead-lettered job held for inspection or replay.
type Entry struct {
	ID          id.DLQID   `json:"id"`
	JobID       id.JobID   `json:"job_id"`
	Queue       string     `json:"queue"`
	Payload     []byte     `json:"payload"`
	Reason      Reason     `json:"reason"`
	Error       string     `json:"error,omitempty"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	FailedAt    time.Time  `json:"failed_at"`
	ReplayedAt  *time.Time `json:"replayed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
