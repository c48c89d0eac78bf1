package job

import (
	"time"

	jobq "github.com/rickicode/MikrotikBilling-sub003"
	"github.com/rickicode/MikrotikBilling-sub003/id"
)

// State represents the lifecycle state of a job.
//
// Transitions: waiting → active → completed|failed; failed → waiting
// (retry) or dead (attempts exhausted); waiting ↔ blocked (dependency
// gating). completed and dead are terminal.
type State string

const (
	// StateWaiting means the job sits in a ready structure awaiting dispatch.
	StateWaiting State = "waiting"
	// StateBlocked means the job has unmet dependencies and is held out
	// of every ready structure.
	StateBlocked State = "blocked"
	// StateActive means a dispatch loop is currently executing the job.
	StateActive State = "active"
	// StateCompleted means the job finished successfully.
	StateCompleted State = "completed"
	// StateFailed means the last attempt failed; the retry manager
	// decides between re-queueing and dead-lettering.
	StateFailed State = "failed"
	// StateDead means the job exhausted its attempts (or was shed on
	// overflow) and lives in the dead-letter list.
	StateDead State = "dead"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateDead
}

// Job is a single unit of work admitted to a queue.
type Job struct {
	jobq.Entity

	ID       id.JobID `json:"id"`
	Queue    string   `json:"queue"`
	Payload  []byte   `json:"payload"`
	State    State    `json:"state"`
	Priority int      `json:"priority"`

	// RunAt is the earliest dispatch time. Zero means immediate.
	RunAt time.Time `json:"run_at,omitzero"`

	// Dependencies are jobs that must complete before this one becomes
	// ready. Non-empty only while blocked.
	Dependencies []id.JobID `json:"dependencies,omitempty"`

	// DedupKey is the deduplication key recorded at admission, if any.
	DedupKey string `json:"dedup_key,omitempty"`

	Attempts    int           `json:"attempts"`
	MaxAttempts int           `json:"max_attempts"`
	Timeout     time.Duration `json:"timeout,omitempty"`

	// Seq is the store-assigned admission sequence number, used to keep
	// FIFO order among equal-priority jobs.
	Seq int64 `json:"seq"`

	// Progress is the last value reported by the processor, 0-100.
	Progress int `json:"progress,omitempty"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}

// Delayed reports whether the job carries a future RunAt.
func (j *Job) Delayed(now time.Time) bool {
	return !j.RunAt.IsZero() && j.RunAt.After(now)
}
