package job

import (
	"context"
	"time"

	"github.com/rickicode/MikrotikBilling-sub003/id"
)

// Counts holds the per-structure sizes for one queue.
type Counts struct {
	Ready     int64
	Priority  int64
	Delayed   int64
	Active    int64
	Completed int64
	Dead      int64
}

// Waiting is the number of dispatchable jobs (ready list + priority set).
func (c Counts) Waiting() int64 { return c.Ready + c.Priority }

// Store defines the persistence contract for jobs against the shared
// ordered store. All operations that move a job between structures are
// atomic with the matching record-state write, so concurrent dispatch
// loops (including ones in other processes) never observe a job in two
// structures at once.
type Store interface {
	// CreateJob persists the job record and assigns its admission
	// sequence number (j.Seq). It does not place the job in any ready
	// structure; placement is a separate call.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// UpdateJob persists changes to an existing job record.
	UpdateJob(ctx context.Context, j *Job) error

	// DeleteJob removes a job record and any structure memberships.
	DeleteJob(ctx context.Context, jobID id.JobID) error

	// PushReady appends the job to the tail of the queue's FIFO ready
	// list and marks it waiting.
	PushReady(ctx context.Context, j *Job) error

	// PushPriority inserts the job into the queue's priority set
	// (higher priority dispatches first, FIFO within equal priority)
	// and marks it waiting.
	PushPriority(ctx context.Context, j *Job) error

	// PushDelayed inserts the job into the queue's delayed set scored
	// by runAt and marks it waiting.
	PushDelayed(ctx context.Context, j *Job, runAt time.Time) error

	// PopNext claims the next dispatchable job: the highest-priority
	// entry of the priority set if non-empty, else the head of the
	// ready list, blocking up to wait for one to appear. The claimed
	// job is marked active with StartedAt set, atomically with its
	// removal from the ready structure. Returns (nil, nil) when no job
	// became available within wait.
	PopNext(ctx context.Context, queue string, wait time.Duration) (*Job, error)

	// PromoteDue moves delayed entries with runAt <= now into the ready
	// list, or into the priority set for jobs carrying a non-zero
	// priority on priority-enabled queues. Returns the number promoted.
	PromoteDue(ctx context.Context, queue string, now time.Time, priorityEnabled bool) (int, error)

	// TrimReady evicts the oldest entries beyond max from the ready
	// list, marks them dead, and returns them for dead-lettering.
	// A max of zero or less means unbounded and is a no-op.
	TrimReady(ctx context.Context, queue string, max int) ([]*Job, error)

	// CompleteJob marks the job completed, removes it from the active
	// set, and records it in the bounded completed set, trimming to
	// retention entries. Retention zero keeps none.
	CompleteJob(ctx context.Context, j *Job, retention int) error

	// ClearActive removes the job from the queue's active set without
	// completing it (failure path: the retry manager re-places it).
	ClearActive(ctx context.Context, queue string, jobID id.JobID) error

	// ActiveCount returns the authoritative number of active jobs for
	// the queue across all processes.
	ActiveCount(ctx context.Context, queue string) (int64, error)

	// ClaimDedup records the dedup key with a TTL of window. Returns
	// false when the key is already live, in which case nothing is
	// written. Expiry is store-TTL-driven.
	ClaimDedup(ctx context.Context, queue, key string, window time.Duration) (bool, error)

	// ReleaseDedup drops a dedup claim before its window expires.
	// Admissions that fail after claiming their key call this so the
	// next submission is not rejected as a duplicate of a job that was
	// never created.
	ReleaseDedup(ctx context.Context, queue, key string) error

	// QueueCounts returns the per-structure sizes for the queue.
	QueueCounts(ctx context.Context, queue string) (Counts, error)
}
