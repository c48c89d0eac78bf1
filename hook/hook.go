// Package hook defines the lifecycle observer system. Observers are
// notified of job lifecycle events and can react to them — recording
// audit trails, emitting webhooks, signalling completion to submitters.
//
// Each lifecycle event is a separate interface so observers opt in only
// to the events they care about. The [Registry] fans out each event to
// every registered observer implementing the corresponding interface.
// Submitters are decoupled from execution outcome; observers are the
// supported way to learn how a job ended.
package hook

import (
	"context"
	"time"

	"github.com/rickicode/MikrotikBilling-sub003/cron"
	"github.com/rickicode/MikrotikBilling-sub003/id"
	"github.com/rickicode/MikrotikBilling-sub003/job"
)

// Observer is the base interface all observers must implement.
type Observer interface {
	// Name returns a unique human-readable name for the observer.
	Name() string
}

// JobEnqueued is called after a job is admitted to a ready structure
// (or stored blocked on dependencies).
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.Job) error
}

// JobStarted is called when a dispatch loop begins executing a job.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after a job finishes successfully.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobRetrying is called when a job fails but is scheduled for retry.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) error
}

// JobDead is called when a job fails terminally and moves to the
// dead-letter list.
type JobDead interface {
	OnJobDead(ctx context.Context, j *job.Job, err error) error
}

// JobReleased is called when a blocked job's last dependency completes
// and it transitions back to waiting.
type JobReleased interface {
	OnJobReleased(ctx context.Context, j *job.Job) error
}

// QueueFull is called for every job shed to the dead-letter list because
// its queue's ready list exceeded the configured maximum. Overflow is
// handled by shedding, not by failing the admission, so this event is
// the only signal the excess jobs produce.
type QueueFull interface {
	OnQueueFull(ctx context.Context, queueName string, shed *job.Job) error
}

// SchedFired is called when a cron definition materializes a job.
type SchedFired interface {
	OnSchedFired(ctx context.Context, def *cron.Definition, jobID id.JobID) error
}

// Shutdown is called when the engine is shutting down gracefully.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
