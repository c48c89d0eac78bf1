package job

import (
	"time"

	"github.com/rickicode/MikrotikBilling-sub003/id"
)

// Options configures per-job behaviour at admission.
type Options struct {
	// Priority determines dispatch ordering on priority-enabled queues.
	// Higher values dispatch first. Zero routes through the FIFO list.
	Priority int

	// Delay postpones the first dispatch by the given duration.
	Delay time.Duration

	// RunAt schedules the job for a specific time. Takes precedence
	// over Delay when both are set.
	RunAt time.Time

	// Cron turns the admission into a scheduled definition instead of
	// an immediate job (standard 5-field expression).
	Cron string

	// Dependencies are jobs that must complete before this one is
	// dispatched.
	Dependencies []id.JobID

	// DedupKey suppresses repeated admissions sharing the key within
	// the queue's dedup window. Empty falls back to a payload content
	// hash when the queue has a dedup window configured.
	DedupKey string

	// MaxAttempts overrides the queue retry policy's attempt budget.
	// Zero means use the queue's value.
	MaxAttempts int

	// Timeout overrides the engine's default per-job execution timeout.
	Timeout time.Duration
}

// Option is a functional option applied at admission.
type Option func(*Options)

// WithPriority sets the job priority. Higher values dispatch first.
func WithPriority(p int) Option {
	return func(o *Options) { o.Priority = p }
}

// WithDelay postpones the first dispatch by d.
func WithDelay(d time.Duration) Option {
	return func(o *Options) { o.Delay = d }
}

// WithRunAt schedules the job for execution at a specific time.
func WithRunAt(t time.Time) Option {
	return func(o *Options) { o.RunAt = t }
}

// WithCron admits a scheduled definition instead of an immediate job.
func WithCron(expr string) Option {
	return func(o *Options) { o.Cron = expr }
}

// WithDependencies gates the job on the completion of other jobs.
func WithDependencies(deps ...id.JobID) Option {
	return func(o *Options) { o.Dependencies = append(o.Dependencies, deps...) }
}

// WithDedupKey sets an explicit deduplication key.
func WithDedupKey(key string) Option {
	return func(o *Options) { o.DedupKey = key }
}

// WithMaxAttempts overrides the queue's attempt budget for this job.
func WithMaxAttempts(n int) Option {
	return func(o *Options) { o.MaxAttempts = n }
}

// WithTimeout sets the maximum execution duration for the job.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}
