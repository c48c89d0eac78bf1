package jobq

import "time"

// Config holds engine-level configuration. Per-queue behaviour
// (concurrency, retry policy, length caps) lives in queue.Config.
type Config struct {
	// PollInterval is how long a dispatch loop blocks waiting for a
	// ready job before re-checking delayed promotion and pause state.
	PollInterval time.Duration

	// SchedulerInterval is the scheduler tick for delayed promotion and
	// cron materialization. Cron resolution is minute-grade; the tick
	// only needs to be comfortably below a minute.
	SchedulerInterval time.Duration

	// ShutdownTimeout is the default drain window for Shutdown when the
	// caller's context has no deadline.
	ShutdownTimeout time.Duration

	// DefaultJobTimeout bounds a single processor invocation when the
	// job carries no explicit timeout.
	DefaultJobTimeout time.Duration

	// CompletedRetention is the number of completed job records kept
	// per queue. Zero keeps none.
	CompletedRetention int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:       time.Second,
		SchedulerInterval:  5 * time.Second,
		ShutdownTimeout:    30 * time.Second,
		DefaultJobTimeout:  5 * time.Minute,
		CompletedRetention: 1000,
	}
}
