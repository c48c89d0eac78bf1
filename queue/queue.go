// Package queue holds per-queue configuration and the process-local
// queue registry. A queue's config is immutable for the lifetime of the
// process; cross-process state (ready lists, active counts) lives in the
// shared store, never here.
package queue

import (
	"time"

	"github.com/rickicode/MikrotikBilling-sub003/backoff"
)

// RetryPolicy controls how failed jobs are retried before dead-lettering.
type RetryPolicy struct {
	// MaxAttempts is the total number of execution attempts (initial run
	// included) before a job is dead-lettered. Jobs may override it.
	MaxAttempts int

	// Strategy selects the backoff curve: fixed, linear, or exponential.
	Strategy backoff.Kind

	// Base is the backoff base interval.
	Base time.Duration

	// Cap bounds linear and exponential delays. Zero means uncapped.
	Cap time.Duration
}

// Config defines per-queue behaviour. Zero-value fields are filled with
// defaults at registration.
type Config struct {
	// Name is the queue identifier.
	Name string

	// Concurrency limits how many jobs from this queue may be active
	// simultaneously per dispatch loop.
	Concurrency int

	// MaxLength caps the number of waiting jobs in the ready list.
	// Overflow is shed to the dead-letter list with reason queue_full.
	// Zero means unbounded.
	MaxLength int

	// Retry is the queue's retry policy.
	Retry RetryPolicy

	// DedupWindow is how long an admission's dedup key suppresses
	// repeated submissions. Zero disables deduplication entirely,
	// explicit dedup keys included.
	DedupWindow time.Duration

	// PriorityEnabled routes non-zero-priority jobs through the
	// priority set instead of the FIFO ready list.
	PriorityEnabled bool

	// SchedulingEnabled allows delayed and cron-scheduled jobs on this
	// queue.
	SchedulingEnabled bool

	// RateLimit is the maximum sustained jobs per second dispatched
	// from this queue. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// DefaultRetryPolicy returns the retry policy applied when a queue
// registers without one: 3 attempts, exponential backoff, 1s base, 1m cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Strategy:    backoff.KindExponential,
		Base:        time.Second,
		Cap:         time.Minute,
	}
}

// withDefaults returns cfg with unset fields filled in.
func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = DefaultRetryPolicy().MaxAttempts
	}
	if c.Retry.Strategy == "" {
		c.Retry.Strategy = DefaultRetryPolicy().Strategy
	}
	if c.Retry.Base <= 0 {
		c.Retry.Base = DefaultRetryPolicy().Base
	}
	if c.Retry.Cap < 0 {
		c.Retry.Cap = 0
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		c.RateBurst = 1
	}
	return c
}
