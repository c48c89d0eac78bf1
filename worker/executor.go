// Package worker provides the execution side of the engine — an Executor
// that runs claimed jobs through middleware and the registered processor,
// and a Pool of per-queue dispatch loops that claim jobs from the shared
// store under the configured concurrency limits.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	jobq "github.com/rickicode/MikrotikBilling-sub003"
	"github.com/rickicode/MikrotikBilling-sub003/depend"
	"github.com/rickicode/MikrotikBilling-sub003/dlq"
	"github.com/rickicode/MikrotikBilling-sub003/hook"
	"github.com/rickicode/MikrotikBilling-sub003/job"
	"github.com/rickicode/MikrotikBilling-sub003/middleware"
	"github.com/rickicode/MikrotikBilling-sub003/queue"
	"github.com/rickicode/MikrotikBilling-sub003/stats"
)

// Executor runs a single claimed job through middleware and the
// registered processor, then handles completion, retry scheduling,
// dead-lettering, dependency release, and lifecycle events.
type Executor struct {
	processors *job.Registry
	store      job.Store
	queues     *queue.Registry
	dlqService *dlq.Service
	resolver   *depend.Resolver
	hooks      *hook.Registry
	collector  *stats.Collector
	retention  int
	mw         middleware.Middleware
	logger     *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	processors *job.Registry,
	store job.Store,
	queues *queue.Registry,
	dlqService *dlq.Service,
	resolver *depend.Resolver,
	hooks *hook.Registry,
	collector *stats.Collector,
	retention int,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	return &Executor{
		processors: processors,
		store:      store,
		queues:     queues,
		dlqService: dlqService,
		resolver:   resolver,
		hooks:      hooks,
		collector:  collector,
		retention:  retention,
		mw:         middleware.Chain(mws...),
		logger:     logger,
	}
}

// Execute runs a job through the middleware chain and processor.
// On success: completes the job and releases its dependents.
// On failure with attempts remaining: re-queues with backoff delay.
// On failure with attempts exhausted (or a non-retryable error): marks
// dead and pushes to the dead-letter queue.
func (e *Executor) Execute(ctx context.Context, j *job.Job) error {
	p, ok := e.processors.Get(j.Queue)
	if !ok {
		return fmt.Errorf("no processor registered for queue %q", j.Queue)
	}

	invocationLogger := e.logger.With(
		slog.String("job_id", j.ID.String()),
		slog.String("queue", j.Queue),
	)

	start := time.Now()

	terminal := func(ctx context.Context) error {
		ctx = job.ContextWithLogger(ctx, invocationLogger)
		ctx = job.ContextWithProgress(ctx, func(pct int) {
			j.Progress = pct
		})
		return p.Execute(ctx, j)
	}

	err := e.mw(ctx, j, terminal)
	elapsed := time.Since(start)

	now := time.Now().UTC()
	j.UpdatedAt = now

	if err != nil {
		return e.handleFailure(ctx, j, err, now)
	}
	return e.handleSuccess(ctx, j, now, elapsed)
}

// handleSuccess completes the job, records metrics, and releases jobs
// blocked on it.
func (e *Executor) handleSuccess(ctx context.Context, j *job.Job, now time.Time, elapsed time.Duration) error {
	j.FinishedAt = &now
	j.LastError = ""

	if completeErr := e.store.CompleteJob(ctx, j, e.retention); completeErr != nil {
		e.logger.Error("failed to complete job",
			slog.String("job_id", j.ID.String()),
			slog.String("error", completeErr.Error()),
		)
		return completeErr
	}

	e.collector.JobProcessed(j.Queue, elapsed)
	e.hooks.EmitJobCompleted(ctx, j, elapsed)

	released, resolveErr := e.resolver.JobCompleted(ctx, j.ID)
	if resolveErr != nil {
		e.logger.Error("dependency resolution failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", resolveErr.Error()),
		)
	}
	for _, r := range released {
		e.hooks.EmitJobReleased(ctx, r)
	}
	return nil
}

// handleFailure increments the attempt counter, clears the active claim,
// and either re-queues the job with backoff or dead-letters it.
func (e *Executor) handleFailure(ctx context.Context, j *job.Job, jobErr error, now time.Time) error {
	j.Attempts++
	j.LastError = jobErr.Error()
	e.collector.JobFailed(j.Queue)

	if clearErr := e.store.ClearActive(ctx, j.Queue, j.ID); clearErr != nil {
		e.logger.Error("failed to clear active claim",
			slog.String("job_id", j.ID.String()),
			slog.String("error", clearErr.Error()),
		)
	}

	if jobq.IsNonRetryable(jobErr) || j.Attempts >= j.MaxAttempts {
		return e.deadLetter(ctx, j, jobErr)
	}
	return e.scheduleRetry(ctx, j, now, jobErr)
}

// scheduleRetry pushes the job back into the delayed set with the
// queue's backoff delay.
func (e *Executor) scheduleRetry(ctx context.Context, j *job.Job, now time.Time, jobErr error) error {
	delay := e.queues.Backoff(j.Queue).Delay(j.Attempts)
	nextRunAt := now.Add(delay)
	j.State = job.StateFailed

	if updateErr := e.store.UpdateJob(ctx, j); updateErr != nil {
		e.logger.Error("failed to update job for retry",
			slog.String("job_id", j.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}
	if pushErr := e.store.PushDelayed(ctx, j, nextRunAt); pushErr != nil {
		e.logger.Error("failed to push retry",
			slog.String("job_id", j.ID.String()),
			slog.String("error", pushErr.Error()),
		)
		return pushErr
	}

	e.collector.JobRetried(j.Queue)
	e.hooks.EmitJobRetrying(ctx, j, j.Attempts, nextRunAt)

	e.logger.Info("job scheduled for retry",
		slog.String("job_id", j.ID.String()),
		slog.String("queue", j.Queue),
		slog.Int("attempt", j.Attempts),
		slog.Int("max_attempts", j.MaxAttempts),
		slog.Duration("delay", delay),
	)
	return fmt.Errorf("attempt %d/%d failed: %w", j.Attempts, j.MaxAttempts, jobErr)
}

// deadLetter marks the job dead and pushes it to the dead-letter queue.
func (e *Executor) deadLetter(ctx context.Context, j *job.Job, jobErr error) error {
	now := time.Now().UTC()
	j.State = job.StateDead
	j.FinishedAt = &now

	if updateErr := e.store.UpdateJob(ctx, j); updateErr != nil {
		e.logger.Error("failed to mark job dead",
			slog.String("job_id", j.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	if dlqErr := e.dlqService.Push(ctx, j, jobErr); dlqErr != nil {
		e.logger.Error("failed to push job to dead-letter queue",
			slog.String("job_id", j.ID.String()),
			slog.String("error", dlqErr.Error()),
		)
	}

	e.collector.JobDeadLettered(j.Queue)
	e.hooks.EmitJobDead(ctx, j, jobErr)

	e.logger.Warn("job dead-lettered",
		slog.String("job_id", j.ID.String()),
		slog.String("queue", j.Queue),
		slog.Int("attempts", j.Attempts),
		slog.String("error", jobErr.Error()),
	)
	return jobErr
}
