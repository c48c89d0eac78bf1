package depend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rickicode/MikrotikBilling-sub003/id"
	"github.com/rickicode/MikrotikBilling-sub003/job"
	"github.com/rickicode/MikrotikBilling-sub003/queue"
)

// Resolver releases blocked jobs as their dependencies complete. The
// executor notifies it after every successful job.
type Resolver struct {
	store    Store
	jobStore job.Store
	queues   *queue.Registry
	logger   *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(store Store, jobStore job.Store, queues *queue.Registry, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, jobStore: jobStore, queues: queues, logger: logger}
}

// JobCompleted removes the completed job from all dependents' blocker
// sets and moves every fully released dependent from blocked to waiting,
// placing it in the ready structure matching its own priority and delay.
// Returns the released jobs.
func (r *Resolver) JobCompleted(ctx context.Context, completed id.JobID) ([]*job.Job, error) {
	releasedIDs, err := r.store.ResolveCompleted(ctx, completed)
	if err != nil {
		return nil, fmt.Errorf("resolve completed %s: %w", completed, err)
	}

	released := make([]*job.Job, 0, len(releasedIDs))
	for _, jobID := range releasedIDs {
		j, getErr := r.jobStore.GetJob(ctx, jobID)
		if getErr != nil {
			r.logger.Error("dependency release: job lookup failed",
				slog.String("job_id", jobID.String()),
				slog.String("error", getErr.Error()),
			)
			continue
		}
		if j.State != job.StateBlocked {
			continue
		}

		j.State = job.StateWaiting
		j.Dependencies = nil
		if placeErr := r.place(ctx, j); placeErr != nil {
			r.logger.Error("dependency release: placement failed",
				slog.String("job_id", jobID.String()),
				slog.String("error", placeErr.Error()),
			)
			continue
		}

		r.logger.Info("dependency satisfied, job released",
			slog.String("job_id", jobID.String()),
			slog.String("queue", j.Queue),
		)
		released = append(released, j)
	}
	return released, nil
}

// place inserts a released job into the ready structure dictated by its
// own delay and priority settings, mirroring admission placement.
func (r *Resolver) place(ctx context.Context, j *job.Job) error {
	now := time.Now().UTC()
	if j.Delayed(now) {
		return r.jobStore.PushDelayed(ctx, j, j.RunAt)
	}

	cfg, ok := r.queues.Get(j.Queue)
	if ok && cfg.PriorityEnabled && j.Priority != 0 {
		return r.jobStore.PushPriority(ctx, j)
	}
	return r.jobStore.PushReady(ctx, j)
}
