package dlq

import (
	"context"
	"time"

	jobq "github.com/rickicode/MikrotikBilling-sub003"
	"github.com/rickicode/MikrotikBilling-sub003/id"
	"github.com/rickicode/MikrotikBilling-sub003/job"
)

// Service provides high-level dead-letter operations over a Store.
type Service struct {
	store    Store
	jobStore job.Store
}

// NewService creates a dead-letter service.
func NewService(store Store, jobStore job.Store) *Service {
	return &Service{store: store, jobStore: jobStore}
}

// Push dead-letters a job that exhausted its attempt budget.
func (s *Service) Push(ctx context.Context, j *job.Job, jobErr error) error {
	entry := s.entryFor(j, ReasonFailed)
	if jobErr != nil {
		entry.Error = jobErr.Error()
	}
	return s.store.PushDLQ(ctx, entry)
}

// Shed dead-letters a job evicted from an over-length ready list.
func (s *Service) Shed(ctx context.Context, j *job.Job) error {
	return s.store.PushDLQ(ctx, s.entryFor(j, ReasonQueueFull))
}

// Replay re-admits a dead-letter entry as a fresh waiting job with reset
// attempts and marks the entry replayed. The new job enters the FIFO
// ready list of its original queue.
func (s *Service) Replay(ctx context.Context, entryID id.DLQID) (*job.Job, error) {
	entry, err := s.store.GetDLQ(ctx, entryID)
	if err != nil {
		return nil, err
	}

	j := &job.Job{
		Entity:      jobq.NewEntity(),
		ID:          id.NewJobID(),
		Queue:       entry.Queue,
		Payload:     entry.Payload,
		State:       job.StateWaiting,
		MaxAttempts: entry.MaxAttempts,
	}
	if err := s.jobStore.CreateJob(ctx, j); err != nil {
		return nil, err
	}
	if err := s.jobStore.PushReady(ctx, j); err != nil {
		return nil, err
	}

	if err := s.store.MarkReplayed(ctx, entryID); err != nil {
		// The job is already re-admitted; surface the bookkeeping
		// failure alongside it.
		return j, err
	}
	return j, nil
}

// List, Count, and Purge delegate to the store for inspection tooling.

func (s *Service) List(ctx context.Context, opts ListOpts) ([]*Entry, error) {
	return s.store.ListDLQ(ctx, opts)
}

func (s *Service) Count(ctx context.Context, queue string) (int64, error) {
	return s.store.CountDLQ(ctx, queue)
}

func (s *Service) Purge(ctx context.Context, before time.Time) (int64, error) {
	return s.store.PurgeDLQ(ctx, before)
}

func (s *Service) entryFor(j *job.Job, reason Reason) *Entry {
	now := time.Now().UTC()
	return &Entry{
		ID:          id.NewDLQID(),
		JobID:       j.ID,
		Queue:       j.Queue,
		Payload:     j.Payload,
		Reason:      reason,
		Error:       j.LastError,
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		FailedAt:    now,
		CreatedAt:   now,
	}
}
