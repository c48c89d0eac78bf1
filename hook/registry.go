package hook

import (
	"context"
	"log/slog"
	"time"

	"github.com/rickicode/MikrotikBilling-sub003/cron"
	"github.com/rickicode/MikrotikBilling-sub003/id"
	"github.com/rickicode/MikrotikBilling-sub003/job"
)

// Named entry types pair an event implementation with the observer name
// captured at registration time. This avoids type-asserting back to
// Observer inside the emit methods.
type jobEnqueuedEntry struct {
	name string
	obs  JobEnqueued
}

type jobStartedEntry struct {
	name string
	obs  JobStarted
}

type jobCompletedEntry struct {
	name string
	obs  JobCompleted
}

type jobRetryingEntry struct {
	name string
	obs  JobRetrying
}

type jobDeadEntry struct {
	name string
	obs  JobDead
}

type jobReleasedEntry struct {
	name string
	obs  JobReleased
}

type queueFullEntry struct {
	name string
	obs  QueueFull
}

type schedFiredEntry struct {
	name string
	obs  SchedFired
}

type shutdownEntry struct {
	name string
	obs  Shutdown
}

// Registry holds registered observers and dispatches lifecycle events to
// them. Observers are type-cached at registration time so emit calls
// iterate only over observers that implement the relevant event.
type Registry struct {
	observers []Observer
	logger    *slog.Logger

	jobEnqueued  []jobEnqueuedEntry
	jobStarted   []jobStartedEntry
	jobCompleted []jobCompletedEntry
	jobRetrying  []jobRetryingEntry
	jobDead      []jobDeadEntry
	jobReleased  []jobReleasedEntry
	queueFull    []queueFullEntry
	schedFired   []schedFiredEntry
	shutdown     []shutdownEntry
}

// NewRegistry creates an observer registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an observer and type-asserts it into all applicable
// event caches. Observers are notified in registration order.
func (r *Registry) Register(o Observer) {
	r.observers = append(r.observers, o)
	name := o.Name()

	if h, ok := o.(JobEnqueued); ok {
		r.jobEnqueued = append(r.jobEnqueued, jobEnqueuedEntry{name, h})
	}
	if h, ok := o.(JobStarted); ok {
		r.jobStarted = append(r.jobStarted, jobStartedEntry{name, h})
	}
	if h, ok := o.(JobCompleted); ok {
		r.jobCompleted = append(r.jobCompleted, jobCompletedEntry{name, h})
	}
	if h, ok := o.(JobRetrying); ok {
		r.jobRetrying = append(r.jobRetrying, jobRetryingEntry{name, h})
	}
	if h, ok := o.(JobDead); ok {
		r.jobDead = append(r.jobDead, jobDeadEntry{name, h})
	}
	if h, ok := o.(JobReleased); ok {
		r.jobReleased = append(r.jobReleased, jobReleasedEntry{name, h})
	}
	if h, ok := o.(QueueFull); ok {
		r.queueFull = append(r.queueFull, queueFullEntry{name, h})
	}
	if h, ok := o.(SchedFired); ok {
		r.schedFired = append(r.schedFired, schedFiredEntry{name, h})
	}
	if h, ok := o.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Observers returns all registered observers.
func (r *Registry) Observers() []Observer { return r.observers }

// EmitJobEnqueued notifies all observers that implement JobEnqueued.
func (r *Registry) EmitJobEnqueued(ctx context.Context, j *job.Job) {
	for _, e := range r.jobEnqueued {
		if err := e.obs.OnJobEnqueued(ctx, j); err != nil {
			r.logObserverError("OnJobEnqueued", e.name, err)
		}
	}
}

// EmitJobStarted notifies all observers that implement JobStarted.
func (r *Registry) EmitJobStarted(ctx context.Context, j *job.Job) {
	for _, e := range r.jobStarted {
		if err := e.obs.OnJobStarted(ctx, j); err != nil {
			r.logObserverError("OnJobStarted", e.name, err)
		}
	}
}

// EmitJobCompleted notifies all observers that implement JobCompleted.
func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) {
	for _, e := range r.jobCompleted {
		if err := e.obs.OnJobCompleted(ctx, j, elapsed); err != nil {
			r.logObserverError("OnJobCompleted", e.name, err)
		}
	}
}

// EmitJobRetrying notifies all observers that implement JobRetrying.
func (r *Registry) EmitJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) {
	for _, e := range r.jobRetrying {
		if err := e.obs.OnJobRetrying(ctx, j, attempt, nextRunAt); err != nil {
			r.logObserverError("OnJobRetrying", e.name, err)
		}
	}
}

// EmitJobDead notifies all observers that implement JobDead.
func (r *Registry) EmitJobDead(ctx context.Context, j *job.Job, jobErr error) {
	for _, e := range r.jobDead {
		if err := e.obs.OnJobDead(ctx, j, jobErr); err != nil {
			r.logObserverError("OnJobDead", e.name, err)
		}
	}
}

// EmitJobReleased notifies all observers that implement JobReleased.
func (r *Registry) EmitJobReleased(ctx context.Context, j *job.Job) {
	for _, e := range r.jobReleased {
		if err := e.obs.OnJobReleased(ctx, j); err != nil {
			r.logObserverError("OnJobReleased", e.name, err)
		}
	}
}

// EmitQueueFull notifies all observers that implement QueueFull.
func (r *Registry) EmitQueueFull(ctx context.Context, queueName string, shed *job.Job) {
	for _, e := range r.queueFull {
		if err := e.obs.OnQueueFull(ctx, queueName, shed); err != nil {
			r.logObserverError("OnQueueFull", e.name, err)
		}
	}
}

// EmitSchedFired notifies all observers that implement SchedFired.
func (r *Registry) EmitSchedFired(ctx context.Context, def *cron.Definition, jobID id.JobID) {
	for _, e := range r.schedFired {
		if err := e.obs.OnSchedFired(ctx, def, jobID); err != nil {
			r.logObserverError("OnSchedFired", e.name, err)
		}
	}
}

// EmitShutdown notifies all observers that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.obs.OnShutdown(ctx); err != nil {
			r.logObserverError("OnShutdown", e.name, err)
		}
	}
}

func (r *Registry) logObserverError(event, observer string, err error) {
	r.logger.Warn("observer error",
		slog.String("event", event),
		slog.String("observer", observer),
		slog.String("error", err.Error()),
	)
}
