// Package engine wires all jobq subsystems together: queue and processor
// registries, the middleware chain, the worker pool, the scheduler, the
// dead-letter service, and the dependency resolver.
//
// This package exists to break the import cycle: the root jobq package
// defines Entity and the sentinel errors (imported by job, cron, dlq)
// and so cannot import those packages back. The engine package sits
// above all subsystem packages and below the application layer.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	jobq "github.com/rickicode/MikrotikBilling-sub003"
	"github.com/rickicode/MikrotikBilling-sub003/cron"
	"github.com/rickicode/MikrotikBilling-sub003/depend"
	"github.com/rickicode/MikrotikBilling-sub003/dlq"
	"github.com/rickicode/MikrotikBilling-sub003/hook"
	"github.com/rickicode/MikrotikBilling-sub003/id"
	"github.com/rickicode/MikrotikBilling-sub003/job"
	mw "github.com/rickicode/MikrotikBilling-sub003/middleware"
	"github.com/rickicode/MikrotikBilling-sub003/queue"
	"github.com/rickicode/MikrotikBilling-sub003/stats"
	"github.com/rickicode/MikrotikBilling-sub003/store"
	"github.com/rickicode/MikrotikBilling-sub003/worker"
)

// Engine coordinates queues, the worker pool, and the scheduler over a
// shared store. Multiple engine processes may point at the same store;
// the store's atomic claim operations keep them from double-dispatching.
type Engine struct {
	store      store.Store
	cfg        jobq.Config
	logger     *slog.Logger
	queues     *queue.Registry
	processors *job.Registry
	hooks      *hook.Registry
	collector  *stats.Collector
	dlqService *dlq.Service
	resolver   *depend.Resolver
	pool       *worker.Pool
	scheduler  *cron.Scheduler

	mws           []mw.Middleware
	observers     []hook.Observer
	meterProvider metric.MeterProvider

	paused       atomic.Bool
	started      atomic.Bool
	shuttingDown atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithConfig overrides the default engine configuration.
func WithConfig(cfg jobq.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithMiddleware appends middleware to the engine's chain, inside the
// default stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(e *Engine) { e.mws = append(e.mws, m) }
}

// WithObserver registers a lifecycle observer.
func WithObserver(o hook.Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// WithMeterProvider sets a custom OTel MeterProvider for the metrics
// middleware. If not set, the global provider is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.meterProvider = mp }
}

// New creates an Engine over the given store.
func New(st store.Store, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, jobq.ErrNoStore
	}

	e := &Engine{
		store:      st,
		cfg:        jobq.DefaultConfig(),
		logger:     slog.Default(),
		queues:     queue.NewRegistry(),
		processors: job.NewRegistry(),
		collector:  stats.NewCollector(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.hooks = hook.NewRegistry(e.logger)
	for _, o := range e.observers {
		e.hooks.Register(o)
	}

	e.dlqService = dlq.NewService(st, st)
	e.resolver = depend.NewResolver(st, st, e.queues, e.logger)

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if e.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(e.meterProvider.Meter("github.com/rickicode/MikrotikBilling-sub003"))
	} else {
		metricsMw = mw.Metrics()
	}

	// Default stack: timeout → recover → metrics → logging. Timeout sits
	// outermost so Recover still catches panics from the detached
	// invocation goroutine.
	defaultMws := []mw.Middleware{
		mw.Timeout(e.cfg.DefaultJobTimeout),
		mw.Recover(e.logger),
		metricsMw,
		mw.Logging(e.logger),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(e.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, e.mws...)

	executor := worker.NewExecutor(
		e.processors, st, e.queues, e.dlqService, e.resolver,
		e.hooks, e.collector, e.cfg.CompletedRetention, e.logger, allMws...,
	)
	e.pool = worker.NewPool(st, executor, e.processors, e.queues, e.hooks, e.logger,
		worker.WithPollInterval(e.cfg.PollInterval),
		worker.WithPaused(&e.paused),
	)

	enqueue := func(ctx context.Context, queueName string, payload []byte, opts ...job.Option) (*job.Job, error) {
		var o job.Options
		for _, opt := range opts {
			opt(&o)
		}
		// Cron-materialized instances bypass dedup: each firing is a
		// distinct unit of work even with an identical payload.
		return e.admit(ctx, queueName, payload, o, true)
	}
	e.scheduler = cron.NewScheduler(st, st, e.queues, enqueue, e.hooks, e.logger,
		cron.WithTickInterval(e.cfg.SchedulerInterval),
		cron.WithPausedCheck(e.paused.Load),
	)

	return e, nil
}

// CreateQueue registers a queue with the given configuration. Creation
// is idempotent: if the queue already exists its registered config is
// returned unchanged.
func (e *Engine) CreateQueue(_ context.Context, name string, cfg queue.Config) (queue.Config, error) {
	if name == "" {
		return queue.Config{}, fmt.Errorf("%w: queue name is empty", jobq.ErrValidation)
	}
	return e.queues.Create(name, cfg)
}

// Add admits a job to a queue. Placement follows the job's options: a
// future run time lands in the delayed set, a non-zero priority on a
// priority-enabled queue lands in the priority set, everything else
// appends to the FIFO ready list.
//
// With WithCron the admission registers a recurring definition instead;
// the returned job is nil and instances materialize on schedule.
func (e *Engine) Add(ctx context.Context, queueName string, payload []byte, opts ...job.Option) (*job.Job, error) {
	if e.shuttingDown.Load() {
		return nil, jobq.ErrShuttingDown
	}
	if e.paused.Load() {
		return nil, jobq.ErrPaused
	}

	var o job.Options
	for _, opt := range opts {
		opt(&o)
	}

	if o.Cron != "" {
		if _, err := e.Schedule(ctx, queueName, o.Cron, payload, opts...); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return e.admit(ctx, queueName, payload, o, false)
}

// admit is the shared admission path for Add and cron materialization.
func (e *Engine) admit(ctx context.Context, queueName string, payload []byte, o job.Options, skipDedup bool) (*job.Job, error) {
	cfg, ok := e.queues.Get(queueName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", jobq.ErrQueueNotFound, queueName)
	}
	if (o.Delay > 0 || !o.RunAt.IsZero()) && !cfg.SchedulingEnabled {
		return nil, fmt.Errorf("%w: queue %s does not allow scheduling", jobq.ErrValidation, queueName)
	}

	releaseDedup := func() {}
	if !skipDedup && cfg.DedupWindow > 0 {
		key := o.DedupKey
		if key == "" {
			sum := sha256.Sum256(payload)
			key = hex.EncodeToString(sum[:])
		}
		claimed, err := e.store.ClaimDedup(ctx, queueName, key, cfg.DedupWindow)
		if err != nil {
			return nil, fmt.Errorf("claim dedup: %w", err)
		}
		if !claimed {
			return nil, fmt.Errorf("%w: queue %s key %s", jobq.ErrDuplicateJob, queueName, key)
		}
		o.DedupKey = key
		// An admission that fails past this point must give the key
		// back, or retries would be rejected as duplicates of a job
		// that was never created.
		releaseDedup = func() {
			if relErr := e.store.ReleaseDedup(ctx, queueName, key); relErr != nil {
				e.logger.Error("dedup release failed",
					slog.String("queue", queueName),
					slog.String("error", relErr.Error()),
				)
			}
		}
	}

	blockers, err := e.pendingBlockers(ctx, o.Dependencies)
	if err != nil {
		releaseDedup()
		return nil, err
	}

	now := time.Now().UTC()
	j := &job.Job{
		Entity:      jobq.NewEntity(),
		ID:          id.NewJobID(),
		Queue:       queueName,
		Payload:     payload,
		State:       job.StateWaiting,
		Priority:    o.Priority,
		DedupKey:    o.DedupKey,
		MaxAttempts: cfg.Retry.MaxAttempts,
		Timeout:     o.Timeout,
	}
	if o.MaxAttempts > 0 {
		j.MaxAttempts = o.MaxAttempts
	}
	if !o.RunAt.IsZero() {
		j.RunAt = o.RunAt
	} else if o.Delay > 0 {
		j.RunAt = now.Add(o.Delay)
	}

	if err := e.store.CreateJob(ctx, j); err != nil {
		releaseDedup()
		return nil, fmt.Errorf("create job: %w", err)
	}

	if len(blockers) > 0 {
		admitted, err := e.admitBlocked(ctx, j, blockers)
		if err != nil {
			releaseDedup()
		}
		return admitted, err
	}

	if err := e.place(ctx, j, cfg); err != nil {
		releaseDedup()
		return nil, err
	}
	e.shedOverflow(ctx, queueName, cfg)

	e.hooks.EmitJobEnqueued(ctx, j)
	e.logger.Info("job enqueued",
		slog.String("job_id", j.ID.String()),
		slog.String("queue", queueName),
		slog.Int("priority", j.Priority),
	)
	return j, nil
}

// pendingBlockers filters the declared dependencies down to jobs that
// have not yet reached a terminal state. Unknown dependency IDs count as
// completed: completed records are trimmed from the store eventually and
// must not block forever. Any other read failure aborts admission; a
// transient store error must not pass for a satisfied dependency.
func (e *Engine) pendingBlockers(ctx context.Context, deps []id.JobID) ([]id.JobID, error) {
	var blockers []id.JobID
	for _, dep := range deps {
		d, err := e.store.GetJob(ctx, dep)
		if errors.Is(err, jobq.ErrJobNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("check dependency %s: %w", dep, err)
		}
		if !d.State.Terminal() {
			blockers = append(blockers, dep)
		}
	}
	return blockers, nil
}

// admitBlocked stores the job blocked on its unmet dependencies. It
// enters no ready structure and does not count against the queue's
// length cap until released.
func (e *Engine) admitBlocked(ctx context.Context, j *job.Job, blockers []id.JobID) (*job.Job, error) {
	j.State = job.StateBlocked
	j.Dependencies = blockers
	if err := e.store.UpdateJob(ctx, j); err != nil {
		return nil, fmt.Errorf("store blocked job: %w", err)
	}
	if err := e.store.AddEdges(ctx, j.ID, blockers); err != nil {
		return nil, fmt.Errorf("add dependency edges: %w", err)
	}

	e.hooks.EmitJobEnqueued(ctx, j)
	e.logger.Info("job blocked on dependencies",
		slog.String("job_id", j.ID.String()),
		slog.String("queue", j.Queue),
		slog.Int("blockers", len(blockers)),
	)

	// A blocker may have completed between the admission check and the
	// edge write; its resolver pass ran before the edge existed and will
	// never run again. Re-read the blockers and resolve any that are
	// already done so the job cannot stay blocked on a finished
	// dependency.
	for _, dep := range blockers {
		d, err := e.store.GetJob(ctx, dep)
		if err != nil && !errors.Is(err, jobq.ErrJobNotFound) {
			e.logger.Error("dependency re-check failed",
				slog.String("job_id", j.ID.String()),
				slog.String("dependency", dep.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err == nil && d.State != job.StateCompleted {
			continue
		}
		released, resolveErr := e.resolver.JobCompleted(ctx, dep)
		if resolveErr != nil {
			e.logger.Error("dependency resolution failed",
				slog.String("dependency", dep.String()),
				slog.String("error", resolveErr.Error()),
			)
			continue
		}
		for _, r := range released {
			e.hooks.EmitJobReleased(ctx, r)
			if r.ID.String() == j.ID.String() {
				*j = *r
			}
		}
	}
	return j, nil
}

// place inserts the job into the ready structure dictated by its delay
// and priority.
func (e *Engine) place(ctx context.Context, j *job.Job, cfg queue.Config) error {
	if j.Delayed(time.Now().UTC()) {
		if err := e.store.PushDelayed(ctx, j, j.RunAt); err != nil {
			return fmt.Errorf("push delayed: %w", err)
		}
		return nil
	}
	if cfg.PriorityEnabled && j.Priority != 0 {
		if err := e.store.PushPriority(ctx, j); err != nil {
			return fmt.Errorf("push priority: %w", err)
		}
		return nil
	}
	if err := e.store.PushReady(ctx, j); err != nil {
		return fmt.Errorf("push ready: %w", err)
	}
	return nil
}

// shedOverflow evicts the oldest ready jobs beyond the queue's length
// cap and dead-letters them. Admission itself never fails on overflow.
func (e *Engine) shedOverflow(ctx context.Context, queueName string, cfg queue.Config) {
	if cfg.MaxLength <= 0 {
		return
	}
	evicted, err := e.store.TrimReady(ctx, queueName, cfg.MaxLength)
	if err != nil {
		e.logger.Error("ready list trim failed",
			slog.String("queue", queueName),
			slog.String("error", err.Error()),
		)
		return
	}
	for _, shed := range evicted {
		if shedErr := e.dlqService.Shed(ctx, shed); shedErr != nil {
			e.logger.Error("failed to dead-letter shed job",
				slog.String("job_id", shed.ID.String()),
				slog.String("error", shedErr.Error()),
			)
		}
		e.collector.JobShed(queueName)
		e.hooks.EmitQueueFull(ctx, queueName, shed)
		e.logger.Warn("job shed on queue overflow",
			slog.String("job_id", shed.ID.String()),
			slog.String("queue", queueName),
			slog.Int("max_length", cfg.MaxLength),
		)
	}
}

// Schedule registers a recurring definition that materializes a job on
// the queue every time the cron expression fires.
func (e *Engine) Schedule(ctx context.Context, queueName, spec string, payload []byte, opts ...job.Option) (*cron.Definition, error) {
	if e.shuttingDown.Load() {
		return nil, jobq.ErrShuttingDown
	}

	cfg, ok := e.queues.Get(queueName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", jobq.ErrQueueNotFound, queueName)
	}
	if !cfg.SchedulingEnabled {
		return nil, fmt.Errorf("%w: queue %s does not allow scheduling", jobq.ErrValidation, queueName)
	}

	sched, err := cron.ParseSpec(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: cron expression %q: %v", jobq.ErrValidation, spec, err)
	}

	var o job.Options
	for _, opt := range opts {
		opt(&o)
	}

	now := time.Now().UTC()
	next := sched.Next(now)
	def := &cron.Definition{
		Entity:      jobq.NewEntity(),
		ID:          id.NewSchedID(),
		Queue:       queueName,
		Spec:        spec,
		Payload:     payload,
		Priority:    o.Priority,
		MaxAttempts: o.MaxAttempts,
		Timeout:     o.Timeout,
		NextRunAt:   &next,
		Enabled:     true,
	}
	if err := e.store.RegisterSched(ctx, def); err != nil {
		return nil, fmt.Errorf("register schedule: %w", err)
	}

	e.logger.Info("schedule registered",
		slog.String("sched_id", def.ID.String()),
		slog.String("queue", queueName),
		slog.String("spec", spec),
		slog.Time("next_run_at", next),
	)
	return def, nil
}

// Unschedule removes a recurring definition. In-flight materialized
// instances are unaffected.
func (e *Engine) Unschedule(ctx context.Context, schedID id.SchedID) error {
	return e.store.DeleteSched(ctx, schedID)
}

// Process binds a processor to a queue and starts the engine's loops on
// first use. One processor per queue per process.
func (e *Engine) Process(ctx context.Context, queueName string, p job.Processor) error {
	if _, ok := e.queues.Get(queueName); !ok {
		return fmt.Errorf("%w: %s", jobq.ErrQueueNotFound, queueName)
	}
	if err := e.processors.Register(queueName, p); err != nil {
		return err
	}
	return e.Start(ctx)
}

// Start launches the scheduler and the dispatch loops. Safe to call
// repeatedly; later calls only pick up queues whose processors were
// registered after the first.
func (e *Engine) Start(ctx context.Context) error {
	if e.started.CompareAndSwap(false, true) {
		if err := e.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}
	return e.pool.Start(ctx)
}

// GetStats returns the observability snapshot for one queue: the
// authoritative structure counts from the store plus this process's
// execution metrics.
func (e *Engine) GetStats(ctx context.Context, queueName string) (stats.QueueStats, error) {
	cfg, ok := e.queues.Get(queueName)
	if !ok {
		return stats.QueueStats{}, fmt.Errorf("%w: %s", jobq.ErrQueueNotFound, queueName)
	}

	counts, err := e.store.QueueCounts(ctx, queueName)
	if err != nil {
		return stats.QueueStats{}, fmt.Errorf("queue counts: %w", err)
	}
	scheduled, err := e.store.CountScheds(ctx, queueName)
	if err != nil {
		return stats.QueueStats{}, fmt.Errorf("count schedules: %w", err)
	}
	edges, err := e.store.CountEdges(ctx)
	if err != nil {
		return stats.QueueStats{}, fmt.Errorf("count dependency edges: %w", err)
	}

	return stats.QueueStats{
		Queue:        queueName,
		Waiting:      counts.Waiting(),
		Active:       counts.Active,
		Delayed:      counts.Delayed,
		Completed:    counts.Completed,
		Dead:         counts.Dead,
		Scheduled:    scheduled,
		Dependencies: edges,
		Concurrency:  cfg.Concurrency,
		Metrics:      e.collector.Snapshot(queueName),
	}, nil
}

// Pause stops claiming new jobs engine-wide. In-flight jobs run to
// completion; Add returns ErrPaused until Resume.
func (e *Engine) Pause() {
	e.paused.Store(true)
	e.logger.Info("engine paused")
}

// Resume re-enables dispatch and admission after Pause.
func (e *Engine) Resume() {
	e.paused.Store(false)
	e.logger.Info("engine resumed")
}

// Shutdown drains the engine: no new claims, in-flight jobs get the
// remainder of the context's deadline (or the configured shutdown
// timeout) to finish, then remaining jobs are cancelled. The store is
// closed last.
func (e *Engine) Shutdown(ctx context.Context) error {
	if !e.shuttingDown.CompareAndSwap(false, true) {
		return nil
	}
	e.logger.Info("engine shutting down")

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ShutdownTimeout)
		defer cancel()
	}

	if e.started.Load() {
		if err := e.scheduler.Stop(ctx); err != nil {
			e.logger.Error("scheduler stop error", slog.String("error", err.Error()))
		}
		if err := e.pool.Stop(ctx); err != nil {
			e.logger.Error("worker pool stop error", slog.String("error", err.Error()))
		}
	}

	e.hooks.EmitShutdown(ctx)

	if err := e.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	e.logger.Info("engine stopped")
	return nil
}

// DLQ returns the dead-letter service for inspection and replay.
func (e *Engine) DLQ() *dlq.Service { return e.dlqService }

// Hooks returns the lifecycle observer registry.
func (e *Engine) Hooks() *hook.Registry { return e.hooks }

// Queues returns the queue registry.
func (e *Engine) Queues() *queue.Registry { return e.queues }

// Scheduler returns the scheduler, mainly for tests that force a tick.
func (e *Engine) Scheduler() *cron.Scheduler { return e.scheduler }

// Store returns the underlying composite store.
func (e *Engine) Store() store.Store { return e.store }
