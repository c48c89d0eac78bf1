package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/rickicode/MikrotikBilling-sub003/id"
	"github.com/rickicode/MikrotikBilling-sub003/job"
	"github.com/rickicode/MikrotikBilling-sub003/queue"
)

// EnqueueFunc is the callback the scheduler uses to materialize a job
// from a due definition. The engine provides the implementation; this
// indirection breaks the import cycle.
type EnqueueFunc func(ctx context.Context, queueName string, payload []byte, opts ...job.Option) (*job.Job, error)

// Emitter emits scheduler lifecycle events.
type Emitter interface {
	EmitSchedFired(ctx context.Context, def *Definition, jobID id.JobID)
}

// cronParser accepts standard 5-field expressions and descriptors like
// "@hourly".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSpec parses a cron expression. Exported so admission can validate
// expressions before persisting a definition.
func ParseSpec(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler promotes delayed jobs
// and checks for due definitions.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithPausedCheck wires the engine's pause flag; ticks no-op while it
// reports true.
func WithPausedCheck(f func() bool) SchedulerOption {
	return func(s *Scheduler) { s.paused = f }
}

// Scheduler runs a fixed tick loop independent of the dispatch loops.
// Each tick promotes due delayed jobs for every registered queue and
// materializes jobs from due cron definitions.
type Scheduler struct {
	store    Store
	jobStore job.Store
	queues   *queue.Registry
	enqueue  EnqueueFunc
	emitter  Emitter
	logger   *slog.Logger

	tickInterval time.Duration
	paused       func() bool

	// parsed caches compiled cron expressions.
	parsedMu sync.RWMutex
	parsed   map[string]cronlib.Schedule

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler.
func NewScheduler(
	store Store,
	jobStore job.Store,
	queues *queue.Registry,
	enqueue EnqueueFunc,
	emitter Emitter,
	logger *slog.Logger,
	opts ...SchedulerOption,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		store:        store,
		jobStore:     jobStore,
		queues:       queues,
		enqueue:      enqueue,
		emitter:      emitter,
		logger:       logger,
		tickInterval: 5 * time.Second,
		paused:       func() bool { return false },
		parsed:       make(map[string]cronlib.Schedule),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the tick goroutine. It returns immediately.
func (s *Scheduler) Start(_ context.Context) error {
	s.wg.Add(1)
	go s.tickLoop()
	s.logger.Info("scheduler started", slog.Duration("tick_interval", s.tickInterval))
	return nil
}

// Stop signals the scheduler to stop and waits for the tick goroutine.
func (s *Scheduler) Stop(_ context.Context) error {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.paused() {
				continue
			}
			s.Tick(context.Background())
		}
	}
}

// Tick runs one scheduler pass: delayed promotion across all queues,
// then cron materialization. Exported so tests and the dispatch loops'
// empty-fetch fallback can force a pass.
func (s *Scheduler) Tick(ctx context.Context) {
	now := time.Now().UTC()
	s.promoteAll(ctx, now)
	s.fireDue(ctx, now)
}

// promoteAll moves due delayed jobs into ready structures, one queue per
// goroutine.
func (s *Scheduler) promoteAll(ctx context.Context, now time.Time) {
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range s.queues.Names() {
		cfg, ok := s.queues.Get(name)
		if !ok {
			continue
		}
		g.Go(func() error {
			n, err := s.jobStore.PromoteDue(gctx, cfg.Name, now, cfg.PriorityEnabled)
			if err != nil {
				s.logger.Error("delayed promotion failed",
					slog.String("queue", cfg.Name),
					slog.String("error", err.Error()),
				)
				return nil // keep promoting the other queues
			}
			if n > 0 {
				s.logger.Debug("promoted delayed jobs",
					slog.String("queue", cfg.Name),
					slog.Int("count", n),
				)
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // goroutines never return errors
}

// fireDue materializes a job from every enabled definition whose
// NextRunAt has passed, then advances NextRunAt from the expression.
func (s *Scheduler) fireDue(ctx context.Context, now time.Time) {
	defs, err := s.store.ListScheds(ctx)
	if err != nil {
		s.logger.Error("list scheduled definitions failed", slog.String("error", err.Error()))
		return
	}

	for _, def := range defs {
		if !def.Enabled {
			continue
		}
		if def.NextRunAt == nil || def.NextRunAt.After(now) {
			continue
		}
		s.fire(ctx, def, now)
	}
}

func (s *Scheduler) fire(ctx context.Context, def *Definition, now time.Time) {
	var opts []job.Option
	if def.Priority != 0 {
		opts = append(opts, job.WithPriority(def.Priority))
	}
	if def.MaxAttempts > 0 {
		opts = append(opts, job.WithMaxAttempts(def.MaxAttempts))
	}
	if def.Timeout > 0 {
		opts = append(opts, job.WithTimeout(def.Timeout))
	}

	j, err := s.enqueue(ctx, def.Queue, def.Payload, opts...)
	if err != nil {
		s.logger.Error("cron materialization failed",
			slog.String("sched_id", def.ID.String()),
			slog.String("queue", def.Queue),
			slog.String("error", err.Error()),
		)
		return
	}

	// Advance the definition; it stays registered for future runs.
	def.LastRunAt = &now
	sched, parseErr := s.schedule(def.Spec)
	if parseErr != nil {
		// Validated at registration; a parse failure here means the
		// stored spec was corrupted. Disable rather than refire forever.
		s.logger.Error("stored cron spec unparsable, disabling",
			slog.String("sched_id", def.ID.String()),
			slog.String("spec", def.Spec),
			slog.String("error", parseErr.Error()),
		)
		def.Enabled = false
	} else {
		next := sched.Next(now)
		def.NextRunAt = &next
	}

	if updateErr := s.store.UpdateSched(ctx, def); updateErr != nil {
		s.logger.Error("update scheduled definition failed",
			slog.String("sched_id", def.ID.String()),
			slog.String("error", updateErr.Error()),
		)
	}

	if s.emitter != nil {
		s.emitter.EmitSchedFired(ctx, def, j.ID)
	}

	s.logger.Info("cron fired",
		slog.String("sched_id", def.ID.String()),
		slog.String("queue", def.Queue),
		slog.String("job_id", j.ID.String()),
	)
}

// schedule caches compiled cron expressions.
func (s *Scheduler) schedule(expr string) (cronlib.Schedule, error) {
	s.parsedMu.RLock()
	sched, ok := s.parsed[expr]
	s.parsedMu.RUnlock()
	if ok {
		return sched, nil
	}

	sched, err := ParseSpec(expr)
	if err != nil {
		return nil, err
	}

	s.parsedMu.Lock()
	s.parsed[expr] = sched
	s.parsedMu.Unlock()
	return sched, nil
}
