package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickicode/MikrotikBilling-sub003/hook"
	"github.com/rickicode/MikrotikBilling-sub003/id"
	"github.com/rickicode/MikrotikBilling-sub003/job"
	"github.com/rickicode/MikrotikBilling-sub003/queue"
)

// Pool runs one dispatch loop per queue with a registered processor.
// Each loop claims jobs from the shared store and hands them to the
// Executor on a goroutine, bounded by the queue's concurrency limit.
//
// The local semaphore bounds this process; the store's active count is
// the authoritative cross-process bound, so the sum of all processes'
// in-flight jobs never exceeds the limit either.
type Pool struct {
	store      job.Store
	executor   *Executor
	processors *job.Registry
	queues     *queue.Registry
	hooks      *hook.Registry
	logger     *slog.Logger

	pollInterval time.Duration
	paused       *atomic.Bool
	workerID     id.WorkerID

	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	launched map[string]bool
	activeMu sync.Mutex
	active   map[string]context.CancelFunc
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPollInterval sets how long each dispatch loop blocks waiting for a
// job before re-checking pause and stop signals.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithPaused shares the engine's pause flag. While set, dispatch loops
// idle without claiming jobs; in-flight jobs run to completion.
func WithPaused(paused *atomic.Bool) PoolOption {
	return func(p *Pool) { p.paused = paused }
}

// NewPool creates a worker pool.
func NewPool(
	store job.Store,
	executor *Executor,
	processors *job.Registry,
	queues *queue.Registry,
	hooks *hook.Registry,
	logger *slog.Logger,
	opts ...PoolOption,
) *Pool {
	p := &Pool{
		store:        store,
		executor:     executor,
		processors:   processors,
		queues:       queues,
		hooks:        hooks,
		logger:       logger,
		pollInterval: time.Second,
		paused:       &atomic.Bool{},
		workerID:     id.NewWorkerID(),
		stopCh:       make(chan struct{}),
		launched:     make(map[string]bool),
		active:       make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the pool's unique worker identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Start launches one dispatch loop per queue with a registered
// processor. Calling it again after further processor registrations
// launches loops for the new queues only. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		p.running = true
		p.logger.Info("worker pool starting",
			slog.String("worker_id", p.workerID.String()),
		)
	}

	for _, q := range p.processors.Queues() {
		if p.launched[q] {
			continue
		}
		cfg, ok := p.queues.Get(q)
		if !ok {
			p.logger.Warn("processor registered for unknown queue", slog.String("queue", q))
			continue
		}
		p.launched[q] = true
		p.logger.Info("dispatch loop starting",
			slog.String("queue", q),
			slog.Int("concurrency", cfg.Concurrency),
		)
		p.wg.Add(1)
		go p.dispatchLoop(q, cfg.Concurrency)
	}
	return nil
}

// Stop signals all dispatch loops to stop and waits for in-flight jobs
// to drain. If the context has a deadline, remaining jobs are cancelled
// when time runs out.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID.String()))
	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool drain timed out, cancelling in-flight jobs")
		p.cancelActive()
		p.wg.Wait()
	}
	return nil
}

// dispatchLoop claims and executes jobs for one queue. Local slots bound
// in-process concurrency; the store's active count bounds it across
// processes.
func (p *Pool) dispatchLoop(queueName string, concurrency int) {
	defer p.wg.Done()

	slots := make(chan struct{}, concurrency)
	var execWg sync.WaitGroup
	defer execWg.Wait()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		if p.paused.Load() {
			p.sleep()
			continue
		}

		select {
		case slots <- struct{}{}:
		case <-p.stopCh:
			return
		}

		active, err := p.store.ActiveCount(context.Background(), queueName)
		if err != nil {
			p.logger.Error("active count error",
				slog.String("queue", queueName),
				slog.String("error", err.Error()),
			)
			<-slots
			p.sleep()
			continue
		}
		if active >= int64(concurrency) {
			<-slots
			p.sleep()
			continue
		}

		j, err := p.store.PopNext(context.Background(), queueName, p.pollInterval)
		if err != nil {
			p.logger.Error("pop error",
				slog.String("queue", queueName),
				slog.String("error", err.Error()),
			)
			<-slots
			p.sleep()
			continue
		}
		if j == nil {
			<-slots
			p.promoteDue(queueName)
			continue
		}

		p.waitTurn(queueName)

		p.hooks.EmitJobStarted(context.Background(), j)

		execWg.Add(1)
		go func(j *job.Job) {
			defer execWg.Done()
			defer func() { <-slots }()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			p.track(j.ID.String(), cancel)
			defer p.untrack(j.ID.String())

			if execErr := p.executor.Execute(ctx, j); execErr != nil {
				p.logger.Debug("job execution failed",
					slog.String("job_id", j.ID.String()),
					slog.String("queue", j.Queue),
					slog.String("error", execErr.Error()),
				)
			}
		}(j)
	}
}

// waitTurn blocks until the queue's rate limiter grants a token. One
// token is consumed per claimed job; empty polls never touch the
// bucket, so an idle stretch leaves the full burst available. Stop
// interrupts the wait and lets the claimed job run in the drain.
func (p *Pool) waitTurn(queueName string) {
	for !p.queues.Allow(queueName) {
		select {
		case <-p.stopCh:
			return
		case <-time.After(p.pollInterval):
		}
	}
}

// promoteDue moves due delayed entries into ready structures after an
// empty fetch, so the next pop can claim them without waiting for a
// scheduler tick.
func (p *Pool) promoteDue(queueName string) {
	cfg, ok := p.queues.Get(queueName)
	if !ok {
		return
	}
	if _, err := p.store.PromoteDue(context.Background(), queueName, time.Now().UTC(), cfg.PriorityEnabled); err != nil {
		p.logger.Error("delayed promotion failed",
			slog.String("queue", queueName),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Pool) sleep() {
	select {
	case <-time.After(p.pollInterval):
	case <-p.stopCh:
	}
}

func (p *Pool) track(jobID string, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.active[jobID] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrack(jobID string) {
	p.activeMu.Lock()
	delete(p.active, jobID)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActive() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for jobID, cancel := range p.active {
		p.logger.Warn("cancelling in-flight job", slog.String("job_id", jobID))
		cancel()
	}
}
