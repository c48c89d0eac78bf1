package job

import (
	"context"
	"log/slog"
	"sync"

	jobq "github.com/rickicode/MikrotikBilling-sub003"
)

// Processor executes jobs dispatched from one queue. Implementations
// must be idempotent: delivery is at-least-once and a timed-out
// invocation may still run to completion in the background.
type Processor interface {
	Execute(ctx context.Context, j *Job) error
}

// ProcessorFunc adapts a plain function to the Processor interface.
type ProcessorFunc func(ctx context.Context, j *Job) error

// Execute calls f.
func (f ProcessorFunc) Execute(ctx context.Context, j *Job) error { return f(ctx, j) }

// Registry maps queue names to processors. One registration per queue
// per process. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	processors map[string]Processor
}

// NewRegistry creates an empty processor registry.
func NewRegistry() *Registry {
	return &Registry{processors: make(map[string]Processor)}
}

// Register binds a processor to a queue. Registering a second processor
// for the same queue returns ErrProcessorRegistered.
func (r *Registry) Register(queue string, p Processor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.processors[queue]; exists {
		return jobq.ErrProcessorRegistered
	}
	r.processors[queue] = p
	return nil
}

// Get returns the processor bound to the queue.
func (r *Registry) Get(queue string) (Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processors[queue]
	return p, ok
}

// Queues returns all queue names with a registered processor.
func (r *Registry) Queues() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	queues := make([]string, 0, len(r.processors))
	for q := range r.processors {
		queues = append(queues, q)
	}
	return queues
}

// ctxKey is the private type for context values set by the dispatch loop.
type ctxKey int

const (
	loggerKey ctxKey = iota
	progressKey
)

// ContextWithLogger returns a context carrying the per-invocation logger.
func ContextWithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// Logger returns the invocation logger from ctx, or slog.Default().
func Logger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// ProgressFunc reports coarse completion progress (0-100).
type ProgressFunc func(pct int)

// ContextWithProgress returns a context carrying a progress callback.
func ContextWithProgress(ctx context.Context, f ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey, f)
}

// ReportProgress invokes the progress callback from ctx, if any.
func ReportProgress(ctx context.Context, pct int) {
	if f, ok := ctx.Value(progressKey).(ProgressFunc); ok {
		f(pct)
	}
}
