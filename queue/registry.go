package queue

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/rickicode/MikrotikBilling-sub003/backoff"
)

// state tracks the process-local runtime state for a single queue.
type state struct {
	config  Config
	retry   backoff.Strategy
	limiter *rate.Limiter
}

// Registry holds per-queue configuration for the process. It is safe for
// concurrent use. Registration is idempotent: the first Create wins and
// later calls return the existing config unchanged.
type Registry struct {
	mu     sync.RWMutex
	queues map[string]*state
}

// NewRegistry creates an empty queue registry.
func NewRegistry() *Registry {
	return &Registry{queues: make(map[string]*state)}
}

// Create registers a queue, merging defaults over unset fields of cfg.
// If the queue already exists its registered config is returned and cfg
// is ignored.
func (r *Registry) Create(name string, cfg Config) (Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.queues[name]; ok {
		return existing.config, nil
	}

	cfg.Name = name
	cfg = cfg.withDefaults()

	retry, err := backoff.New(cfg.Retry.Strategy, cfg.Retry.Base, cfg.Retry.Cap)
	if err != nil {
		return Config{}, err
	}

	st := &state{config: cfg, retry: retry}
	if cfg.RateLimit > 0 {
		st.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	r.queues[name] = st
	return cfg, nil
}

// Get returns the config for a registered queue.
func (r *Registry) Get(name string) (Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.queues[name]
	if !ok {
		return Config{}, false
	}
	return st.config, true
}

// Backoff returns the queue's retry strategy, or the engine default when
// the queue is unknown.
func (r *Registry) Backoff(name string) backoff.Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if st, ok := r.queues[name]; ok {
		return st.retry
	}
	return backoff.DefaultStrategy()
}

// Allow checks the queue's rate limiter. Queues without a limit always
// pass. Dispatch loops call this before executing a dequeued job.
func (r *Registry) Allow(name string) bool {
	r.mu.RLock()
	st, ok := r.queues[name]
	r.mu.RUnlock()
	if !ok || st.limiter == nil {
		return true
	}
	return st.limiter.Allow()
}

// Names returns all registered queue names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.queues))
	for name := range r.queues {
		names = append(names, name)
	}
	return names
}
