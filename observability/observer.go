// Package observability provides a lifecycle observer that records
// engine-wide counters via OpenTelemetry. Register it with the engine to
// track admission rates, completions, retries, dead-letters, dependency
// releases, overflow shedding, and cron fires — complementing the
// per-execution metrics middleware.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/rickicode/MikrotikBilling-sub003/cron"
	"github.com/rickicode/MikrotikBilling-sub003/hook"
	"github.com/rickicode/MikrotikBilling-sub003/id"
	"github.com/rickicode/MikrotikBilling-sub003/job"
)

// meterName is the instrumentation scope name for lifecycle metrics.
const meterName = "github.com/rickicode/MikrotikBilling-sub003/observability"

// Compile-time interface checks.
var (
	_ hook.Observer     = (*MetricsObserver)(nil)
	_ hook.JobEnqueued  = (*MetricsObserver)(nil)
	_ hook.JobCompleted = (*MetricsObserver)(nil)
	_ hook.JobRetrying  = (*MetricsObserver)(nil)
	_ hook.JobDead      = (*MetricsObserver)(nil)
	_ hook.JobReleased  = (*MetricsObserver)(nil)
	_ hook.QueueFull    = (*MetricsObserver)(nil)
	_ hook.SchedFired   = (*MetricsObserver)(nil)
)

// MetricsObserver records lifecycle counters, each carrying a queue
// attribute.
type MetricsObserver struct {
	enqueued  metric.Int64Counter
	completed metric.Int64Counter
	retried   metric.Int64Counter
	dead      metric.Int64Counter
	released  metric.Int64Counter
	shed      metric.Int64Counter
	fired     metric.Int64Counter
}

// NewMetricsObserver creates a MetricsObserver using the global OTel
// MeterProvider. With no provider configured the instruments are noops.
func NewMetricsObserver() *MetricsObserver {
	return NewMetricsObserverWithMeter(otel.Meter(meterName))
}

// NewMetricsObserverWithMeter creates a MetricsObserver with the
// provided meter. This variant allows injecting a specific MeterProvider
// for testing.
func NewMetricsObserverWithMeter(meter metric.Meter) *MetricsObserver {
	o := &MetricsObserver{}
	// On error the OTel API returns noop instruments, so the observer
	// degrades gracefully.
	o.enqueued, _ = meter.Int64Counter("jobq.job.enqueued",
		metric.WithDescription("Jobs admitted to a queue"))
	o.completed, _ = meter.Int64Counter("jobq.job.completed",
		metric.WithDescription("Jobs finished successfully"))
	o.retried, _ = meter.Int64Counter("jobq.job.retried",
		metric.WithDescription("Failed attempts re-queued with backoff"))
	o.dead, _ = meter.Int64Counter("jobq.job.dead",
		metric.WithDescription("Jobs moved to the dead-letter queue"))
	o.released, _ = meter.Int64Counter("jobq.job.released",
		metric.WithDescription("Blocked jobs released by dependency completion"))
	o.shed, _ = meter.Int64Counter("jobq.job.shed",
		metric.WithDescription("Jobs evicted on queue overflow"))
	o.fired, _ = meter.Int64Counter("jobq.sched.fired",
		metric.WithDescription("Jobs materialized from cron definitions"))
	return o
}

// Name implements hook.Observer.
func (m *MetricsObserver) Name() string { return "observability-metrics" }

func queueAttr(queue string) metric.AddOption {
	return metric.WithAttributes(attribute.String("queue", queue))
}

// OnJobEnqueued implements hook.JobEnqueued.
func (m *MetricsObserver) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	m.enqueued.Add(ctx, 1, queueAttr(j.Queue))
	return nil
}

// OnJobCompleted implements hook.JobCompleted.
func (m *MetricsObserver) OnJobCompleted(ctx context.Context, j *job.Job, _ time.Duration) error {
	m.completed.Add(ctx, 1, queueAttr(j.Queue))
	return nil
}

// OnJobRetrying implements hook.JobRetrying.
func (m *MetricsObserver) OnJobRetrying(ctx context.Context, j *job.Job, _ int, _ time.Time) error {
	m.retried.Add(ctx, 1, queueAttr(j.Queue))
	return nil
}

// OnJobDead implements hook.JobDead.
func (m *MetricsObserver) OnJobDead(ctx context.Context, j *job.Job, _ error) error {
	m.dead.Add(ctx, 1, queueAttr(j.Queue))
	return nil
}

// OnJobReleased implements hook.JobReleased.
func (m *MetricsObserver) OnJobReleased(ctx context.Context, j *job.Job) error {
	m.released.Add(ctx, 1, queueAttr(j.Queue))
	return nil
}

// OnQueueFull implements hook.QueueFull.
func (m *MetricsObserver) OnQueueFull(ctx context.Context, queueName string, _ *job.Job) error {
	m.shed.Add(ctx, 1, queueAttr(queueName))
	return nil
}

// OnSchedFired implements hook.SchedFired.
func (m *MetricsObserver) OnSchedFired(ctx context.Context, def *cron.Definition, _ id.JobID) error {
	m.fired.Add(ctx, 1, queueAttr(def.Queue))
	return nil
}
