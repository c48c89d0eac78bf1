// Package stats aggregates queue observability data: authoritative
// structure sizes read from the shared store, plus process-local
// execution counters. Per the coordination model, the local counters are
// a cache for timings and rates only — never a source of truth for
// queue state across processes.
package stats

import (
	"sync"
	"time"
)

// QueueStats is the observability snapshot for one queue.
type QueueStats struct {
	Queue        string `json:"queue"`
	Waiting      int64  `json:"waiting"`
	Active       int64  `json:"active"`
	Delayed      int64  `json:"delayed"`
	Completed    int64  `json:"completed"`
	Dead         int64  `json:"dead"`
	Scheduled    int64  `json:"scheduled"`
	Dependencies int64  `json:"dependencies"`
	Concurrency  int    `json:"concurrency"`

	Metrics ExecMetrics `json:"metrics"`
}

// ExecMetrics holds process-local execution counters for one queue.
type ExecMetrics struct {
	Processed    int64         `json:"processed"`
	Failed       int64         `json:"failed"`
	Retried      int64         `json:"retried"`
	DeadLettered int64         `json:"dead_lettered"`
	Shed         int64         `json:"shed"`
	AvgDuration  time.Duration `json:"avg_duration"`
}

// queueCounters accumulates raw counters for one queue.
type queueCounters struct {
	processed    int64
	failed       int64
	retried      int64
	deadLettered int64
	shed         int64
	durationSum  time.Duration
}

// Collector accumulates per-queue execution metrics for this process.
// It is safe for concurrent use.
type Collector struct {
	mu     sync.Mutex
	queues map[string]*queueCounters
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{queues: make(map[string]*queueCounters)}
}

func (c *Collector) counters(queue string) *queueCounters {
	qc, ok := c.queues[queue]
	if !ok {
		qc = &queueCounters{}
		c.queues[queue] = qc
	}
	return qc
}

// JobProcessed records a successful execution and its duration.
func (c *Collector) JobProcessed(queue string, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	qc := c.counters(queue)
	qc.processed++
	qc.durationSum += elapsed
}

// JobFailed records a failed attempt (retried or not).
func (c *Collector) JobFailed(queue string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters(queue).failed++
}

// JobRetried records a retry re-queue.
func (c *Collector) JobRetried(queue string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters(queue).retried++
}

// JobDeadLettered records a terminal failure.
func (c *Collector) JobDeadLettered(queue string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters(queue).deadLettered++
}

// JobShed records a queue-overflow eviction.
func (c *Collector) JobShed(queue string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters(queue).shed++
}

// Snapshot returns the execution metrics accumulated for the queue.
func (c *Collector) Snapshot(queue string) ExecMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	qc, ok := c.queues[queue]
	if !ok {
		return ExecMetrics{}
	}
	m := ExecMetrics{
		Processed:    qc.processed,
		Failed:       qc.failed,
		Retried:      qc.retried,
		DeadLettered: qc.deadLettered,
		Shed:         qc.shed,
	}
	if qc.processed > 0 {
		m.AvgDuration = qc.durationSum / time.Duration(qc.processed)
	}
	return m
}
