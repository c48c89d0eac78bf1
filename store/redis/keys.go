package redis

// Redis key naming conventions for jobq data.
// All keys are prefixed with "jobq:" to avoid collisions.

const keyPrefix = "jobq:"

// ── Job keys ──

// jobKey returns the key for a job record: jobq:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// seqKey is the counter assigning admission sequence numbers.
const seqKey = keyPrefix + "seq"

// ── Per-queue structure keys ──

// readyKey returns the FIFO ready List: jobq:{queue}:ready
func readyKey(queue string) string { return keyPrefix + queue + ":ready" }

// priorityKey returns the priority Sorted Set: jobq:{queue}:priority
func priorityKey(queue string) string { return keyPrefix + queue + ":priority" }

// delayedKey returns the delayed Sorted Set scored by run time:
// jobq:{queue}:delayed
func delayedKey(queue string) string { return keyPrefix + queue + ":delayed" }

// activeKey returns the Set of currently executing job IDs:
// jobq:{queue}:active
func activeKey(queue string) string { return keyPrefix + queue + ":active" }

// completedKey returns the bounded completed Sorted Set scored by finish
// time: jobq:{queue}:completed
func completedKey(queue string) string { return keyPrefix + queue + ":completed" }

// dedupKey returns the per-queue dedup claim key, written SET NX EX:
// jobq:dedup:{queue}:{key}
func dedupKey(queue, key string) string { return keyPrefix + "dedup:" + queue + ":" + key }

// ── Scheduled definition keys ──

// schedKey returns the key for a definition record: jobq:sched:{id}
func schedKey(id string) string { return keyPrefix + "sched:" + id }

// schedIDsKey is the Set tracking all definition IDs for enumeration.
const schedIDsKey = keyPrefix + "sched_ids"

// ── DLQ keys ──

// dlqKey returns the key for a dead-letter record: jobq:dlq:{id}
func dlqKey(id string) string { return keyPrefix + "dlq:" + id }

// dlqIDsKey is the List of dead-letter entry IDs in arrival order.
const dlqIDsKey = keyPrefix + "dlq_ids"

// dlqQueueKey returns the per-queue Set of dead-letter entry IDs:
// jobq:{queue}:dead
func dlqQueueKey(queue string) string { return keyPrefix + queue + ":dead" }

// ── Dependency keys ──

// depsKey returns the Set of blockers a job still waits on:
// jobq:deps:{id}
func depsKey(id string) string { return keyPrefix + "deps:" + id }

// rdepsKey returns the reverse Set of dependents waiting on a job:
// jobq:rdeps:{id}
func rdepsKey(id string) string { return keyPrefix + "rdeps:" + id }

// depEdgesKey is the counter of outstanding dependency edges.
const depEdgesKey = keyPrefix + "dep_edges"
