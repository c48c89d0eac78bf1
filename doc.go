// Package jobq provides a background job queue and scheduling engine
// backed by a shared ordered store. It offers named queues with bounded
// concurrency, priority and FIFO dispatch, delayed and cron-scheduled
// jobs, deduplication, job-to-job dependencies, retry with backoff, and
// dead-lettering.
//
// jobq is a library, not a service. Configure a store, create queues,
// register a processor per queue, and admit jobs:
//
//	eng, err := engine.New(store, engine.WithLogger(logger))
//	eng.CreateQueue(ctx, "invoices", queue.Config{Concurrency: 4})
//	eng.Process(ctx, "invoices", job.ProcessorFunc(handleInvoice))
//	eng.Add(ctx, "invoices", payload, job.WithPriority(5))
//
// Delivery is at-least-once: processors must be idempotent. All
// cross-worker coordination happens through atomic store primitives, so
// multiple processes may run dispatch loops against the same store.
//
// Entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package jobq
