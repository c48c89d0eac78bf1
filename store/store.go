// Package store defines the composite persistence contract for the
// engine. Each subsystem (job, dlq, cron, depend) declares its own store
// interface next to its types; a single backend implements all of them.
// The redis backend is the production store; the memory backend serves
// tests and development.
package store

import (
	"context"

	"github.com/rickicode/MikrotikBilling-sub003/cron"
	"github.com/rickicode/MikrotikBilling-sub003/depend"
	"github.com/rickicode/MikrotikBilling-sub003/dlq"
	"github.com/rickicode/MikrotikBilling-sub003/job"
)

// Store is the full persistence contract required by the engine.
type Store interface {
	job.Store
	dlq.Store
	cron.Store
	depend.Store

	// Ping verifies the backend connection is alive.
	Ping(ctx context.Context) error

	// Close releases backend connections.
	Close() error
}
