package cron

import (
	"context"

	"github.com/rickicode/MikrotikBilling-sub003/id"
)

// Store defines the persistence contract for scheduled definitions.
type Store interface {
	// RegisterSched persists a new definition.
	RegisterSched(ctx context.Context, def *Definition) error

	// GetSched retrieves a definition by ID.
	GetSched(ctx context.Context, schedID id.SchedID) (*Definition, error)

	// ListScheds returns all definitions.
	ListScheds(ctx context.Context) ([]*Definition, error)

	// UpdateSched persists changes to a definition (LastRunAt,
	// NextRunAt, Enabled).
	UpdateSched(ctx context.Context, def *Definition) error

	// DeleteSched removes a definition by ID.
	DeleteSched(ctx context.Context, schedID id.SchedID) error

	// CountScheds returns the number of definitions for the queue, or
	// across all queues when queue is empty.
	CountScheds(ctx context.Context, queue string) (int64, error)
}
