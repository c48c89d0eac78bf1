package dlq

import (
	"context"
	"time"

	"github.com/rickicode/MikrotikBilling-sub003/id"
)

// ListOpts controls pagination and filtering for dead-letter queries.
type ListOpts struct {
	// Limit is the maximum number of entries to return. Zero means no limit.
	Limit int
	// Offset is the number of entries to skip.
	Offset int
	// Queue filters by queue name. Empty means all queues.
	Queue string
}

// Store defines the persistence contract for the dead-letter queue.
type Store interface {
	// PushDLQ appends an entry to its queue's dead-letter list.
	PushDLQ(ctx context.Context, entry *Entry) error

	// ListDLQ returns entries matching the given options, oldest first.
	ListDLQ(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// GetDLQ retrieves an entry by ID.
	GetDLQ(ctx context.Context, entryID id.DLQID) (*Entry, error)

	// MarkReplayed records that an entry was replayed. The re-admission
	// itself happens at the service layer.
	MarkReplayed(ctx context.Context, entryID id.DLQID) error

	// PurgeDLQ removes entries dead-lettered before the given time.
	// Returns the number removed.
	PurgeDLQ(ctx context.Context, before time.Time) (int64, error)

	// CountDLQ returns the number of dead-letter entries for the queue,
	// or across all queues when queue is empty.
	CountDLQ(ctx context.Context, queue string) (int64, error)
}
