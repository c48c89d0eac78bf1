// Package depend tracks job-to-job dependency edges and releases blocked
// jobs once every job they wait on has completed.
package depend

import (
	"context"

	"github.com/rickicode/MikrotikBilling-sub003/id"
)

// Store defines the persistence contract for dependency edges. Edges are
// directed dependent → blocker, many-to-many, and removed as blockers
// complete. A dependent is released exactly when its blocker set empties.
type Store interface {
	// AddEdges records that jobID waits on every job in blockers.
	AddEdges(ctx context.Context, jobID id.JobID, blockers []id.JobID) error

	// ResolveCompleted removes the completed job from every dependent's
	// blocker set and returns the IDs of dependents whose sets became
	// empty. Removal and the emptiness check are atomic per dependent.
	ResolveCompleted(ctx context.Context, completed id.JobID) ([]id.JobID, error)

	// Blockers returns the jobs jobID still waits on.
	Blockers(ctx context.Context, jobID id.JobID) ([]id.JobID, error)

	// CountEdges returns the total number of outstanding edges.
	CountEdges(ctx context.Context) (int64, error)
}
