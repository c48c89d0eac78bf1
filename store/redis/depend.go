package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/rickicode/MikrotikBilling-sub003/id"
)

// AddEdges records that jobID waits on every job in blockers, maintaining
// both the forward and reverse Sets plus the global edge counter.
func (s *Store) AddEdges(ctx context.Context, jobID id.JobID, blockers []id.JobID) error {
	if len(blockers) == 0 {
		return nil
	}
	depID := jobID.String()

	pipe := s.client.TxPipeline()
	added := make([]*goredis.IntCmd, 0, len(blockers))
	for _, b := range blockers {
		bID := b.String()
		added = append(added, pipe.SAdd(ctx, depsKey(depID), bID))
		pipe.SAdd(ctx, rdepsKey(bID), depID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("jobq/redis: add edges: %w", err)
	}

	var newEdges int64
	for _, cmd := range added {
		newEdges += cmd.Val()
	}
	if newEdges > 0 {
		if err := s.client.IncrBy(ctx, depEdgesKey, newEdges).Err(); err != nil {
			return fmt.Errorf("jobq/redis: add edges counter: %w", err)
		}
	}
	return nil
}

// ResolveCompleted removes the completed job from every dependent's
// blocker Set and returns the dependents whose Sets became empty. The
// removal and emptiness check run in one transaction per dependent.
func (s *Store) ResolveCompleted(ctx context.Context, completed id.JobID) ([]id.JobID, error) {
	bID := completed.String()

	dependents, err := s.client.SMembers(ctx, rdepsKey(bID)).Result()
	if err != nil {
		return nil, fmt.Errorf("jobq/redis: resolve rdeps: %w", err)
	}
	if len(dependents) == 0 {
		return nil, nil
	}
	if err := s.client.Del(ctx, rdepsKey(bID)).Err(); err != nil {
		return nil, fmt.Errorf("jobq/redis: resolve del rdeps: %w", err)
	}

	var released []id.JobID
	for _, depID := range dependents {
		pipe := s.client.TxPipeline()
		removed := pipe.SRem(ctx, depsKey(depID), bID)
		remaining := pipe.SCard(ctx, depsKey(depID))
		if _, pErr := pipe.Exec(ctx); pErr != nil {
			return released, fmt.Errorf("jobq/redis: resolve srem: %w", pErr)
		}

		if removed.Val() > 0 {
			if dErr := s.client.Decr(ctx, depEdgesKey).Err(); dErr != nil {
				return released, fmt.Errorf("jobq/redis: resolve counter: %w", dErr)
			}
		}
		if remaining.Val() != 0 {
			continue
		}
		depJobID, pErr := id.ParseJobID(depID)
		if pErr != nil {
			continue
		}
		released = append(released, depJobID)
	}
	return released, nil
}

// Blockers returns the jobs jobID still waits on.
func (s *Store) Blockers(ctx context.Context, jobID id.JobID) ([]id.JobID, error) {
	members, err := s.client.SMembers(ctx, depsKey(jobID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("jobq/redis: blockers: %w", err)
	}

	blockers := make([]id.JobID, 0, len(members))
	for _, m := range members {
		bID, pErr := id.ParseJobID(m)
		if pErr != nil {
			continue
		}
		blockers = append(blockers, bID)
	}
	return blockers, nil
}

// CountEdges returns the total number of outstanding edges.
func (s *Store) CountEdges(ctx context.Context) (int64, error) {
	n, err := s.client.Get(ctx, depEdgesKey).Int64()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("jobq/redis: count edges: %w", err)
	}
	return n, nil
}
