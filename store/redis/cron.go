package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	jobq "github.com/rickicode/MikrotikBilling-sub003"
	"github.com/rickicode/MikrotikBilling-sub003/cron"
	"github.com/rickicode/MikrotikBilling-sub003/id"
)

// RegisterSched stores the definition as a Hash and indexes its ID.
func (s *Store) RegisterSched(ctx context.Context, def *cron.Definition) error {
	dID := def.ID.String()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, schedKey(dID), schedToMap(def))
	pipe.SAdd(ctx, schedIDsKey, dID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("jobq/redis: register sched: %w", err)
	}
	return nil
}

// GetSched retrieves a definition by ID.
func (s *Store) GetSched(ctx context.Context, schedID id.SchedID) (*cron.Definition, error) {
	return s.getSchedByKey(ctx, schedKey(schedID.String()))
}

// ListScheds returns all definitions ordered by ID.
func (s *Store) ListScheds(ctx context.Context) ([]*cron.Definition, error) {
	ids, err := s.client.SMembers(ctx, schedIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("jobq/redis: list scheds smembers: %w", err)
	}
	sort.Strings(ids)

	defs := make([]*cron.Definition, 0, len(ids))
	for _, dID := range ids {
		def, getErr := s.getSchedByKey(ctx, schedKey(dID))
		if getErr != nil {
			continue // skip missing
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// UpdateSched persists changes to a definition.
func (s *Store) UpdateSched(ctx context.Context, def *cron.Definition) error {
	key := schedKey(def.ID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("jobq/redis: update sched exists: %w", err)
	}
	if exists == 0 {
		return jobq.ErrSchedNotFound
	}

	fields := schedToMap(def)
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	if _, err := s.client.HSet(ctx, key, fields).Result(); err != nil {
		return fmt.Errorf("jobq/redis: update sched: %w", err)
	}
	return nil
}

// DeleteSched removes a definition by ID.
func (s *Store) DeleteSched(ctx context.Context, schedID id.SchedID) error {
	dID := schedID.String()

	exists, err := s.client.Exists(ctx, schedKey(dID)).Result()
	if err != nil {
		return fmt.Errorf("jobq/redis: delete sched exists: %w", err)
	}
	if exists == 0 {
		return jobq.ErrSchedNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, schedKey(dID))
	pipe.SRem(ctx, schedIDsKey, dID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("jobq/redis: delete sched: %w", err)
	}
	return nil
}

// CountScheds returns the number of definitions for the queue, or across
// all queues when queue is empty.
func (s *Store) CountScheds(ctx context.Context, queue string) (int64, error) {
	if queue == "" {
		n, err := s.client.SCard(ctx, schedIDsKey).Result()
		if err != nil {
			return 0, fmt.Errorf("jobq/redis: count scheds: %w", err)
		}
		return n, nil
	}

	ids, err := s.client.SMembers(ctx, schedIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("jobq/redis: count scheds smembers: %w", err)
	}
	var count int64
	for _, dID := range ids {
		q, hErr := s.client.HGet(ctx, schedKey(dID), "queue").Result()
		if hErr != nil {
			continue
		}
		if q == queue {
			count++
		}
	}
	return count, nil
}

// ── helpers ──

func schedToMap(def *cron.Definition) map[string]interface{} {
	m := map[string]interface{}{
		"id":           def.ID.String(),
		"queue":        def.Queue,
		"spec":         def.Spec,
		"payload":      string(def.Payload),
		"priority":     strconv.Itoa(def.Priority),
		"max_attempts": strconv.Itoa(def.MaxAttempts),
		"timeout":      strconv.FormatInt(int64(def.Timeout), 10),
		"enabled":      strconv.FormatBool(def.Enabled),
		"created_at":   def.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":   def.UpdatedAt.Format(time.RFC3339Nano),
	}
	if def.LastRunAt != nil {
		m["last_run_at"] = def.LastRunAt.Format(time.RFC3339Nano)
	}
	if def.NextRunAt != nil {
		m["next_run_at"] = def.NextRunAt.Format(time.RFC3339Nano)
	}
	return m
}

func (s *Store) getSchedByKey(ctx context.Context, key string) (*cron.Definition, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("jobq/redis: get sched: %w", err)
	}
	if len(vals) == 0 {
		return nil, jobq.ErrSchedNotFound
	}
	return mapToSched(vals)
}

func mapToSched(m map[string]string) (*cron.Definition, error) {
	dID, err := id.ParseSchedID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("jobq/redis: parse sched id: %w", err)
	}

	priority, _ := strconv.Atoi(m["priority"])           //nolint:errcheck // best-effort parse from trusted Redis data
	maxAttempts, _ := strconv.Atoi(m["max_attempts"])    //nolint:errcheck // best-effort parse from trusted Redis data
	timeout, _ := strconv.ParseInt(m["timeout"], 10, 64) //nolint:errcheck // best-effort parse from trusted Redis data
	enabled, _ := strconv.ParseBool(m["enabled"])        //nolint:errcheck // best-effort parse from trusted Redis data

	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	def := &cron.Definition{
		Entity: jobq.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:          dID,
		Queue:       m["queue"],
		Spec:        m["spec"],
		Payload:     []byte(m["payload"]),
		Priority:    priority,
		MaxAttempts: maxAttempts,
		Timeout:     time.Duration(timeout),
		Enabled:     enabled,
	}

	if v := m["last_run_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		def.LastRunAt = &t
	}
	if v := m["next_run_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		def.NextRunAt = &t
	}
	return def, nil
}
