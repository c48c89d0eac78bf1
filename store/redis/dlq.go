package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	jobq "github.com/rickicode/MikrotikBilling-sub003"
	"github.com/rickicode/MikrotikBilling-sub003/dlq"
	"github.com/rickicode/MikrotikBilling-sub003/id"
)

// PushDLQ stores the entry as a Hash and indexes it in arrival order and
// per queue.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	eID := entry.ID.String()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, dlqKey(eID), dlqToMap(entry))
	pipe.RPush(ctx, dlqIDsKey, eID)
	pipe.SAdd(ctx, dlqQueueKey(entry.Queue), eID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("jobq/redis: push dlq: %w", err)
	}
	return nil
}

// ListDLQ returns entries matching the given options, oldest first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	ids, err := s.client.LRange(ctx, dlqIDsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("jobq/redis: list dlq lrange: %w", err)
	}

	var entries []*dlq.Entry
	for _, eID := range ids {
		e, getErr := s.getDLQByKey(ctx, dlqKey(eID))
		if getErr != nil {
			continue // skip missing
		}
		if opts.Queue != "" && e.Queue != opts.Queue {
			continue
		}
		entries = append(entries, e)
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(entries) {
			return nil, nil
		}
		entries = entries[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(entries) {
		entries = entries[:opts.Limit]
	}
	return entries, nil
}

// GetDLQ retrieves an entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	return s.getDLQByKey(ctx, dlqKey(entryID.String()))
}

// MarkReplayed records that an entry was replayed.
func (s *Store) MarkReplayed(ctx context.Context, entryID id.DLQID) error {
	key := dlqKey(entryID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("jobq/redis: mark replayed exists: %w", err)
	}
	if exists == 0 {
		return jobq.ErrDLQNotFound
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.client.HSet(ctx, key, "replayed_at", now).Err(); err != nil {
		return fmt.Errorf("jobq/redis: mark replayed: %w", err)
	}
	return nil
}

// PurgeDLQ removes entries dead-lettered before the given time.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	ids, err := s.client.LRange(ctx, dlqIDsKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("jobq/redis: purge dlq lrange: %w", err)
	}

	var removed int64
	for _, eID := range ids {
		e, getErr := s.getDLQByKey(ctx, dlqKey(eID))
		if getErr != nil {
			continue
		}
		if !e.FailedAt.Before(before) {
			continue
		}
		pipe := s.client.TxPipeline()
		pipe.Del(ctx, dlqKey(eID))
		pipe.LRem(ctx, dlqIDsKey, 0, eID)
		pipe.SRem(ctx, dlqQueueKey(e.Queue), eID)
		if _, pErr := pipe.Exec(ctx); pErr != nil {
			return removed, fmt.Errorf("jobq/redis: purge dlq: %w", pErr)
		}
		removed++
	}
	return removed, nil
}

// CountDLQ returns the number of dead-letter entries for the queue, or
// across all queues when queue is empty.
func (s *Store) CountDLQ(ctx context.Context, queue string) (int64, error) {
	var (
		n   int64
		err error
	)
	if queue == "" {
		n, err = s.client.LLen(ctx, dlqIDsKey).Result()
	} else {
		n, err = s.client.SCard(ctx, dlqQueueKey(queue)).Result()
	}
	if err != nil {
		return 0, fmt.Errorf("jobq/redis: count dlq: %w", err)
	}
	return n, nil
}

// ── helpers ──

func dlqToMap(e *dlq.Entry) map[string]interface{} {
	m := map[string]interface{}{
		"id":           e.ID.String(),
		"job_id":       e.JobID.String(),
		"queue":        e.Queue,
		"payload":      string(e.Payload),
		"reason":       string(e.Reason),
		"error":        e.Error,
		"attempts":     strconv.Itoa(e.Attempts),
		"max_attempts": strconv.Itoa(e.MaxAttempts),
		"failed_at":    e.FailedAt.Format(time.RFC3339Nano),
		"created_at":   e.CreatedAt.Format(time.RFC3339Nano),
	}
	if e.ReplayedAt != nil {
		m["replayed_at"] = e.ReplayedAt.Format(time.RFC3339Nano)
	}
	return m
}

func (s *Store) getDLQByKey(ctx context.Context, key string) (*dlq.Entry, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, jobq.ErrDLQNotFound
		}
		return nil, fmt.Errorf("jobq/redis: get dlq: %w", err)
	}
	if len(vals) == 0 {
		return nil, jobq.ErrDLQNotFound
	}
	return mapToDLQ(vals)
}

func mapToDLQ(m map[string]string) (*dlq.Entry, error) {
	eID, err := id.ParseDLQID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("jobq/redis: parse dlq id: %w", err)
	}

	attempts, _ := strconv.Atoi(m["attempts"])        //nolint:errcheck // best-effort parse from trusted Redis data
	maxAttempts, _ := strconv.Atoi(m["max_attempts"]) //nolint:errcheck // best-effort parse from trusted Redis data

	failedAt, _ := time.Parse(time.RFC3339Nano, m["failed_at"])   //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	e := &dlq.Entry{
		ID:          eID,
		Queue:       m["queue"],
		Payload:     []byte(m["payload"]),
		Reason:      dlq.Reason(m["reason"]),
		Error:       m["error"],
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
		FailedAt:    failedAt,
		CreatedAt:   createdAt,
	}

	if jID := m["job_id"]; jID != "" {
		e.JobID, _ = id.ParseJobID(jID) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["replayed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		e.ReplayedAt = &t
	}
	return e, nil
}
