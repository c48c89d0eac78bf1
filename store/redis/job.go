package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	jobq "github.com/rickicode/MikrotikBilling-sub003"
	"github.com/rickicode/MikrotikBilling-sub003/id"
	"github.com/rickicode/MikrotikBilling-sub003/job"
)

// CreateJob stores the job record as a Hash and assigns its admission
// sequence number from a shared counter.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := jobKey(jID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("jobq/redis: create check exists: %w", err)
	}
	if exists > 0 {
		return jobq.ErrJobExists
	}

	seq, err := s.client.Incr(ctx, seqKey).Result()
	if err != nil {
		return fmt.Errorf("jobq/redis: create assign seq: %w", err)
	}
	j.Seq = seq

	if _, err := s.client.HSet(ctx, key, jobToMap(j)).Result(); err != nil {
		return fmt.Errorf("jobq/redis: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return s.getJobByKey(ctx, jobKey(jobID.String()))
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	key := jobKey(j.ID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("jobq/redis: update job exists: %w", err)
	}
	if exists == 0 {
		return jobq.ErrJobNotFound
	}

	fields := jobToMap(j)
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	if _, err := s.client.HSet(ctx, key, fields).Result(); err != nil {
		return fmt.Errorf("jobq/redis: update job: %w", err)
	}
	return nil
}

// DeleteJob removes a job record and any structure memberships.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	jID := jobID.String()
	key := jobKey(jID)

	// Get queue name before deleting to clear structure memberships.
	q, err := s.client.HGet(ctx, key, "queue").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return jobq.ErrJobNotFound
		}
		return fmt.Errorf("jobq/redis: delete job get queue: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.LRem(ctx, readyKey(q), 0, jID)
	pipe.ZRem(ctx, priorityKey(q), jID)
	pipe.ZRem(ctx, delayedKey(q), jID)
	pipe.SRem(ctx, activeKey(q), jID)
	pipe.ZRem(ctx, completedKey(q), jID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("jobq/redis: delete job: %w", err)
	}
	return nil
}

// PushReady appends the job to the tail of the FIFO ready List.
func (s *Store) PushReady(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	j.State = job.StateWaiting

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, jobKey(jID),
		"state", string(job.StateWaiting),
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	)
	pipe.RPush(ctx, readyKey(j.Queue), jID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("jobq/redis: push ready: %w", err)
	}
	return nil
}

// PushPriority inserts the job into the priority Sorted Set.
func (s *Store) PushPriority(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	j.State = job.StateWaiting

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, jobKey(jID),
		"state", string(job.StateWaiting),
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	)
	pipe.ZAdd(ctx, priorityKey(j.Queue), goredis.Z{Score: prioScore(j.Priority, j.Seq), Member: jID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("jobq/redis: push priority: %w", err)
	}
	return nil
}

// PushDelayed inserts the job into the delayed Sorted Set scored by runAt.
func (s *Store) PushDelayed(ctx context.Context, j *job.Job, runAt time.Time) error {
	jID := j.ID.String()
	j.State = job.StateWaiting
	j.RunAt = runAt

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, jobKey(jID),
		"state", string(job.StateWaiting),
		"run_at", runAt.UTC().Format(time.RFC3339Nano),
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	)
	pipe.ZAdd(ctx, delayedKey(j.Queue), goredis.Z{Score: float64(runAt.UnixMilli()), Member: jID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("jobq/redis: push delayed: %w", err)
	}
	return nil
}

// PopNext claims the next dispatchable job: lowest-score member of the
// priority set first (higher priority = lower score), otherwise BLPOP on
// the ready List up to wait.
//
// A priority job arriving while BLPOP is parked is picked up on the next
// call; wait bounds the staleness.
func (s *Store) PopNext(ctx context.Context, queue string, wait time.Duration) (*job.Job, error) {
	members, err := s.client.ZPopMin(ctx, priorityKey(queue), 1).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("jobq/redis: pop priority: %w", err)
	}
	if len(members) > 0 {
		jID, ok := members[0].Member.(string)
		if !ok {
			return nil, nil
		}
		return s.claimJob(ctx, queue, jID)
	}

	vals, err := s.client.BLPop(ctx, wait, readyKey(queue)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil // timed out empty
		}
		return nil, fmt.Errorf("jobq/redis: pop ready: %w", err)
	}
	if len(vals) < 2 {
		return nil, nil
	}
	return s.claimJob(ctx, queue, vals[1])
}

// claimJob marks a popped job active and returns the record.
func (s *Store) claimJob(ctx context.Context, queue, jID string) (*job.Job, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, activeKey(queue), jID)
	pipe.HSet(ctx, jobKey(jID),
		"state", string(job.StateActive),
		"started_at", now,
		"updated_at", now,
	)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("jobq/redis: claim job: %w", err)
	}
	return s.getJobByKey(ctx, jobKey(jID))
}

// PromoteDue moves due delayed entries into the ready List or the
// priority Sorted Set.
func (s *Store) PromoteDue(ctx context.Context, queue string, now time.Time, priorityEnabled bool) (int, error) {
	due, err := s.client.ZRangeByScore(ctx, delayedKey(queue), &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("jobq/redis: promote range: %w", err)
	}

	promoted := 0
	for _, jID := range due {
		// ZRem guards against a concurrent scheduler promoting the same
		// entry: only the remover pushes.
		removed, remErr := s.client.ZRem(ctx, delayedKey(queue), jID).Result()
		if remErr != nil {
			return promoted, fmt.Errorf("jobq/redis: promote zrem: %w", remErr)
		}
		if removed == 0 {
			continue
		}

		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue // record vanished
		}
		if priorityEnabled && j.Priority != 0 {
			err = s.client.ZAdd(ctx, priorityKey(queue), goredis.Z{
				Score: prioScore(j.Priority, j.Seq), Member: jID,
			}).Err()
		} else {
			err = s.client.RPush(ctx, readyKey(queue), jID).Err()
		}
		if err != nil {
			return promoted, fmt.Errorf("jobq/redis: promote push: %w", err)
		}
		promoted++
	}
	return promoted, nil
}

// TrimReady evicts the oldest ready entries beyond max and marks them dead.
func (s *Store) TrimReady(ctx context.Context, queue string, max int) ([]*job.Job, error) {
	if max <= 0 {
		return nil, nil
	}

	length, err := s.client.LLen(ctx, readyKey(queue)).Result()
	if err != nil {
		return nil, fmt.Errorf("jobq/redis: trim llen: %w", err)
	}

	var evicted []*job.Job
	for length > int64(max) {
		jID, popErr := s.client.LPop(ctx, readyKey(queue)).Result()
		if popErr != nil {
			if errors.Is(popErr, goredis.Nil) {
				break
			}
			return evicted, fmt.Errorf("jobq/redis: trim lpop: %w", popErr)
		}
		length--

		if hErr := s.client.HSet(ctx, jobKey(jID),
			"state", string(job.StateDead),
			"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
		).Err(); hErr != nil {
			return evicted, fmt.Errorf("jobq/redis: trim mark dead: %w", hErr)
		}
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		evicted = append(evicted, j)
	}
	return evicted, nil
}

// CompleteJob marks the job completed, clears its active membership, and
// records it in the bounded completed Sorted Set.
func (s *Store) CompleteJob(ctx context.Context, j *job.Job, retention int) error {
	jID := j.ID.String()
	now := time.Now().UTC()
	finished := now
	if j.FinishedAt != nil {
		finished = *j.FinishedAt
	}
	j.State = job.StateCompleted
	j.FinishedAt = &finished

	pipe := s.client.TxPipeline()
	pipe.SRem(ctx, activeKey(j.Queue), jID)
	if retention > 0 {
		fields := jobToMap(j)
		fields["updated_at"] = now.Format(time.RFC3339Nano)
		pipe.HSet(ctx, jobKey(jID), fields)
		pipe.ZAdd(ctx, completedKey(j.Queue), goredis.Z{
			Score: float64(finished.UnixMilli()), Member: jID,
		})
	} else {
		pipe.Del(ctx, jobKey(jID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("jobq/redis: complete job: %w", err)
	}
	if retention > 0 {
		return s.trimCompleted(ctx, j.Queue, retention)
	}
	return nil
}

// trimCompleted drops the oldest completed entries beyond retention,
// deleting their records.
func (s *Store) trimCompleted(ctx context.Context, queue string, retention int) error {
	card, err := s.client.ZCard(ctx, completedKey(queue)).Result()
	if err != nil {
		return fmt.Errorf("jobq/redis: trim completed zcard: %w", err)
	}
	excess := card - int64(retention)
	if excess <= 0 {
		return nil
	}

	old, err := s.client.ZRange(ctx, completedKey(queue), 0, excess-1).Result()
	if err != nil {
		return fmt.Errorf("jobq/redis: trim completed zrange: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByRank(ctx, completedKey(queue), 0, excess-1)
	for _, jID := range old {
		pipe.Del(ctx, jobKey(jID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("jobq/redis: trim completed: %w", err)
	}
	return nil
}

// ClearActive removes the job from the active Set without completing it.
func (s *Store) ClearActive(ctx context.Context, queue string, jobID id.JobID) error {
	if err := s.client.SRem(ctx, activeKey(queue), jobID.String()).Err(); err != nil {
		return fmt.Errorf("jobq/redis: clear active: %w", err)
	}
	return nil
}

// ActiveCount returns the number of active jobs for the queue across all
// processes.
func (s *Store) ActiveCount(ctx context.Context, queue string) (int64, error) {
	n, err := s.client.SCard(ctx, activeKey(queue)).Result()
	if err != nil {
		return 0, fmt.Errorf("jobq/redis: active count: %w", err)
	}
	return n, nil
}

// ClaimDedup records the dedup key via SET NX EX so expiry is
// server-driven. Returns false when the key is already live.
func (s *Store) ClaimDedup(ctx context.Context, queue, key string, window time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, dedupKey(queue, key), "1", window).Result()
	if err != nil {
		return false, fmt.Errorf("jobq/redis: claim dedup: %w", err)
	}
	return ok, nil
}

// ReleaseDedup drops a dedup claim before its window expires.
func (s *Store) ReleaseDedup(ctx context.Context, queue, key string) error {
	if err := s.client.Del(ctx, dedupKey(queue, key)).Err(); err != nil {
		return fmt.Errorf("jobq/redis: release dedup: %w", err)
	}
	return nil
}

// QueueCounts returns the per-structure sizes for the queue.
func (s *Store) QueueCounts(ctx context.Context, queue string) (job.Counts, error) {
	pipe := s.client.TxPipeline()
	ready := pipe.LLen(ctx, readyKey(queue))
	priority := pipe.ZCard(ctx, priorityKey(queue))
	delayed := pipe.ZCard(ctx, delayedKey(queue))
	active := pipe.SCard(ctx, activeKey(queue))
	completed := pipe.ZCard(ctx, completedKey(queue))
	dead := pipe.SCard(ctx, dlqQueueKey(queue))
	if _, err := pipe.Exec(ctx); err != nil {
		return job.Counts{}, fmt.Errorf("jobq/redis: queue counts: %w", err)
	}
	return job.Counts{
		Ready:     ready.Val(),
		Priority:  priority.Val(),
		Delayed:   delayed.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Dead:      dead.Val(),
	}, nil
}

// ── helpers ──

// prioScore computes a priority-set score. Lower score pops first, so
// priority is negated; the sequence fraction keeps FIFO order within
// equal priority.
func prioScore(priority int, seq int64) float64 {
	return float64(-priority) + float64(seq)/1e15
}

func jobToMap(j *job.Job) map[string]interface{} {
	m := map[string]interface{}{
		"id":           j.ID.String(),
		"queue":        j.Queue,
		"payload":      string(j.Payload),
		"state":        string(j.State),
		"priority":     strconv.Itoa(j.Priority),
		"dedup_key":    j.DedupKey,
		"attempts":     strconv.Itoa(j.Attempts),
		"max_attempts": strconv.Itoa(j.MaxAttempts),
		"timeout":      strconv.FormatInt(int64(j.Timeout), 10),
		"seq":          strconv.FormatInt(j.Seq, 10),
		"progress":     strconv.Itoa(j.Progress),
		"last_error":   j.LastError,
		"created_at":   j.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":   j.UpdatedAt.Format(time.RFC3339Nano),
	}
	if !j.RunAt.IsZero() {
		m["run_at"] = j.RunAt.Format(time.RFC3339Nano)
	}
	if len(j.Dependencies) > 0 {
		deps := make([]string, len(j.Dependencies))
		for i, d := range j.Dependencies {
			deps[i] = d.String()
		}
		m["dependencies"] = marshalJSON(deps)
	}
	if j.StartedAt != nil {
		m["started_at"] = j.StartedAt.Format(time.RFC3339Nano)
	}
	if j.FinishedAt != nil {
		m["finished_at"] = j.FinishedAt.Format(time.RFC3339Nano)
	}
	return m
}

func (s *Store) getJobByKey(ctx context.Context, key string) (*job.Job, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("jobq/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, jobq.ErrJobNotFound
	}
	return mapToJob(vals)
}

func mapToJob(m map[string]string) (*job.Job, error) {
	jID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("jobq/redis: parse job id: %w", err)
	}

	priority, _ := strconv.Atoi(m["priority"])           //nolint:errcheck // best-effort parse from trusted Redis data
	attempts, _ := strconv.Atoi(m["attempts"])           //nolint:errcheck // best-effort parse from trusted Redis data
	maxAttempts, _ := strconv.Atoi(m["max_attempts"])    //nolint:errcheck // best-effort parse from trusted Redis data
	timeout, _ := strconv.ParseInt(m["timeout"], 10, 64) //nolint:errcheck // best-effort parse from trusted Redis data
	seq, _ := strconv.ParseInt(m["seq"], 10, 64)         //nolint:errcheck // best-effort parse from trusted Redis data
	progress, _ := strconv.Atoi(m["progress"])           //nolint:errcheck // best-effort parse from trusted Redis data

	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	j := &job.Job{
		Entity: jobq.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:          jID,
		Queue:       m["queue"],
		Payload:     []byte(m["payload"]),
		State:       job.State(m["state"]),
		Priority:    priority,
		DedupKey:    m["dedup_key"],
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
		Timeout:     time.Duration(timeout),
		Seq:         seq,
		Progress:    progress,
		LastError:   m["last_error"],
	}

	if v := m["run_at"]; v != "" {
		j.RunAt, _ = time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	for _, dep := range unmarshalStrings(m["dependencies"]) {
		depID, depErr := id.ParseJobID(dep)
		if depErr != nil {
			continue
		}
		j.Dependencies = append(j.Dependencies, depID)
	}
	if v := m["started_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.StartedAt = &t
	}
	if v := m["finished_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.FinishedAt = &t
	}

	return j, nil
}

// marshalJSON is a helper to marshal to JSON string.
func marshalJSON(v interface{}) string {
	b, _ := json.Marshal(v) //nolint:errcheck // marshal should not fail for basic types
	return string(b)
}

// unmarshalStrings parses a JSON array of strings.
func unmarshalStrings(s string) []string {
	if s == "" || s == "null" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(s), &out) //nolint:errcheck // best-effort parse from trusted Redis data
	return out
}
