package redis_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	jobq "github.com/rickicode/MikrotikBilling-sub003"
	"github.com/rickicode/MikrotikBilling-sub003/dlq"
	"github.com/rickicode/MikrotikBilling-sub003/id"
	"github.com/rickicode/MikrotikBilling-sub003/job"
	redisstore "github.com/rickicode/MikrotikBilling-sub003/store/redis"
)

// setup connects to the Redis at REDIS_ADDR, skipping when unset. Each
// test gets its own queue name so runs don't interfere.
func setup(t *testing.T) *redisstore.Store {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	client := goredis.NewClient(&goredis.Options{Addr: addr, DB: 15})
	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err() //nolint:errcheck // test cleanup
		_ = client.Close()                             //nolint:errcheck // test cleanup
	})

	s := redisstore.New(client)
	if err := s.Ping(context.Background()); err != nil {
		t.Skipf("redis unreachable at %s: %v", addr, err)
	}
	if err := client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flush test db: %v", err)
	}
	return s
}

func newJob(t *testing.T, s *redisstore.Store, queueName string) *job.Job {
	t.Helper()
	j := &job.Job{
		Entity:      jobq.NewEntity(),
		ID:          id.NewJobID(),
		Queue:       queueName,
		Payload:     []byte(`{"n":1}`),
		State:       job.StateWaiting,
		MaxAttempts: 3,
	}
	if err := s.CreateJob(context.Background(), j); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return j
}

func TestJobRoundTrip(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	j := newJob(t, s, "rt")
	j.Priority = 4
	j.DedupKey = "k"
	j.Dependencies = []id.JobID{id.NewJobID()}
	j.LastError = "boom"
	if err := s.UpdateJob(ctx, j); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Queue != "rt" || got.Priority != 4 || got.DedupKey != "k" || got.LastError != "boom" {
		t.Errorf("round trip lost fields: %+v", got)
	}
	if got.Seq == 0 {
		t.Error("seq not assigned")
	}
	if len(got.Dependencies) != 1 || got.Dependencies[0].String() != j.Dependencies[0].String() {
		t.Errorf("dependencies = %v", got.Dependencies)
	}

	if err := s.CreateJob(ctx, j); !errors.Is(err, jobq.ErrJobExists) {
		t.Errorf("got %v, want ErrJobExists", err)
	}
	if err := s.DeleteJob(ctx, j.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetJob(ctx, j.ID); !errors.Is(err, jobq.ErrJobNotFound) {
		t.Errorf("got %v, want ErrJobNotFound", err)
	}
}

func TestPopOrdering(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	first := newJob(t, s, "ord")
	second := newJob(t, s, "ord")
	for _, j := range []*job.Job{first, second} {
		if err := s.PushReady(ctx, j); err != nil {
			t.Fatalf("push ready: %v", err)
		}
	}
	high := newJob(t, s, "ord")
	high.Priority = 9
	if err := s.PushPriority(ctx, high); err != nil {
		t.Fatalf("push priority: %v", err)
	}

	want := []string{high.ID.String(), first.ID.String(), second.ID.String()}
	for i, w := range want {
		j, err := s.PopNext(ctx, "ord", time.Second)
		if err != nil {
			t.Fatalf("pop %d: %v", i, err)
		}
		if j == nil || j.ID.String() != w {
			t.Fatalf("pop %d: got %v, want %s", i, j, w)
		}
		if j.State != job.StateActive || j.StartedAt == nil {
			t.Errorf("pop %d: not claimed: state=%s", i, j.State)
		}
	}

	empty, err := s.PopNext(ctx, "ord", 100*time.Millisecond)
	if err != nil {
		t.Fatalf("empty pop: %v", err)
	}
	if empty != nil {
		t.Errorf("expected empty pop, got %s", empty.ID)
	}

	if n, err := s.ActiveCount(ctx, "ord"); err != nil || n != 3 {
		t.Errorf("active = %d (%v), want 3", n, err)
	}
}

func TestPromoteAndComplete(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()

	due := newJob(t, s, "pc")
	if err := s.PushDelayed(ctx, due, now.Add(-time.Minute)); err != nil {
		t.Fatalf("push delayed: %v", err)
	}
	future := newJob(t, s, "pc")
	if err := s.PushDelayed(ctx, future, now.Add(time.Hour)); err != nil {
		t.Fatalf("push delayed: %v", err)
	}

	n, err := s.PromoteDue(ctx, "pc", now, false)
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if n != 1 {
		t.Fatalf("promoted = %d, want 1", n)
	}

	claimed, err := s.PopNext(ctx, "pc", time.Second)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if claimed == nil || claimed.ID.String() != due.ID.String() {
		t.Fatalf("got %v, want promoted job", claimed)
	}

	if err := s.CompleteJob(ctx, claimed, 10); err != nil {
		t.Fatalf("complete: %v", err)
	}
	counts, err := s.QueueCounts(ctx, "pc")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Completed != 1 || counts.Active != 0 || counts.Delayed != 1 {
		t.Errorf("counts = %+v", counts)
	}
}

func TestClaimDedup(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	ok, err := s.ClaimDedup(ctx, "dd", "k", time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !ok {
		t.Fatal("first claim should succeed")
	}
	if ok, _ = s.ClaimDedup(ctx, "dd", "k", time.Minute); ok { //nolint:errcheck // trusted test redis
		t.Fatal("second claim inside window should fail")
	}

	if err = s.ReleaseDedup(ctx, "dd", "k"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ = s.ClaimDedup(ctx, "dd", "k", time.Minute); !ok { //nolint:errcheck // trusted test redis
		t.Fatal("claim after release should succeed")
	}
}

func TestDLQRoundTrip(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()

	entry := &dlq.Entry{
		ID:          id.NewDLQID(),
		JobID:       id.NewJobID(),
		Queue:       "dq",
		Payload:     []byte(`{}`),
		Reason:      dlq.ReasonFailed,
		Error:       "boom",
		Attempts:    3,
		MaxAttempts: 3,
		FailedAt:    now,
		CreatedAt:   now,
	}
	if err := s.PushDLQ(ctx, entry); err != nil {
		t.Fatalf("push: %v", err)
	}

	got, err := s.GetDLQ(ctx, entry.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Reason != dlq.ReasonFailed || got.Error != "boom" || got.Queue != "dq" {
		t.Errorf("round trip lost fields: %+v", got)
	}

	if n, err := s.CountDLQ(ctx, "dq"); err != nil || n != 1 {
		t.Errorf("count = %d (%v), want 1", n, err)
	}

	removed, err := s.PurgeDLQ(ctx, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Errorf("purged = %d, want 1", removed)
	}
}

func TestDependEdges(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	dependent := id.NewJobID()
	blockers := []id.JobID{id.NewJobID(), id.NewJobID()}
	if err := s.AddEdges(ctx, dependent, blockers); err != nil {
		t.Fatalf("add edges: %v", err)
	}
	if n, err := s.CountEdges(ctx); err != nil || n != 2 {
		t.Errorf("edges = %d (%v), want 2", n, err)
	}

	released, err := s.ResolveCompleted(ctx, blockers[0])
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(released) != 0 {
		t.Errorf("released early: %v", released)
	}
	released, err = s.ResolveCompleted(ctx, blockers[1])
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(released) != 1 || released[0].String() != dependent.String() {
		t.Errorf("released = %v, want [%s]", released, dependent)
	}
	if n, err := s.CountEdges(ctx); err != nil || n != 0 {
		t.Errorf("edges = %d (%v), want 0", n, err)
	}
}

func TestSeqMonotonic(t *testing.T) {
	s := setup(t)

	var last int64
	for i := range 5 {
		j := newJob(t, s, fmt.Sprintf("seq%d", i))
		if j.Seq <= last {
			t.Fatalf("seq %d after %d", j.Seq, last)
		}
		last = j.Seq
	}
}
