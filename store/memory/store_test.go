package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	jobq "github.com/rickicode/MikrotikBilling-sub003"
	"github.com/rickicode/MikrotikBilling-sub003/cron"
	"github.com/rickicode/MikrotikBilling-sub003/dlq"
	"github.com/rickicode/MikrotikBilling-sub003/id"
	"github.com/rickicode/MikrotikBilling-sub003/job"
	"github.com/rickicode/MikrotikBilling-sub003/store/memory"
)

func newJob(t *testing.T, s *memory.Store, queue string) *job.Job {
	t.Helper()
	j := &job.Job{
		Entity:      jobq.NewEntity(),
		ID:          id.NewJobID(),
		Queue:       queue,
		Payload:     []byte(`{"n":1}`),
		State:       job.StateWaiting,
		MaxAttempts: 3,
	}
	if err := s.CreateJob(context.Background(), j); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return j
}

func TestCreateJob_AssignsSeq(t *testing.T) {
	s := memory.New()
	a := newJob(t, s, "q")
	b := newJob(t, s, "q")

	if a.Seq == 0 || b.Seq == 0 {
		t.Fatal("seq not assigned")
	}
	if b.Seq <= a.Seq {
		t.Errorf("seq not monotonic: %d then %d", a.Seq, b.Seq)
	}

	if err := s.CreateJob(context.Background(), a); !errors.Is(err, jobq.ErrJobExists) {
		t.Errorf("got %v, want ErrJobExists", err)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	s := memory.New()
	if _, err := s.GetJob(context.Background(), id.NewJobID()); !errors.Is(err, jobq.ErrJobNotFound) {
		t.Errorf("got %v, want ErrJobNotFound", err)
	}
}

func TestPopNext_FIFO(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	a := newJob(t, s, "q")
	b := newJob(t, s, "q")
	for _, j := range []*job.Job{a, b} {
		if err := s.PushReady(ctx, j); err != nil {
			t.Fatalf("push ready: %v", err)
		}
	}

	first, err := s.PopNext(ctx, "q", 0)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if first.ID.String() != a.ID.String() {
		t.Errorf("got %s, want first-admitted %s", first.ID, a.ID)
	}
	if first.State != job.StateActive {
		t.Errorf("state = %s, want active", first.State)
	}
	if first.StartedAt == nil {
		t.Error("StartedAt not set on claim")
	}

	second, err := s.PopNext(ctx, "q", 0)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if second.ID.String() != b.ID.String() {
		t.Errorf("got %s, want %s", second.ID, b.ID)
	}

	empty, err := s.PopNext(ctx, "q", 0)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if empty != nil {
		t.Errorf("expected empty pop, got %s", empty.ID)
	}
}

func TestPopNext_PriorityBeforeReady(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	fifo := newJob(t, s, "q")
	if err := s.PushReady(ctx, fifo); err != nil {
		t.Fatalf("push ready: %v", err)
	}

	low := newJob(t, s, "q")
	low.Priority = 1
	high := newJob(t, s, "q")
	high.Priority = 9
	for _, j := range []*job.Job{low, high} {
		if err := s.PushPriority(ctx, j); err != nil {
			t.Fatalf("push priority: %v", err)
		}
	}

	want := []string{high.ID.String(), low.ID.String(), fifo.ID.String()}
	for i, w := range want {
		j, err := s.PopNext(ctx, "q", 0)
		if err != nil {
			t.Fatalf("pop %d: %v", i, err)
		}
		if j == nil || j.ID.String() != w {
			t.Fatalf("pop %d: got %v, want %s", i, j, w)
		}
	}
}

func TestPopNext_EqualPriorityFIFO(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	a := newJob(t, s, "q")
	a.Priority = 5
	b := newJob(t, s, "q")
	b.Priority = 5
	for _, j := range []*job.Job{a, b} {
		if err := s.PushPriority(ctx, j); err != nil {
			t.Fatalf("push priority: %v", err)
		}
	}

	first, err := s.PopNext(ctx, "q", 0)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if first.ID.String() != a.ID.String() {
		t.Errorf("equal priority should be FIFO: got %s, want %s", first.ID, a.ID)
	}
}

func TestPopNext_BlocksUntilPush(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	j := newJob(t, s, "q")
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = s.PushReady(ctx, j) //nolint:errcheck // test push
	}()

	start := time.Now()
	got, err := s.PopNext(ctx, "q", time.Second)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if got == nil {
		t.Fatal("expected job after push")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("pop took too long: %v", time.Since(start))
	}
}

func TestPromoteDue(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	due := newJob(t, s, "q")
	due.Priority = 3
	if err := s.PushDelayed(ctx, due, now.Add(-time.Minute)); err != nil {
		t.Fatalf("push delayed: %v", err)
	}
	future := newJob(t, s, "q")
	if err := s.PushDelayed(ctx, future, now.Add(time.Hour)); err != nil {
		t.Fatalf("push delayed: %v", err)
	}

	n, err := s.PromoteDue(ctx, "q", now, true)
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if n != 1 {
		t.Fatalf("promoted = %d, want 1", n)
	}

	counts, err := s.QueueCounts(ctx, "q")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Priority != 1 {
		t.Errorf("priority count = %d, want 1 (non-zero priority promotes to priority set)", counts.Priority)
	}
	if counts.Delayed != 1 {
		t.Errorf("delayed count = %d, want 1", counts.Delayed)
	}
}

func TestPromoteDue_FIFOWhenPriorityDisabled(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	due := newJob(t, s, "q")
	due.Priority = 3
	if err := s.PushDelayed(ctx, due, now.Add(-time.Minute)); err != nil {
		t.Fatalf("push delayed: %v", err)
	}

	if _, err := s.PromoteDue(ctx, "q", now, false); err != nil {
		t.Fatalf("promote: %v", err)
	}

	counts, _ := s.QueueCounts(ctx, "q") //nolint:errcheck // memory store
	if counts.Ready != 1 || counts.Priority != 0 {
		t.Errorf("counts = %+v, want ready=1 priority=0", counts)
	}
}

func TestTrimReady(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	jobs := make([]*job.Job, 4)
	for i := range jobs {
		jobs[i] = newJob(t, s, "q")
		if err := s.PushReady(ctx, jobs[i]); err != nil {
			t.Fatalf("push ready: %v", err)
		}
	}

	evicted, err := s.TrimReady(ctx, "q", 2)
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if len(evicted) != 2 {
		t.Fatalf("evicted = %d, want 2", len(evicted))
	}
	// Oldest first.
	if evicted[0].ID.String() != jobs[0].ID.String() {
		t.Errorf("first evicted = %s, want oldest %s", evicted[0].ID, jobs[0].ID)
	}
	for _, e := range evicted {
		if e.State != job.StateDead {
			t.Errorf("evicted state = %s, want dead", e.State)
		}
	}

	// No-op when under the cap or unbounded.
	if more, _ := s.TrimReady(ctx, "q", 2); len(more) != 0 { //nolint:errcheck // memory store
		t.Errorf("second trim evicted %d", len(more))
	}
	if more, _ := s.TrimReady(ctx, "q", 0); len(more) != 0 { //nolint:errcheck // memory store
		t.Errorf("unbounded trim evicted %d", len(more))
	}
}

func TestCompleteJob_Retention(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	var completed []*job.Job
	for range 3 {
		j := newJob(t, s, "q")
		if err := s.PushReady(ctx, j); err != nil {
			t.Fatalf("push: %v", err)
		}
		popped, err := s.PopNext(ctx, "q", 0)
		if err != nil {
			t.Fatalf("pop: %v", err)
		}
		if err := s.CompleteJob(ctx, popped, 2); err != nil {
			t.Fatalf("complete: %v", err)
		}
		completed = append(completed, popped)
	}

	counts, err := s.QueueCounts(ctx, "q")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Completed != 2 {
		t.Errorf("completed count = %d, want 2 (retention)", counts.Completed)
	}
	if counts.Active != 0 {
		t.Errorf("active count = %d, want 0", counts.Active)
	}

	// The oldest completed record is trimmed away.
	if _, err := s.GetJob(ctx, completed[0].ID); !errors.Is(err, jobq.ErrJobNotFound) {
		t.Errorf("oldest record should be trimmed, got %v", err)
	}
	if _, err := s.GetJob(ctx, completed[2].ID); err != nil {
		t.Errorf("newest record should be retained, got %v", err)
	}
}

func TestClaimDedup(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	ok, err := s.ClaimDedup(ctx, "q", "k", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !ok {
		t.Fatal("first claim should succeed")
	}

	if ok, _ = s.ClaimDedup(ctx, "q", "k", 50*time.Millisecond); ok { //nolint:errcheck // memory store
		t.Fatal("second claim inside window should fail")
	}

	// Different queue, same key: independent.
	if ok, _ = s.ClaimDedup(ctx, "other", "k", 50*time.Millisecond); !ok { //nolint:errcheck // memory store
		t.Fatal("claims are per-queue")
	}

	time.Sleep(60 * time.Millisecond)
	if ok, _ = s.ClaimDedup(ctx, "q", "k", 50*time.Millisecond); !ok { //nolint:errcheck // memory store
		t.Fatal("claim after window expiry should succeed")
	}
}

func TestReleaseDedup(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	if ok, err := s.ClaimDedup(ctx, "q", "k", time.Minute); err != nil || !ok {
		t.Fatalf("claim = %v, %v", ok, err)
	}
	if err := s.ReleaseDedup(ctx, "q", "k"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := s.ClaimDedup(ctx, "q", "k", time.Minute); !ok { //nolint:errcheck // memory store
		t.Fatal("claim after release should succeed")
	}
}

func TestActiveCountAndClearActive(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	j := newJob(t, s, "q")
	if err := s.PushReady(ctx, j); err != nil {
		t.Fatalf("push: %v", err)
	}
	popped, err := s.PopNext(ctx, "q", 0)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}

	n, err := s.ActiveCount(ctx, "q")
	if err != nil {
		t.Fatalf("active count: %v", err)
	}
	if n != 1 {
		t.Errorf("active = %d, want 1", n)
	}

	if err := s.ClearActive(ctx, "q", popped.ID); err != nil {
		t.Fatalf("clear active: %v", err)
	}
	if n, _ = s.ActiveCount(ctx, "q"); n != 0 { //nolint:errcheck // memory store
		t.Errorf("active = %d, want 0", n)
	}
}

func TestDLQ_Lifecycle(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	entries := []*dlq.Entry{
		{ID: id.NewDLQID(), JobID: id.NewJobID(), Queue: "a", Reason: dlq.ReasonFailed, FailedAt: now.Add(-time.Hour), CreatedAt: now},
		{ID: id.NewDLQID(), JobID: id.NewJobID(), Queue: "b", Reason: dlq.ReasonQueueFull, FailedAt: now, CreatedAt: now},
	}
	for _, e := range entries {
		if err := s.PushDLQ(ctx, e); err != nil {
			t.Fatalf("push dlq: %v", err)
		}
	}

	all, err := s.ListDLQ(ctx, dlq.ListOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("list = %d entries, want 2", len(all))
	}
	if all[0].ID.String() != entries[0].ID.String() {
		t.Error("list should be oldest first")
	}

	onlyA, err := s.ListDLQ(ctx, dlq.ListOpts{Queue: "a"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(onlyA) != 1 || onlyA[0].Queue != "a" {
		t.Errorf("queue filter failed: %+v", onlyA)
	}

	if n, _ := s.CountDLQ(ctx, "a"); n != 1 { //nolint:errcheck // memory store
		t.Errorf("count(a) = %d, want 1", n)
	}
	if n, _ := s.CountDLQ(ctx, ""); n != 2 { //nolint:errcheck // memory store
		t.Errorf("count(all) = %d, want 2", n)
	}

	if err := s.MarkReplayed(ctx, entries[0].ID); err != nil {
		t.Fatalf("mark replayed: %v", err)
	}
	got, err := s.GetDLQ(ctx, entries[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ReplayedAt == nil {
		t.Error("ReplayedAt not set")
	}

	removed, err := s.PurgeDLQ(ctx, now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Errorf("purged = %d, want 1", removed)
	}
	if _, err := s.GetDLQ(ctx, entries[0].ID); !errors.Is(err, jobq.ErrDLQNotFound) {
		t.Errorf("got %v, want ErrDLQNotFound", err)
	}
}

func TestSched_Lifecycle(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	def := &cron.Definition{
		Entity:  jobq.NewEntity(),
		ID:      id.NewSchedID(),
		Queue:   "q",
		Spec:    "*/5 * * * *",
		Enabled: true,
	}
	if err := s.RegisterSched(ctx, def); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, err := s.GetSched(ctx, def.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Spec != def.Spec {
		t.Errorf("spec = %q, want %q", got.Spec, def.Spec)
	}

	got.Enabled = false
	if err := s.UpdateSched(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	again, _ := s.GetSched(ctx, def.ID) //nolint:errcheck // just registered
	if again.Enabled {
		t.Error("update not persisted")
	}

	defs, err := s.ListScheds(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("list = %d, want 1", len(defs))
	}

	if n, _ := s.CountScheds(ctx, "q"); n != 1 { //nolint:errcheck // memory store
		t.Errorf("count = %d, want 1", n)
	}

	if err := s.DeleteSched(ctx, def.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetSched(ctx, def.ID); !errors.Is(err, jobq.ErrSchedNotFound) {
		t.Errorf("got %v, want ErrSchedNotFound", err)
	}
}

func TestDepend_ResolveCompleted(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	dependent := id.NewJobID()
	blockerA := id.NewJobID()
	blockerB := id.NewJobID()

	if err := s.AddEdges(ctx, dependent, []id.JobID{blockerA, blockerB}); err != nil {
		t.Fatalf("add edges: %v", err)
	}
	if n, _ := s.CountEdges(ctx); n != 2 { //nolint:errcheck // memory store
		t.Errorf("edges = %d, want 2", n)
	}

	released, err := s.ResolveCompleted(ctx, blockerA)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(released) != 0 {
		t.Fatalf("released after first blocker = %v, want none", released)
	}

	blockers, err := s.Blockers(ctx, dependent)
	if err != nil {
		t.Fatalf("blockers: %v", err)
	}
	if len(blockers) != 1 || blockers[0].String() != blockerB.String() {
		t.Errorf("blockers = %v, want [%s]", blockers, blockerB)
	}

	released, err = s.ResolveCompleted(ctx, blockerB)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(released) != 1 || released[0].String() != dependent.String() {
		t.Fatalf("released = %v, want [%s]", released, dependent)
	}

	if n, _ := s.CountEdges(ctx); n != 0 { //nolint:errcheck // memory store
		t.Errorf("edges = %d, want 0", n)
	}
}

func TestDeleteJob_RemovesMemberships(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	j := newJob(t, s, "q")
	if err := s.PushReady(ctx, j); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := s.DeleteJob(ctx, j.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	counts, _ := s.QueueCounts(ctx, "q") //nolint:errcheck // memory store
	if counts.Ready != 0 {
		t.Errorf("ready = %d, want 0", counts.Ready)
	}
	if _, err := s.GetJob(ctx, j.ID); !errors.Is(err, jobq.ErrJobNotFound) {
		t.Errorf("got %v, want ErrJobNotFound", err)
	}
}
