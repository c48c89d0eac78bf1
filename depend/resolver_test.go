package depend_test

import (
	"context"
	"testing"
	"time"

	jobq "github.com/rickicode/MikrotikBilling-sub003"
	"github.com/rickicode/MikrotikBilling-sub003/depend"
	"github.com/rickicode/MikrotikBilling-sub003/id"
	"github.com/rickicode/MikrotikBilling-sub003/job"
	"github.com/rickicode/MikrotikBilling-sub003/queue"
	"github.com/rickicode/MikrotikBilling-sub003/store/memory"
)

func setup(t *testing.T, cfg queue.Config) (*depend.Resolver, *memory.Store) {
	t.Helper()
	st := memory.New()
	queues := queue.NewRegistry()
	if _, err := queues.Create("q", cfg); err != nil {
		t.Fatalf("create queue: %v", err)
	}
	return depend.NewResolver(st, st, queues, nil), st
}

func blockedJob(t *testing.T, st *memory.Store, blockers ...id.JobID) *job.Job {
	t.Helper()
	ctx := context.Background()
	j := &job.Job{
		Entity:      jobq.NewEntity(),
		ID:          id.NewJobID(),
		Queue:       "q",
		State:       job.StateBlocked,
		MaxAttempts: 3,
	}
	j.Dependencies = append(j.Dependencies, blockers...)
	if err := st.CreateJob(ctx, j); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := st.AddEdges(ctx, j.ID, blockers); err != nil {
		t.Fatalf("add edges: %v", err)
	}
	return j
}

func TestJobCompleted_ReleasesWhenAllBlockersDone(t *testing.T) {
	r, st := setup(t, queue.Config{})
	ctx := context.Background()

	blockerA := id.NewJobID()
	blockerB := id.NewJobID()
	dependent := blockedJob(t, st, blockerA, blockerB)

	released, err := r.JobCompleted(ctx, blockerA)
	if err != nil {
		t.Fatalf("job completed: %v", err)
	}
	if len(released) != 0 {
		t.Fatalf("released = %d jobs with a blocker outstanding", len(released))
	}

	released, err = r.JobCompleted(ctx, blockerB)
	if err != nil {
		t.Fatalf("job completed: %v", err)
	}
	if len(released) != 1 || released[0].ID.String() != dependent.ID.String() {
		t.Fatalf("released = %v, want [%s]", released, dependent.ID)
	}
	if released[0].State != job.StateWaiting {
		t.Errorf("state = %s, want waiting", released[0].State)
	}
	if released[0].Dependencies != nil {
		t.Errorf("dependencies = %v, want cleared", released[0].Dependencies)
	}

	// Released job is dispatchable from the ready list.
	next, err := st.PopNext(ctx, "q", 0)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if next == nil || next.ID.String() != dependent.ID.String() {
		t.Fatalf("got %v, want released job on ready list", next)
	}
}

func TestJobCompleted_PlacesByPriority(t *testing.T) {
	r, st := setup(t, queue.Config{PriorityEnabled: true})
	ctx := context.Background()

	blocker := id.NewJobID()
	dependent := blockedJob(t, st, blocker)
	dependent.Priority = 7
	if err := st.UpdateJob(ctx, dependent); err != nil {
		t.Fatalf("update: %v", err)
	}

	if _, err := r.JobCompleted(ctx, blocker); err != nil {
		t.Fatalf("job completed: %v", err)
	}

	counts, err := st.QueueCounts(ctx, "q")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Priority != 1 || counts.Ready != 0 {
		t.Errorf("counts = %+v, want the release in the priority set", counts)
	}
}

func TestJobCompleted_PlacesDelayed(t *testing.T) {
	r, st := setup(t, queue.Config{})
	ctx := context.Background()

	blocker := id.NewJobID()
	dependent := blockedJob(t, st, blocker)
	dependent.RunAt = time.Now().UTC().Add(time.Hour)
	if err := st.UpdateJob(ctx, dependent); err != nil {
		t.Fatalf("update: %v", err)
	}

	if _, err := r.JobCompleted(ctx, blocker); err != nil {
		t.Fatalf("job completed: %v", err)
	}

	counts, err := st.QueueCounts(ctx, "q")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Delayed != 1 || counts.Ready != 0 {
		t.Errorf("counts = %+v, want the release in the delayed set", counts)
	}
}

func TestJobCompleted_SkipsNonBlocked(t *testing.T) {
	r, st := setup(t, queue.Config{})
	ctx := context.Background()

	blocker := id.NewJobID()
	dependent := blockedJob(t, st, blocker)
	dependent.State = job.StateCompleted
	if err := st.UpdateJob(ctx, dependent); err != nil {
		t.Fatalf("update: %v", err)
	}

	released, err := r.JobCompleted(ctx, blocker)
	if err != nil {
		t.Fatalf("job completed: %v", err)
	}
	if len(released) != 0 {
		t.Errorf("released = %d, want 0 for non-blocked job", len(released))
	}
}

func TestJobCompleted_NoDependents(t *testing.T) {
	r, _ := setup(t, queue.Config{})

	released, err := r.JobCompleted(context.Background(), id.NewJobID())
	if err != nil {
		t.Fatalf("job completed: %v", err)
	}
	if len(released) != 0 {
		t.Errorf("released = %d, want 0", len(released))
	}
}
