package job_test

import (
	"context"
	"errors"
	"testing"
	"time"

	jobq "github.com/rickicode/MikrotikBilling-sub003"
	"github.com/rickicode/MikrotikBilling-sub003/job"
)

func TestState_Terminal(t *testing.T) {
	cases := []struct {
		state job.State
		want  bool
	}{
		{job.StateWaiting, false},
		{job.StateBlocked, false},
		{job.StateActive, false},
		{job.StateFailed, false},
		{job.StateCompleted, true},
		{job.StateDead, true},
	}
	for _, c := range cases {
		if got := c.state.Terminal(); got != c.want {
			t.Errorf("%s.Terminal() = %v, want %v", c.state, got, c.want)
		}
	}
}

func TestJob_Delayed(t *testing.T) {
	now := time.Now().UTC()

	j := &job.Job{}
	if j.Delayed(now) {
		t.Error("zero RunAt should not be delayed")
	}

	j.RunAt = now.Add(time.Hour)
	if !j.Delayed(now) {
		t.Error("future RunAt should be delayed")
	}

	j.RunAt = now.Add(-time.Hour)
	if j.Delayed(now) {
		t.Error("past RunAt should not be delayed")
	}
}

func TestRegistry_Register(t *testing.T) {
	r := job.NewRegistry()
	p := job.ProcessorFunc(func(_ context.Context, _ *job.Job) error { return nil })

	if err := r.Register("emails", p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register("emails", p); !errors.Is(err, jobq.ErrProcessorRegistered) {
		t.Fatalf("got %v, want ErrProcessorRegistered", err)
	}

	if _, ok := r.Get("emails"); !ok {
		t.Error("expected registered processor")
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("expected miss for unregistered queue")
	}
	if got := r.Queues(); len(got) != 1 || got[0] != "emails" {
		t.Errorf("Queues() = %v, want [emails]", got)
	}
}

func TestReportProgress(t *testing.T) {
	var reported int
	ctx := job.ContextWithProgress(context.Background(), func(pct int) { reported = pct })

	job.ReportProgress(ctx, 42)
	if reported != 42 {
		t.Errorf("reported = %d, want 42", reported)
	}

	// Without a callback, ReportProgress is a no-op.
	job.ReportProgress(context.Background(), 99)
}

func TestLogger_Fallback(t *testing.T) {
	if job.Logger(context.Background()) == nil {
		t.Error("expected default logger")
	}
}

func TestNonRetryable(t *testing.T) {
	base := errors.New("bad payload")
	wrapped := jobq.NonRetryable(base)

	if !jobq.IsNonRetryable(wrapped) {
		t.Error("wrapped error should be non-retryable")
	}
	if jobq.IsNonRetryable(base) {
		t.Error("plain error should be retryable")
	}
	if !errors.Is(wrapped, base) {
		t.Error("wrapped error should unwrap to base")
	}
}
