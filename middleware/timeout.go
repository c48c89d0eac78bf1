package middleware

import (
	"context"
	"fmt"
	"time"

	jobq "github.com/rickicode/MikrotikBilling-sub003"
	"github.com/rickicode/MikrotikBilling-sub003/job"
)

// Timeout returns middleware that enforces a per-job execution deadline:
// the job's own Timeout when set, else defaultTimeout. The rest of the
// chain runs on a separate goroutine; when the deadline passes, the
// middleware returns jobq.ErrJobTimeout without waiting for the
// processor. The processor's context is cancelled, but the invocation is
// not preemptively killed — processors are expected to honor ctx.
//
// Timeout must sit OUTSIDE Recover in the chain so that a panic on the
// detached goroutine is still converted to an error.
func Timeout(defaultTimeout time.Duration) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		d := j.Timeout
		if d <= 0 {
			d = defaultTimeout
		}
		if d <= 0 {
			return next(ctx)
		}

		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			done <- next(ctx)
		}()

		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return fmt.Errorf("%w: job %s exceeded %s", jobq.ErrJobTimeout, j.ID, d)
		}
	}
}
