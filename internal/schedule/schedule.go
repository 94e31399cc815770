package schedule

import (
	"context"
	"time"
)

// RunAt executes fn at runAt on its own goroutine.
// fn is skipped if ctx is done before runAt.
func RunAt(ctx context.Context, runAt time.Time, execute func(ctx context.Context)) {
	RunAfter(ctx, time.Until(runAt), execute)
}

// RunAfter executes fn after delay on its own goroutine.
// fn is skipped if ctx is done before the delay has elapsed.
func RunAfter(ctx context.Context, delay time.Duration, execute func(ctx context.Context)) {
	go func() {
		if delay > 0 {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
		execute(ctx)
	}()
}
