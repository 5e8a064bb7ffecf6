package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
)

// BoundedExecutor runs stage functions under a global concurrency ceiling
// with a per-invocation timeout and panic containment. It is the single
// throttle point for all LLM-bound work in a run: no matter how many
// speakers are processed in parallel, at most maxConcurrent provider calls
// are in flight.
//
// Safe for concurrent use.
type BoundedExecutor struct {
	sem     *semaphore.Weighted
	timeout time.Duration
}

// NewBoundedExecutor returns an executor admitting at most maxConcurrent
// concurrent invocations, each bounded by timeout. maxConcurrent below 1 is
// treated as 1; a non-positive timeout disables the per-call deadline.
func NewBoundedExecutor(maxConcurrent int, timeout time.Duration) *BoundedExecutor {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &BoundedExecutor{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		timeout: timeout,
	}
}

// Do acquires an execution slot, runs fn under the per-call deadline, and
// releases the slot. Blocks until a slot frees up or ctx is cancelled.
// A panic inside fn is recovered and returned as an error so one bad
// speaker never takes down the batch.
func (e *BoundedExecutor) Do(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if acquireErr := e.sem.Acquire(ctx, 1); acquireErr != nil {
		return fmt.Errorf("pipeline: acquire execution slot: %w", acquireErr)
	}
	defer e.sem.Release(1)

	runCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline: stage panicked: %v", r)
		}
	}()
	return fn(runCtx)
}
