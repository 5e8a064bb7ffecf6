package pipeline_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/personaforge/internal/pipeline"
)

func TestBoundedExecutor_ConcurrencyBound(t *testing.T) {
	t.Parallel()

	const limit = 3
	const tasks = 20

	exec := pipeline.NewBoundedExecutor(limit, 0)

	var inFlight, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < tasks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = exec.Do(context.Background(), func(ctx context.Context) error {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				inFlight.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > limit {
		t.Errorf("peak concurrency = %d, want <= %d", got, limit)
	}
}

func TestBoundedExecutor_Timeout(t *testing.T) {
	t.Parallel()

	exec := pipeline.NewBoundedExecutor(1, 10*time.Millisecond)
	err := exec.Do(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err == nil {
		t.Fatal("expected deadline error")
	}
}

func TestBoundedExecutor_PanicContained(t *testing.T) {
	t.Parallel()

	exec := pipeline.NewBoundedExecutor(1, 0)
	err := exec.Do(context.Background(), func(ctx context.Context) error {
		panic("stage blew up")
	})
	if err == nil || !strings.Contains(err.Error(), "stage blew up") {
		t.Errorf("err = %v, want recovered panic error", err)
	}

	// The slot must be released after a panic.
	done := make(chan struct{})
	go func() {
		_ = exec.Do(context.Background(), func(ctx context.Context) error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("executor slot leaked after panic")
	}
}

func TestBoundedExecutor_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pipeline.NewBoundedExecutor(1, 0).Do(ctx, func(ctx context.Context) error { return nil })
	if err == nil {
		t.Fatal("expected acquire failure on cancelled context")
	}
}
