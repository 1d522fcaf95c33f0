package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPool_RunsSubmittedTasks(t *testing.T) {
	var processed atomic.Int64

	pool := NewPool(2, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	for i := 0; i < 5; i++ {
		if !pool.TrySubmit(func(ctx context.Context) {
			processed.Add(1)
		}) {
			t.Fatal("TrySubmit refused with room in the queue")
		}
	}

	pool.Stop()

	if processed.Load() != 5 {
		t.Errorf("expected 5 tasks processed, got %d", processed.Load())
	}
}

func TestPool_TrySubmitDropsWhenFull(t *testing.T) {
	pool := NewPool(1, 2)
	// Not started: nothing drains the queue, so capacity is exactly the
	// buffer size.
	noop := func(ctx context.Context) {}

	if !pool.TrySubmit(noop) || !pool.TrySubmit(noop) {
		t.Fatal("expected the first two submissions to be accepted")
	}
	if pool.TrySubmit(noop) {
		t.Error("expected TrySubmit to refuse when the queue is full")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	pool.Stop()
}

func TestPool_ConcurrentSubmit(t *testing.T) {
	var processed atomic.Int64

	pool := NewPool(4, 200)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	done := make(chan struct{})
	for i := 0; i < 100; i++ {
		go func() {
			pool.TrySubmit(func(ctx context.Context) {
				processed.Add(1)
			})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 100; i++ {
		<-done
	}

	pool.Stop()

	if processed.Load() != 100 {
		t.Errorf("expected 100 tasks processed, got %d", processed.Load())
	}
}

func TestPool_StopWaitsForInFlightTasks(t *testing.T) {
	var processed atomic.Int64

	pool := NewPool(2, 50)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	for i := 0; i < 20; i++ {
		pool.TrySubmit(func(ctx context.Context) {
			time.Sleep(5 * time.Millisecond)
			processed.Add(1)
		})
	}

	stopped := make(chan struct{})
	go func() {
		pool.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("pool.Stop() timed out")
	}

	if processed.Load() != 20 {
		t.Errorf("expected all 20 tasks to finish before Stop returned, got %d", processed.Load())
	}
}

func TestPool_TasksSeeCancellation(t *testing.T) {
	var cancelled atomic.Int64

	pool := NewPool(1, 10)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	blocked := make(chan struct{})
	pool.TrySubmit(func(ctx context.Context) {
		close(blocked)
		<-ctx.Done()
		cancelled.Add(1)
	})

	<-blocked
	cancel()
	pool.Stop()

	if cancelled.Load() != 1 {
		t.Errorf("expected the task to observe cancellation, got %d", cancelled.Load())
	}
}
