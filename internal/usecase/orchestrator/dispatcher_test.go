package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDispatcherOneTaskPerIssue(t *testing.T) {
	d := NewDispatcher(8, time.Minute)

	var running int32
	var maxRunning int32
	release := make(chan struct{})

	var accepted int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok := d.Submit(context.Background(), 7, "analysis", func(ctx context.Context) {
				now := atomic.AddInt32(&running, 1)
				for {
					max := atomic.LoadInt32(&maxRunning)
					if now <= max || atomic.CompareAndSwapInt32(&maxRunning, max, now) {
						break
					}
				}
				<-release
				atomic.AddInt32(&running, -1)
			})
			if ok {
				atomic.AddInt32(&accepted, 1)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&accepted); got != 1 {
		t.Fatalf("accepted %d submissions for one issue, want 1", got)
	}
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if got := atomic.LoadInt32(&maxRunning); got != 1 {
		t.Fatalf("max concurrent tasks for one issue = %d, want 1", got)
	}
}

func TestDispatcherConcurrencyBudget(t *testing.T) {
	d := NewDispatcher(2, time.Minute)
	release := make(chan struct{})

	submit := func(issue int) bool {
		return d.Submit(context.Background(), issue, "analysis", func(ctx context.Context) {
			<-release
		})
	}

	if !submit(1) || !submit(2) {
		t.Fatal("first two submissions should be admitted")
	}
	if submit(3) {
		t.Fatal("third submission must be rejected while budget is exhausted")
	}

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if !submit(3) {
		t.Fatal("slot must be reusable after tasks finish")
	}
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}

func TestDispatcherClearsRegistryAfterCompletion(t *testing.T) {
	d := NewDispatcher(1, time.Minute)
	done := make(chan struct{})

	ok := d.Submit(context.Background(), 9, "implementation", func(ctx context.Context) {
		close(done)
	})
	if !ok {
		t.Fatal("submission should be admitted")
	}
	<-done

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if d.InFlight(9) {
		t.Fatal("issue must not stay in flight after completion")
	}
	if got := d.InFlightCount(); got != 0 {
		t.Fatalf("InFlightCount() = %d, want 0", got)
	}
}

func TestDispatcherClearsRegistryAfterPanic(t *testing.T) {
	d := NewDispatcher(1, time.Minute)

	ok := d.Submit(context.Background(), 4, "analysis", func(ctx context.Context) {
		panic("task exploded")
	})
	if !ok {
		t.Fatal("submission should be admitted")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if d.InFlight(4) {
		t.Fatal("issue must not stay in flight after a panic")
	}
	if !d.Submit(context.Background(), 4, "analysis", func(ctx context.Context) {}) {
		t.Fatal("budget slot must be released after a panic")
	}
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}

func TestDispatcherTaskContextCarriesTimeout(t *testing.T) {
	d := NewDispatcher(1, 50*time.Millisecond)

	expired := make(chan bool, 1)
	d.Submit(context.Background(), 1, "analysis", func(ctx context.Context) {
		select {
		case <-ctx.Done():
			expired <- true
		case <-time.After(5 * time.Second):
			expired <- false
		}
	})

	if ok := <-expired; !ok {
		t.Fatal("task context should expire at the configured timeout")
	}
}

func TestDispatcherTaskContextDetachedFromRequest(t *testing.T) {
	d := NewDispatcher(1, time.Minute)

	reqCtx, cancel := context.WithCancel(context.Background())
	cancel()

	alive := make(chan bool, 1)
	d.Submit(reqCtx, 2, "analysis", func(ctx context.Context) {
		alive <- ctx.Err() == nil
	})

	if ok := <-alive; !ok {
		t.Fatal("task context must survive request cancellation")
	}
}
