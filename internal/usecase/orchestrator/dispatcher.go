package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"sentinel/internal/bootstrap/logging"
)

const defaultTaskTimeout = 40 * time.Minute

type inflightEntry struct {
	action    string
	startedAt time.Time
}

// Dispatcher runs accepted actions on background goroutines with two
// admission gates: at most one in-flight task per issue, and a global
// concurrency budget. Rejected submissions are dropped, not queued; a later
// label re-addition is the retry path.
type Dispatcher struct {
	mu          sync.Mutex
	inflight    map[int]inflightEntry
	sem         *semaphore.Weighted
	taskTimeout time.Duration
	wg          sync.WaitGroup
}

func NewDispatcher(maxConcurrent int, taskTimeout time.Duration) *Dispatcher {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if taskTimeout <= 0 {
		taskTimeout = defaultTaskTimeout
	}
	return &Dispatcher{
		inflight:    make(map[int]inflightEntry),
		sem:         semaphore.NewWeighted(int64(maxConcurrent)),
		taskTimeout: taskTimeout,
	}
}

// Submit admits run for the issue unless it is already in flight or the
// budget is exhausted. The task context is detached from the request
// context (requests return immediately) but keeps its logger, and carries
// the wall-clock timeout. The registry entry and the budget slot are
// released on every exit path, including a panicking task.
func (d *Dispatcher) Submit(ctx context.Context, issueNumber int, action string, run func(ctx context.Context)) bool {
	d.mu.Lock()
	if _, busy := d.inflight[issueNumber]; busy {
		d.mu.Unlock()
		return false
	}
	if !d.sem.TryAcquire(1) {
		d.mu.Unlock()
		return false
	}
	d.inflight[issueNumber] = inflightEntry{action: action, startedAt: time.Now()}
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.taskTimeout)
		defer func() {
			if r := recover(); r != nil {
				logging.Error(taskCtx, "task panicked",
					slog.Int("issue", issueNumber),
					slog.String("action", action),
					slog.Any("panic", r),
				)
			}
			cancel()
			d.mu.Lock()
			delete(d.inflight, issueNumber)
			d.mu.Unlock()
			d.sem.Release(1)
			d.wg.Done()
		}()

		run(taskCtx)
	}()
	return true
}

// InFlight reports whether a task for the issue is currently running.
func (d *Dispatcher) InFlight(issueNumber int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, busy := d.inflight[issueNumber]
	return busy
}

func (d *Dispatcher) InFlightCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}

// Wait blocks until all in-flight tasks finish or ctx expires. Used for
// graceful shutdown; in-flight bookkeeping is best-effort and not persisted.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
