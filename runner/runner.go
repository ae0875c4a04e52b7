// Package runner provides a bounded pool of background workers with a thread-safe,
// completion-ordered result handoff.
//
// A single-threaded consumer submits units of work and periodically calls Drain on its
// own schedule; all blocking work, including instrument I/O, executes on worker
// goroutines. Cancellation is cooperative: a task observes its context at its own
// checkpoints and a task blocked inside a physical transaction completes that
// transaction before honoring cancellation.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/semaphore"

	"github.com/vulturelab/visavulture/internal/queue"
	"github.com/vulturelab/visavulture/logger"
)

// TaskID identifies a submitted task.
type TaskID uint64

// Work is a unit of background work. It receives a context that is cancelled when the
// task is cancelled or the runner shuts down; it should check the context at its own
// checkpoints and return promptly once cancelled.
type Work func(ctx context.Context) (any, error)

// Result is the immutable envelope flowing from a background worker to the consumer.
// Exactly one of Value and Err is meaningful.
type Result struct {
	ID    TaskID
	Name  string
	Value any
	Err   error
}

// Failed reports whether the task finished with an error.
func (r Result) Failed() bool { return r.Err != nil }

// Cancelled reports whether the task finished by honoring cancellation.
func (r Result) Cancelled() bool { return errors.Is(r.Err, context.Canceled) }

// Runner owns a bounded pool of background workers.
//
// Submit may be called from any goroutine. Drain is intended for the single consumer
// thread; it never blocks. Results are delivered in completion order: results of tasks
// submitted by a single producer in sequence are ordered, results of independent tasks
// are unordered relative to each other.
type Runner struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger logger.Logger

	sem     *semaphore.Weighted
	tasks   *xsync.MapOf[TaskID, *task]
	results queue.Queue[Result]
	wg      sync.WaitGroup

	closed  chan struct{}
	closeMu sync.Mutex
	metrics Metrics
}

type task struct {
	id     TaskID
	name   string
	work   Work
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Runner with at most maxWorkers concurrently in-flight tasks.
func New(ctx context.Context, maxWorkers int, l logger.Logger) *Runner {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if l == nil {
		l = logger.GetLogger()
	}

	r := &Runner{
		logger:  l,
		sem:     semaphore.NewWeighted(int64(maxWorkers)),
		tasks:   xsync.NewMapOf[TaskID, *task](),
		results: queue.NewLockFreeQueue[Result](),
		closed:  make(chan struct{}),
	}
	r.ctx, r.cancel = context.WithCancel(ctx)

	return r
}

// Submit accepts a unit of work and returns its task ID.
//
// With a free worker slot Submit returns immediately; past the configured maximum it
// blocks the calling goroutine until a slot frees. It fails with ErrRunnerClosed after
// Shutdown.
func (r *Runner) Submit(name string, work Work) (TaskID, error) {
	if r.isClosed() {
		return 0, ErrRunnerClosed
	}

	if err := r.sem.Acquire(r.ctx, 1); err != nil {
		return 0, ErrRunnerClosed
	}
	if r.isClosed() {
		r.sem.Release(1)
		return 0, ErrRunnerClosed
	}

	id := nextTaskID()
	t := &task{id: id, name: name, work: work}
	t.ctx, t.cancel = context.WithCancel(r.ctx)

	r.tasks.Store(id, t)
	r.metrics.incSubmitted()
	r.logger.Debug("task submitted", "task_id", id, "name", name)

	r.wg.Add(1)
	go r.execute(t)

	return id, nil
}

// Cancel requests cooperative cancellation of the task with the given ID.
// It returns false if the task is unknown or already finished.
//
// Cancellation does not forcibly interrupt blocking instrument I/O; the task honors
// the request at its next checkpoint.
func (r *Runner) Cancel(id TaskID) bool {
	t, ok := r.tasks.Load(id)
	if !ok {
		return false
	}
	r.logger.Debug("task cancellation requested", "task_id", id, "name", t.name)
	t.cancel()

	return true
}

// Drain returns every completed result collected since the last Drain, in completion
// order. It never blocks and returns an empty slice when nothing completed.
//
// Drain is the only operation the consumer thread should call.
func (r *Runner) Drain() []Result {
	var out []Result
	for {
		res, ok := r.results.Dequeue()
		if !ok {
			return out
		}
		out = append(out, res)
	}
}

// InFlight returns the number of tasks currently executing.
func (r *Runner) InFlight() int {
	return r.tasks.Size()
}

// Metrics returns the runner counters.
func (r *Runner) Metrics() *Metrics {
	return &r.metrics
}

// Shutdown stops accepting submissions, waits up to grace for in-flight tasks to
// drain, then cancels and discards the remainder.
func (r *Runner) Shutdown(grace time.Duration) {
	r.closeMu.Lock()
	select {
	case <-r.closed:
		r.closeMu.Unlock()
		return
	default:
		close(r.closed)
	}
	r.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		r.logger.Debug("runner shutdown, all tasks drained")
	case <-timer.C:
		r.logger.Warn("runner shutdown grace elapsed, abandoning in-flight tasks", "in_flight", r.InFlight())
	}

	r.cancel()
}

func (r *Runner) isClosed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}

// execute runs a task on its own goroutine with panic protection and publishes the
// result.
func (r *Runner) execute(t *task) {
	defer r.wg.Done()
	defer r.sem.Release(1)
	defer t.cancel()

	var value any
	var err error

	func() {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("%w: %v", ErrTaskPanic, p)
				r.metrics.incPanic()
				r.logger.Error("panic in task", "task_id", t.id, "name", t.name, "panic", p)
			}
		}()
		value, err = t.work(t.ctx)
	}()

	r.tasks.Delete(t.id)

	switch {
	case err == nil:
		r.metrics.incCompleted()
	case errors.Is(err, context.Canceled):
		r.metrics.incCancelled()
	default:
		r.metrics.incFailed()
	}

	r.results.Enqueue(Result{ID: t.id, Name: t.name, Value: value, Err: err})
	r.logger.Debug("task finished", "task_id", t.id, "name", t.name, "error", err)
}
