// Package executor runs callbacks on a bounded set of worker goroutines.
//
// Pool is the hub's listener executor. Module background work runs on a
// Detached executor behind a per-module SerialQueue, so a task that blocks on
// an event never holds a listener worker.
package executor

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	hberrors "github.com/randalmurphal/eventhub/pkg/eventhub/errors"
)

// Worker limits for NewPool.
const (
	MinWorkers = 1
	MaxWorkers = 16
)

// Task is a unit of work. A returned error is reported like a panic.
type Task func() error

// ErrorFunc receives a task's error or recovered panic.
type ErrorFunc func(err error)

// TaskExecutor runs tasks asynchronously.
type TaskExecutor interface {
	// AddTask queues task. It returns false if the executor no longer accepts work.
	AddTask(task Task, onError ErrorFunc, name string) bool

	// Dispose stops accepting tasks, drops queued ones and waits up to wait for
	// running tasks to finish. It reports whether every worker has exited.
	Dispose(wait time.Duration) bool
}

type queuedTask struct {
	task    Task
	onError ErrorFunc
	name    string
}

// Stats are cumulative pool counters.
type Stats struct {
	Submitted uint64
	Completed uint64
	Failed    uint64
	Panicked  uint64
	Dropped   uint64
	Rejected  uint64
}

// Pool is a FIFO task queue drained by a fixed number of workers.
// With one worker, tasks run strictly in submission order.
type Pool struct {
	name   string
	logger *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []queuedTask
	closed bool

	wg   sync.WaitGroup
	done chan struct{}

	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	panicked  atomic.Uint64
	dropped   atomic.Uint64
	rejected  atomic.Uint64
}

var _ TaskExecutor = (*Pool)(nil)

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger for task failures that have no ErrorFunc.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPool starts a pool with the given number of workers.
func NewPool(workers int, name string, opts ...Option) (*Pool, error) {
	if workers < MinWorkers || workers > MaxWorkers {
		return nil, hberrors.InvalidArgument("executor: workers must be in [%d, %d], got %d", MinWorkers, MaxWorkers, workers)
	}

	p := &Pool{
		name:   name,
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	for _, opt := range opts {
		opt(p)
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}
	go func() {
		p.wg.Wait()
		close(p.done)
	}()
	return p, nil
}

// Name returns the pool name.
func (p *Pool) Name() string { return p.name }

// AddTask implements TaskExecutor.
func (p *Pool) AddTask(task Task, onError ErrorFunc, name string) bool {
	if task == nil {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.rejected.Add(1)
		return false
	}
	p.queue = append(p.queue, queuedTask{task: task, onError: onError, name: name})
	p.submitted.Add(1)
	p.cond.Signal()
	return true
}

// Dispose implements TaskExecutor. It is safe to call more than once.
func (p *Pool) Dispose(wait time.Duration) bool {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		p.dropped.Add(uint64(len(p.queue)))
		p.queue = nil
		p.cond.Broadcast()
	}
	p.mu.Unlock()

	if wait <= 0 {
		select {
		case <-p.done:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-p.done:
		return true
	case <-timer.C:
		return false
	}
}

// Pending returns the number of queued tasks that have not started.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Panicked:  p.panicked.Load(),
		Dropped:   p.dropped.Load(),
		Rejected:  p.rejected.Load(),
	}
}

func (p *Pool) work() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		t := p.queue[0]
		p.queue[0] = queuedTask{}
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.run(t)
	}
}

func (p *Pool) run(t queuedTask) {
	err := Run(t.name, t.task)
	p.completed.Add(1)
	if err == nil {
		return
	}

	var panicErr *hberrors.PanicError
	if errors.As(err, &panicErr) {
		p.panicked.Add(1)
	} else {
		p.failed.Add(1)
	}

	if t.onError != nil {
		Run(t.name+" error handler", func() error {
			t.onError(err)
			return nil
		})
		return
	}
	p.logger.Error("task failed",
		slog.String("executor", p.name),
		slog.String("task", t.name),
		slog.String("error", err.Error()),
	)
}

// Run calls task, converting a panic into a *errors.PanicError that names where.
func Run(where string, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &hberrors.PanicError{Where: where, Value: r, Stack: string(debug.Stack())}
		}
	}()
	if task == nil {
		return fmt.Errorf("%s: nil task", where)
	}
	return task()
}
