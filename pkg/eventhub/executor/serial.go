package executor

import (
	"sync"
	"time"
)

// SerialQueue runs one owner's tasks in FIFO order, one at a time, on a
// TaskExecutor. The queue occupies at most one executor task while it has
// work.
type SerialQueue struct {
	exec TaskExecutor
	name string

	mu      sync.Mutex
	pending []serialTask
	running bool
	paused  bool
	closed  bool
	idle    chan struct{}
	halted  chan struct{}
}

type serialTask struct {
	name     string
	task     Task
	onError  ErrorFunc
	required bool
}

// NewSerialQueue creates a queue that submits to exec.
func NewSerialQueue(exec TaskExecutor, name string) *SerialQueue {
	idle := make(chan struct{})
	close(idle)
	return &SerialQueue{exec: exec, name: name, idle: idle}
}

// Add queues task. Required tasks survive CancelPending. It returns false if
// the queue is closed or the executor rejected the work.
func (q *SerialQueue) Add(name string, task Task, onError ErrorFunc, required bool) bool {
	if task == nil {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.pending = append(q.pending, serialTask{name: name, task: task, onError: onError, required: required})
	q.openIdleLocked()
	if !q.startLocked() {
		q.pending = q.pending[:len(q.pending)-1]
		q.settleLocked()
		return false
	}
	return true
}

// CancelPending drops queued tasks that are not required and returns how many
// were dropped. A task that already started is not affected.
func (q *SerialQueue) CancelPending() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.pending[:0]
	dropped := 0
	for _, t := range q.pending {
		if t.required {
			kept = append(kept, t)
			continue
		}
		dropped++
	}
	for i := len(kept); i < len(q.pending); i++ {
		q.pending[i] = serialTask{}
	}
	q.pending = kept
	q.settleLocked()
	return dropped
}

// Pause stops the queue from starting further tasks. The returned channel is
// closed once no task is running.
func (q *SerialQueue) Pause() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = true
	if !q.running {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	if q.halted == nil {
		q.halted = make(chan struct{})
	}
	return q.halted
}

// Resume lets a paused queue run its remaining tasks. If the executor rejects
// them they are dropped and Resume returns false.
func (q *SerialQueue) Resume() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = false
	if q.startLocked() {
		return true
	}
	clear(q.pending)
	q.pending = nil
	q.settleLocked()
	return false
}

// Close stops the queue from accepting tasks. Queued tasks still run.
func (q *SerialQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// Len returns the number of queued tasks that have not started.
func (q *SerialQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Wait blocks until the queue is idle or timeout elapses, and reports whether
// it became idle. A non-positive timeout only checks.
func (q *SerialQueue) Wait(timeout time.Duration) bool {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	if timeout <= 0 {
		select {
		case <-idle:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-idle:
		return true
	case <-timer.C:
		return false
	}
}

func (q *SerialQueue) drain() error {
	for {
		q.mu.Lock()
		if q.paused || len(q.pending) == 0 {
			q.running = false
			if q.halted != nil {
				close(q.halted)
				q.halted = nil
			}
			q.settleLocked()
			q.mu.Unlock()
			return nil
		}
		t := q.pending[0]
		q.pending[0] = serialTask{}
		q.pending = q.pending[1:]
		q.mu.Unlock()

		if err := Run(t.name, t.task); err != nil && t.onError != nil {
			_ = Run(t.name+" error handler", func() error {
				t.onError(err)
				return nil
			})
		}
	}
}

// startLocked submits drain unless it is already running, paused or has
// nothing to do.
func (q *SerialQueue) startLocked() bool {
	if q.running || q.paused || len(q.pending) == 0 {
		return true
	}
	q.running = true
	if !q.exec.AddTask(q.drain, nil, q.name) {
		q.running = false
		return false
	}
	return true
}

func (q *SerialQueue) openIdleLocked() {
	select {
	case <-q.idle:
		q.idle = make(chan struct{})
	default:
	}
}

// settleLocked closes idle once nothing is running or queued.
func (q *SerialQueue) settleLocked() {
	if q.running || len(q.pending) > 0 {
		return
	}
	select {
	case <-q.idle:
	default:
		close(q.idle)
	}
}
