package executor

import (
	"log/slog"
	"sync"
	"time"
)

// Detached runs every task on its own goroutine. Tasks never wait for a free
// worker, so work that blocks on other executors cannot starve them.
type Detached struct {
	name   string
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

var _ TaskExecutor = (*Detached)(nil)

// NewDetached creates a Detached executor. A nil logger uses slog.Default.
func NewDetached(name string, logger *slog.Logger) *Detached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detached{name: name, logger: logger}
}

// AddTask implements TaskExecutor.
func (d *Detached) AddTask(task Task, onError ErrorFunc, name string) bool {
	if task == nil {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		err := Run(name, task)
		if err == nil {
			return
		}
		if onError != nil {
			_ = Run(name+" error handler", func() error {
				onError(err)
				return nil
			})
			return
		}
		d.logger.Error("task failed",
			slog.String("executor", d.name),
			slog.String("task", name),
			slog.String("error", err.Error()),
		)
	}()
	return true
}

// Dispose implements TaskExecutor. Running tasks are not interrupted.
func (d *Detached) Dispose(wait time.Duration) bool {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	if wait <= 0 {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
