package sonar

import (
	"context"
	"errors"
	"sync"

	"github.com/banshee-data/sonar/internal/monitoring"
)

// Task runs a Driver's sampling loop in the background and provides the
// start/stop control used by the command console and the HTTP API.
type Task struct {
	driver *Driver

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewTask wraps d. The task starts stopped.
func NewTask(d *Driver) *Task {
	return &Task{driver: d}
}

// Driver returns the wrapped driver.
func (t *Task) Driver() *Driver { return t.driver }

// Start attaches the echo capture and launches the sampling loop. Starting a
// running task is not an error. An attach failure is returned and the task
// stays stopped.
func (t *Task) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runningLocked() {
		monitoring.Logf("sonar: already running")
		return nil
	}

	if err := t.driver.Attach(); err != nil {
		t.err = err
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.cancel, t.done, t.err = cancel, done, nil

	go func() {
		defer close(done)
		defer func() {
			if err := t.driver.Detach(); err != nil {
				monitoring.Logf("sonar: failed to detach echo capture: %v", err)
			}
		}()
		err := t.driver.loop(runCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Logf("sonar: sampling loop stopped: %v", err)
			t.mu.Lock()
			t.err = err
			t.mu.Unlock()
		}
	}()

	monitoring.Logf("sonar: started")
	return nil
}

// Stop asks the sampling loop to exit and waits for it. The loop notices
// within one sample interval. Stopping a stopped task is a no-op.
func (t *Task) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	t.mu.Lock()
	if t.done == done {
		t.cancel = nil
	}
	t.mu.Unlock()
	monitoring.Logf("sonar: stopped")
}

// Running reports whether the sampling loop is active.
func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runningLocked()
}

// Err returns the last startup or loop failure, or nil.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Wait blocks until the running loop exits. It returns immediately if the
// task is not running.
func (t *Task) Wait() {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (t *Task) runningLocked() bool {
	if t.done == nil {
		return false
	}
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}
