// Package shutdown coordinates graceful shutdown: signal handling, waiting
// for in-flight generations and running ordered cleanup.
package shutdown

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrTrackerClosed is returned when trying to start an operation on a closed tracker.
var ErrTrackerClosed = errors.New("shutdown: operation tracker is closed")

// ErrWaitTimeout is returned when Wait times out before all operations complete.
var ErrWaitTimeout = errors.New("shutdown: operations did not complete in time")

// OperationTracker counts in-flight operations so shutdown can wait for them.
//
// Usage:
//
//	if !tracker.Start() {
//	    return ErrTrackerClosed
//	}
//	defer tracker.Done()
type OperationTracker struct {
	wg     sync.WaitGroup
	mu     sync.Mutex
	active int64
	closed bool
}

// NewOperationTracker creates an open tracker.
func NewOperationTracker() *OperationTracker {
	return &OperationTracker{}
}

// Start registers an operation. It returns false once the tracker is closed;
// on true the caller must call Done exactly once.
func (t *OperationTracker) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}
	t.wg.Add(1)
	atomic.AddInt64(&t.active, 1)
	return true
}

// Done marks an operation as complete.
func (t *OperationTracker) Done() {
	atomic.AddInt64(&t.active, -1)
	t.wg.Done()
}

// Wait blocks until all operations finish or timeout elapses.
func (t *OperationTracker) Wait(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrWaitTimeout
	}
}

// Close stops new operations from starting. Running ones are unaffected.
func (t *OperationTracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

// ActiveCount returns the current number of active operations.
func (t *OperationTracker) ActiveCount() int64 {
	return atomic.LoadInt64(&t.active)
}

// IsClosed reports whether Close has been called.
func (t *OperationTracker) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
