package db

import (
	"context"
	"sync"
	"time"
)

// DefaultChannelCapacity is the default buffer size for async writes.
const DefaultChannelCapacity = 100

// DefaultDrainTimeout is the maximum time to wait for pending writes during shutdown.
const DefaultDrainTimeout = 30 * time.Second

// AsyncWriter runs a handler for queued values on one background goroutine so
// producers never wait on the database. Write never blocks: when the buffer is
// full or the writer is closed the value is rejected.
type AsyncWriter[T any] struct {
	writeChan chan T
	handler   func(T) error
	onError   func(T, error)
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc

	mu      sync.RWMutex
	started bool
	closed  bool
}

// AsyncWriterConfig holds configuration for the async writer.
type AsyncWriterConfig struct {
	// ChannelCapacity is the buffer size for pending writes
	ChannelCapacity int
	// DrainTimeout is the maximum wait time during shutdown
	DrainTimeout time.Duration
}

// DefaultAsyncWriterConfig returns the default configuration.
func DefaultAsyncWriterConfig() AsyncWriterConfig {
	return AsyncWriterConfig{
		ChannelCapacity: DefaultChannelCapacity,
		DrainTimeout:    DefaultDrainTimeout,
	}
}

// NewAsyncWriter creates a writer that calls handler for each value and
// onError (optional) when handler fails.
func NewAsyncWriter[T any](handler func(T) error, onError func(T, error), config AsyncWriterConfig) *AsyncWriter[T] {
	if config.ChannelCapacity <= 0 {
		config.ChannelCapacity = DefaultChannelCapacity
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &AsyncWriter[T]{
		writeChan: make(chan T, config.ChannelCapacity),
		handler:   handler,
		onError:   onError,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins background processing. Calling it twice is a no-op.
func (w *AsyncWriter[T]) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started || w.closed {
		return
	}
	w.started = true
	w.wg.Add(1)
	go w.processWrites()
}

func (w *AsyncWriter[T]) processWrites() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			w.drain()
			return
		case v := <-w.writeChan:
			w.handle(v)
		}
	}
}

// drain handles whatever is still buffered.
func (w *AsyncWriter[T]) drain() {
	for {
		select {
		case v := <-w.writeChan:
			w.handle(v)
		default:
			return
		}
	}
}

func (w *AsyncWriter[T]) handle(v T) {
	if err := w.handler(v); err != nil && w.onError != nil {
		w.onError(v, err)
	}
}

// Write queues v. It returns false if the buffer is full or the writer is closed.
func (w *AsyncWriter[T]) Write(v T) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return false
	}
	select {
	case w.writeChan <- v:
		return true
	default:
		return false
	}
}

// Pending returns the number of values waiting in the buffer.
func (w *AsyncWriter[T]) Pending() int {
	return len(w.writeChan)
}

// IsStarted reports whether the background goroutine is running.
func (w *AsyncWriter[T]) IsStarted() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.started && !w.closed
}

// Close rejects further writes, drains the buffer and waits up to timeout for
// the background goroutine. It returns false on timeout.
func (w *AsyncWriter[T]) Close(timeout time.Duration) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return true
	}
	w.closed = true
	started := w.started
	w.mu.Unlock()

	w.cancel()
	if !started {
		w.drain()
		return true
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
