package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"imagesynth/core"
	"imagesynth/logging"
)

// DefaultTimeout bounds the whole shutdown sequence.
const DefaultTimeout = 30 * time.Second

// Manager ties signal handling, in-flight tracking and ordered cleanup together.
//
// Usage:
//
//	manager := NewManager(logger, WithTimeout(cfg.ShutdownTimeout))
//	manager.Register("database", PriorityStorage, func(ctx context.Context) error {
//	    return database.Close()
//	})
//	manager.Start()
//
//	// in handlers
//	err := manager.Track(ctx, "generate", func(ctx context.Context) error { ... })
//
//	<-manager.Context().Done()
//	err = manager.Shutdown()
type Manager struct {
	logger  *logging.Logger
	timeout time.Duration

	mu       sync.Mutex
	started  bool
	shutdown bool
	lastSig  os.Signal

	ctx    context.Context
	cancel context.CancelFunc

	tracker  *OperationTracker
	registry *Registry
	signals  *SignalCounter

	sigChan chan os.Signal
	exit    func(code int)
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTimeout sets the shutdown timeout (default DefaultTimeout).
func WithTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// WithExitFunc replaces os.Exit for the forced exit on a second signal.
func WithExitFunc(exit func(code int)) ManagerOption {
	return func(m *Manager) {
		m.exit = exit
	}
}

// NewManager creates a Manager. Its context is cancelled by the first
// SIGINT or SIGTERM after Start, or by Trigger.
func NewManager(logger *logging.Logger, opts ...ManagerOption) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		logger:   logger.Named("shutdown"),
		timeout:  DefaultTimeout,
		ctx:      ctx,
		cancel:   cancel,
		tracker:  NewOperationTracker(),
		registry: NewRegistry(),
		sigChan:  make(chan os.Signal, 2),
		exit:     os.Exit,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.signals = NewSignalCounter(2, func() {
		m.logger.Warn("Received second signal, forcing immediate shutdown")
		_ = m.logger.Sync()
		m.exit(m.ExitCode())
	})
	return m
}

// Context is cancelled when shutdown begins.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Register adds a cleanup handler. Lower priority runs first; see the Priority constants.
func (m *Manager) Register(name string, priority int, fn Func) {
	m.registry.Register(name, priority, fn)
	m.logger.Debug("Registered shutdown handler",
		zap.String("name", name),
		zap.Int("priority", priority))
}

// Start listens for SIGINT and SIGTERM. Calling it twice is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return
	}
	m.started = true

	signal.Notify(m.sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range m.sigChan {
			m.handleSignal(sig)
		}
	}()
}

// Trigger starts shutdown as if sig had been received. Used by the service
// manager's Stop and by tests.
func (m *Manager) Trigger(sig os.Signal) {
	m.handleSignal(sig)
}

func (m *Manager) handleSignal(sig os.Signal) {
	m.mu.Lock()
	if m.lastSig == nil {
		m.lastSig = sig
	}
	m.mu.Unlock()

	if m.signals.Increment() == 1 {
		m.logger.Info("Received shutdown signal, initiating graceful shutdown",
			zap.String("signal", sig.String()))
		m.cancel()
	}
}

// ExitCode maps the first signal to its conventional exit status.
func (m *Manager) ExitCode() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.lastSig {
	case nil:
		return core.ExitCodeSuccess
	case syscall.SIGTERM:
		return core.ExitCodeSIGTERM
	default:
		return core.ExitCodeSIGINT
	}
}

// Track runs fn as an in-flight operation. Once shutdown has begun it returns
// ErrTrackerClosed without running fn.
func (m *Manager) Track(ctx context.Context, name string, fn func(context.Context) error) error {
	if !m.tracker.Start() {
		m.logger.Debug("Operation rejected, shutting down", zap.String("operation", name))
		return ErrTrackerClosed
	}
	defer m.tracker.Done()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

// Shutdown stops new operations, waits for running ones, then runs the
// cleanup handlers with whatever time remains (at least one second).
// It is idempotent.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	started := m.started
	m.mu.Unlock()

	m.cancel()
	begin := time.Now()
	m.logger.Info("Initiating graceful shutdown",
		zap.Duration("timeout", m.timeout),
		zap.Int("registered_handlers", m.registry.Count()))

	m.tracker.Close()
	if active := m.tracker.ActiveCount(); active > 0 {
		m.logger.Info("Waiting for in-flight generations", zap.Int64("active_count", active))
	}
	if err := m.tracker.Wait(m.timeout); err != nil {
		m.logger.Warn("Timeout waiting for in-flight generations",
			zap.Duration("waited", time.Since(begin)),
			zap.Int64("remaining_ops", m.tracker.ActiveCount()))
	}

	remaining := m.timeout - time.Since(begin)
	if remaining < time.Second {
		remaining = time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), remaining)
	defer cancel()

	errs := m.registry.Run(ctx)
	for _, err := range errs {
		m.logger.Error("Cleanup function failed", zap.Error(err))
	}

	if started {
		signal.Stop(m.sigChan)
	}

	if len(errs) > 0 {
		m.logger.Error("Shutdown completed with errors",
			zap.Duration("duration", time.Since(begin)),
			zap.Int("error_count", len(errs)))
		return errors.Join(errs...)
	}
	m.logger.Info("Graceful shutdown completed", zap.Duration("duration", time.Since(begin)))
	return nil
}

// ActiveOperations returns the number of in-flight operations.
func (m *Manager) ActiveOperations() int64 {
	return m.tracker.ActiveCount()
}

// IsShuttingDown reports whether shutdown has begun.
func (m *Manager) IsShuttingDown() bool {
	return m.ctx.Err() != nil || m.tracker.IsClosed()
}

// RegisteredHandlers returns handler names in execution order.
func (m *Manager) RegisteredHandlers() []string {
	return m.registry.Names()
}
