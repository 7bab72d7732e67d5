package shutdown

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"imagesynth/core"
)

func TestManager_NewManager(t *testing.T) {
	manager := NewManager(newTestLogger(t))

	if manager.Context() == nil {
		t.Error("Context should not be nil")
	}
	if manager.IsShuttingDown() {
		t.Error("New manager should not be shutting down")
	}
	if manager.ActiveOperations() != 0 {
		t.Errorf("expected 0 active operations, got %d", manager.ActiveOperations())
	}
	if manager.timeout != DefaultTimeout {
		t.Errorf("expected default timeout %v, got %v", DefaultTimeout, manager.timeout)
	}
	if manager.ExitCode() != core.ExitCodeSuccess {
		t.Errorf("expected exit code 0 before any signal, got %d", manager.ExitCode())
	}
}

func TestManager_WithTimeout(t *testing.T) {
	manager := NewManager(newTestLogger(t), WithTimeout(5*time.Second))
	if manager.timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %v", manager.timeout)
	}

	// Non-positive values keep the default
	manager = NewManager(newTestLogger(t), WithTimeout(0))
	if manager.timeout != DefaultTimeout {
		t.Errorf("expected default timeout, got %v", manager.timeout)
	}
}

func TestManager_Register(t *testing.T) {
	manager := NewManager(newTestLogger(t))

	manager.Register("logger", PriorityLogger, func(ctx context.Context) error { return nil })
	manager.Register("http", PriorityHTTP, func(ctx context.Context) error { return nil })
	manager.Register("database", PriorityStorage, func(ctx context.Context) error { return nil })

	handlers := manager.RegisteredHandlers()
	expected := []string{"http", "database", "logger"}
	if len(handlers) != len(expected) {
		t.Fatalf("expected %d handlers, got %d", len(expected), len(handlers))
	}
	for i, name := range expected {
		if handlers[i] != name {
			t.Errorf("expected handler %d to be %q, got %q", i, name, handlers[i])
		}
	}
}

func TestManager_ShutdownRunsHandlersInOrder(t *testing.T) {
	manager := NewManager(newTestLogger(t))

	var mu sync.Mutex
	var order []string
	record := func(name string) Func {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	manager.Register("temp-files", PriorityTempFile, record("temp-files"))
	manager.Register("http", PriorityHTTP, record("http"))
	manager.Register("history", PriorityWorkers, record("history"))

	if err := manager.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	expected := []string{"http", "history", "temp-files"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d handler calls, got %v", len(expected), order)
	}
	for i := range expected {
		if order[i] != expected[i] {
			t.Errorf("position %d: expected %q, got %q", i, expected[i], order[i])
		}
	}
	if !manager.IsShuttingDown() {
		t.Error("manager should report shutting down")
	}
	if manager.Context().Err() == nil {
		t.Error("context should be cancelled after Shutdown")
	}
}

func TestManager_ShutdownJoinsErrors(t *testing.T) {
	manager := NewManager(newTestLogger(t))
	errDB := errors.New("database locked")

	var called atomic.Bool
	manager.Register("database", PriorityStorage, func(ctx context.Context) error { return errDB })
	manager.Register("logger", PriorityLogger, func(ctx context.Context) error {
		called.Store(true)
		return nil
	})

	err := manager.Shutdown()
	if !errors.Is(err, errDB) {
		t.Fatalf("expected error wrapping %v, got %v", errDB, err)
	}
	if !called.Load() {
		t.Error("handlers after a failing one should still run")
	}
}

func TestManager_ShutdownIsIdempotent(t *testing.T) {
	manager := NewManager(newTestLogger(t))

	var calls atomic.Int32
	manager.Register("counter", PriorityHTTP, func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})

	for i := 0; i < 3; i++ {
		if err := manager.Shutdown(); err != nil {
			t.Fatalf("Shutdown %d failed: %v", i, err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("expected handler to run once, ran %d times", calls.Load())
	}
}

func TestManager_TrackRunsOperation(t *testing.T) {
	manager := NewManager(newTestLogger(t))

	var ran bool
	err := manager.Track(context.Background(), "generate", func(ctx context.Context) error {
		ran = true
		if manager.ActiveOperations() != 1 {
			t.Errorf("expected 1 active operation inside Track, got %d", manager.ActiveOperations())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Track failed: %v", err)
	}
	if !ran {
		t.Error("operation did not run")
	}
	if manager.ActiveOperations() != 0 {
		t.Errorf("expected 0 active operations after Track, got %d", manager.ActiveOperations())
	}
}

func TestManager_TrackPropagatesError(t *testing.T) {
	manager := NewManager(newTestLogger(t))
	want := errors.New("provider unavailable")

	err := manager.Track(context.Background(), "generate", func(ctx context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
}

func TestManager_TrackRejectedAfterShutdown(t *testing.T) {
	manager := NewManager(newTestLogger(t))
	if err := manager.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	err := manager.Track(context.Background(), "generate", func(ctx context.Context) error {
		t.Error("operation should not run after shutdown")
		return nil
	})
	if !errors.Is(err, ErrTrackerClosed) {
		t.Errorf("expected ErrTrackerClosed, got %v", err)
	}
}

func TestManager_TrackCancelledContext(t *testing.T) {
	manager := NewManager(newTestLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := manager.Track(ctx, "generate", func(ctx context.Context) error {
		t.Error("operation should not run with a cancelled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestManager_ShutdownWaitsForInFlight(t *testing.T) {
	manager := NewManager(newTestLogger(t), WithTimeout(5*time.Second))

	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool

	go func() {
		_ = manager.Track(context.Background(), "generate", func(ctx context.Context) error {
			close(started)
			<-release
			finished.Store(true)
			return nil
		})
	}()
	<-started

	var handlerSawFinished atomic.Bool
	manager.Register("check", PriorityHTTP, func(ctx context.Context) error {
		handlerSawFinished.Store(finished.Load())
		return nil
	})

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()

	if err := manager.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if !handlerSawFinished.Load() {
		t.Error("cleanup handlers ran before the in-flight operation finished")
	}
}

func TestManager_ShutdownTimeoutStillRunsHandlers(t *testing.T) {
	manager := NewManager(newTestLogger(t), WithTimeout(50*time.Millisecond))

	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	go func() {
		_ = manager.Track(context.Background(), "stuck", func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	var ran atomic.Bool
	manager.Register("database", PriorityStorage, func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("handler context should carry a deadline")
		}
		ran.Store(true)
		return nil
	})

	if err := manager.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if !ran.Load() {
		t.Error("handlers should run after the wait times out")
	}
}

func TestManager_TriggerCancelsContext(t *testing.T) {
	manager := NewManager(newTestLogger(t))

	manager.Trigger(syscall.SIGTERM)

	select {
	case <-manager.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("context was not cancelled by the first signal")
	}
	if manager.ExitCode() != core.ExitCodeSIGTERM {
		t.Errorf("expected exit code %d, got %d", core.ExitCodeSIGTERM, manager.ExitCode())
	}
}

func TestManager_SecondSignalForcesExit(t *testing.T) {
	var exitCode atomic.Int32
	exitCode.Store(-1)

	manager := NewManager(newTestLogger(t), WithExitFunc(func(code int) {
		exitCode.Store(int32(code))
	}))

	manager.Trigger(syscall.SIGINT)
	if exitCode.Load() != -1 {
		t.Fatal("first signal should not force exit")
	}

	manager.Trigger(syscall.SIGTERM)
	if got := exitCode.Load(); got != core.ExitCodeSIGINT {
		t.Errorf("expected forced exit with %d (first signal), got %d", core.ExitCodeSIGINT, got)
	}
}

func TestManager_StartTwice(t *testing.T) {
	manager := NewManager(newTestLogger(t))
	manager.Start()
	manager.Start()

	if err := manager.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}
