package shutdown

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestOperationTracker_StartDone(t *testing.T) {
	tracker := NewOperationTracker()

	if !tracker.Start() {
		t.Fatal("Start should succeed on an open tracker")
	}
	if tracker.ActiveCount() != 1 {
		t.Errorf("expected 1 active, got %d", tracker.ActiveCount())
	}
	tracker.Done()
	if tracker.ActiveCount() != 0 {
		t.Errorf("expected 0 active, got %d", tracker.ActiveCount())
	}
}

func TestOperationTracker_CloseRejectsNew(t *testing.T) {
	tracker := NewOperationTracker()
	tracker.Close()

	if !tracker.IsClosed() {
		t.Error("tracker should report closed")
	}
	if tracker.Start() {
		t.Error("Start should fail after Close")
	}
}

func TestOperationTracker_WaitCompletes(t *testing.T) {
	tracker := NewOperationTracker()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		if !tracker.Start() {
			t.Fatal("Start failed")
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			time.Sleep(10 * time.Millisecond)
			tracker.Done()
		}()
	}

	if err := tracker.Wait(2 * time.Second); err != nil {
		t.Errorf("Wait failed: %v", err)
	}
	wg.Wait()
}

func TestOperationTracker_WaitTimeout(t *testing.T) {
	tracker := NewOperationTracker()
	tracker.Start()
	defer tracker.Done()

	err := tracker.Wait(20 * time.Millisecond)
	if !errors.Is(err, ErrWaitTimeout) {
		t.Errorf("expected ErrWaitTimeout, got %v", err)
	}
}

func TestOperationTracker_WaitIdle(t *testing.T) {
	tracker := NewOperationTracker()
	if err := tracker.Wait(time.Millisecond); err != nil {
		t.Errorf("Wait on idle tracker should return immediately: %v", err)
	}
}
