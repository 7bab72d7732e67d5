package shutdown

import (
	"sync"
	"testing"
)

func TestSignalCounter_ForcesOnSecond(t *testing.T) {
	forced := 0
	counter := NewSignalCounter(2, func() { forced++ })

	if n := counter.Increment(); n != 1 {
		t.Errorf("expected count 1, got %d", n)
	}
	if forced != 0 {
		t.Error("first signal should not force")
	}

	if n := counter.Increment(); n != 2 {
		t.Errorf("expected count 2, got %d", n)
	}
	if forced != 1 {
		t.Errorf("expected one forced callback, got %d", forced)
	}
}

func TestSignalCounter_NilCallback(t *testing.T) {
	counter := NewSignalCounter(1, nil)
	counter.Increment()
	counter.Increment()
	if counter.Count() != 2 {
		t.Errorf("expected count 2, got %d", counter.Count())
	}
}

func TestSignalCounter_Concurrent(t *testing.T) {
	counter := NewSignalCounter(1000, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			counter.Increment()
		}()
	}
	wg.Wait()

	if counter.Count() != 50 {
		t.Errorf("expected count 50, got %d", counter.Count())
	}
}
