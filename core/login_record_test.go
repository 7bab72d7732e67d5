package core

import (
	"testing"
	"time"
)

func TestNewLoginRecord(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := NewLoginRecord(now, DefaultLoginWindow)

	if r.Failures != 1 {
		t.Errorf("Failures = %d, want 1", r.Failures)
	}
	if !r.ResetAt.Equal(now.Add(15 * time.Minute)) {
		t.Errorf("ResetAt = %v, want %v", r.ResetAt, now.Add(15*time.Minute))
	}
}

func TestLoginRecord_Blocked(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		want     bool
	}{
		{"below limit", 3, false},
		{"at limit", 5, true},
		{"above limit", 7, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := LoginRecord{Failures: tt.failures}
			if got := r.Blocked(DefaultLoginMaxFailures); got != tt.want {
				t.Errorf("Blocked() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoginRecord_Fail(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("increments within window", func(t *testing.T) {
		r := LoginRecord{Failures: 2, ResetAt: now.Add(time.Minute)}
		next := r.Fail(now, DefaultLoginWindow, DefaultLoginBlock, DefaultLoginMaxFailures)
		if next.Failures != 3 {
			t.Errorf("Failures = %d, want 3", next.Failures)
		}
		if !next.ResetAt.Equal(r.ResetAt) {
			t.Errorf("ResetAt changed unexpectedly")
		}
	})

	t.Run("extends to block duration at limit", func(t *testing.T) {
		r := LoginRecord{Failures: 4, ResetAt: now.Add(time.Minute)}
		next := r.Fail(now, DefaultLoginWindow, DefaultLoginBlock, DefaultLoginMaxFailures)
		if !next.Blocked(DefaultLoginMaxFailures) {
			t.Fatal("expected record to be blocked")
		}
		if got := next.Remaining(now); got != 30*time.Minute {
			t.Errorf("Remaining() = %v, want 30m", got)
		}
	})

	t.Run("restarts when expired", func(t *testing.T) {
		r := LoginRecord{Failures: 9, ResetAt: now.Add(-time.Minute)}
		next := r.Fail(now, DefaultLoginWindow, DefaultLoginBlock, DefaultLoginMaxFailures)
		if next.Failures != 1 {
			t.Errorf("Failures = %d, want 1", next.Failures)
		}
	})
}

func TestLoginRecord_RemainingNeverNegative(t *testing.T) {
	now := time.Now()
	r := LoginRecord{Failures: 1, ResetAt: now.Add(-time.Hour)}
	if got := r.Remaining(now); got != 0 {
		t.Errorf("Remaining() = %v, want 0", got)
	}
}
