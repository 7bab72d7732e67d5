package db

import (
	"context"
	"testing"
	"time"

	"imagesynth/imagegen"
)

// TestCleanup tests retention of old attempts.
func TestCleanup(t *testing.T) {
	database := newTestDatabase(t)
	repo := NewRepository(database, newTestLogger(t))
	ctx := context.Background()
	now := time.Now()

	for _, age := range []time.Duration{0, 24 * time.Hour, 40 * 24 * time.Hour, 90 * 24 * time.Hour} {
		if _, err := repo.InsertAttempt(ctx, AttemptFromEntry(sampleEntry("c", imagegen.RolePrimary, true, now.Add(-age)))); err != nil {
			t.Fatal(err)
		}
	}

	result, err := database.Cleanup(ctx, 30)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if result.AttemptsDeleted != 2 {
		t.Errorf("AttemptsDeleted = %d, want 2", result.AttemptsDeleted)
	}
	if count, _ := repo.CountAttempts(ctx); count != 2 {
		t.Errorf("remaining = %d, want 2", count)
	}
}

func TestCleanup_ZeroRetentionKeepsEverything(t *testing.T) {
	database := newTestDatabase(t)
	repo := NewRepository(database, newTestLogger(t))
	ctx := context.Background()
	repo.InsertAttempt(ctx, AttemptFromEntry(sampleEntry("c", imagegen.RolePrimary, true, time.Now().AddDate(-1, 0, 0))))

	result, err := database.Cleanup(ctx, 0)
	if err != nil || result.AttemptsDeleted != 0 {
		t.Errorf("Cleanup(0) = %+v, %v", result, err)
	}
	if count, _ := repo.CountAttempts(ctx); count != 1 {
		t.Errorf("remaining = %d, want 1", count)
	}
}

func TestCleanup_Errors(t *testing.T) {
	database := newTestDatabase(t)

	if _, err := database.Cleanup(context.Background(), -1); err == nil {
		t.Error("expected error for negative retention")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := database.DeleteBefore(ctx, time.Now()); err == nil {
		t.Error("expected error for cancelled context")
	}

	database.Close()
	if _, err := database.DeleteBefore(context.Background(), time.Now()); err == nil {
		t.Error("expected error for closed database")
	}
}

func TestStartCleanupScheduler(t *testing.T) {
	database := newTestDatabase(t)
	repo := NewRepository(database, newTestLogger(t))
	ctx, cancel := context.WithCancel(context.Background())

	repo.InsertAttempt(context.Background(), AttemptFromEntry(sampleEntry("old", imagegen.RolePrimary, true, time.Now().AddDate(0, 0, -60))))

	done := database.StartCleanupScheduler(ctx, CleanupSchedulerConfig{RetentionDays: 30, Interval: time.Hour}, newTestLogger(t))

	deadline := time.Now().Add(2 * time.Second)
	for {
		count, _ := repo.CountAttempts(context.Background())
		if count == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("initial cleanup did not run")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("scheduler did not stop after cancel")
	}
}
