package shutdown

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestCleanupTempFiles_RemovesOnlyTempFiles(t *testing.T) {
	dir := t.TempDir()

	tempFiles := []string{".tmp-123456", ".tmp-abcdef"}
	for _, f := range tempFiles {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("partial"), 0644); err != nil {
			t.Fatalf("Failed to create %s: %v", f, err)
		}
	}
	keep := []string{"mountain_lake_20261019_101500.png", "mountain_lake_20261019_101500.json"}
	for _, f := range keep {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("final"), 0644); err != nil {
			t.Fatalf("Failed to create %s: %v", f, err)
		}
	}

	fn := CleanupTempFiles(newTestLogger(t), dir)
	if err := fn(context.Background()); err != nil {
		t.Fatalf("cleanup returned error: %v", err)
	}

	for _, f := range tempFiles {
		if _, err := os.Stat(filepath.Join(dir, f)); !os.IsNotExist(err) {
			t.Errorf("temp file %s should have been removed", f)
		}
	}
	for _, f := range keep {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			t.Errorf("artifact %s should be kept: %v", f, err)
		}
	}
}

func TestRemoveTempFiles_Count(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{".tmp-1", ".tmp-2", ".tmp-3"} {
		if err := os.WriteFile(filepath.Join(dir, f), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}

	if n := RemoveTempFiles(context.Background(), newTestLogger(t), dir); n != 3 {
		t.Errorf("expected 3 removed, got %d", n)
	}
	if n := RemoveTempFiles(context.Background(), newTestLogger(t), dir); n != 0 {
		t.Errorf("expected 0 removed on second pass, got %d", n)
	}
}

func TestRemoveTempFiles_MissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "does-not-exist")
	if n := RemoveTempFiles(context.Background(), newTestLogger(t), dir); n != 0 {
		t.Errorf("expected 0 removed, got %d", n)
	}
}

func TestRemoveTempFiles_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".tmp-1"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if n := RemoveTempFiles(ctx, newTestLogger(t), dir); n != 0 {
		t.Errorf("expected nothing removed with cancelled context, got %d", n)
	}
	if _, err := os.Stat(filepath.Join(dir, ".tmp-1")); err != nil {
		t.Errorf("file should remain: %v", err)
	}
}
