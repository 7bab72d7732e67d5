package db

import (
	"path/filepath"
	"testing"

	"imagesynth/logging"
)

// newTestDatabase opens a migrated database in a temp directory.
func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	database, err := NewDatabase(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewDatabase() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

// newTestLogger creates a logger for testing
func newTestLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger, err := logging.NewLogger(true, filepath.Join(t.TempDir(), "test.log"))
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	t.Cleanup(func() { logger.Sync() })
	return logger
}
