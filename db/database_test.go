package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// TestNewDatabase tests the Database factory function.
func TestNewDatabase(t *testing.T) {
	t.Run("creates migrated database with nested path", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "nested", "dir", "history.db")

		database, err := NewDatabase(dbPath)
		if err != nil {
			t.Fatalf("NewDatabase() error = %v", err)
		}
		defer database.Close()

		if err := database.Ping(context.Background()); err != nil {
			t.Errorf("Ping() error = %v", err)
		}
		if database.Path() != dbPath {
			t.Errorf("Path() = %v, want %v", database.Path(), dbPath)
		}
		if _, err := os.Stat(dbPath); err != nil {
			t.Errorf("database file was not created: %v", err)
		}
		if _, err := database.DB().Exec("SELECT COUNT(*) FROM provider_attempts"); err != nil {
			t.Errorf("schema not migrated: %v", err)
		}
	})

	t.Run("skips migrations on request", func(t *testing.T) {
		database, err := NewDatabaseWithConfig(DatabaseConfig{
			Path:           filepath.Join(t.TempDir(), "raw.db"),
			SkipMigrations: true,
		})
		if err != nil {
			t.Fatalf("NewDatabaseWithConfig() error = %v", err)
		}
		defer database.Close()

		if _, err := database.DB().Exec("SELECT COUNT(*) FROM provider_attempts"); err == nil {
			t.Error("expected missing table without migrations")
		}
	})

	t.Run("returns error for empty path", func(t *testing.T) {
		if _, err := NewDatabase(""); err == nil {
			t.Error("NewDatabase() expected error for empty path, got nil")
		}
	})
}

// TestDatabaseClose tests the Close method.
func TestDatabaseClose(t *testing.T) {
	database, err := NewDatabase(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewDatabase() error = %v", err)
	}

	if err := database.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := database.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := database.Ping(context.Background()); err == nil {
		t.Error("Ping() after Close() should fail")
	}
	if stats := database.Stats(); stats.OpenConnections != 0 {
		t.Errorf("Stats() after Close() = %+v", stats)
	}
}
