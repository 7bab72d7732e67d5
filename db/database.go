package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Database owns the SQLite connection for the attempt history. It creates the
// file and its directory on open and applies the embedded migrations.
//
// Usage:
//
//	database, err := NewDatabase("data/history.db")
//	if err != nil {
//	    return err
//	}
//	defer database.Close()
type Database struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// DatabaseConfig holds configuration for Database.
type DatabaseConfig struct {
	// Path is the database file path
	Path string
	// SkipMigrations leaves the schema untouched (used by migration tests)
	SkipMigrations bool
	// ConnectionConfig allows customizing the SQLite connection
	ConnectionConfig *ConnectionConfig
}

// NewDatabase opens path, creating it if needed, and migrates it to the latest schema.
func NewDatabase(path string) (*Database, error) {
	return NewDatabaseWithConfig(DatabaseConfig{Path: path})
}

// NewDatabaseWithConfig opens a Database with custom configuration.
func NewDatabaseWithConfig(config DatabaseConfig) (*Database, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	dir := filepath.Dir(config.Path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	// golang-migrate closes the connection it is given, so migrations run on
	// their own connection before the long-lived one is opened
	if !config.SkipMigrations {
		if err := MigrateUpFromPath(config.Path); err != nil {
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}

	connConfig := DefaultConnectionConfig(config.Path)
	if config.ConnectionConfig != nil {
		connConfig = *config.ConnectionConfig
		connConfig.Path = config.Path
	}

	conn, err := NewSQLiteConnection(connConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	return &Database{db: conn, path: config.Path}, nil
}

// DB returns the underlying connection for repositories. Do not close it;
// use Database.Close.
func (d *Database) DB() *sql.DB {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.path
}

// Close closes the connection. It is safe to call more than once.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil
	}
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	d.db = nil
	return nil
}

// Ping verifies the connection is alive.
func (d *Database) Ping(ctx context.Context) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return errClosed
	}
	return d.db.PingContext(ctx)
}

// Stats returns connection pool statistics.
func (d *Database) Stats() sql.DBStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return sql.DBStats{}
	}
	return d.db.Stats()
}

// conn returns the live connection or errClosed.
func (d *Database) conn() (*sql.DB, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.db == nil {
		return nil, errClosed
	}
	return d.db, nil
}
