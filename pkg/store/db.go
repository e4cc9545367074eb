// Package store provides SQLite-based persistence with singleton database access.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver

	"maestro/pkg/logx"
)

// All database access goes through the singleton connection.
//
//nolint:gochecknoglobals // Intentional singleton pattern for database access
var (
	globalDB     *sql.DB
	globalDBOnce sync.Once
	globalDBMu   sync.RWMutex
	dbLogger     *logx.Logger
	projectID    string // Current project ID for all operations
)

// Initialize sets up the singleton database connection for the named
// project. The project keeps its id across restarts: an existing row
// with that name is reused, a first boot generates a fresh id.
// This must be called once at startup; subsequent calls are no-ops.
func Initialize(dbPath, projectName string) error {
	var initErr error

	globalDBOnce.Do(func() {
		dbLogger = logx.NewLogger("store")

		db, err := OpenDatabase(dbPath)
		if err != nil {
			initErr = err
			return
		}

		id, err := resolveProjectID(db, projectName)
		if err != nil {
			_ = db.Close()
			initErr = err
			return
		}

		globalDB = db
		projectID = id
		dbLogger.Info("Database initialized: %s (project: %s, id: %s)", dbPath, projectName, id)
	})

	return initErr
}

// resolveProjectID returns the id of the named project, generating a
// fresh one the first time the project is seen.
func resolveProjectID(db *sql.DB, name string) (string, error) {
	var id string
	err := db.QueryRow(`
		SELECT id FROM projects WHERE name = ? ORDER BY created_at LIMIT 1
	`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return GenerateProjectID(), nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve project id for %s: %w", name, err)
	}
	return id, nil
}

// GetDB returns the singleton database connection.
// Panics if Initialize has not been called.
func GetDB() *sql.DB {
	globalDBMu.RLock()
	defer globalDBMu.RUnlock()

	if globalDB == nil {
		panic("store.Initialize must be called before GetDB")
	}
	return globalDB
}

// GetProjectID returns the current project ID.
func GetProjectID() string {
	globalDBMu.RLock()
	defer globalDBMu.RUnlock()
	return projectID
}

// Close closes the database connection. Should be called during shutdown.
func Close() error {
	globalDBMu.Lock()
	defer globalDBMu.Unlock()

	if globalDB != nil {
		err := globalDB.Close()
		globalDB = nil
		if err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}
	return nil
}

// Ops returns a Store bound to the singleton connection.
// This is the primary way to perform database operations.
func Ops() *Store {
	return NewStore(GetDB(), GetProjectID())
}

// IsInitialized returns true if the database has been initialized.
func IsInitialized() bool {
	globalDBMu.RLock()
	defer globalDBMu.RUnlock()
	return globalDB != nil
}

// Reset closes the database and resets the singleton for testing.
// This should only be used in tests to allow re-initialization.
func Reset() error {
	globalDBMu.Lock()
	defer globalDBMu.Unlock()

	if globalDB != nil {
		if err := globalDB.Close(); err != nil {
			return fmt.Errorf("failed to close database during reset: %w", err)
		}
		globalDB = nil
	}

	globalDBOnce = sync.Once{}
	projectID = ""
	dbLogger = nil

	return nil
}
