// Package history provides SQLite-backed storage for coverage run
// history. Runs are stored in .dbtcov/history.db so successive
// invocations can be listed and compared for regressions.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ErrNoRuns is returned when the store holds no recorded runs.
var ErrNoRuns = errors.New("no recorded runs")

// Store manages the .dbtcov/history.db SQLite database holding
// recorded coverage runs.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open opens or creates the history database in the specified .dbtcov
// directory. It initializes the schema if the database is new.
func Open(configDir string) (*Store, error) {
	dbPath := filepath.Join(configDir, "history.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	store := &Store{db: db, dbPath: dbPath}

	// Initialize schema
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// DB returns the underlying database connection for advanced operations.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Count returns the number of recorded runs.
func (s *Store) Count() (int64, error) {
	var count int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return count, nil
}
