package supervisor

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure-Go, cgo-free SQLite driver registration
)

// defaultBusyTimeout mirrors the teacher's memory/sqlite store's busy
// timeout for single-writer SQLite databases.
const defaultBusyTimeout = 5000

// CrashStore persists crash/restart history for a supervised backend so
// that Status().Crashes24h survives a supervisor restart (SPEC_FULL.md
// §4.4 ADDED). It does not store chat records — only process lifecycle
// telemetry, which spec.md's Non-goals do not exclude.
type CrashStore struct {
	db *sql.DB
}

// OpenCrashStore opens (creating if necessary) a SQLite database at path
// and migrates its schema, following the teacher's
// modules/memory/sqlite/open.go connection-setup idiom: WAL mode, a busy
// timeout, and a single connection since SQLite serializes writes anyway.
func OpenCrashStore(path string) (*CrashStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("supervisor: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("supervisor: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("supervisor: enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("supervisor: set busy_timeout: %w", err)
	}
	if err := migrateCrashSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &CrashStore{db: db}, nil
}

func migrateCrashSchema(db *sql.DB) error {
	_, err := db.ExecContext(context.Background(), `CREATE TABLE IF NOT EXISTS crashes (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		backend     TEXT    NOT NULL,
		exit_code   INTEGER NOT NULL,
		occurred_at TEXT    NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("supervisor: migrate crashes table: %w", err)
	}
	return nil
}

// RecordCrash appends one crash event for backend.
func (s *CrashStore) RecordCrash(ctx context.Context, backend string, exitCode int, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO crashes (backend, exit_code, occurred_at) VALUES (?, ?, ?)",
		backend, exitCode, at.UTC().Format(time.RFC3339Nano))
	return err
}

// CrashesSince counts crash events for backend at or after since.
func (s *CrashStore) CrashesSince(ctx context.Context, backend string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM crashes WHERE backend = ? AND occurred_at >= ?",
		backend, since.UTC().Format(time.RFC3339Nano)).Scan(&count)
	return count, err
}

// Close releases the underlying database handle.
func (s *CrashStore) Close() error {
	return s.db.Close()
}
