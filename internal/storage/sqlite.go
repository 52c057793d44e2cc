// Package storage opens the gateway's SQLite database.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist. The path must be on a local filesystem.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := validateSQLiteFilesystem(path); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates tables and indexes if missing.
//
// executor_actions stores each dispatch request as submitted; the JSON is
// kept verbatim so older records can be re-read through the request decoder.
// execution_processes has one row per spawned (or failed) process.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS executor_actions (
  id          TEXT PRIMARY KEY,
  executor    TEXT NOT NULL,
  profile     TEXT NOT NULL,
  request     JSON NOT NULL,
  created_at  TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS execution_processes (
  id            TEXT PRIMARY KEY,
  action_id     TEXT NOT NULL REFERENCES executor_actions(id),
  attempt_id    TEXT,
  context       JSON,
  working_dir   TEXT NOT NULL,
  status        TEXT NOT NULL,
  pid           INTEGER,
  exit_code     INTEGER,
  last_error    TEXT,
  started_at    TEXT NOT NULL,
  completed_at  TEXT
);`,
		`CREATE INDEX IF NOT EXISTS execution_processes_action_idx ON execution_processes(action_id);`,
		`CREATE INDEX IF NOT EXISTS execution_processes_status_idx ON execution_processes(status, started_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
