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

// OpenSQLite opens (and creates if needed) the run journal database at path
// and ensures its tables exist. The path must be on a local filesystem.
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

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time keeps busy errors out of concurrent recorders.
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA journal_mode = WAL;",
	} {
		if _, err := db.ExecContext(pctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates the run journal tables and indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS run_log (
  id           TEXT PRIMARY KEY,
  state        TEXT NOT NULL,
  code         INTEGER NOT NULL DEFAULT 0,
  fingerprint  TEXT,
  executed     JSON NOT NULL DEFAULT '[]',
  started_at   TEXT NOT NULL,
  finished_at  TEXT
);`,
		`CREATE TABLE IF NOT EXISTS run_failure (
  run_id     TEXT PRIMARY KEY REFERENCES run_log(id) ON DELETE CASCADE,
  entry      TEXT NOT NULL,
  processor  TEXT NOT NULL,
  endpoint   TEXT,
  message    TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS run_log_started_at_idx ON run_log(started_at);`,
		`CREATE INDEX IF NOT EXISTS run_log_state_idx ON run_log(state);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
