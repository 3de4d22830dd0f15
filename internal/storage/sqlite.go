// Package storage opens the sqlite database that backs the spec cache and
// the invocation history.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// OpenSQLite opens (creating if needed) the database at path and bootstraps
// the schema. Paths on network filesystems are refused.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
		if err := checkLocalFilesystem(path, detectFilesystemType); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == MemoryPath {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, pragma := range []string{"PRAGMA foreign_keys = ON;", "PRAGMA busy_timeout = 5000;"} {
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

// BootstrapSQLite creates missing tables and indexes.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS spec_cache (
  name       TEXT PRIMARY KEY,
  hash       TEXT NOT NULL,
  digest     TEXT NOT NULL,
  canonical  JSON NOT NULL,
  updated_at TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS invocation_log (
  id           TEXT PRIMARY KEY,
  operation    TEXT NOT NULL,
  argv         JSON NOT NULL,
  outcome      TEXT NOT NULL,
  success      INTEGER NOT NULL,
  exit_code    INTEGER NOT NULL,
  response     JSON NOT NULL,
  started_at   TEXT NOT NULL,
  completed_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS invocation_log_completed_at_idx ON invocation_log(completed_at);`,
		`CREATE INDEX IF NOT EXISTS invocation_log_operation_idx ON invocation_log(operation, completed_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
