package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Current schema
const currentSchemaVersion = 1

// Store owns the single exclusive connection to the analytical SQLite
// database. Exactly one process may hold it at a time; the lock lives in
// the storage layer, not in application code, because the constraint is
// cross-process.
type Store struct {
	db *sql.DB
}

// Open creates or opens the analytical database at path and takes the
// exclusive file lock. A second process calling Open on the same path
// fails here, which is the single-writer invariant the broker relies on.
//
// The database is configured with:
//   - EXCLUSIVE locking mode (held for the life of the connection)
//   - NORMAL synchronous mode
//   - short busy timeout so a locked database fails fast instead of hanging
//   - foreign key enforcement
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_locking_mode=EXCLUSIVE&_synchronous=NORMAL&_busy_timeout=250&_foreign_keys=on", path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite supports one writer; a second connection would only queue
	// behind the exclusive lock.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// Applying the schema is the first write and therefore the moment the
	// exclusive lock is actually taken. If another broker already holds
	// it, this fails within the busy timeout.
	if err := applySchema(db); err != nil {
		db.Close()
		if locked(err) {
			return nil, fmt.Errorf("database %s is locked by another process: %w", path, err)
		}
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database and its exclusive lock.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying handle for the raw query/write handlers.
// Everything else should go through Store methods.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Tx runs fn inside a single transaction. Handlers that mutate the store
// use this so partial writes are never visible to later requests.
func (s *Store) Tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return runMigrations(db)
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version >= currentSchemaVersion {
		return nil
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func locked(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}
