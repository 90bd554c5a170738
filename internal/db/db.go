package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicate    = errors.New("duplicate record")
	ErrDatabaseInit = errors.New("database initialization failed")
)

// DB wraps the SQLite connection pool.
type DB struct {
	conn *sql.DB
}

// connectionPragmas run on every pooled connection, so foreign keys and the
// busy timeout hold no matter which connection serves a query.
var connectionPragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"foreign_keys(1)",
	"synchronous(NORMAL)",
}

func dsn(dbPath string) string {
	params := make([]string, len(connectionPragmas))
	for i, p := range connectionPragmas {
		params[i] = "_pragma=" + p
	}
	return "file:" + dbPath + "?" + strings.Join(params, "&")
}

// New opens the database at dbPath and applies the schema.
func New(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("%w: failed to create directory: %w", ErrDatabaseInit, err)
	}

	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", ErrDatabaseInit, err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: failed to open database: %w", ErrDatabaseInit, err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}

	// File may not exist yet in WAL mode.
	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Ping checks the database connection.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// PingContext checks the database connection with a deadline.
func (db *DB) PingContext(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS connections (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			region TEXT NOT NULL,
			account_id TEXT NOT NULL,
			passcode TEXT NOT NULL,
			created_by TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS sync_configurations (
			id TEXT PRIMARY KEY,
			connection_id TEXT NOT NULL,
			name TEXT NOT NULL,
			sync_type TEXT NOT NULL,
			source_entity TEXT NOT NULL,
			target_entity TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'Inactive',
			cursor INTEGER NOT NULL DEFAULT 0,
			last_synced_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (connection_id) REFERENCES connections(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_configurations_connection ON sync_configurations(connection_id, source_entity)`,

		`CREATE TABLE IF NOT EXISTS field_mappings (
			id TEXT PRIMARY KEY,
			sync_id TEXT NOT NULL,
			field TEXT NOT NULL,
			source_field TEXT NOT NULL,
			data_type TEXT NOT NULL DEFAULT 'Text',
			is_mandatory INTEGER NOT NULL DEFAULT 0,
			position INTEGER NOT NULL DEFAULT 0,
			UNIQUE(sync_id, field),
			FOREIGN KEY (sync_id) REFERENCES sync_configurations(id) ON DELETE CASCADE
		)`,

		// Event logs outlive their sync configuration, so no foreign key.
		`CREATE TABLE IF NOT EXISTS event_logs (
			id TEXT PRIMARY KEY,
			seq INTEGER NOT NULL UNIQUE,
			name TEXT NOT NULL,
			sync_id TEXT NOT NULL,
			status TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			response TEXT NOT NULL DEFAULT '',
			record_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_event_logs_created_at ON event_logs(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_event_logs_sync_id ON event_logs(sync_id)`,

		`CREATE TABLE IF NOT EXISTS source_records (
			entity TEXT NOT NULL,
			record_id TEXT NOT NULL,
			fields TEXT NOT NULL,
			rev INTEGER NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (entity, record_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_source_records_rev ON source_records(entity, rev)`,
	}

	for _, migration := range migrations {
		if _, err := db.conn.Exec(migration); err != nil {
			if !isDuplicateColumnError(err) {
				return fmt.Errorf("%w: migration failed: %w", ErrDatabaseInit, err)
			}
		}
	}

	return nil
}

// isDuplicateColumnError reports whether an ALTER TABLE migration was already applied.
func isDuplicateColumnError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate column") || strings.Contains(errStr, "already exists")
}

// withTx runs fn inside a transaction, rolling back on error.
func (db *DB) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// affectedOrNotFound converts a zero-row write into ErrNotFound.
func affectedOrNotFound(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
