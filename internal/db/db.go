// Package db provides the SQLite connection and schema for relayboard.
package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema. ":memory:" opens a
// private in-memory database.
func Open(dbPath string) (*DB, error) {
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	if dbPath == ":memory:" || strings.HasPrefix(dbPath, "file::memory:") {
		dsn = dbPath
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite has a single writer; one connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Mutation ledger - append-only history of every mutating device call
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS mutation_ledger (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			op TEXT NOT NULL,
			request_id TEXT,
			relay_id INTEGER,
			rule_id INTEGER,
			status INTEGER,
			error TEXT,
			payload TEXT,
			duration_ms INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_type_ts ON mutation_ledger(event_type, timestamp);
		CREATE INDEX IF NOT EXISTS idx_ledger_relay ON mutation_ledger(relay_id, timestamp);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_request
			ON mutation_ledger(request_id) WHERE request_id IS NOT NULL AND request_id != '';
	`)
	if err != nil {
		return fmt.Errorf("failed to create mutation_ledger table: %w", err)
	}

	// Resource state - last good view, JSON payloads keyed by (kind, id)
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS resource_state (
			kind TEXT NOT NULL,
			id TEXT NOT NULL,
			payload TEXT NOT NULL,
			version INTEGER DEFAULT 1,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (kind, id)
		);
		CREATE INDEX IF NOT EXISTS idx_resource_state_kind ON resource_state(kind);
	`)
	if err != nil {
		return fmt.Errorf("failed to create resource_state table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
