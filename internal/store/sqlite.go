package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	uid        TEXT PRIMARY KEY,
	email      TEXT NOT NULL DEFAULT '',
	screenname TEXT NOT NULL DEFAULT '',
	role       TEXT NOT NULL DEFAULT 'user',
	trusted    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS parameters (
	module_type TEXT NOT NULL,
	param_id    TEXT NOT NULL,
	name        TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	details     TEXT NOT NULL DEFAULT '',
	updated_by  TEXT NOT NULL DEFAULT '',
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	approved_by TEXT NOT NULL DEFAULT '',
	approved_at DATETIME,
	PRIMARY KEY (module_type, param_id)
);

CREATE TABLE IF NOT EXISTS pending (
	module_type     TEXT NOT NULL,
	param_id        TEXT NOT NULL,
	id              TEXT NOT NULL,
	name            TEXT NOT NULL DEFAULT '',
	description     TEXT NOT NULL DEFAULT '',
	details         TEXT NOT NULL DEFAULT '',
	old_value       TEXT NOT NULL DEFAULT '',
	new_value       TEXT NOT NULL DEFAULT '',
	old_name        TEXT NOT NULL DEFAULT '',
	new_name        TEXT NOT NULL DEFAULT '',
	old_description TEXT NOT NULL DEFAULT '',
	new_description TEXT NOT NULL DEFAULT '',
	old_details     TEXT NOT NULL DEFAULT '',
	new_details     TEXT NOT NULL DEFAULT '',
	submitted_by    TEXT NOT NULL DEFAULT '',
	submitted_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (module_type, param_id)
);

CREATE INDEX IF NOT EXISTS idx_pending_submitted_by ON pending(submitted_by);

CREATE TABLE IF NOT EXISTS rejected_parameters (
	id               TEXT PRIMARY KEY,
	module_type      TEXT NOT NULL,
	param_id         TEXT NOT NULL,
	name             TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	details          TEXT NOT NULL DEFAULT '',
	old_value        TEXT NOT NULL DEFAULT '',
	new_value        TEXT NOT NULL DEFAULT '',
	submitted_by     TEXT NOT NULL DEFAULT '',
	submitted_at     DATETIME,
	rejected_by      TEXT NOT NULL DEFAULT '',
	rejected_at      DATETIME,
	rejection_reason TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_rejected_submitted_by ON rejected_parameters(submitted_by);
CREATE INDEX IF NOT EXISTS idx_parameters_updated_by ON parameters(updated_by);
`

// SQLite implements Store on a local database file.
type SQLite struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &SQLite{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

// Verify *SQLite satisfies Store at compile time.
var _ Store = (*SQLite)(nil)
