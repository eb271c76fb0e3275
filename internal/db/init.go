package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS subjects (
    identity TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS audit_events (
    seq BIGSERIAL PRIMARY KEY,
    action TEXT NOT NULL,
    handle_id TEXT NOT NULL DEFAULT '',
    subject TEXT NOT NULL DEFAULT '',
    context TEXT NOT NULL,
    at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS commitments (
    id TEXT PRIMARY KEY,
    party_a TEXT NOT NULL,
    party_b TEXT NOT NULL,
    result_handle TEXT NOT NULL,
    state TEXT NOT NULL,
    revealed_value BYTEA
);
`

// InitPostgres opens a connection to the given DSN, verifies it, and
// ensures the covault tables exist.
func InitPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := EnsureSchema(db); err != nil {
		return nil, err
	}

	return db, nil
}

// EnsureSchema creates the subjects, audit_events, and commitments
// tables if they are missing.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}
