// Package repository provides PostgreSQL persistence for registered
// subjects, the append-only audit stream, and reveal commitments.
package repository

import (
	"context"
	"database/sql"
)

// PostgresSubjectRepository implements subject registration against a
// PostgreSQL database. Subjects are the identities client certificates
// are issued for.
type PostgresSubjectRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresSubjectRepository creates a new PostgresSubjectRepository
// with the given database connection.
func NewPostgresSubjectRepository(db *sql.DB) *PostgresSubjectRepository {
	return &PostgresSubjectRepository{DB: db}
}

// SubjectExists checks whether a subject with the given identity is
// registered.
func (s *PostgresSubjectRepository) SubjectExists(ctx context.Context, subject string) (bool, error) {
	var exists bool
	err := s.DB.QueryRowContext(
		ctx,
		`SELECT EXISTS(SELECT 1 FROM subjects WHERE identity = $1)`,
		subject,
	).Scan(&exists)
	return exists, err
}

// RegisterSubject records a new subject identity. Registering the same
// identity twice is a no-op thanks to ON CONFLICT DO NOTHING.
func (s *PostgresSubjectRepository) RegisterSubject(ctx context.Context, subject string) error {
	_, err := s.DB.ExecContext(
		ctx,
		`INSERT INTO subjects (identity) VALUES ($1) ON CONFLICT DO NOTHING`,
		subject,
	)
	return err
}
