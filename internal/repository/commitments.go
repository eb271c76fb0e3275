package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/covaultio/covault/internal/models"
)

// PostgresCommitmentRepository persists reveal commitments so their
// settlement state survives a restart.
type PostgresCommitmentRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresCommitmentRepository creates a new
// PostgresCommitmentRepository using the provided *sql.DB.
func NewPostgresCommitmentRepository(db *sql.DB) *PostgresCommitmentRepository {
	return &PostgresCommitmentRepository{DB: db}
}

// Save upserts the commitment. State only ever advances
// (created -> revealable -> settled), so last write wins is safe under
// the serialized operation model.
func (r *PostgresCommitmentRepository) Save(ctx context.Context, c models.RevealCommitment) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO commitments (id, party_a, party_b, result_handle, state, revealed_value)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			revealed_value = EXCLUDED.revealed_value
	`, c.ID, c.PartyA, c.PartyB, c.ResultHandle, string(c.State), c.RevealedValue)
	if err != nil {
		return fmt.Errorf("save commitment: %w", err)
	}
	return nil
}

// LoadAll returns every persisted commitment.
func (r *PostgresCommitmentRepository) LoadAll(ctx context.Context) ([]models.RevealCommitment, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, party_a, party_b, result_handle, state, revealed_value FROM commitments
	`)
	if err != nil {
		return nil, fmt.Errorf("LoadAll: %w", err)
	}
	defer rows.Close()

	var commitments []models.RevealCommitment
	for rows.Next() {
		var (
			c     models.RevealCommitment
			state string
		)
		if err := rows.Scan(&c.ID, &c.PartyA, &c.PartyB, &c.ResultHandle, &state, &c.RevealedValue); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		c.State = models.CommitmentState(state)
		commitments = append(commitments, c)
	}
	return commitments, rows.Err()
}
