package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/covaultio/covault/internal/models"
)

// PostgresAuditRepository is the append-only audit sink. Every grant
// issuance, role change, admin transfer, and settlement of a committed
// operation lands here, in order, for external monitoring to consume.
type PostgresAuditRepository struct {
	// DB is the database handle for executing queries and transactions.
	DB *sql.DB
}

// NewPostgresAuditRepository creates a new PostgresAuditRepository using
// the provided *sql.DB.
func NewPostgresAuditRepository(db *sql.DB) *PostgresAuditRepository {
	return &PostgresAuditRepository{DB: db}
}

// Append inserts the events of one committed operation inside a single
// transaction, preserving their order. An empty batch is a no-op.
func (r *PostgresAuditRepository) Append(ctx context.Context, events []models.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, e := range events {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO audit_events (action, handle_id, subject, context, at)
			VALUES ($1, $2, $3, $4, $5)
		`, e.Action, e.HandleID, e.Subject, e.Context, e.At)
		if err != nil {
			return fmt.Errorf("insert audit event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// List returns up to limit most recent events for the given owning
// context, newest first.
func (r *PostgresAuditRepository) List(ctx context.Context, owningContext string, limit int) ([]models.AuditEvent, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT seq, action, handle_id, subject, context, at FROM audit_events
		WHERE context = $1 ORDER BY seq DESC LIMIT $2
	`, owningContext, limit)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	var events []models.AuditEvent
	for rows.Next() {
		var e models.AuditEvent
		if err := rows.Scan(&e.Seq, &e.Action, &e.HandleID, &e.Subject, &e.Context, &e.At); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
