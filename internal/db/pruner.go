package db

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// StartAuditPruner deletes audit events older than retention with interval
func StartAuditPruner(
	ctx context.Context,
	db *sql.DB,
	interval time.Duration,
	retention time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-retention)
				res, err := db.ExecContext(ctx, `
                    DELETE FROM audit_events
                     WHERE at < $1
                `, cutoff)
				if err != nil {
					log.Error("failed to prune audit events", zap.Error(err))
					continue
				}
				if rows, _ := res.RowsAffected(); rows > 0 {
					log.Info("pruned audit events", zap.Int64("removed", rows))
				}
			}
		}
	}()
}
