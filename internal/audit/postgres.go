package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatcart/chatcart/internal/log"
)

// PostgresRecorder appends records to the interaction_records table.
// Schema lives in db/migrations.
type PostgresRecorder struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewPostgresRecorder creates a recorder over the given pool.
func NewPostgresRecorder(pool *pgxpool.Pool, logger log.Logger) *PostgresRecorder {
	if logger == nil {
		logger = log.NewNop()
	}
	return &PostgresRecorder{pool: pool, logger: logger}
}

// Append implements Recorder.
func (p *PostgresRecorder) Append(ctx context.Context, rec Record) error {
	sources := rec.Sources
	if sources == nil {
		sources = []string{} // column is NOT NULL
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO interaction_records
			(id, tenant_id, conversation_id, turn_id, provider, attempts,
			 resolution, resolved_item_id, sources, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.TenantID, rec.ConversationID, rec.TurnID,
		rec.Provider, rec.Attempts,
		rec.Resolution, rec.ResolvedItemID, sources, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("append interaction record %s: %w", rec.ID, err)
	}
	p.logger.Debug("interaction record appended",
		"id", rec.ID,
		"tenant", rec.TenantID,
		"provider", rec.Provider,
		"attempts", rec.Attempts,
	)
	return nil
}
