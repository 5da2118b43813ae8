package writer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const insertHistoryQuery = `
INSERT INTO sync_history (id, trigger, status, label, message, started_at, finished_at)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7)`

// dbHistoryWriter appends entries to the sync_history table
type dbHistoryWriter struct {
	pool *pgxpool.Pool
}

// NewDBHistoryWriter creates a HistoryWriter with the given connection pool.
// The caller is responsible for closing the pool when done.
func NewDBHistoryWriter(pool *pgxpool.Pool) (HistoryWriter, error) {
	if pool == nil {
		return nil, fmt.Errorf("pgx pool is required")
	}
	return &dbHistoryWriter{pool: pool}, nil
}

func (d *dbHistoryWriter) Record(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("history entry is required")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate history id: %w", err)
	}

	_, err = d.pool.Exec(ctx, insertHistoryQuery,
		id,
		entry.Trigger,
		entry.Status,
		entry.Label,
		entry.Message,
		entry.StartedAt,
		entry.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record sync history: %w", err)
	}
	return nil
}
