package writer

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stacklok/toolhive-update-agent/internal/config"
)

// NewHistoryWriter creates a HistoryWriter based on the configured storage type.
//
// Database storage appends to the sync_history table. File storage keeps no
// history beyond the status file, so entries are discarded.
func NewHistoryWriter(cfg *config.Config, pool *pgxpool.Pool) (HistoryWriter, error) {
	switch cfg.GetStorageType() {
	case config.StorageTypeDatabase:
		return NewDBHistoryWriter(pool)
	default:
		return NewNoopHistoryWriter(), nil
	}
}
