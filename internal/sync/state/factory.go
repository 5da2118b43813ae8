package state

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stacklok/toolhive-update-agent/internal/config"
)

// NewStore creates a Store based on the configured storage type.
//
// For file-based storage it returns a JSON file store at cfg.GetStateFilePath().
// For database storage it stores keys in the agent_state table; pool must not be nil.
func NewStore(cfg *config.Config, pool *pgxpool.Pool) (Store, error) {
	switch cfg.GetStorageType() {
	case config.StorageTypeDatabase:
		if pool == nil {
			return nil, fmt.Errorf("database pool is required when storage type is database")
		}
		return NewDBStore(pool), nil
	case config.StorageTypeFile:
		return NewFileStore(cfg.GetStateFilePath()), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.GetStorageType())
	}
}
