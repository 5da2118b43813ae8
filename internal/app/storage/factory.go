// Package storage creates the storage-dependent components of the agent as a family,
// so that the state store and sync history always share one backend.
package storage

import (
	"context"
	"fmt"

	"github.com/stacklok/toolhive-update-agent/internal/config"
	"github.com/stacklok/toolhive-update-agent/internal/status"
	"github.com/stacklok/toolhive-update-agent/internal/sync/state"
	"github.com/stacklok/toolhive-update-agent/internal/sync/writer"
)

// Factory creates storage-dependent components.
//
// It also owns the lifecycle of storage resources such as database connections.
type Factory interface {
	// CreateStateStore creates the key/value store for the delay flag and client id
	CreateStateStore(ctx context.Context) (state.Store, error)

	// CreateHistoryWriter creates the writer that records finished sync calls
	CreateHistoryWriter(ctx context.Context) (writer.HistoryWriter, error)

	// CreateStatusPersistence creates the persistence used for the sync status record
	CreateStatusPersistence(ctx context.Context) (status.StatusPersistence, error)

	// Ready reports whether the storage backend is reachable
	Ready(ctx context.Context) error

	// Cleanup releases any resources held by this factory.
	// Should be called when the application shuts down.
	Cleanup()
}

// NewStorageFactory creates a storage factory based on the configured storage type
func NewStorageFactory(ctx context.Context, cfg *config.Config) (Factory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	switch cfg.GetStorageType() {
	case config.StorageTypeDatabase:
		return NewDatabaseFactory(ctx, cfg)
	case config.StorageTypeFile:
		return NewFileFactory(cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.GetStorageType())
	}
}
