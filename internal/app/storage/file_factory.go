package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/stacklok/toolhive-update-agent/internal/config"
	"github.com/stacklok/toolhive-update-agent/internal/status"
	"github.com/stacklok/toolhive-update-agent/internal/sync/state"
	"github.com/stacklok/toolhive-update-agent/internal/sync/writer"
)

// FileFactory creates file-based storage components under the data directory
type FileFactory struct {
	config *config.Config
}

var _ Factory = (*FileFactory)(nil)

// NewFileFactory creates a new file-based storage factory, creating the data directory if needed
func NewFileFactory(cfg *config.Config) (*FileFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}

	slog.Info("Creating file-based storage factory", "data_dir", dataDir)
	return &FileFactory{config: cfg}, nil
}

// CreateStateStore creates a JSON file store
func (f *FileFactory) CreateStateStore(_ context.Context) (state.Store, error) {
	return state.NewStore(f.config, nil)
}

// CreateHistoryWriter returns a writer that discards entries
func (f *FileFactory) CreateHistoryWriter(_ context.Context) (writer.HistoryWriter, error) {
	return writer.NewHistoryWriter(f.config, nil)
}

// CreateStatusPersistence keeps status.json in the data directory
func (f *FileFactory) CreateStatusPersistence(_ context.Context) (status.StatusPersistence, error) {
	return status.NewFileStatusPersistence(f.config.GetDataDir()), nil
}

// Ready checks that the data directory is still there
func (f *FileFactory) Ready(_ context.Context) error {
	if _, err := os.Stat(f.config.GetDataDir()); err != nil {
		return fmt.Errorf("data directory unavailable: %w", err)
	}
	return nil
}

// Cleanup is a no-op for file storage
func (*FileFactory) Cleanup() {}
