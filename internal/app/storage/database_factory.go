package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stacklok/toolhive-update-agent/internal/config"
	"github.com/stacklok/toolhive-update-agent/internal/db"
	"github.com/stacklok/toolhive-update-agent/internal/status"
	"github.com/stacklok/toolhive-update-agent/internal/sync/state"
	"github.com/stacklok/toolhive-update-agent/internal/sync/writer"
)

// DatabaseFactory creates PostgreSQL-backed storage components.
// The status record stays a file in the data directory; it describes this agent only.
type DatabaseFactory struct {
	config  *config.Config
	pool    *pgxpool.Pool
	ownPool bool
}

var _ Factory = (*DatabaseFactory)(nil)

// DatabaseFactoryOption is a functional option for configuring the DatabaseFactory
type DatabaseFactoryOption func(*DatabaseFactory)

// WithPool uses an existing connection pool instead of opening one.
// The factory does not close a pool it did not open.
func WithPool(pool *pgxpool.Pool) DatabaseFactoryOption {
	return func(f *DatabaseFactory) {
		f.pool = pool
	}
}

// NewDatabaseFactory creates a new database-backed storage factory
func NewDatabaseFactory(ctx context.Context, cfg *config.Config, opts ...DatabaseFactoryOption) (*DatabaseFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	factory := &DatabaseFactory{config: cfg}
	for _, opt := range opts {
		opt(factory)
	}

	if factory.pool == nil {
		if cfg.Storage == nil || cfg.Storage.Database == nil {
			return nil, fmt.Errorf("database configuration is required for database storage type")
		}
		slog.Info("Creating database-backed storage factory")
		pool, err := db.NewPool(ctx, cfg.Storage.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to create database connection pool: %w", err)
		}
		factory.pool = pool
		factory.ownPool = true
	}

	return factory, nil
}

// Pool returns the connection pool
func (d *DatabaseFactory) Pool() *pgxpool.Pool {
	return d.pool
}

// CreateStateStore creates a store backed by the agent_state table
func (d *DatabaseFactory) CreateStateStore(_ context.Context) (state.Store, error) {
	return state.NewStore(d.config, d.pool)
}

// CreateHistoryWriter creates a writer for the sync_history table
func (d *DatabaseFactory) CreateHistoryWriter(_ context.Context) (writer.HistoryWriter, error) {
	return writer.NewHistoryWriter(d.config, d.pool)
}

// CreateStatusPersistence keeps status.json in the data directory
func (d *DatabaseFactory) CreateStatusPersistence(_ context.Context) (status.StatusPersistence, error) {
	return status.NewFileStatusPersistence(d.config.GetDataDir()), nil
}

// Ready pings the database
func (d *DatabaseFactory) Ready(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return fmt.Errorf("database unavailable: %w", err)
	}
	return nil
}

// Cleanup closes the connection pool if the factory opened it
func (d *DatabaseFactory) Cleanup() {
	if d.ownPool && d.pool != nil {
		slog.Info("Closing database connection pool")
		d.pool.Close()
	}
}
