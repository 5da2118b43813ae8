// Package db contains code for connecting to the database.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stacklok/toolhive-update-agent/internal/config"
)

const (
	defaultMaxConns        = 4
	defaultConnMaxLifetime = 5 * time.Minute

	// DefaultConnectTimeout bounds how long NewPool keeps retrying the initial ping
	DefaultConnectTimeout = 30 * time.Second
)

// Option configures pool creation
type Option func(*options)

type options struct {
	connectTimeout time.Duration
	initialBackoff time.Duration
}

// WithConnectTimeout sets how long to keep retrying the initial ping
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		o.connectTimeout = d
	}
}

// WithInitialBackoff sets the first retry interval of the initial ping
func WithInitialBackoff(d time.Duration) Option {
	return func(o *options) {
		o.initialBackoff = d
	}
}

// NewPool creates a connection pool for cfg and waits until the database answers a ping.
// Pings are retried with exponential backoff, since the database often starts alongside the agent.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig, opts ...Option) (*pgxpool.Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration is required")
	}

	o := &options{
		connectTimeout: DefaultConnectTimeout,
		initialBackoff: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(o)
	}

	connStr, err := cfg.GetConnectionString()
	if err != nil {
		return nil, fmt.Errorf("failed to build connection string: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database connection string: %w", err)
	}

	poolConfig.MaxConns = defaultMaxConns
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	}
	poolConfig.MaxConnLifetime = defaultConnMaxLifetime
	if cfg.ConnMaxLifetime != "" {
		lifetime, err := time.ParseDuration(cfg.ConnMaxLifetime)
		if err != nil {
			return nil, fmt.Errorf("failed to parse connMaxLifetime: %w", err)
		}
		poolConfig.MaxConnLifetime = lifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}

	if err := waitForDatabase(ctx, pool, o); err != nil {
		pool.Close()
		return nil, err
	}

	slog.Info("Database connection pool created",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Database,
		"max_conns", poolConfig.MaxConns)
	return pool, nil
}

func waitForDatabase(ctx context.Context, pool *pgxpool.Pool, o *options) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.initialBackoff
	b.MaxInterval = 5 * time.Second

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, pool.Ping(ctx)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(o.connectTimeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("Database not ready, retrying", "error", err, "retry_in", next)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}
