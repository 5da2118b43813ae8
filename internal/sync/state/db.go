package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	getStateQuery = `SELECT value FROM agent_state WHERE key = $1`

	upsertStateQuery = `
INSERT INTO agent_state (key, value, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
)

type dbStore struct {
	pool *pgxpool.Pool
}

// NewDBStore creates a Store backed by the agent_state table
func NewDBStore(pool *pgxpool.Pool) Store {
	return &dbStore{
		pool: pool,
	}
}

func (d *dbStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := d.pool.QueryRow(ctx, getStateQuery, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read state %s: %w", key, err)
	}
	return value, true, nil
}

func (d *dbStore) Set(ctx context.Context, key, value string) error {
	if _, err := d.pool.Exec(ctx, upsertStateQuery, key, value); err != nil {
		return fmt.Errorf("failed to write state %s: %w", key, err)
	}
	return nil
}
