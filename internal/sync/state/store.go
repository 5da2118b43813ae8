// Package state persists the small key/value flags the update agent needs across restarts.
package state

import (
	"context"
)

// Keys written by the agent
const (
	// InitialDelayKey records that the once-per-installation initial delay has been honoured
	InitialDelayKey = "thv-update-agent/initial-delay"

	// InitialDelaySatisfied is the sentinel value stored under InitialDelayKey
	InitialDelaySatisfied = "satisfied"

	// ClientIDKey holds the generated installation identifier reported to the update server
	ClientIDKey = "thv-update-agent/client-id"
)

// Store is a durable string key/value store.
//
//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/stacklok/toolhive-update-agent/internal/sync/state Store
type Store interface {
	// Get returns the value stored under key. The boolean is false when the key is absent.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
}
