package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhive-update-agent/internal/config"
)

func TestNewStore(t *testing.T) {
	t.Parallel()

	t.Run("file storage by default", func(t *testing.T) {
		t.Parallel()
		store, err := NewStore(&config.Config{DataDir: t.TempDir()}, nil)
		require.NoError(t, err)
		_, ok := store.(*fileStore)
		assert.True(t, ok)
	})

	t.Run("database storage requires pool", func(t *testing.T) {
		t.Parallel()
		cfg := &config.Config{Storage: &config.StorageConfig{Type: config.StorageTypeDatabase}}
		_, err := NewStore(cfg, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database pool is required")
	})

	t.Run("unknown storage type", func(t *testing.T) {
		t.Parallel()
		cfg := &config.Config{Storage: &config.StorageConfig{Type: "redis"}}
		_, err := NewStore(cfg, nil)
		require.Error(t, err)
	})
}
