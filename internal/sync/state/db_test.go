package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhive-update-agent/database"
)

func TestDBStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}
	t.Parallel()

	pool, cleanup := database.SetupTestDB(t)
	t.Cleanup(cleanup)

	ctx := context.Background()
	store := NewDBStore(pool)

	_, ok, err := store.Get(ctx, InitialDelayKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, InitialDelayKey, InitialDelaySatisfied))
	value, ok, err := store.Get(ctx, InitialDelayKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, InitialDelaySatisfied, value)

	require.NoError(t, store.Set(ctx, InitialDelayKey, "other"))
	value, _, err = store.Get(ctx, InitialDelayKey)
	require.NoError(t, err)
	assert.Equal(t, "other", value)
}
