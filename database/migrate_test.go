package database

import (
	"context"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMigrateURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{input: "postgres://u:p@h:5432/db?sslmode=disable", want: "pgx5://u:p@h:5432/db?sslmode=disable"},
		{input: "postgresql://u@h/db", want: "pgx5://u@h/db"},
		{input: "pgx5://u@h/db", want: "pgx5://u@h/db"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, toMigrateURL(tt.input))
		})
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	t.Parallel()

	ups, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrationsFS, "migrations/*.down.sql")
	require.NoError(t, err)

	require.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}

func TestMigrations(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}
	t.Parallel()

	ctx := context.Background()
	pool, cleanupFunc := SetupTestDBContainer(t, ctx)
	t.Cleanup(cleanupFunc)

	connString := pool.Config().ConnString()

	fnames, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	require.NoError(t, err)

	for i := 1; i <= len(fnames); i++ {
		require.NoError(t, MigrateUp(connString, 1))
		version, dirty, err := GetVersion(connString)
		require.NoError(t, err)
		assert.False(t, dirty)
		assert.Equal(t, uint(i), version)
	}

	// Everything applied: a second full run is a no-op
	require.NoError(t, MigrateUp(connString, 0))

	require.NoError(t, MigrateDown(connString, 0))
	version, _, err := GetVersion(connString)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)

	require.NoError(t, MigrateUp(connString, 0))
	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM agent_state`).Scan(&count))
	assert.Equal(t, 0, count)
}
