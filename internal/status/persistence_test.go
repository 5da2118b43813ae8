package status

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStatusPersistence_SaveAndLoad(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	persistence := NewFileStatusPersistence(filepath.Join(tmpDir, "nested"))
	require.NotNil(t, persistence)

	now := time.Now().UTC().Truncate(time.Second)
	testStatus := &SyncStatus{
		Phase:        SyncPhaseComplete,
		LoopState:    LoopStateWaiting,
		Message:      "Sync completed successfully",
		LastAttempt:  &now,
		LastSyncTime: &now,
		LastTrigger:  "resume",
		LastResult:   "UpdateInstalled",
		Label:        "v12",
	}

	ctx := context.Background()
	require.NoError(t, persistence.SaveStatus(ctx, testStatus))

	_, err := os.Stat(filepath.Join(tmpDir, "nested", StatusFileName))
	require.NoError(t, err)

	loaded, err := persistence.LoadStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, testStatus.Phase, loaded.Phase)
	assert.Equal(t, testStatus.LoopState, loaded.LoopState)
	assert.Equal(t, testStatus.LastTrigger, loaded.LastTrigger)
	assert.Equal(t, testStatus.LastResult, loaded.LastResult)
	assert.Equal(t, testStatus.Label, loaded.Label)
	require.NotNil(t, loaded.LastSyncTime)
	assert.True(t, now.Equal(*loaded.LastSyncTime))
}

func TestFileStatusPersistence_LoadMissing(t *testing.T) {
	t.Parallel()

	loaded, err := NewFileStatusPersistence(t.TempDir()).LoadStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncPhasePending, loaded.Phase)
	assert.Equal(t, LoopStateIdle, loaded.LoopState)
}

func TestFileStatusPersistence_LoadInvalid(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, StatusFileName), []byte("not json"), 0600))

	_, err := NewFileStatusPersistence(tmpDir).LoadStatus(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal status data")
}

func TestFileStatusPersistence_SaveNil(t *testing.T) {
	t.Parallel()

	err := NewFileStatusPersistence(t.TempDir()).SaveStatus(context.Background(), nil)
	assert.Error(t, err)
}

func TestSyncStatus_Clone(t *testing.T) {
	t.Parallel()

	var nilStatus *SyncStatus
	assert.Nil(t, nilStatus.Clone())

	now := time.Now()
	original := &SyncStatus{Phase: SyncPhaseFailed, LastAttempt: &now, AttemptCount: 2}
	clone := original.Clone()
	require.NotSame(t, original.LastAttempt, clone.LastAttempt)

	later := now.Add(time.Hour)
	*clone.LastAttempt = later
	clone.AttemptCount = 5
	assert.True(t, original.LastAttempt.Equal(now))
	assert.Equal(t, 2, original.AttemptCount)
}
