package updater

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhive-update-agent/internal/config"
)

func writeArchive(t *testing.T, dir, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0750))
	f, err := os.CreateTemp(dir, "download-*")
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

func TestInstaller_Empty(t *testing.T) {
	t.Parallel()

	inst := NewInstaller(t.TempDir())

	current, err := inst.Current()
	require.NoError(t, err)
	assert.Nil(t, current)

	applied, err := inst.ApplyPending()
	require.NoError(t, err)
	assert.Nil(t, applied)
}

func TestInstaller_ImmediateReplacesCurrent(t *testing.T) {
	t.Parallel()

	inst := NewInstaller(t.TempDir())

	first, err := inst.Install(&UpdateInfo{Label: "v1", PackageHash: "aaa"},
		writeArchive(t, inst.Dir(), "one"), config.InstallModeImmediate)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(inst.Dir(), "aaa.pkg"), first.Path)

	second, err := inst.Install(&UpdateInfo{Label: "v2", PackageHash: "bbb"},
		writeArchive(t, inst.Dir(), "two"), config.InstallModeImmediate)
	require.NoError(t, err)

	current, err := inst.Current()
	require.NoError(t, err)
	assert.Equal(t, "v2", current.Label)
	assert.FileExists(t, second.Path)
	assert.NoFileExists(t, first.Path, "superseded archive should be removed")
}

func TestInstaller_ImmediateSupersedesPending(t *testing.T) {
	t.Parallel()

	inst := NewInstaller(t.TempDir())

	staged, err := inst.Install(&UpdateInfo{Label: "v1", PackageHash: "aaa"},
		writeArchive(t, inst.Dir(), "one"), config.InstallModeOnNextRestart)
	require.NoError(t, err)

	_, err = inst.Install(&UpdateInfo{Label: "v2", PackageHash: "bbb"},
		writeArchive(t, inst.Dir(), "two"), config.InstallModeImmediate)
	require.NoError(t, err)

	pending, err := inst.Pending()
	require.NoError(t, err)
	assert.Nil(t, pending)
	assert.NoFileExists(t, staged.Path)

	applied, err := inst.ApplyPending()
	require.NoError(t, err)
	assert.Nil(t, applied)
}

func TestInstaller_ApplyPending(t *testing.T) {
	t.Parallel()

	inst := NewInstaller(t.TempDir())

	old, err := inst.Install(&UpdateInfo{Label: "v1", PackageHash: "aaa"},
		writeArchive(t, inst.Dir(), "one"), config.InstallModeImmediate)
	require.NoError(t, err)

	_, err = inst.Install(&UpdateInfo{Label: "v2", PackageHash: "bbb"},
		writeArchive(t, inst.Dir(), "two"), config.InstallModeOnNextRestart)
	require.NoError(t, err)

	current, err := inst.Current()
	require.NoError(t, err)
	assert.Equal(t, "v1", current.Label, "staging must not change the current package")

	applied, err := inst.ApplyPending()
	require.NoError(t, err)
	require.NotNil(t, applied)
	assert.Equal(t, "v2", applied.Label)

	current, err = inst.Current()
	require.NoError(t, err)
	assert.Equal(t, "v2", current.Label)
	assert.NoFileExists(t, old.Path)
	assert.NoFileExists(t, filepath.Join(inst.Dir(), pendingFileName))
}

func TestInstaller_ApplyPendingMissingArchive(t *testing.T) {
	t.Parallel()

	inst := NewInstaller(t.TempDir())

	staged, err := inst.Install(&UpdateInfo{Label: "v1", PackageHash: "aaa"},
		writeArchive(t, inst.Dir(), "one"), config.InstallModeOnNextRestart)
	require.NoError(t, err)
	require.NoError(t, os.Remove(staged.Path))

	_, err = inst.ApplyPending()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")

	pending, err := inst.Pending()
	require.NoError(t, err)
	assert.Nil(t, pending, "broken pending metadata should be dropped")
}

func TestInstaller_CorruptMetadata(t *testing.T) {
	t.Parallel()

	inst := NewInstaller(t.TempDir())
	require.NoError(t, os.MkdirAll(inst.Dir(), 0750))
	require.NoError(t, os.WriteFile(filepath.Join(inst.Dir(), currentFileName), []byte("{not json"), 0600))

	_, err := inst.Current()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}
