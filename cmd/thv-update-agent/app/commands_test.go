package app

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhive-update-agent/internal/versions"
)

func TestVersionCmd_JSON(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	require.NoError(t, versionCmd.Flags().Set("format", "json"))
	t.Cleanup(func() {
		_ = versionCmd.Flags().Set("format", "")
		versionCmd.SetOut(nil)
	})

	versionCmd.Run(versionCmd, nil)

	var info versions.VersionInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

func TestNewRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd()

	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "version", "request", "lifecycle", "status", "migrate"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}

	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	assert.NotNil(t, serve.Flags().Lookup("config"))
	assert.NotNil(t, serve.Flags().Lookup("address"))
}
