// Copyright (c) 2024-present OpenAssist Contributors. All Rights Reserved.
// See LICENSE.txt for license information.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openassist/openassist-mcp/mcp"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfigFile(t, `{
		"bindAddress": ":9090",
		"logLevel": "debug",
		"mcp": {
			"enabled": true,
			"servers": [
				{"id": "github", "name": "github", "command": "github-mcp"}
			]
		}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.BindAddress)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.MCP.Enabled)
	require.Len(t, cfg.MCP.Servers, 1)
	assert.Equal(t, "github", cfg.MCP.Servers[0].ID)
}

func TestLoadDefaultsBindAddress(t *testing.T) {
	path := writeConfigFile(t, `{}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8065", cfg.BindAddress)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestLoadInvalidJSON(t *testing.T) {
	path := writeConfigFile(t, `{not json`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestContainerUpdateNotifiesListeners(t *testing.T) {
	container := &Container{}

	notified := 0
	container.RegisterUpdateListener(func() { notified++ })

	container.Update(&Config{BindAddress: ":1234"})
	assert.Equal(t, 1, notified)
	assert.Equal(t, ":1234", container.Config().BindAddress)

	container.Update(&Config{BindAddress: ":5678"})
	assert.Equal(t, 2, notified)
	assert.Equal(t, ":5678", container.Config().BindAddress)
}

func TestContainerUpdateDeepCopies(t *testing.T) {
	original := &Config{
		MCP: mcp.Config{Servers: []mcp.ServerConfig{{ID: "a", Command: "a"}}},
	}

	container := &Container{}
	container.Update(original)

	// Mutating the caller's struct must not leak into the stored config.
	original.MCP.Servers[0].Command = "mutated"
	assert.Equal(t, "a", container.MCP().Servers[0].Command)
}

func TestDeepCopyJSON(t *testing.T) {
	type nested struct {
		Values []int `json:"values"`
	}
	src := nested{Values: []int{1, 2, 3}}

	dst, err := DeepCopyJSON(src)
	require.NoError(t, err)
	assert.Equal(t, src, dst)

	dst.Values[0] = 99
	assert.Equal(t, 1, src.Values[0])
}
