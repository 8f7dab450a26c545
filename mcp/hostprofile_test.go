// Copyright (c) 2024-present OpenAssist Contributors. All Rights Reserved.
// See LICENSE.txt for license information.

package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(vars map[string]string) func(string) string {
	return func(name string) string {
		return vars[name]
	}
}

func TestResolveHostProfile(t *testing.T) {
	tests := []struct {
		name       string
		env        map[string]string
		restricted bool
	}{
		{
			name:       "plain developer machine",
			env:        map[string]string{"HOME": "/home/dev"},
			restricted: false,
		},
		{
			name:       "aws lambda",
			env:        map[string]string{"HOME": "/home/sbx", "AWS_LAMBDA_FUNCTION_NAME": "chat-backend"},
			restricted: true,
		},
		{
			name:       "vercel",
			env:        map[string]string{"HOME": "/root", "VERCEL": "1"},
			restricted: true,
		},
		{
			name:       "cloud run",
			env:        map[string]string{"HOME": "/root", "K_SERVICE": "chat"},
			restricted: true,
		},
		{
			name:       "no home directory",
			env:        map[string]string{},
			restricted: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			profile := ResolveHostProfile(envFrom(tc.env))
			assert.Equal(t, tc.restricted, profile.Restricted)
			assert.NotEmpty(t, profile.ScratchDir)
			assert.NotEmpty(t, profile.ExecutableFallbackPaths)
		})
	}
}

func TestResolveHostProfileScratchDir(t *testing.T) {
	profile := ResolveHostProfile(envFrom(map[string]string{"HOME": "/home/dev", "TMPDIR": "/var/scratch"}))
	assert.Equal(t, "/var/scratch", profile.ScratchDir)
}

func TestResolveHostProfileFallbackPaths(t *testing.T) {
	profile := ResolveHostProfile(envFrom(map[string]string{"HOME": "/home/dev"}))
	require.Contains(t, profile.ExecutableFallbackPaths, "/usr/local/bin")
	require.Contains(t, profile.ExecutableFallbackPaths, "/home/dev/.local/bin")
	assert.NotContains(t, profile.ExecutableFallbackPaths, "/var/lang/bin")

	restricted := ResolveHostProfile(envFrom(map[string]string{"VERCEL": "1", "HOME": "/root"}))
	assert.Contains(t, restricted.ExecutableFallbackPaths, "/var/lang/bin")
}
