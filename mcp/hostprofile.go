// Copyright (c) 2024-present OpenAssist Contributors. All Rights Reserved.
// See LICENSE.txt for license information.

package mcp

import (
	"os"
	"path/filepath"
)

// HostProfile captures what the hosting environment allows: whether we are on
// a restricted (serverless-style) host, where scratch files can be written,
// and which directories to probe when a configured executable is not on PATH.
// Resolved once from the process environment and threaded through; nothing
// re-sniffs the platform after this.
type HostProfile struct {
	Restricted              bool
	ScratchDir              string
	ExecutableFallbackPaths []string
}

// restrictedHostIndicators are environment variables whose presence marks a
// sandboxed function runtime with limited filesystem writes.
var restrictedHostIndicators = []string{
	"AWS_LAMBDA_FUNCTION_NAME",
	"LAMBDA_TASK_ROOT",
	"VERCEL",
	"NETLIFY",
	"K_SERVICE",
	"FUNCTION_TARGET",
}

// ResolveHostProfile inspects the environment through getenv and returns the
// host profile. It always succeeds; absent indicators mean an unrestricted
// host. Pass os.Getenv outside of tests.
func ResolveHostProfile(getenv func(string) string) HostProfile {
	restricted := false
	for _, name := range restrictedHostIndicators {
		if getenv(name) != "" {
			restricted = true
			break
		}
	}

	home := getenv("HOME")
	if home == "" {
		// Function runtimes commonly run without a usable home directory.
		restricted = true
	}

	scratch := getenv("TMPDIR")
	if scratch == "" {
		scratch = os.TempDir()
	}

	fallbacks := []string{
		"/usr/local/bin",
		"/usr/bin",
		"/bin",
		"/opt/homebrew/bin",
	}
	if home != "" {
		fallbacks = append(fallbacks,
			filepath.Join(home, ".local", "bin"),
			filepath.Join(home, ".npm-global", "bin"),
		)
	}
	if restricted {
		// Lambda-style runtimes keep their language toolchain here.
		fallbacks = append(fallbacks, "/var/lang/bin", "/opt/bin")
	}

	return HostProfile{
		Restricted:              restricted,
		ScratchDir:              scratch,
		ExecutableFallbackPaths: fallbacks,
	}
}
