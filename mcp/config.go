// Copyright (c) 2024-present OpenAssist Contributors. All Rights Reserved.
// See LICENSE.txt for license information.

package mcp

import "time"

const (
	// defaultHandshakeTimeout bounds each of the three discovery calls made
	// after a channel opens. The protocol gives no bound of its own; a server
	// that never answers discovery would otherwise hang StartServer forever.
	defaultHandshakeTimeout = 10 * time.Second

	// defaultCallTimeout bounds tool, resource, and prompt calls.
	defaultCallTimeout = 5 * time.Minute
)

// Config contains the configuration for the MCP client manager.
type Config struct {
	Enabled bool `json:"enabled"`

	// Servers seeded at construction time. Each is added as if through
	// AddServer, status inactive; nothing is started automatically.
	Servers []ServerConfig `json:"servers,omitempty"`

	HandshakeTimeoutSeconds int `json:"handshakeTimeoutSeconds,omitempty"`
	CallTimeoutSeconds      int `json:"callTimeoutSeconds,omitempty"`
}

func (c Config) handshakeTimeout() time.Duration {
	if c.HandshakeTimeoutSeconds > 0 {
		return time.Duration(c.HandshakeTimeoutSeconds) * time.Second
	}
	return defaultHandshakeTimeout
}

func (c Config) callTimeout() time.Duration {
	if c.CallTimeoutSeconds > 0 {
		return time.Duration(c.CallTimeoutSeconds) * time.Second
	}
	return defaultCallTimeout
}
