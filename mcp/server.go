// Copyright (c) 2024-present OpenAssist Contributors. All Rights Reserved.
// See LICENSE.txt for license information.

package mcp

import (
	"maps"
	"slices"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// TransportKind selects how the channel to a tool server is established.
type TransportKind string

const (
	// TransportStdio spawns a local child process and speaks over its
	// standard input/output.
	TransportStdio TransportKind = "local-process"
	// TransportHTTP connects to a remote server over HTTP. Not implemented.
	TransportHTTP TransportKind = "remote-http"
)

// ServerStatus is the lifecycle state of a configured server.
type ServerStatus string

const (
	StatusInactive ServerStatus = "inactive"
	StatusStarting ServerStatus = "starting"
	StatusActive   ServerStatus = "active"
	StatusStopping ServerStatus = "stopping"
	StatusError    ServerStatus = "error"
)

// ServerConfig describes one tool server: how to reach it, its lifecycle
// status, and the capabilities discovered during the last successful start.
// The registry owns the canonical record; everything handed out by the
// manager is a snapshot.
type ServerConfig struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Transport   TransportKind `json:"transport"`

	// local-process transport fields
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	// remote-http transport fields
	BaseURL string            `json:"baseURL,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`

	Status          ServerStatus `json:"status"`
	LastError       string       `json:"lastError,omitempty"`
	RestartRequired bool         `json:"restartRequired,omitempty"`

	// Capability lists are non-nil only while the server is active.
	Tools     []mcp.Tool     `json:"tools,omitempty"`
	Resources []mcp.Resource `json:"resources,omitempty"`
	Prompts   []mcp.Prompt   `json:"prompts,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep enough copy that callers can hold onto it without
// observing later registry mutations.
func (c *ServerConfig) Clone() ServerConfig {
	clone := *c
	clone.Args = slices.Clone(c.Args)
	clone.Env = maps.Clone(c.Env)
	clone.Headers = maps.Clone(c.Headers)
	clone.Tools = slices.Clone(c.Tools)
	clone.Resources = slices.Clone(c.Resources)
	clone.Prompts = slices.Clone(c.Prompts)
	return clone
}

// UpdateServerRequest carries the mutable subset of ServerConfig for
// UpdateServer. Nil fields are left unchanged.
type UpdateServerRequest struct {
	Name        *string            `json:"name,omitempty"`
	Description *string            `json:"description,omitempty"`
	Command     *string            `json:"command,omitempty"`
	Args        *[]string          `json:"args,omitempty"`
	Env         *map[string]string `json:"env,omitempty"`
	BaseURL     *string            `json:"baseURL,omitempty"`
	Headers     *map[string]string `json:"headers,omitempty"`
}

// connectionAffecting reports whether applying the update changes how the
// server is reached, which requires a restart to take effect on a live
// connection.
func (r *UpdateServerRequest) connectionAffecting() bool {
	return r.Command != nil || r.Args != nil || r.Env != nil || r.BaseURL != nil || r.Headers != nil
}

// ServerTool is a discovered tool annotated with its owning server.
type ServerTool struct {
	ServerID   string   `json:"serverId"`
	ServerName string   `json:"serverName"`
	Tool       mcp.Tool `json:"tool"`
}

// Capabilities holds the result of a discovery handshake.
type Capabilities struct {
	Tools     []mcp.Tool
	Resources []mcp.Resource
	Prompts   []mcp.Prompt
}
