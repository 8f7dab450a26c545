// Copyright (c) 2024-present OpenAssist Contributors. All Rights Reserved.
// See LICENSE.txt for license information.

package mcp

import (
	"context"
	"errors"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"

	"github.com/openassist/openassist-mcp/metrics"
)

// ClientManager owns the registry of configured tool servers and routes every
// public operation: lifecycle (add/start/stop/update/delete), tool execution,
// resource and prompt retrieval, and cross-server tool aggregation.
//
// Operations on different servers never block each other; operations on the
// same server are serialized through its registry entry.
type ClientManager struct {
	cfg      Config
	registry *Registry
	profile  HostProfile
	log      *logrus.Logger
	metrics  metrics.Metrics

	// openChannel is swapped out in tests to avoid spawning real processes.
	openChannel func(HostProfile, ServerConfig, logrus.FieldLogger) (Channel, string, error)
}

// NewClientManager creates a manager. Servers listed in cfg.Servers are
// registered inactive; nothing is started until StartServer is called.
func NewClientManager(cfg Config, log *logrus.Logger, metricsService metrics.Metrics) *ClientManager {
	m := &ClientManager{
		cfg:         cfg,
		registry:    NewRegistry(),
		profile:     ResolveHostProfile(os.Getenv),
		log:         log,
		metrics:     metricsService,
		openChannel: openTransport,
	}
	if m.profile.Restricted {
		log.WithField("scratchDir", m.profile.ScratchDir).Info("restricted host detected, subprocess environment adaptations enabled")
	}

	for _, server := range cfg.Servers {
		if _, err := m.AddServer(server); err != nil {
			log.WithFields(logrus.Fields{"serverID": server.ID, "error": err}).Error("failed to register configured MCP server")
		}
	}

	return m
}

// AddServer registers a new server in the inactive state. A missing id is
// generated; a duplicate id is rejected.
func (m *ClientManager) AddServer(config ServerConfig) (ServerConfig, error) {
	if config.ID == "" {
		config.ID = uuid.NewString()
	}
	if _, err := m.registry.get(config.ID); err == nil {
		return ServerConfig{}, &ConfigurationError{ServerID: config.ID, Reason: "a server with this id already exists"}
	}
	if config.Transport == "" {
		config.Transport = TransportStdio
	}

	now := time.Now()
	config = config.Clone()
	config.Status = StatusInactive
	config.LastError = ""
	config.RestartRequired = false
	config.Tools = nil
	config.Resources = nil
	config.Prompts = nil
	config.CreatedAt = now
	config.UpdatedAt = now

	entry := m.registry.add(config)
	m.log.WithFields(logrus.Fields{"serverID": config.ID, "name": config.Name, "transport": config.Transport}).Debug("registered MCP server")
	return entry.snapshot(), nil
}

// StartServer opens the transport, runs the discovery handshake, and moves
// the server to active. Starting an already-active server is a no-op that
// returns the current capabilities without issuing any discovery calls. On
// failure the server lands in the error state with the cause retained.
func (m *ClientManager) StartServer(id string) (ServerConfig, error) {
	entry, err := m.registry.get(id)
	if err != nil {
		return ServerConfig{}, err
	}

	entry.lifecycle.Lock()
	defer entry.lifecycle.Unlock()

	entry.state.Lock()
	if entry.config.Status == StatusActive {
		snapshot := entry.config.Clone()
		entry.state.Unlock()
		return snapshot, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	entry.config.Status = StatusStarting
	entry.config.LastError = ""
	entry.startCancel = cancel
	config := entry.config.Clone()
	entry.state.Unlock()

	defer func() {
		cancel()
		entry.state.Lock()
		entry.startCancel = nil
		entry.state.Unlock()
	}()

	log := m.log.WithField("serverID", id)

	channel, resolvedCommand, err := m.openChannel(m.profile, config, m.log)
	if err != nil {
		m.failStart(entry, err)
		m.metrics.ObserveServerStart("open_failed")
		return ServerConfig{}, err
	}
	if ctx.Err() != nil {
		// A stop raced the open; tear down what we just created.
		closeChannel(channel, log)
		m.abandonStart(entry)
		m.metrics.ObserveServerStart("cancelled")
		return ServerConfig{}, &ProtocolFault{Method: "start", Err: ctx.Err()}
	}

	proto := newProtocolClient(id, channel, m.log)
	caps, err := proto.handshake(ctx, m.cfg.handshakeTimeout())
	if err != nil {
		// Handshake only fails on cancellation; the stop that cancelled us
		// wins and the server settles inactive.
		closeChannel(channel, log)
		m.abandonStart(entry)
		m.metrics.ObserveServerStart("cancelled")
		return ServerConfig{}, err
	}

	entry.state.Lock()
	entry.conn = &connection{channel: channel, proto: proto, resolvedCommand: resolvedCommand}
	entry.config.Status = StatusActive
	entry.config.RestartRequired = false
	entry.config.Tools = caps.Tools
	entry.config.Resources = caps.Resources
	entry.config.Prompts = caps.Prompts
	entry.config.UpdatedAt = time.Now()
	snapshot := entry.config.Clone()
	entry.state.Unlock()

	log.WithFields(logrus.Fields{
		"command":   resolvedCommand,
		"tools":     len(caps.Tools),
		"resources": len(caps.Resources),
		"prompts":   len(caps.Prompts),
	}).Info("MCP server started")
	m.metrics.ObserveServerStart("success")
	return snapshot, nil
}

func (m *ClientManager) failStart(entry *serverEntry, cause error) {
	entry.state.Lock()
	entry.config.Status = StatusError
	entry.config.LastError = cause.Error()
	entry.config.UpdatedAt = time.Now()
	id := entry.config.ID
	entry.state.Unlock()
	m.log.WithFields(logrus.Fields{"serverID": id, "error": cause}).Error("failed to start MCP server")
}

func (m *ClientManager) abandonStart(entry *serverEntry) {
	entry.state.Lock()
	entry.conn = nil
	entry.config.Status = StatusInactive
	entry.config.Tools = nil
	entry.config.Resources = nil
	entry.config.Prompts = nil
	entry.config.UpdatedAt = time.Now()
	entry.state.Unlock()
}

// StopServer tears down the server's connection. Stopping an inactive server
// is a no-op; stopping a starting server cancels the in-flight handshake
// rather than waiting for it. Teardown errors are logged, never fatal: the
// server always lands inactive.
func (m *ClientManager) StopServer(id string) (ServerConfig, error) {
	entry, err := m.registry.get(id)
	if err != nil {
		return ServerConfig{}, err
	}

	// Cancel a concurrent start before queueing on the lifecycle lock so we
	// preempt its discovery calls instead of waiting them out.
	entry.state.Lock()
	if entry.startCancel != nil {
		entry.startCancel()
	}
	entry.state.Unlock()

	entry.lifecycle.Lock()
	defer entry.lifecycle.Unlock()

	entry.state.Lock()
	conn := entry.conn
	if conn == nil {
		// Inactive or errored; either way there is nothing to tear down.
		entry.config.Status = StatusInactive
		snapshot := entry.config.Clone()
		entry.state.Unlock()
		return snapshot, nil
	}
	entry.config.Status = StatusStopping
	entry.state.Unlock()

	closeChannel(conn.channel, m.log.WithField("serverID", id))

	entry.state.Lock()
	entry.conn = nil
	entry.config.Status = StatusInactive
	entry.config.Tools = nil
	entry.config.Resources = nil
	entry.config.Prompts = nil
	entry.config.UpdatedAt = time.Now()
	snapshot := entry.config.Clone()
	entry.state.Unlock()

	m.log.WithField("serverID", id).Info("MCP server stopped")
	m.metrics.ObserveServerStop()
	return snapshot, nil
}

func closeChannel(channel Channel, log logrus.FieldLogger) {
	if err := channel.Close(); err != nil {
		log.WithField("error", err).Warn("error closing MCP channel")
	}
}

// DeleteServer removes a server's record. Only inactive servers may be
// deleted; stop first.
func (m *ClientManager) DeleteServer(id string) error {
	entry, err := m.registry.get(id)
	if err != nil {
		return err
	}

	entry.lifecycle.Lock()
	defer entry.lifecycle.Unlock()

	if status := entry.status(); status != StatusInactive {
		return &PreconditionError{ServerID: id, Status: status, Op: "delete"}
	}
	m.registry.remove(id)
	m.log.WithField("serverID", id).Debug("deleted MCP server")
	return nil
}

// UpdateServer applies a partial configuration update. Changing how an active
// server is reached does not restart it; the snapshot comes back with
// RestartRequired set so the caller can surface it.
func (m *ClientManager) UpdateServer(id string, req UpdateServerRequest) (ServerConfig, error) {
	entry, err := m.registry.get(id)
	if err != nil {
		return ServerConfig{}, err
	}

	entry.lifecycle.Lock()
	defer entry.lifecycle.Unlock()

	entry.state.Lock()
	defer entry.state.Unlock()

	if req.Name != nil {
		entry.config.Name = *req.Name
	}
	if req.Description != nil {
		entry.config.Description = *req.Description
	}
	if req.Command != nil {
		entry.config.Command = *req.Command
	}
	if req.Args != nil {
		entry.config.Args = append([]string(nil), (*req.Args)...)
	}
	if req.Env != nil {
		entry.config.Env = copyStringMap(*req.Env)
	}
	if req.BaseURL != nil {
		entry.config.BaseURL = *req.BaseURL
	}
	if req.Headers != nil {
		entry.config.Headers = copyStringMap(*req.Headers)
	}

	if req.connectionAffecting() && (entry.config.Status == StatusActive || entry.config.Status == StatusStarting) {
		entry.config.RestartRequired = true
	}
	entry.config.UpdatedAt = time.Now()
	return entry.config.Clone(), nil
}

// GetServer returns a snapshot of one server.
func (m *ClientManager) GetServer(id string) (ServerConfig, error) {
	entry, err := m.registry.get(id)
	if err != nil {
		return ServerConfig{}, err
	}
	return entry.snapshot(), nil
}

// ListServers returns snapshots of every registered server.
func (m *ClientManager) ListServers() []ServerConfig {
	entries := m.registry.entries()
	servers := make([]ServerConfig, 0, len(entries))
	for _, entry := range entries {
		servers = append(servers, entry.snapshot())
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].ID < servers[j].ID })
	return servers
}

// ExecuteTool invokes a tool on an active server. Arguments pass through
// opaque. A server-reported failure comes back as ToolExecutionError;
// transport and protocol failures keep their own types so callers can tell
// configuration problems from transient faults.
func (m *ClientManager) ExecuteTool(id, toolName string, args map[string]any) (*mcp.CallToolResult, error) {
	conn, err := m.connectionFor(id)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.callTimeout())
	defer cancel()

	start := time.Now()
	result, err := conn.proto.callTool(ctx, toolName, args)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		m.metrics.ObserveToolCall(id, "error", elapsed)
		return nil, m.classifyCallError(id, toolName, err)
	}
	if result.IsError {
		m.metrics.ObserveToolCall(id, "tool_error", elapsed)
		return nil, &ToolExecutionError{ServerID: id, Name: toolName, Detail: textContent(result.Content)}
	}

	m.metrics.ObserveToolCall(id, "success", elapsed)
	return result, nil
}

// GetResource reads a resource from an active server.
func (m *ClientManager) GetResource(id, uri string) (*mcp.ReadResourceResult, error) {
	conn, err := m.connectionFor(id)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.callTimeout())
	defer cancel()

	result, err := conn.proto.readResource(ctx, uri)
	if err != nil {
		return nil, m.classifyCallError(id, uri, err)
	}
	return result, nil
}

// GetPrompt retrieves a prompt template from an active server.
func (m *ClientManager) GetPrompt(id, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	conn, err := m.connectionFor(id)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.callTimeout())
	defer cancel()

	result, err := conn.proto.getPrompt(ctx, name, args)
	if err != nil {
		return nil, m.classifyCallError(id, name, err)
	}
	return result, nil
}

func (m *ClientManager) connectionFor(id string) (*connection, error) {
	entry, err := m.registry.get(id)
	if err != nil {
		return nil, err
	}
	conn, ok := entry.activeConn()
	if !ok {
		return nil, &NotConnectedError{ServerID: id, Status: entry.status()}
	}
	return conn, nil
}

func (m *ClientManager) classifyCallError(id, name string, err error) error {
	var remote *remoteError
	if errors.As(err, &remote) {
		return &ToolExecutionError{ServerID: id, Name: name, Detail: remote.Message}
	}
	return err
}

// GetAllTools flattens the tool lists of every active server, annotating each
// tool with its owning server.
func (m *ClientManager) GetAllTools() []ServerTool {
	var tools []ServerTool
	for _, entry := range m.registry.entries() {
		entry.state.RLock()
		if entry.config.Status == StatusActive {
			for _, tool := range entry.config.Tools {
				tools = append(tools, ServerTool{
					ServerID:   entry.config.ID,
					ServerName: entry.config.Name,
					Tool:       tool,
				})
			}
		}
		entry.state.RUnlock()
	}
	sort.Slice(tools, func(i, j int) bool {
		if tools[i].ServerID != tools[j].ServerID {
			return tools[i].ServerID < tools[j].ServerID
		}
		return tools[i].Tool.Name < tools[j].Tool.Name
	})
	return tools
}

// SearchTools returns every tool of an active server whose name or
// description contains query, case-insensitively.
func (m *ClientManager) SearchTools(query string) []ServerTool {
	query = strings.ToLower(query)
	var matched []ServerTool
	for _, tool := range m.GetAllTools() {
		if strings.Contains(strings.ToLower(tool.Tool.Name), query) ||
			strings.Contains(strings.ToLower(tool.Tool.Description), query) {
			matched = append(matched, tool)
		}
	}
	return matched
}

// Close stops every server. The manager should not be used afterwards.
func (m *ClientManager) Close() {
	for _, server := range m.ListServers() {
		if _, err := m.StopServer(server.ID); err != nil {
			m.log.WithFields(logrus.Fields{"serverID": server.ID, "error": err}).Warn("error stopping MCP server during shutdown")
		}
	}
}

func copyStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func textContent(content []mcp.Content) string {
	var text strings.Builder
	for _, c := range content {
		if tc, ok := mcp.AsTextContent(c); ok {
			text.WriteString(tc.Text)
			text.WriteString("\n")
		}
	}
	return strings.TrimSpace(text.String())
}
