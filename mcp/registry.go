// Copyright (c) 2024-present OpenAssist Contributors. All Rights Reserved.
// See LICENSE.txt for license information.

package mcp

import (
	"context"
	"sync"
)

// connection is the live half of a server record. It exists only between a
// successful transport open and the matching teardown.
type connection struct {
	channel         Channel
	proto           *protocolClient
	resolvedCommand string
}

// serverEntry is one registry record. Lifecycle transitions for a server are
// serialized by lifecycle; the snapshot fields are guarded by state so reads
// (snapshots, tool routing) never wait behind a slow start elsewhere in the
// entry's lifecycle.
//
// Lock order: lifecycle before state. Nothing acquires lifecycle while
// holding state.
type serverEntry struct {
	lifecycle sync.Mutex

	state       sync.RWMutex
	config      ServerConfig
	conn        *connection
	startCancel context.CancelFunc
}

func (e *serverEntry) snapshot() ServerConfig {
	e.state.RLock()
	defer e.state.RUnlock()
	return e.config.Clone()
}

func (e *serverEntry) status() ServerStatus {
	e.state.RLock()
	defer e.state.RUnlock()
	return e.config.Status
}

// activeConn returns the live connection if the server is active.
func (e *serverEntry) activeConn() (*connection, bool) {
	e.state.RLock()
	defer e.state.RUnlock()
	if e.config.Status != StatusActive || e.conn == nil {
		return nil, false
	}
	return e.conn, true
}

// Registry owns the serverID -> record map. It is constructed once and handed
// to the manager; there is no package-level state. The map lock is held only
// for lookups and membership changes, never across lifecycle work, so
// operations on different servers proceed independently.
type Registry struct {
	mu      sync.RWMutex
	servers map[string]*serverEntry
}

func NewRegistry() *Registry {
	return &Registry{
		servers: make(map[string]*serverEntry),
	}
}

func (r *Registry) add(config ServerConfig) *serverEntry {
	entry := &serverEntry{config: config}
	r.mu.Lock()
	r.servers[config.ID] = entry
	r.mu.Unlock()
	return entry
}

func (r *Registry) get(id string) (*serverEntry, error) {
	r.mu.RLock()
	entry, ok := r.servers[id]
	r.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{ServerID: id}
	}
	return entry, nil
}

// remove deletes the record. The caller must hold the entry's lifecycle lock
// and have verified the server is inactive.
func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.servers, id)
	r.mu.Unlock()
}

func (r *Registry) entries() []*serverEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]*serverEntry, 0, len(r.servers))
	for _, entry := range r.servers {
		entries = append(entries, entry)
	}
	return entries
}
