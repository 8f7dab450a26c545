// Copyright (c) 2024-present OpenAssist Contributors. All Rights Reserved.
// See LICENSE.txt for license information.

package mcp

import (
	"context"
	"errors"
	"fmt"
)

// ConfigurationError indicates a server configuration that can never start as
// written, detected before any process is spawned.
type ConfigurationError struct {
	ServerID string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration for server %s: %s", e.ServerID, e.Reason)
}

// TransportUnavailableError indicates the configured transport kind is not
// implemented, or no executable could be resolved for it.
type TransportUnavailableError struct {
	Kind   TransportKind
	Reason string
}

func (e *TransportUnavailableError) Error() string {
	return fmt.Sprintf("transport %q unavailable: %s", e.Kind, e.Reason)
}

// ConnectionFault indicates the channel to the server could not be opened or
// died underneath us.
type ConnectionFault struct {
	ServerID string
	Err      error
}

func (e *ConnectionFault) Error() string {
	return fmt.Sprintf("connection to server %s failed: %v", e.ServerID, e.Err)
}

func (e *ConnectionFault) Unwrap() error { return e.Err }

// ProtocolFault indicates a malformed response or no response within the
// call's bound. A cancelled in-flight call surfaces as a ProtocolFault
// wrapping context.Canceled.
type ProtocolFault struct {
	Method string
	Err    error
}

func (e *ProtocolFault) Error() string {
	return fmt.Sprintf("protocol failure calling %s: %v", e.Method, e.Err)
}

func (e *ProtocolFault) Unwrap() error { return e.Err }

// ToolExecutionError indicates the remote server returned an application
// level failure for a tool, resource, or prompt call.
type ToolExecutionError struct {
	ServerID string
	Name     string
	Detail   string
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("server %s failed executing %q: %s", e.ServerID, e.Name, e.Detail)
}

// NotConnectedError indicates an operation that needs a live connection was
// requested against a server that has none.
type NotConnectedError struct {
	ServerID string
	Status   ServerStatus
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("server %s has no active connection (status %s)", e.ServerID, e.Status)
}

// NotFoundError indicates an unknown server id.
type NotFoundError struct {
	ServerID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unknown server %s", e.ServerID)
}

// PreconditionError indicates an operation rejected because of the server's
// current lifecycle status, such as deleting a server that is not inactive.
type PreconditionError struct {
	ServerID string
	Status   ServerStatus
	Op       string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("cannot %s server %s while status is %s", e.Op, e.ServerID, e.Status)
}

// IsCanceled reports whether err is a fault caused by cancellation, which
// happens when a stop request tears down a connection mid-call.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
