// Copyright (c) 2024-present OpenAssist Contributors. All Rights Reserved.
// See LICENSE.txt for license information.

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
)

// protocolClient speaks the JSON-RPC request/response envelope over a
// Channel. The design assumes at most one outstanding call per channel, which
// keeps id correlation a simple read-until-match loop; concurrency across
// servers comes from each server owning its own channel.
type protocolClient struct {
	serverID string
	channel  Channel
	log      logrus.FieldLogger

	mu     sync.Mutex
	nextID atomic.Int64
}

type jsonrpcEnvelope struct {
	JSONRPC string              `json:"jsonrpc"`
	ID      json.RawMessage     `json:"id,omitempty"`
	Method  string              `json:"method,omitempty"`
	Params  any                 `json:"params,omitempty"`
	Result  json.RawMessage     `json:"result,omitempty"`
	Error   *jsonrpcErrorDetail `json:"error,omitempty"`
}

type jsonrpcErrorDetail struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// remoteError is an application-level error returned by the server inside a
// response envelope, as opposed to a failure of the channel itself.
type remoteError struct {
	Code    int
	Message string
}

func (e *remoteError) Error() string {
	return fmt.Sprintf("server returned error %d: %s", e.Code, e.Message)
}

func (e *remoteError) notImplemented() bool {
	return e.Code == mcp.METHOD_NOT_FOUND
}

func newProtocolClient(serverID string, channel Channel, log logrus.FieldLogger) *protocolClient {
	return &protocolClient{
		serverID: serverID,
		channel:  channel,
		log:      log,
	}
}

// call issues one request and reads until the correlated response arrives.
// Channel failures surface as ConnectionFault, timeouts/cancellation and
// malformed responses as ProtocolFault, and server-reported errors as
// *remoteError for the caller to classify.
func (p *protocolClient) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID.Add(1)
	request := jsonrpcEnvelope{
		JSONRPC: "2.0",
		ID:      json.RawMessage(strconv.FormatInt(id, 10)),
		Method:  method,
		Params:  params,
	}
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, &ProtocolFault{Method: method, Err: err}
	}

	if err := p.channel.Send(ctx, payload); err != nil {
		if ctx.Err() != nil {
			return nil, &ProtocolFault{Method: method, Err: ctx.Err()}
		}
		return nil, &ConnectionFault{ServerID: p.serverID, Err: err}
	}

	want := []byte(strconv.FormatInt(id, 10))
	for {
		raw, err := p.channel.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &ProtocolFault{Method: method, Err: ctx.Err()}
			}
			return nil, &ConnectionFault{ServerID: p.serverID, Err: err}
		}

		var response jsonrpcEnvelope
		if err := json.Unmarshal(raw, &response); err != nil {
			return nil, &ProtocolFault{Method: method, Err: fmt.Errorf("malformed response: %w", err)}
		}
		if !bytes.Equal(bytes.TrimSpace(response.ID), want) {
			// Notification or a server-initiated request; not ours.
			p.log.WithFields(logrus.Fields{"serverID": p.serverID, "method": response.Method}).Debug("ignoring uncorrelated message")
			continue
		}

		if response.Error != nil {
			return nil, &remoteError{Code: response.Error.Code, Message: response.Error.Message}
		}
		return response.Result, nil
	}
}

// discoveryOutcome tags the result of one capability discovery call so the
// tolerated "method not found" case is explicit rather than inferred from
// error text.
type discoveryOutcome int

const (
	discoveryOK discoveryOutcome = iota
	discoveryNotImplemented
	discoveryFailed
)

// handshake performs the three discovery calls after a channel opens. Each
// call is bounded by timeout; a server that does not implement a capability
// yields an empty list, and any other per-call failure is logged and likewise
// leaves that one list empty. Handshake only fails as a whole when ctx itself
// is cancelled, e.g. by a concurrent stop request.
func (p *protocolClient) handshake(ctx context.Context, timeout time.Duration) (Capabilities, error) {
	var caps Capabilities

	discoveries := []struct {
		method string
		parse  func(json.RawMessage) error
	}{
		{string(mcp.MethodToolsList), func(raw json.RawMessage) error {
			var result mcp.ListToolsResult
			if err := json.Unmarshal(raw, &result); err != nil {
				return err
			}
			caps.Tools = result.Tools
			return nil
		}},
		{string(mcp.MethodResourcesList), func(raw json.RawMessage) error {
			var result mcp.ListResourcesResult
			if err := json.Unmarshal(raw, &result); err != nil {
				return err
			}
			caps.Resources = result.Resources
			return nil
		}},
		{string(mcp.MethodPromptsList), func(raw json.RawMessage) error {
			var result mcp.ListPromptsResult
			if err := json.Unmarshal(raw, &result); err != nil {
				return err
			}
			caps.Prompts = result.Prompts
			return nil
		}},
	}

	for _, discovery := range discoveries {
		outcome, err := p.discover(ctx, timeout, discovery.method, discovery.parse)
		if ctx.Err() != nil {
			return Capabilities{}, &ProtocolFault{Method: discovery.method, Err: ctx.Err()}
		}
		switch outcome {
		case discoveryNotImplemented:
			p.log.WithFields(logrus.Fields{"serverID": p.serverID, "method": discovery.method}).Debug("server does not implement discovery method")
		case discoveryFailed:
			p.log.WithFields(logrus.Fields{"serverID": p.serverID, "method": discovery.method, "error": err}).Warn("capability discovery failed, continuing with empty list")
		}
	}

	// Never nil while active: an implemented-but-empty capability and an
	// unimplemented one look the same to callers.
	if caps.Tools == nil {
		caps.Tools = []mcp.Tool{}
	}
	if caps.Resources == nil {
		caps.Resources = []mcp.Resource{}
	}
	if caps.Prompts == nil {
		caps.Prompts = []mcp.Prompt{}
	}
	return caps, nil
}

func (p *protocolClient) discover(ctx context.Context, timeout time.Duration, method string, parse func(json.RawMessage) error) (discoveryOutcome, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := p.call(callCtx, method, struct{}{})
	if err != nil {
		var remote *remoteError
		if errors.As(err, &remote) && remote.notImplemented() {
			return discoveryNotImplemented, nil
		}
		return discoveryFailed, err
	}
	if err := parse(raw); err != nil {
		return discoveryFailed, &ProtocolFault{Method: method, Err: err}
	}
	return discoveryOK, nil
}

type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

func (p *protocolClient) callTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	raw, err := p.call(ctx, string(mcp.MethodToolsCall), toolCallParams{Name: name, Arguments: args})
	if err != nil {
		return nil, err
	}
	result, err := mcp.ParseCallToolResult(&raw)
	if err != nil {
		return nil, &ProtocolFault{Method: string(mcp.MethodToolsCall), Err: err}
	}
	return result, nil
}

type resourceReadParams struct {
	URI string `json:"uri"`
}

func (p *protocolClient) readResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	raw, err := p.call(ctx, string(mcp.MethodResourcesRead), resourceReadParams{URI: uri})
	if err != nil {
		return nil, err
	}
	result, err := mcp.ParseReadResourceResult(&raw)
	if err != nil {
		return nil, &ProtocolFault{Method: string(mcp.MethodResourcesRead), Err: err}
	}
	return result, nil
}

type promptGetParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

func (p *protocolClient) getPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	raw, err := p.call(ctx, string(mcp.MethodPromptsGet), promptGetParams{Name: name, Arguments: args})
	if err != nil {
		return nil, err
	}
	result, err := mcp.ParseGetPromptResult(&raw)
	if err != nil {
		return nil, &ProtocolFault{Method: string(mcp.MethodPromptsGet), Err: err}
	}
	return result, nil
}
