// Copyright (c) 2024-present OpenAssist Contributors. All Rights Reserved.
// See LICENSE.txt for license information.

package llm

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Tool represents a function that can be called by the language model during
// a conversation.
//
// Each tool has a name, description, and schema that are passed to the LLM so
// it understands what capabilities it has. The Resolver function implements
// the actual functionality; it receives the conversation context and a way to
// access the parsed arguments, and returns either a result for the LLM or an
// error. A resolver error is reported per invocation and must not abort the
// caller's larger request.
type Tool struct {
	Name        string
	Description string
	Schema      any
	Resolver    func(context *Context, argsGetter ToolArgumentGetter) (string, error)
}

// ToolArgumentGetter parses the raw tool-call arguments into args.
type ToolArgumentGetter func(args any) error

// Context carries per-conversation information through to tool resolvers.
type Context struct {
	RequestID string
	UserID    string
}

type TraceLog interface {
	Info(message string, keyValuePairs ...any)
}

// ToolStore holds the tools available to one completion request.
type ToolStore struct {
	tools   map[string]Tool
	log     TraceLog
	doTrace bool
}

func NewNoTools() ToolStore {
	return ToolStore{
		tools: make(map[string]Tool),
	}
}

func NewToolStore(log TraceLog, doTrace bool) ToolStore {
	return ToolStore{
		tools:   make(map[string]Tool),
		log:     log,
		doTrace: doTrace,
	}
}

func (s *ToolStore) AddTools(tools []Tool) {
	for _, tool := range tools {
		s.tools[tool.Name] = tool
	}
}

func (s *ToolStore) ResolveTool(name string, argsGetter ToolArgumentGetter, context *Context) (string, error) {
	tool, ok := s.tools[name]
	if !ok {
		s.traceUnknown(name, argsGetter)
		return "", errors.New("unknown tool " + name)
	}
	results, err := tool.Resolver(context, argsGetter)
	s.traceResolved(name, argsGetter, results)
	return results, err
}

func (s *ToolStore) GetTools() []Tool {
	result := make([]Tool, 0, len(s.tools))
	for _, tool := range s.tools {
		result = append(result, tool)
	}
	return result
}

func (s *ToolStore) traceUnknown(name string, argsGetter ToolArgumentGetter) {
	if s.log != nil && s.doTrace {
		s.log.Info("unknown tool called", "name", name, "args", rawArgs(argsGetter))
	}
}

func (s *ToolStore) traceResolved(name string, argsGetter ToolArgumentGetter, result string) {
	if s.log != nil && s.doTrace {
		s.log.Info("tool resolved", "name", name, "args", rawArgs(argsGetter), "result", result)
	}
}

func rawArgs(argsGetter ToolArgumentGetter) string {
	var raw json.RawMessage
	if err := argsGetter(&raw); err != nil {
		return fmt.Sprintf("failed to get tool args: %v", err)
	}
	return string(raw)
}
