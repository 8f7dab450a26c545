// Copyright (c) 2024-present OpenAssist Contributors. All Rights Reserved.
// See LICENSE.txt for license information.

package llm

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedTrace struct {
	message string
	pairs   []any
}

type fakeTraceLog struct {
	entries []recordedTrace
}

func (l *fakeTraceLog) Info(message string, keyValuePairs ...any) {
	l.entries = append(l.entries, recordedTrace{message: message, pairs: keyValuePairs})
}

func jsonArgsGetter(raw string) ToolArgumentGetter {
	return func(args any) error {
		return json.Unmarshal([]byte(raw), args)
	}
}

func TestResolveTool(t *testing.T) {
	store := NewNoTools()
	store.AddTools([]Tool{
		{
			Name:        "lookup",
			Description: "looks things up",
			Resolver: func(_ *Context, argsGetter ToolArgumentGetter) (string, error) {
				var args struct {
					Query string `json:"query"`
				}
				if err := argsGetter(&args); err != nil {
					return "", err
				}
				return "found " + args.Query, nil
			},
		},
		{
			Name: "always-fails",
			Resolver: func(*Context, ToolArgumentGetter) (string, error) {
				return "", errors.New("backend offline")
			},
		},
	})

	result, err := store.ResolveTool("lookup", jsonArgsGetter(`{"query":"weather"}`), &Context{})
	require.NoError(t, err)
	assert.Equal(t, "found weather", result)

	_, err = store.ResolveTool("always-fails", jsonArgsGetter(`{}`), &Context{})
	require.Error(t, err)

	_, err = store.ResolveTool("missing", jsonArgsGetter(`{}`), &Context{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool")
}

func TestResolveToolTracing(t *testing.T) {
	log := &fakeTraceLog{}
	store := NewToolStore(log, true)
	store.AddTools([]Tool{{
		Name: "echo",
		Resolver: func(_ *Context, argsGetter ToolArgumentGetter) (string, error) {
			var raw json.RawMessage
			if err := argsGetter(&raw); err != nil {
				return "", err
			}
			return string(raw), nil
		},
	}})

	_, err := store.ResolveTool("echo", jsonArgsGetter(`{"a":1}`), &Context{})
	require.NoError(t, err)
	require.Len(t, log.entries, 1)
	assert.Equal(t, "tool resolved", log.entries[0].message)

	_, err = store.ResolveTool("nope", jsonArgsGetter(`{}`), &Context{})
	require.Error(t, err)
	require.Len(t, log.entries, 2)
	assert.Equal(t, "unknown tool called", log.entries[1].message)
}

func TestResolveToolTracingDisabled(t *testing.T) {
	log := &fakeTraceLog{}
	store := NewToolStore(log, false)
	store.AddTools([]Tool{{
		Name:     "quiet",
		Resolver: func(*Context, ToolArgumentGetter) (string, error) { return "ok", nil },
	}})

	_, err := store.ResolveTool("quiet", jsonArgsGetter(`{}`), &Context{})
	require.NoError(t, err)
	assert.Empty(t, log.entries)
}

func TestGetTools(t *testing.T) {
	store := NewNoTools()
	assert.Empty(t, store.GetTools())

	store.AddTools([]Tool{{Name: "a"}, {Name: "b"}})
	assert.Len(t, store.GetTools(), 2)

	// Re-adding a tool with the same name replaces it.
	store.AddTools([]Tool{{Name: "a", Description: "updated"}})
	tools := store.GetTools()
	assert.Len(t, tools, 2)
}
