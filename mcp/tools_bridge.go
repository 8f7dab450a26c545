// Copyright (c) 2024-present OpenAssist Contributors. All Rights Reserved.
// See LICENSE.txt for license information.

package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/openassist/openassist-mcp/llm"
)

// convertPropertiesToOrderedMap converts a tool's input-schema properties to
// the ordered schema map the LLM layer expects, via a JSON round trip.
func convertPropertiesToOrderedMap(source map[string]any) (*orderedmap.OrderedMap[string, *jsonschema.Schema], error) {
	var target orderedmap.OrderedMap[string, *jsonschema.Schema]
	jsonData, err := json.Marshal(source)
	if err != nil {
		return nil, err
	}
	err = json.Unmarshal(jsonData, &target)
	return &target, err
}

// GetToolsForLLM converts every active server's discovered tools into
// llm.Tools whose resolvers route back through ExecuteTool. Tool names are
// prefixed with the server name so same-named tools on different servers
// cannot shadow each other. Returns nil when the manager is disabled.
func (m *ClientManager) GetToolsForLLM() []llm.Tool {
	if !m.cfg.Enabled {
		return nil
	}

	serverTools := m.GetAllTools()
	tools := make([]llm.Tool, 0, len(serverTools))
	for _, serverTool := range serverTools {
		properties, err := convertPropertiesToOrderedMap(serverTool.Tool.InputSchema.Properties)
		if err != nil {
			m.log.WithFields(logrus.Fields{"serverID": serverTool.ServerID, "tool": serverTool.Tool.Name, "error": err}).Error("failed to convert tool input schema properties")
			continue
		}
		schema := &jsonschema.Schema{
			Type:       serverTool.Tool.InputSchema.Type,
			Properties: properties,
			Required:   serverTool.Tool.InputSchema.Required,
		}
		tools = append(tools, llm.Tool{
			Name:        fmt.Sprintf("%s_%s", serverTool.ServerName, serverTool.Tool.Name),
			Description: serverTool.Tool.Description,
			Schema:      schema,
			Resolver:    m.createToolResolver(serverTool.ServerID, serverTool.Tool.Name),
		})
	}

	return tools
}

// createToolResolver creates a resolver that forwards one tool's invocations
// to its owning server.
func (m *ClientManager) createToolResolver(serverID, toolName string) func(*llm.Context, llm.ToolArgumentGetter) (string, error) {
	return func(llmContext *llm.Context, argsGetter llm.ToolArgumentGetter) (string, error) {
		var rawArgs json.RawMessage
		if err := argsGetter(&rawArgs); err != nil {
			return "", fmt.Errorf("failed to get arguments for tool %s: %w", toolName, err)
		}

		args := map[string]any{}
		if len(rawArgs) > 0 {
			if err := json.Unmarshal(rawArgs, &args); err != nil {
				return "", fmt.Errorf("failed to parse arguments for tool %s: %w", toolName, err)
			}
		}

		result, err := m.ExecuteTool(serverID, toolName, args)
		if err != nil {
			return "", err
		}

		if text := textContent(result.Content); text != "" {
			return text, nil
		}
		return "", fmt.Errorf("no text content found in response from tool %s on server %s", toolName, serverID)
	}
}
