package mcp

import (
	"context"
	"strings"
)

// InvokeTool routes a tool call to the server that owns toolName. If no
// server advertises the tool, it falls back to the server configured with
// Default=true; if there is none, it returns a fallback result rather than
// failing.
func (m *Manager) InvokeTool(ctx context.Context, toolName string, arguments map[string]any) (*ToolCallResult, *FallbackResult) {
	if strings.TrimSpace(toolName) == "" {
		return nil, &FallbackResult{Error: true, Message: "tool name is empty", ToolName: toolName}
	}

	serverID, tool := m.FindTool(toolName)
	if tool == nil {
		serverID = m.defaultServerID()
		if serverID == "" {
			return nil, &FallbackResult{Error: true, Message: "no server advertises this tool and no default server is configured", ToolName: toolName}
		}
	}

	client, exists := m.Client(serverID)
	if !exists {
		return nil, &FallbackResult{Error: true, Message: "owning server not connected", ToolName: toolName, CanRetry: true}
	}
	return client.InvokeTool(ctx, toolName, arguments)
}

func (m *Manager) defaultServerID() string {
	if m.config == nil {
		return ""
	}
	for _, cfg := range m.config.Servers {
		if cfg.Default {
			return cfg.ID
		}
	}
	return ""
}

// RestartServer tears down a single client and re-initializes it from its
// configuration, leaving the rest of the fleet untouched.
func (m *Manager) RestartServer(ctx context.Context, serverID string) error {
	if err := m.Disconnect(serverID); err != nil {
		return err
	}
	return m.Connect(ctx, serverID)
}

// ListTools returns the aggregated catalog across every connected server,
// deduplicated by tool name. When two servers advertise the same name, the
// later one observed wins and a warning is logged.
func (m *Manager) ListTools() []ToolSchema {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byName := make(map[string]ToolSchema)
	for id, client := range m.clients {
		for _, tool := range client.Tools() {
			schema := ToolSchema{ServerID: id, Name: tool.Name, Description: tool.Description, InputSchema: tool.InputSchema}
			if prev, exists := byName[tool.Name]; exists && prev.ServerID != id {
				m.logger.Warn("duplicate tool name across servers, last writer wins",
					"tool", tool.Name, "previous_server", prev.ServerID, "server", id)
			}
			byName[tool.Name] = schema
		}
	}

	schemas := make([]ToolSchema, 0, len(byName))
	for _, schema := range byName {
		schemas = append(schemas, schema)
	}
	return schemas
}
