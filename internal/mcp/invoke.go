package mcp

import (
	"context"
	"strings"
)

// FallbackResult is returned by InvokeTool in place of an error whenever a
// tool invocation cannot be completed, so callers never have to unwind a
// panic/throw from a misbehaving provider process.
type FallbackResult struct {
	Error    bool   `json:"error"`
	Message  string `json:"message"`
	ToolName string `json:"toolName"`
	CanRetry bool   `json:"canRetry"`
}

// InvokeTool calls name on the client, converting any failure into a
// FallbackResult instead of propagating an error. An empty name
// short-circuits to a non-retryable fallback without touching the
// transport.
func (c *Client) InvokeTool(ctx context.Context, name string, arguments map[string]any) (*ToolCallResult, *FallbackResult) {
	if strings.TrimSpace(name) == "" {
		return nil, &FallbackResult{Error: true, Message: "tool name is empty", ToolName: name, CanRetry: false}
	}
	if !c.Connected() {
		return nil, &FallbackResult{Error: true, Message: "server not connected", ToolName: name, CanRetry: true}
	}

	result, err := c.CallTool(ctx, name, arguments)
	if err != nil {
		return nil, &FallbackResult{
			Error:    true,
			Message:  err.Error(),
			ToolName: name,
			CanRetry: ctx.Err() == nil,
		}
	}
	return result, nil
}
