package engine

import (
	"context"
	"encoding/json"

	"github.com/cortexrun/cortex/internal/mcp"
)

// ManagerInvoker adapts an *mcp.Manager to the scheduler.Invoker seam,
// converting the Manager's map[string]any argument convention and
// FallbackResult error-free contract into the (json.RawMessage, error)
// shape the Scheduler expects. liveOutput is accepted for interface
// compatibility; the MCP layer has no incremental-output notion beyond
// stderr diagnostics, so it is never called.
type ManagerInvoker struct {
	Manager *mcp.Manager
}

// Invoke implements scheduler.Invoker.
func (m ManagerInvoker) Invoke(ctx context.Context, toolName string, args json.RawMessage, liveOutput func(chunk string)) (json.RawMessage, error) {
	var decoded map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &decoded); err != nil {
			return nil, err
		}
	}

	result, fallback := m.Manager.InvokeTool(ctx, toolName, decoded)
	if fallback != nil {
		return nil, fallbackError{fallback}
	}
	return json.Marshal(result)
}

// fallbackError wraps an mcp.FallbackResult so it satisfies error while
// still letting callers recover the structured fields.
type fallbackError struct {
	*mcp.FallbackResult
}

func (e fallbackError) Error() string {
	return e.Message
}

// CanRetryable reports whether the underlying fallback result is retryable.
func (e fallbackError) CanRetryable() bool {
	return e.FallbackResult.CanRetry
}
