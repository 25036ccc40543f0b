package engine

import (
	"strings"

	"github.com/cortexrun/cortex/internal/mcp"
	"github.com/cortexrun/cortex/internal/scheduler"
	"github.com/cortexrun/cortex/pkg/taskmodels"
)

// BuildCatalog converts the Manager's aggregated tool schemas into the
// engine-facing taskmodels.ToolDefinition shape.
func BuildCatalog(schemas []mcp.ToolSchema) []taskmodels.ToolDefinition {
	out := make([]taskmodels.ToolDefinition, len(schemas))
	for i, s := range schemas {
		out[i] = taskmodels.ToolDefinition{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  s.InputSchema,
			ServerName:  s.ServerID,
		}
	}
	return out
}

// destructiveKeywords flags a tool as destructive for the scheduler's
// default-only-destructive approval mode when neither the catalog nor the
// MCP layer carries an explicit flag (spec's ToolDefinition has none).
var destructiveKeywords = []string{"delete", "remove", "write", "exec", "run", "kill", "drop", "rm"}

func looksDestructive(t taskmodels.ToolDefinition) bool {
	lower := strings.ToLower(t.Name + " " + t.Description)
	for _, kw := range destructiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// MetadataLookup builds a scheduler.MetadataLookup closed over catalog,
// inferring Destructive via looksDestructive since the wire-level
// ToolSchema carries no such flag.
func MetadataLookup(catalog []taskmodels.ToolDefinition) scheduler.MetadataLookup {
	byName := make(map[string]taskmodels.ToolDefinition, len(catalog))
	for _, t := range catalog {
		byName[t.Name] = t
	}
	return func(name string) (scheduler.ToolMetadata, bool) {
		t, ok := byName[name]
		if !ok {
			return scheduler.ToolMetadata{}, false
		}
		return scheduler.ToolMetadata{Schema: t.Parameters, Destructive: looksDestructive(t)}, true
	}
}
