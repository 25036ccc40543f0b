package toolselect

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cortexrun/cortex/pkg/taskmodels"
)

func tool(name, desc string) taskmodels.ToolDefinition {
	return taskmodels.ToolDefinition{Name: name, Description: desc}
}

func TestSelectUnderLimitReturnsEverything(t *testing.T) {
	catalog := []taskmodels.ToolDefinition{tool("read_file", "read a file"), tool("write_file", "write a file")}
	got := Select(catalog, "anything", "unknown-provider")
	require.Len(t, got, 2)
}

func TestSelectRespectsKnownProviderLimit(t *testing.T) {
	var catalog []taskmodels.ToolDefinition
	for i := 0; i < 100; i++ {
		catalog = append(catalog, tool("tool_"+string(rune('a'+i%26)), "does something"))
	}
	got := Select(catalog, "", "anthropic")
	require.LessOrEqual(t, len(got), Limit("anthropic"))
}

func TestSelectPrefersTokenOverlap(t *testing.T) {
	var catalog []taskmodels.ToolDefinition
	for i := 0; i < 200; i++ {
		catalog = append(catalog, tool("filler_tool", "does nothing relevant"))
	}
	catalog = append(catalog, tool("deploy_service", "deploy the kubernetes service"))
	got := Select(catalog, "please deploy the kubernetes service now", "openai")

	found := false
	for _, g := range got {
		if g.Name == "deploy_service" {
			found = true
		}
	}
	require.True(t, found)
}

func TestIsToolLimitError(t *testing.T) {
	require.True(t, IsToolLimitError(errors.New("Error: too many tools provided in request")))
	require.False(t, IsToolLimitError(errors.New("network timeout")))
	require.False(t, IsToolLimitError(nil))
}

func TestShrinkDropsLowestPriorityCategory(t *testing.T) {
	catalog := []taskmodels.ToolDefinition{
		tool("read_file", "read a file"),
		tool("lookup_weather", "get current weather forecast"),
	}
	shrunk := Shrink(catalog)
	require.Len(t, shrunk, 1)
	require.Equal(t, "read_file", shrunk[0].Name)
}
