// Package llm defines the minimal LLMProvider contract the Continuous
// Execution Engine consumes (spec §6): one non-streaming generate call per
// turn plus a token estimator. Token-by-token streaming display is an
// explicit Non-goal (spec §1), so this interface never exposes partial
// output.
package llm

import "context"

// Role mirrors taskmodels.Role for messages sent to the provider.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is one turn in the conversation handed to Generate.
type Message struct {
	Role       Role
	Content    string
	ToolCallID string // set on Role==RoleTool, correlating to a prior ToolCall request
}

// ToolSpec describes one tool the model may call, mirroring
// taskmodels.ToolDefinition but decoupled from the scheduler package.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  []byte // JSON-schema
}

// Options configures one Generate call.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Request is the input to one LLM turn.
type Request struct {
	System   string
	Messages []Message
	Tools    []ToolSpec
	Options  Options
}

// ToolCallRequest is one tool invocation the model asked for.
type ToolCallRequest struct {
	CallID   string
	ToolName string
	Args     []byte // JSON
}

// Response is what the provider returns for one turn.
type Response struct {
	Text      string
	ToolCalls []ToolCallRequest
}

// Provider is the seam the Engine calls through for reasoning. A given
// implementation wraps exactly one vendor's wire format.
type Provider interface {
	Generate(ctx context.Context, req Request) (Response, error)
	// CountTokens estimates (or exactly counts, if the provider supports
	// it) the token length of text.
	CountTokens(ctx context.Context, text string) (int, error)
}
