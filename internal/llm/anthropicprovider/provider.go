// Package anthropicprovider adapts Anthropic's Messages API to the
// llm.Provider contract, as a non-streaming reference implementation
// (spec §6's LLMProvider interface is deliberately minimal; streaming
// display is an explicit Non-goal).
package anthropicprovider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/cortexrun/cortex/internal/llm"
)

// DefaultModel is used when a Request carries no model override.
const DefaultModel = "claude-sonnet-4-20250514"

// Config configures a Provider.
type Config struct {
	APIKey       string
	DefaultModel string
	BaseURL      string
}

// Provider wraps an anthropic-sdk-go client.
type Provider struct {
	client anthropic.Client
	model  string
}

// New builds a Provider from cfg.
func New(cfg Config) *Provider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.DefaultModel
	if model == "" {
		model = DefaultModel
	}
	return &Provider{client: anthropic.NewClient(opts...), model: model}
}

// Generate sends req as one non-streaming Messages.New call.
func (p *Provider) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	model := req.Options.Model
	if model == "" {
		model = p.model
	}
	maxTokens := int64(req.Options.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  toAnthropicMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	for _, t := range req.Tools {
		params.Tools = append(params.Tools, anthropicToolParam(t))
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return llm.Response{}, fmt.Errorf("anthropic generate: %w", err)
	}
	return toResponse(msg), nil
}

// CountTokens calls Anthropic's token-counting endpoint when available;
// it falls back to a 4-characters-per-token estimate on any error, since
// spec §6 allows countTokens to be an estimate.
func (p *Provider) CountTokens(ctx context.Context, text string) (int, error) {
	count, err := p.client.Messages.CountTokens(ctx, anthropic.MessageCountTokensParams{
		Model:    anthropic.Model(p.model),
		Messages: []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(text))},
	})
	if err != nil {
		return len(text)/4 + 1, nil
	}
	return int(count.InputTokens), nil
}

func toAnthropicMessages(msgs []llm.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		var content []anthropic.ContentBlockParamUnion
		switch m.Role {
		case llm.RoleTool:
			content = append(content, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false))
		default:
			content = append(content, anthropic.NewTextBlock(m.Content))
		}

		if m.Role == llm.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(content...))
		} else {
			out = append(out, anthropic.NewUserMessage(content...))
		}
	}
	return out
}

func anthropicToolParam(t llm.ToolSpec) anthropic.ToolUnionParam {
	var schema anthropic.ToolInputSchemaParam
	if len(t.Parameters) > 0 {
		_ = json.Unmarshal(t.Parameters, &schema)
	}
	toolParam := anthropic.ToolUnionParamOfTool(schema, t.Name)
	if toolParam.OfTool != nil {
		toolParam.OfTool.Description = anthropic.String(t.Description)
	}
	return toolParam
}

func toResponse(msg *anthropic.Message) llm.Response {
	var resp llm.Response
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Text += block.Text
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, llm.ToolCallRequest{
				CallID:   block.ID,
				ToolName: block.Name,
				Args:     block.Input,
			})
		}
	}
	return resp
}
