// Package openaiprovider adapts the OpenAI chat-completions API to the
// llm.Provider contract, demonstrating that spec §6's LLMProvider
// interface is provider-agnostic (non-streaming, per the same Non-goal as
// anthropicprovider).
package openaiprovider

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cortexrun/cortex/internal/llm"
)

// DefaultModel is used when a Request carries no model override.
const DefaultModel = "gpt-4o"

// Config configures a Provider.
type Config struct {
	APIKey       string
	DefaultModel string
	BaseURL      string
}

// Provider wraps a go-openai client.
type Provider struct {
	client *openai.Client
	model  string
}

// New builds a Provider from cfg.
func New(cfg Config) *Provider {
	oaiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oaiCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.DefaultModel
	if model == "" {
		model = DefaultModel
	}
	return &Provider{client: openai.NewClientWithConfig(oaiCfg), model: model}
}

// Generate sends req as one non-streaming CreateChatCompletion call.
func (p *Provider) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	model := req.Options.Model
	if model == "" {
		model = p.model
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(req.System, req.Messages),
	}
	if req.Options.MaxTokens > 0 {
		chatReq.MaxTokens = req.Options.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = toOpenAITools(req.Tools)
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return llm.Response{}, fmt.Errorf("openai generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return llm.Response{}, nil
	}
	return toResponse(resp.Choices[0].Message), nil
}

// CountTokens returns a 4-characters-per-token estimate; go-openai does
// not expose an exact tokenizer, and spec §6 explicitly allows an
// estimate here.
func (p *Provider) CountTokens(ctx context.Context, text string) (int, error) {
	return len(text)/4 + 1, nil
}

func toOpenAIMessages(system string, msgs []llm.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleTool:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
			})
		case llm.RoleAssistant:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content})
		default:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		}
	}
	return out
}

func toOpenAITools(tools []llm.ToolSpec) []openai.Tool {
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		var schema map[string]any
		if err := json.Unmarshal(t.Parameters, &schema); err != nil || schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		}
	}
	return out
}

func toResponse(msg openai.ChatCompletionMessage) llm.Response {
	resp := llm.Response{Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, llm.ToolCallRequest{
			CallID:   tc.ID,
			ToolName: tc.Function.Name,
			Args:     []byte(tc.Function.Arguments),
		})
	}
	return resp
}
