package llm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cortexrun/cortex/internal/llm"
)

// stubProvider is a minimal llm.Provider used to check that the interface
// shape matches spec §6 (generate + countTokens) without any vendor SDK.
type stubProvider struct{}

func (stubProvider) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	if len(req.Tools) > 0 {
		return llm.Response{ToolCalls: []llm.ToolCallRequest{{CallID: "1", ToolName: req.Tools[0].Name, Args: []byte("{}")}}}, nil
	}
	return llm.Response{Text: "task_complete"}, nil
}

func (stubProvider) CountTokens(ctx context.Context, text string) (int, error) {
	return len(text)/4 + 1, nil
}

func TestProviderContract(t *testing.T) {
	var p llm.Provider = stubProvider{}
	resp, err := p.Generate(context.Background(), llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	require.Equal(t, "task_complete", resp.Text)

	n, err := p.CountTokens(context.Background(), "hello world")
	require.NoError(t, err)
	require.Positive(t, n)
}
