package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyToolError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ToolErrorType
	}{
		{"nil", nil, ToolErrorUnknown},
		{"sentinel not found", fmt.Errorf("lookup: %w", ErrToolNotFound), ToolErrorNotFound},
		{"sentinel timeout", ErrToolTimeout, ToolErrorTimeout},
		{"deadline", errors.New("context deadline exceeded"), ToolErrorTimeout},
		{"network", errors.New("connection refused"), ToolErrorNetwork},
		{"rate limit", errors.New("429 too many requests"), ToolErrorRateLimit},
		{"permission", errors.New("access denied by policy"), ToolErrorPermission},
		{"invalid input", errors.New("missing required field path"), ToolErrorInvalidInput},
		{"fallthrough", errors.New("something broke"), ToolErrorExecution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyToolError(tt.err))
		})
	}
}

func TestToolErrorTypeIsRetryable(t *testing.T) {
	assert.True(t, ToolErrorTimeout.IsRetryable())
	assert.True(t, ToolErrorNetwork.IsRetryable())
	assert.True(t, ToolErrorRateLimit.IsRetryable())
	assert.False(t, ToolErrorInvalidInput.IsRetryable())
	assert.False(t, ToolErrorNotFound.IsRetryable())
	assert.False(t, ToolErrorExecution.IsRetryable())
}

func TestNewToolErrorClassifiesAndFormats(t *testing.T) {
	cause := errors.New("connection reset by peer")
	err := NewToolError("web_fetch", cause).WithToolCallID("call-9")

	assert.Equal(t, ToolErrorNetwork, err.Type)
	assert.True(t, err.Retryable)
	assert.Equal(t, "call-9", err.ToolCallID)
	assert.Contains(t, err.Error(), "[tool:network]")
	assert.Contains(t, err.Error(), "web_fetch")
	assert.Contains(t, err.Error(), "connection reset")
	assert.ErrorIs(t, err, cause)
}

func TestWithTypeOverridesClassification(t *testing.T) {
	err := NewToolError("bash", errors.New("boom")).WithType(ToolErrorTimeout)
	assert.Equal(t, ToolErrorTimeout, err.Type)
	assert.True(t, err.Retryable)
}

func TestGetToolErrorUnwrapsChain(t *testing.T) {
	inner := NewToolError("read_file", errors.New("no such file"))
	wrapped := fmt.Errorf("scheduling: %w", inner)

	require.True(t, IsToolError(wrapped))
	got, ok := GetToolError(wrapped)
	require.True(t, ok)
	assert.Equal(t, "read_file", got.ToolName)

	assert.False(t, IsToolError(errors.New("plain")))
}

func TestIsToolRetryableFallsBackToClassification(t *testing.T) {
	assert.True(t, IsToolRetryable(errors.New("request timeout")))
	assert.False(t, IsToolRetryable(errors.New("invalid argument")))
}

func TestLoopErrorFormatsAndUnwraps(t *testing.T) {
	cause := errors.New("provider exploded")
	err := &LoopError{Phase: PhaseGenerate, Iteration: 4, Cause: cause}

	assert.Equal(t, "loop error at generate (iteration 4): provider exploded", err.Error())
	assert.ErrorIs(t, err, cause)

	withMsg := &LoopError{Phase: PhaseExecuteTools, Iteration: 2, Message: "batch rejected"}
	assert.Equal(t, "loop error at execute_tools (iteration 2): batch rejected", withMsg.Error())
}
