package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cortexrun/cortex/internal/approval"
	"github.com/cortexrun/cortex/internal/llm"
	"github.com/cortexrun/cortex/internal/memory"
	"github.com/cortexrun/cortex/internal/scheduler"
	"github.com/cortexrun/cortex/internal/session"
	"github.com/cortexrun/cortex/pkg/taskmodels"
)

// scriptedProvider returns each response in order, then repeats the last.
type scriptedProvider struct {
	responses []llm.Response
	errs      []error
	calls     int
	lastReq   llm.Request
}

func (p *scriptedProvider) Generate(_ context.Context, req llm.Request) (llm.Response, error) {
	p.lastReq = req
	i := p.calls
	p.calls++
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	var err error
	if i < len(p.errs) {
		err = p.errs[i]
	}
	return p.responses[i], err
}

func (p *scriptedProvider) CountTokens(_ context.Context, text string) (int, error) {
	return len(text) / 4, nil
}

type echoInvoker struct{ invoked []string }

func (e *echoInvoker) Invoke(_ context.Context, toolName string, args json.RawMessage, _ func(string)) (json.RawMessage, error) {
	e.invoked = append(e.invoked, toolName)
	return json.RawMessage(`{"ok":true}`), nil
}

func newTestEngine(t *testing.T, provider llm.Provider, invoker scheduler.Invoker) (*Engine, *session.Store) {
	t.Helper()
	sess := session.New()
	sched := scheduler.New(invoker, nil, nil, scheduler.Config{ApprovalPolicy: &approval.Policy{Mode: approval.ModeAuto}}, nil)
	eng := New(Config{
		Provider:  provider,
		Scheduler: sched,
		Memory:    memory.NewReference(),
		Session:   sess,
		Catalog: []taskmodels.ToolDefinition{
			{Name: "read_file", Description: "Read a file from disk"},
		},
	})
	return eng, sess
}

func TestTaskCompleteSentinelStopsRun(t *testing.T) {
	provider := &scriptedProvider{responses: []llm.Response{
		{Text: "all done, task_complete"},
	}}
	eng, _ := newTestEngine(t, provider, &echoInvoker{})

	result, err := eng.ExecuteUntilComplete(context.Background(), "do the thing", DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, ReasonCompleted, result.CompletionReason)
	require.Equal(t, 1, result.Iterations)
	require.Contains(t, result.FinalResult, "all done")
}

func TestPlanCompleteToolStopsRun(t *testing.T) {
	provider := &scriptedProvider{responses: []llm.Response{
		{Text: "finishing up", ToolCalls: []llm.ToolCallRequest{{CallID: "c1", ToolName: PlanCompleteTool}}},
	}}
	eng, _ := newTestEngine(t, provider, &echoInvoker{})

	result, err := eng.ExecuteUntilComplete(context.Background(), "do the thing", DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, ReasonCompleted, result.CompletionReason)
	require.Equal(t, 1, result.Iterations)
}

func TestIterationCapWithAssistantMessageCount(t *testing.T) {
	provider := &scriptedProvider{responses: []llm.Response{
		{Text: "still working"},
	}}
	eng, sess := newTestEngine(t, provider, &echoInvoker{})

	result, err := eng.ExecuteUntilComplete(context.Background(), "never finishes", Options{MaxIterations: 3})
	require.NoError(t, err)
	require.Equal(t, ReasonIterationCap, result.CompletionReason)
	require.Equal(t, 3, result.Iterations)

	assistant := 0
	for _, m := range sess.LoadHistory() {
		if m.Role == taskmodels.RoleAssistant {
			assistant++
		}
	}
	require.Equal(t, 3, assistant)
}

func TestZeroMaxIterationsReturnsImmediately(t *testing.T) {
	provider := &scriptedProvider{responses: []llm.Response{{Text: "unused"}}}
	eng, _ := newTestEngine(t, provider, &echoInvoker{})

	result, err := eng.ExecuteUntilComplete(context.Background(), "anything", Options{MaxIterations: 0})
	require.NoError(t, err)
	require.Equal(t, ReasonIterationCap, result.CompletionReason)
	require.Equal(t, 0, result.Iterations)
	require.Equal(t, 0, provider.calls)
}

func TestToolCallsAreDispatchedAndRecorded(t *testing.T) {
	provider := &scriptedProvider{responses: []llm.Response{
		{Text: "reading", ToolCalls: []llm.ToolCallRequest{{CallID: "c1", ToolName: "read_file", Args: []byte(`{"path":"a.txt"}`)}}},
		{Text: "task_complete"},
	}}
	invoker := &echoInvoker{}
	eng, sess := newTestEngine(t, provider, invoker)

	result, err := eng.ExecuteUntilComplete(context.Background(), "read a.txt", DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, ReasonCompleted, result.CompletionReason)
	require.Equal(t, []string{"read_file"}, invoker.invoked)

	toolMessages := 0
	for _, m := range sess.LoadHistory() {
		if m.Role == taskmodels.RoleTool {
			toolMessages++
			require.Equal(t, "c1", m.ToolCallID)
		}
	}
	require.Equal(t, 1, toolMessages)
}

func TestCancellationReturnsPartialResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider := &scriptedProvider{responses: []llm.Response{{Text: "unused"}}}
	eng, _ := newTestEngine(t, provider, &echoInvoker{})

	result, err := eng.ExecuteUntilComplete(ctx, "anything", DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, ReasonCancelled, result.CompletionReason)
	require.Equal(t, 0, result.Iterations)
}

func TestToolLimitErrorShrinksAndRetriesOnce(t *testing.T) {
	provider := &scriptedProvider{
		responses: []llm.Response{
			{}, // first call errors with a tool-limit message
			{Text: "task_complete"},
		},
		errs: []error{errors.New("too many tools in request"), nil},
	}
	eng, _ := newTestEngine(t, provider, &echoInvoker{})

	result, err := eng.ExecuteUntilComplete(context.Background(), "anything", DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, ReasonCompleted, result.CompletionReason)
	require.Equal(t, 1, result.Iterations)
	require.Equal(t, 2, provider.calls)
}

func TestMemoryHintPrependedForKnownError(t *testing.T) {
	store := memory.NewReference()
	ctx := context.Background()
	// Seed the same error several times so the derived confidence clears
	// the hint threshold.
	for i := 0; i < 4; i++ {
		require.NoError(t, store.StoreErrorPattern(ctx, "connection refused to database", "start the database container first", nil))
	}

	provider := &scriptedProvider{responses: []llm.Response{{Text: "task_complete"}}}
	sess := session.New()
	sched := scheduler.New(&echoInvoker{}, nil, nil, scheduler.Config{ApprovalPolicy: &approval.Policy{Mode: approval.ModeAuto}}, nil)
	eng := New(Config{Provider: provider, Scheduler: sched, Memory: store, Session: sess})

	_, err := eng.ExecuteUntilComplete(ctx, "fix the connection refused to database error", DefaultOptions())
	require.NoError(t, err)
	require.Contains(t, provider.lastReq.System, "previously recorded solution")
	require.Contains(t, provider.lastReq.System, "start the database container first")
}

func TestPresetToolFilterScopesCatalog(t *testing.T) {
	provider := &scriptedProvider{responses: []llm.Response{{Text: "task_complete"}}}
	sess := session.New()
	sched := scheduler.New(&echoInvoker{}, nil, nil, scheduler.Config{ApprovalPolicy: &approval.Policy{Mode: approval.ModeAuto}}, nil)
	eng := New(Config{
		Provider:  provider,
		Scheduler: sched,
		Session:   sess,
		Catalog: []taskmodels.ToolDefinition{
			{Name: "read_file", Description: "Read a file"},
			{Name: "write_file", Description: "Write a file"},
		},
		Preset: &taskmodels.AgentPreset{
			Name:  "reader",
			Tools: map[string]struct{}{"read_file": {}},
		},
	})

	_, err := eng.ExecuteUntilComplete(context.Background(), "read stuff", DefaultOptions())
	require.NoError(t, err)
	require.Len(t, provider.lastReq.Tools, 1)
	require.Equal(t, "read_file", provider.lastReq.Tools[0].Name)
}
