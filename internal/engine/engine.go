// Package engine implements the Continuous Execution Engine (spec §4.9):
// the multi-turn LLM <-> Scheduler loop that drives one task to completion,
// with Memory-fed error recovery and tool-limit shrink retry.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cortexrun/cortex/internal/errs"
	"github.com/cortexrun/cortex/internal/llm"
	"github.com/cortexrun/cortex/internal/memory"
	"github.com/cortexrun/cortex/internal/observability"
	"github.com/cortexrun/cortex/internal/retryx"
	"github.com/cortexrun/cortex/internal/scheduler"
	"github.com/cortexrun/cortex/internal/session"
	"github.com/cortexrun/cortex/internal/toolevents"
	"github.com/cortexrun/cortex/internal/toolselect"
	"github.com/cortexrun/cortex/pkg/taskmodels"
)

// PlanCompleteTool is the reserved tool name the model calls to signal
// completion explicitly; preferred over the task_complete text sentinel
// when both are present in the same turn.
const PlanCompleteTool = "plan_complete"

// TaskCompleteSentinel is the fallback textual completion signal, checked
// only when the turn produced no tool calls at all.
const TaskCompleteSentinel = "task_complete"

// Completion reasons returned in Result.CompletionReason.
const (
	ReasonCompleted    = "completed"
	ReasonIterationCap = "iteration_cap"
	ReasonCancelled    = "cancelled"
)

// DefaultMaxIterations bounds a run absent an explicit Options.MaxIterations.
const DefaultMaxIterations = 30

// errorSolutionConfidenceThreshold is the minimum FindErrorSolution
// confidence that earns a system hint (spec §4.9 step 1).
const errorSolutionConfidenceThreshold = 0.5

// Options configures one ExecuteUntilComplete run. MaxIterations is
// honored literally, including zero (the run returns immediately with an
// iteration_cap); a negative value selects DefaultMaxIterations. Callers
// wanting the standard settings should start from DefaultOptions.
type Options struct {
	MaxIterations        int
	RequireHumanApproval bool
	SessionID            string
}

// DefaultOptions returns the standard run settings.
func DefaultOptions() Options {
	return Options{MaxIterations: DefaultMaxIterations}
}

func (o Options) withDefaults() Options {
	if o.MaxIterations < 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	return o
}

// Result is what ExecuteUntilComplete returns.
type Result struct {
	FinalResult      string
	Iterations       int
	CompletionReason string
}

// Config wires the Engine to its collaborators. Catalog is a snapshot the
// caller takes from the Manager before each run (BuildCatalog), so the
// Engine itself only touches internal/mcp through the Invoker and
// MetadataLookup seams in catalog.go and invoker.go.
type Config struct {
	Provider   llm.Provider
	Scheduler  *scheduler.Scheduler
	Memory     memory.Store
	Session    *session.Store
	Catalog    []taskmodels.ToolDefinition
	Preset     *taskmodels.AgentPreset
	ProviderID string // e.g. "anthropic", "openai" — drives toolselect.Limit
	Metrics    *observability.Metrics
	Log        *slog.Logger
}

// Engine drives the LLM<->Scheduler loop for one task until a completion
// signal, the iteration cap, or cancellation.
type Engine struct {
	cfg Config
	log *slog.Logger
}

// New builds an Engine from cfg.
func New(cfg Config) *Engine {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Engine{cfg: cfg, log: log.With("component", "engine")}
}

// ExecuteUntilComplete runs the per-iteration loop described in spec §4.9.
func (e *Engine) ExecuteUntilComplete(ctx context.Context, prompt string, opts Options) (Result, error) {
	opts = opts.withDefaults()

	e.cfg.Session.AppendMessage(taskmodels.ChatMessage{Role: taskmodels.RoleUser, Content: prompt})

	lastText := ""
	catalog := e.visibleCatalog()

	for iteration := 1; iteration <= opts.MaxIterations; iteration++ {
		if ctx.Err() != nil {
			return e.finishWith(lastText, iteration-1, errs.ErrCancelled)
		}

		systemPrompt := e.systemPromptFor(ctx, prompt)
		selected := toolselect.Select(catalog, prompt, e.cfg.ProviderID)

		req := llm.Request{
			System:   systemPrompt,
			Messages: toLLMMessages(e.cfg.Session.LoadHistory()),
			Tools:    toToolSpecs(selected),
			Options:  e.modelOptions(),
		}

		resp, err := e.generate(ctx, req)
		if err != nil && toolselect.IsToolLimitError(err) {
			selected = toolselect.Shrink(selected)
			req.Tools = toToolSpecs(selected)
			resp, err = e.generate(ctx, req)
		}
		if err != nil {
			loopErr := &errs.LoopError{Phase: errs.PhaseGenerate, Iteration: iteration, Cause: err}
			e.log.Warn("llm generate failed", "iteration", iteration, "error", loopErr)
			e.cfg.Session.AppendMessage(taskmodels.ChatMessage{Role: taskmodels.RoleAssistant, Content: loopErr.Error()})
			continue
		}

		lastText = resp.Text
		e.cfg.Session.AppendMessage(taskmodels.ChatMessage{Role: taskmodels.RoleAssistant, Content: resp.Text})

		if done, reason := isCompletionSignal(resp); done {
			return e.finish(Result{FinalResult: lastText, Iterations: iteration, CompletionReason: reason})
		}

		if len(resp.ToolCalls) == 0 {
			continue
		}

		requests := toToolCallRequests(resp.ToolCalls)
		completed, err := e.cfg.Scheduler.Schedule(ctx, requests, scheduler.Handlers{
			OnEvent: func(ev toolevents.Event) {
				e.log.Debug("tool event", "stage", ev.Stage, "call_id", ev.CallID, "tool", ev.ToolName)
			},
		})
		if err != nil {
			e.log.Warn("scheduler batch failed", "error", err)
			continue
		}

		for _, call := range completed {
			e.recordOutcome(ctx, call)
			e.cfg.Session.AppendMessage(taskmodels.ChatMessage{
				Role:       taskmodels.RoleTool,
				Content:    toolResultText(call),
				ToolCallID: call.Request.CallID,
			})
		}

		if ctx.Err() != nil {
			return e.finishWith(lastText, iteration, errs.ErrCancelled)
		}
	}

	return e.finishWith(lastText, opts.MaxIterations, errs.ErrMaxIterations)
}

// finishWith terminates a run on a control-flow sentinel (ErrCancelled,
// ErrMaxIterations). The sentinel is mapped to the reported
// CompletionReason rather than surfaced as an error: a capped or
// cancelled run is a normal outcome, not a failure of the engine itself.
func (e *Engine) finishWith(finalText string, iterations int, cause error) (Result, error) {
	return e.finish(Result{FinalResult: finalText, Iterations: iterations, CompletionReason: reasonFor(cause)})
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, errs.ErrMaxIterations):
		return ReasonIterationCap
	case errors.Is(err, errs.ErrCancelled):
		return ReasonCancelled
	default:
		return ReasonCompleted
	}
}

func (e *Engine) finish(result Result) (Result, error) {
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.EngineIterations.WithLabelValues(result.CompletionReason).Add(float64(result.Iterations))
	}
	return result, nil
}

// generate runs one LLM turn under the retry supervisor. Transient
// provider failures are retried with backoff; cancellations and tool-limit
// rejections are surfaced immediately (the latter so the caller can shrink
// the tool subset instead of repeating a doomed payload).
func (e *Engine) generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	start := time.Now()
	result := retryx.WithRetry(ctx, func(ctx context.Context) (llm.Response, error) {
		return e.cfg.Provider.Generate(ctx, req)
	}, retryx.Options{
		MaxRetries:         2,
		ExponentialBackoff: true,
		Timeout:            2 * time.Minute,
		ShouldRetry: func(err error) bool {
			return !toolselect.IsToolLimitError(err)
		},
		OnAttempt: func(attempt int) {
			if e.cfg.Metrics != nil && attempt > 1 {
				e.cfg.Metrics.RetryAttempts.WithLabelValues("llm_generate").Inc()
			}
		},
	})
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.ObserveLLMTurn(e.cfg.ProviderID, time.Since(start))
	}
	return result.Value, result.Err
}

func (e *Engine) visibleCatalog() []taskmodels.ToolDefinition {
	if e.cfg.Preset == nil {
		return e.cfg.Catalog
	}
	filtered := make([]taskmodels.ToolDefinition, 0, len(e.cfg.Catalog))
	for _, t := range e.cfg.Catalog {
		if e.cfg.Preset.AllowsTool(t.Name) {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

func (e *Engine) modelOptions() llm.Options {
	opts := llm.Options{}
	if e.cfg.Preset != nil {
		opts.Model = e.cfg.Preset.Model
	}
	return opts
}

// systemPromptFor composes the preset's system prompt with any
// high-confidence error-solution hint from Memory (spec §4.9 step 1).
func (e *Engine) systemPromptFor(ctx context.Context, turnText string) string {
	var b strings.Builder
	if e.cfg.Preset != nil {
		b.WriteString(e.cfg.Preset.SystemPrompt)
	}

	if e.cfg.Memory != nil {
		solution, err := e.cfg.Memory.FindErrorSolution(ctx, turnText, nil)
		if err == nil && solution != nil && solution.Confidence > errorSolutionConfidenceThreshold {
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString("Hint from a previously recorded solution to a similar error: ")
			b.WriteString(solution.Solution)
		}
	}
	return b.String()
}

// isCompletionSignal implements step 4: a plan_complete tool call is
// preferred when present; otherwise an empty-tool-call turn whose text
// contains the task_complete sentinel also ends the run.
func isCompletionSignal(resp llm.Response) (bool, string) {
	for _, tc := range resp.ToolCalls {
		if tc.ToolName == PlanCompleteTool {
			return true, ReasonCompleted
		}
	}
	if len(resp.ToolCalls) == 0 && strings.Contains(resp.Text, TaskCompleteSentinel) {
		return true, ReasonCompleted
	}
	return false, ""
}

func (e *Engine) recordOutcome(ctx context.Context, call taskmodels.ToolCall) {
	if e.cfg.Memory == nil || call.Response == nil {
		return
	}
	meta := map[string]string{"tool": call.Request.ToolName}
	switch call.Status {
	case taskmodels.ToolCallSuccess:
		_ = e.cfg.Memory.StoreSuccessPattern(ctx, call.Request.ToolName, []string{call.Response.Display}, meta)
	case taskmodels.ToolCallError:
		_ = e.cfg.Memory.StoreErrorPattern(ctx, call.Response.Display, "", meta)
	}
}

func toolResultText(call taskmodels.ToolCall) string {
	if call.Response == nil {
		return ""
	}
	return call.Response.Display
}

func toLLMMessages(history []taskmodels.ChatMessage) []llm.Message {
	out := make([]llm.Message, len(history))
	for i, m := range history {
		out[i] = llm.Message{Role: llm.Role(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
	}
	return out
}

func toToolSpecs(tools []taskmodels.ToolDefinition) []llm.ToolSpec {
	out := make([]llm.ToolSpec, len(tools))
	for i, t := range tools {
		out[i] = llm.ToolSpec{Name: t.Name, Description: t.Description, Parameters: []byte(t.Parameters)}
	}
	return out
}

func toToolCallRequests(calls []llm.ToolCallRequest) []taskmodels.ToolCallRequest {
	out := make([]taskmodels.ToolCallRequest, 0, len(calls))
	for _, c := range calls {
		if c.ToolName == PlanCompleteTool {
			continue
		}
		callID := c.CallID
		if callID == "" {
			callID = uuid.NewString()
		}
		out = append(out, taskmodels.ToolCallRequest{CallID: callID, ToolName: c.ToolName, Args: json.RawMessage(c.Args)})
	}
	return out
}
