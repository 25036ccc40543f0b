// Package scheduler implements the Tool Scheduler: a per-call state machine
// that validates, optionally confirms, and executes tool calls with bounded
// parallelism, live-output reporting, and cooperative cancellation.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cortexrun/cortex/internal/approval"
	"github.com/cortexrun/cortex/internal/errs"
	"github.com/cortexrun/cortex/internal/observability"
	"github.com/cortexrun/cortex/internal/schema"
	"github.com/cortexrun/cortex/internal/toolevents"
	"github.com/cortexrun/cortex/pkg/taskmodels"
)

// Invoker is the seam the Scheduler calls through to actually run a tool;
// engine.ManagerInvoker adapts the MCP Manager to it. liveOutput, if
// non-nil, is called zero or
// more times with incremental output before the call reaches a terminal
// state.
type Invoker interface {
	Invoke(ctx context.Context, toolName string, args json.RawMessage, liveOutput func(chunk string)) (json.RawMessage, error)
}

// ToolMetadata is the scheduler's view of a tool's static properties: its
// argument schema (for the validating state) and whether it is considered
// destructive (for the default-only-destructive approval mode).
type ToolMetadata struct {
	Schema      json.RawMessage
	Destructive bool
}

// MetadataLookup resolves a tool name to its ToolMetadata. Unknown tools
// get a zero-value ToolMetadata (no schema check, not destructive).
type MetadataLookup func(toolName string) (ToolMetadata, bool)

// Config configures one Scheduler instance.
type Config struct {
	MaxParallel    int           // default 5
	PerCallTimeout time.Duration // default 30s
	ApprovalPolicy *approval.Policy
	// Metrics, if set, receives queue-depth and per-call observations.
	Metrics *observability.Metrics
}

func (c Config) withDefaults() Config {
	if c.MaxParallel <= 0 {
		c.MaxParallel = 5
	}
	if c.PerCallTimeout <= 0 {
		c.PerCallTimeout = 30 * time.Second
	}
	if c.ApprovalPolicy == nil {
		c.ApprovalPolicy = approval.DefaultPolicy()
	}
	return c
}

// Handlers are the scheduler's callback trio. All are optional; a nil
// handler is simply not invoked.
type Handlers struct {
	OnOutputUpdate         func(callID string, chunk string)
	OnToolCallsUpdate      func(all []taskmodels.ToolCall)
	OnAllToolCallsComplete func(completed []taskmodels.ToolCall)
	// OnEvent, if set, receives the structured lifecycle vocabulary
	// (toolevents.Stage*) alongside the coarser ToolCallStatus updates.
	OnEvent func(toolevents.Event)
}

func (h Handlers) emit(stage toolevents.Stage, callID, toolName string) {
	if h.OnEvent == nil {
		return
	}
	h.OnEvent(toolevents.New(stage, callID, toolName))
}

// Scheduler owns the {callID -> ToolCall} map for one batch lifetime and
// drives each call through its state machine.
type Scheduler struct {
	invoker  Invoker
	metadata MetadataLookup
	checker  *approval.Checker
	config   Config
	log      *slog.Logger

	mu    sync.Mutex
	calls map[string]*taskmodels.ToolCall
	order []string
}

// New builds a Scheduler. invoker dispatches approved calls; metadata
// resolves per-tool schema/destructive info; checker evaluates approval
// policy and, when nil, is built from config.ApprovalPolicy.
func New(invoker Invoker, metadata MetadataLookup, checker *approval.Checker, config Config, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	if metadata == nil {
		metadata = func(string) (ToolMetadata, bool) { return ToolMetadata{}, false }
	}
	config = config.withDefaults()
	if checker == nil {
		checker = approval.NewChecker(config.ApprovalPolicy)
	}
	return &Scheduler{
		invoker:  invoker,
		metadata: metadata,
		checker:  checker,
		config:   config,
		log:      log.With("component", "scheduler"),
		calls:    make(map[string]*taskmodels.ToolCall),
	}
}

// ErrDuplicateCallID is returned by Schedule when a callID was already
// scheduled in this Scheduler's lifetime.
var ErrDuplicateCallID = fmt.Errorf("duplicate callId: InvalidInput")

// Schedule inserts requests in the scheduled state and drives the whole
// batch to completion, honoring cancelToken for cooperative cancellation.
// It blocks until OnAllToolCallsComplete would fire and returns the same
// immutable snapshot it reports to that handler.
func (s *Scheduler) Schedule(ctx context.Context, requests []taskmodels.ToolCallRequest, handlers Handlers) ([]taskmodels.ToolCall, error) {
	s.mu.Lock()
	for _, req := range requests {
		if _, exists := s.calls[req.CallID]; exists {
			s.mu.Unlock()
			return nil, ErrDuplicateCallID
		}
	}
	for _, req := range requests {
		call := &taskmodels.ToolCall{Request: req, Status: taskmodels.ToolCallScheduled}
		s.calls[req.CallID] = call
		s.order = append(s.order, req.CallID)
	}
	s.mu.Unlock()

	for _, req := range requests {
		handlers.emit(toolevents.StageRequested, req.CallID, req.ToolName)
	}
	s.notifyUpdate(handlers)

	sem := make(chan struct{}, s.config.MaxParallel)
	var wg sync.WaitGroup

	for _, req := range requests {
		wg.Add(1)
		go func(req taskmodels.ToolCallRequest) {
			defer wg.Done()
			if s.config.Metrics != nil {
				s.config.Metrics.SchedulerQueueDepth.Inc()
			}
			select {
			case sem <- struct{}{}:
				if s.config.Metrics != nil {
					s.config.Metrics.SchedulerQueueDepth.Dec()
				}
				defer func() { <-sem }()
			case <-ctx.Done():
				if s.config.Metrics != nil {
					s.config.Metrics.SchedulerQueueDepth.Dec()
				}
				s.transitionCancelled(req.CallID, handlers)
				return
			}
			start := time.Now()
			s.run(ctx, req.CallID, handlers)
			if s.config.Metrics != nil {
				if call := s.get(req.CallID); call != nil {
					s.config.Metrics.ObserveToolCall(req.ToolName, string(call.Status), time.Since(start))
				}
			}
		}(req)
	}

	wg.Wait()

	// Cancellation fires for every call still non-terminal once ctx is
	// done, even ones that never reached the semaphore.
	if ctx.Err() != nil {
		s.cancelRemaining(handlers)
	}

	completed := s.snapshotBatch(requests)
	if handlers.OnAllToolCallsComplete != nil {
		handlers.OnAllToolCallsComplete(completed)
	}
	return completed, nil
}

// snapshotBatch copies out only the calls belonging to one Schedule
// invocation; earlier batches scheduled on the same instance stay in the
// map (duplicate-callId detection needs them) but are not re-reported.
func (s *Scheduler) snapshotBatch(requests []taskmodels.ToolCallRequest) []taskmodels.ToolCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]taskmodels.ToolCall, 0, len(requests))
	for _, req := range requests {
		if call, ok := s.calls[req.CallID]; ok {
			out = append(out, call.Snapshot())
		}
	}
	return out
}

func (s *Scheduler) run(ctx context.Context, callID string, handlers Handlers) {
	if !s.setStatus(callID, taskmodels.ToolCallValidating) {
		return
	}
	call := s.get(callID)
	handlers.emit(toolevents.StageValidating, callID, call.Request.ToolName)
	s.notifyUpdate(handlers)

	meta, _ := s.metadata(call.Request.ToolName)

	if len(meta.Schema) > 0 {
		if err := schema.ValidateArgs(meta.Schema, call.Request.Args); err != nil {
			toolErr := errs.NewToolError(call.Request.ToolName, err).
				WithType(errs.ToolErrorInvalidInput).
				WithToolCallID(callID)
			s.terminate(callID, taskmodels.ToolResponse{Kind: taskmodels.ToolResponseError, Display: toolErr.Error()}, handlers)
			return
		}
	}

	decision, reason := s.checker.Check(call.Request.ToolName, meta.Destructive)
	switch decision {
	case approval.Denied:
		handlers.emit(toolevents.StageDenied, callID, call.Request.ToolName)
		s.terminate(callID, taskmodels.ToolResponse{Kind: taskmodels.ToolResponseError, Display: "denied: " + reason}, handlers)
		return
	case approval.Pending:
		handlers.emit(toolevents.StageApprovalRequired, callID, call.Request.ToolName)
		if !s.awaitApproval(ctx, callID, reason, handlers) {
			return
		}
	}

	s.setStatus(callID, taskmodels.ToolCallExecuting)
	handlers.emit(toolevents.StageStarted, callID, call.Request.ToolName)
	s.notifyUpdate(handlers)

	execCtx, cancel := context.WithTimeout(ctx, s.config.PerCallTimeout)
	defer cancel()

	liveOutput := func(chunk string) {
		s.mu.Lock()
		if call, ok := s.calls[callID]; ok {
			call.LiveOutput = chunk
		}
		s.mu.Unlock()
		if handlers.OnOutputUpdate != nil {
			handlers.OnOutputUpdate(callID, chunk)
		}
	}

	raw, err := s.invoker.Invoke(execCtx, call.Request.ToolName, call.Request.Args, liveOutput)

	if ctx.Err() != nil {
		// A batch-wide cancellation raced the result; the result is
		// discarded and never re-enters the state map.
		s.transitionCancelled(callID, handlers)
		return
	}

	if err != nil {
		handlers.emit(toolevents.StageFailed, callID, call.Request.ToolName)
		toolErr := errs.NewToolError(call.Request.ToolName, err).WithToolCallID(callID)
		s.terminate(callID, taskmodels.ToolResponse{Kind: taskmodels.ToolResponseError, Display: toolErr.Error()}, handlers)
		return
	}
	handlers.emit(toolevents.StageSucceeded, callID, call.Request.ToolName)
	s.terminate(callID, taskmodels.ToolResponse{Kind: taskmodels.ToolResponseSuccess, Display: string(raw), Raw: raw}, handlers)
}

// awaitApproval blocks until the call is approved, denied, or ctx fires. It
// returns true iff the call should proceed to execution.
func (s *Scheduler) awaitApproval(ctx context.Context, callID, reason string, handlers Handlers) bool {
	call := s.get(callID)
	s.setStatus(callID, taskmodels.ToolCallAwaitingApproval)
	s.mu.Lock()
	if c, ok := s.calls[callID]; ok {
		c.ConfirmationDetails = &taskmodels.ConfirmationDetails{ToolName: call.Request.ToolName, Args: call.Request.Args}
	}
	s.mu.Unlock()
	s.notifyUpdate(handlers)

	req, err := s.checker.CreateRequest(ctx, callID, call.Request.ToolName, reason)
	if err != nil || req == nil {
		s.transitionCancelled(callID, handlers)
		return false
	}

	poll := time.NewTicker(200 * time.Millisecond)
	defer poll.Stop()
	deadline := time.NewTimer(time.Until(req.ExpiresAt))
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			s.transitionCancelled(callID, handlers)
			return false
		case <-deadline.C:
			s.transitionCancelled(callID, handlers)
			return false
		case <-poll.C:
			current, _ := s.approvalStatus(ctx, req.ID)
			switch current {
			case approval.Allowed:
				return true
			case approval.Denied:
				s.terminate(callID, taskmodels.ToolResponse{Kind: taskmodels.ToolResponseError, Display: "approval denied"}, handlers)
				return false
			}
		}
	}
}

func (s *Scheduler) approvalStatus(ctx context.Context, requestID string) (approval.Decision, error) {
	return s.checker.Status(ctx, requestID)
}

func (s *Scheduler) setStatus(callID string, status taskmodels.ToolCallStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	call, ok := s.calls[callID]
	if !ok || call.Status.IsTerminal() {
		return false
	}
	call.Status = status
	return true
}

func (s *Scheduler) terminate(callID string, response taskmodels.ToolResponse, handlers Handlers) {
	s.mu.Lock()
	call, ok := s.calls[callID]
	if !ok || call.Status.IsTerminal() {
		s.mu.Unlock()
		return
	}
	switch response.Kind {
	case taskmodels.ToolResponseSuccess:
		call.Status = taskmodels.ToolCallSuccess
	case taskmodels.ToolResponseCancelled:
		call.Status = taskmodels.ToolCallCancelled
	default:
		call.Status = taskmodels.ToolCallError
	}
	call.Response = &response
	call.ResponseSubmitted = true
	s.mu.Unlock()
	s.notifyUpdate(handlers)
}

func (s *Scheduler) transitionCancelled(callID string, handlers Handlers) {
	s.terminate(callID, taskmodels.ToolResponse{Kind: taskmodels.ToolResponseCancelled, Display: "cancelled"}, handlers)
}

func (s *Scheduler) cancelRemaining(handlers Handlers) {
	s.mu.Lock()
	var toCancel []string
	for id, call := range s.calls {
		if !call.Status.IsTerminal() {
			toCancel = append(toCancel, id)
		}
	}
	s.mu.Unlock()
	for _, id := range toCancel {
		s.transitionCancelled(id, handlers)
	}
}

func (s *Scheduler) get(callID string) *taskmodels.ToolCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := s.calls[callID].Snapshot()
	return &cp
}

func (s *Scheduler) snapshotAll() []taskmodels.ToolCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]taskmodels.ToolCall, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.calls[id].Snapshot())
	}
	return out
}

func (s *Scheduler) notifyUpdate(handlers Handlers) {
	if handlers.OnToolCallsUpdate == nil {
		return
	}
	handlers.OnToolCallsUpdate(s.snapshotAll())
}
