// Package toolevents defines the structured lifecycle-event vocabulary the
// Scheduler emits while driving a tool call through its state machine.
package toolevents

import "time"

// Stage tags one point in a ToolCall's lifecycle.
type Stage string

const (
	StageRequested        Stage = "requested"
	StageValidating       Stage = "validating"
	StageApprovalRequired Stage = "approval_required"
	StageStarted          Stage = "started"
	StageRetrying         Stage = "retrying"
	StageSucceeded        Stage = "succeeded"
	StageFailed           Stage = "failed"
	StageDenied           Stage = "denied"
	StageCancelled        Stage = "cancelled"
)

// Event is one lifecycle notification for a single tool call, delivered
// through the Scheduler's OnEvent handler.
type Event struct {
	Stage     Stage
	CallID    string
	ToolName  string
	Attempt   int
	Chunk     string // set only for live-output updates
	Err       string
	Timestamp time.Time
}

// New builds an Event stamped with the current time.
func New(stage Stage, callID, toolName string) Event {
	return Event{Stage: stage, CallID: callID, ToolName: toolName, Timestamp: time.Now()}
}

// WithAttempt returns a copy of e tagged with the given attempt number.
func (e Event) WithAttempt(attempt int) Event {
	e.Attempt = attempt
	return e
}

// WithChunk returns a copy of e carrying a live-output chunk.
func (e Event) WithChunk(chunk string) Event {
	e.Chunk = chunk
	return e
}

// WithError returns a copy of e carrying an error message.
func (e Event) WithError(err error) Event {
	if err != nil {
		e.Err = err.Error()
	}
	return e
}
