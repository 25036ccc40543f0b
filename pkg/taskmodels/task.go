// Package taskmodels defines the data types shared across the orchestration
// core: tasks, agent presets, execution plans, tool calls, sessions, and the
// memory entries the engine consults.
package taskmodels

// Task is one unit of work produced by the decomposer. Immutable once
// created; the Planner and Engine only ever read it.
type Task struct {
	ID           string
	Description  string
	Type         string
	Priority     int
	Dependencies map[string]struct{}
}

// DefaultPriority is used when a task carries no urgency keyword.
const DefaultPriority = 5

// NewTask builds a Task with DefaultPriority and an empty dependency set.
func NewTask(id, description string) *Task {
	return &Task{
		ID:           id,
		Description:  description,
		Priority:     DefaultPriority,
		Dependencies: make(map[string]struct{}),
	}
}

// AddDependency records that t cannot run before dep completes.
func (t *Task) AddDependency(dep string) {
	if t.Dependencies == nil {
		t.Dependencies = make(map[string]struct{})
	}
	t.Dependencies[dep] = struct{}{}
}

// DependencyIDs returns the dependency set as a sorted-free slice; callers
// that need deterministic order should sort it themselves.
func (t *Task) DependencyIDs() []string {
	ids := make([]string, 0, len(t.Dependencies))
	for id := range t.Dependencies {
		ids = append(ids, id)
	}
	return ids
}

// AgentPreset is a named agent profile: a system prompt plus an optional
// allowed-tool set. Loaded once per session from three precedence-ordered
// sources (see internal/presets).
type AgentPreset struct {
	Name         string
	Description  string
	SystemPrompt string
	Model        string
	Tools        map[string]struct{} // nil means "no restriction"
}

// GeneralPurposeName is the preset name that must always resolve, even if
// no file defines it.
const GeneralPurposeName = "general-purpose"

// AllowsTool reports whether the preset's tool allow-list permits name. A
// nil or empty Tools set means no restriction.
func (p *AgentPreset) AllowsTool(name string) bool {
	if len(p.Tools) == 0 {
		return true
	}
	_, ok := p.Tools[name]
	return ok
}

// TaskAgentMatch is the derived pairing of a task to the preset the Matcher
// picked for it. Lifetime is one plan.
type TaskAgentMatch struct {
	TaskID     string
	Preset     *AgentPreset
	Confidence float64
	Reasoning  string
}

// ExecutionGroup is an ordered sequence of matches that the Planner has
// determined may run together. Invariant: every dependency of every task in
// group k is satisfied by some group j < k.
type ExecutionGroup struct {
	Matches          []TaskAgentMatch
	CanRunInParallel bool
}

// ExecutionPlan is the Planner's output: an ordered sequence of groups plus
// bookkeeping about agent usage.
type ExecutionPlan struct {
	Groups           []ExecutionGroup
	TotalAgents      int
	AgentUtilization map[string]int
	CycleDetected    bool
	CycleDiagnostic  string
}
