package planner

import (
	"fmt"
	"sort"

	"github.com/cortexrun/cortex/pkg/taskmodels"
)

// Planner turns a task list into prioritized, dependency-respecting
// execution groups (spec §4.8).
type Planner struct {
	matcher *Matcher
}

// NewPlanner builds a Planner over matcher.
func NewPlanner(matcher *Matcher) *Planner {
	return &Planner{matcher: matcher}
}

// PrioritizeTasks stable-sorts tasks by (-priority, +|dependencies|,
// original-index). The input slice is not modified; a new slice is
// returned.
func PrioritizeTasks(tasks []*taskmodels.Task) []*taskmodels.Task {
	out := make([]*taskmodels.Task, len(tasks))
	copy(out, tasks)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return len(out[i].Dependencies) < len(out[j].Dependencies)
	})
	return out
}

// GroupForParallelExecution layers tasks(Kahn-style) into waves where every
// dependency of every task in wave k is satisfied by some wave j < k. A
// wave of more than one task is marked CanRunInParallel; a wave containing
// exactly one task is marked parallel too unless later waves depend on it,
// in which case it is sequential (single element, dependents rely on it).
//
// Cycle handling: once no further tasks have all dependencies satisfied but
// tasks remain, the remainder is emitted one per sequential group in
// prioritized order and cycleDiagnostic is set; the loop never spins
// forever.
func GroupForParallelExecution(tasks []*taskmodels.Task) (groups [][]*taskmodels.Task, cycleDiagnostic string) {
	prioritized := PrioritizeTasks(tasks)

	remaining := make(map[string]*taskmodels.Task, len(prioritized))
	order := make([]string, 0, len(prioritized))
	for _, t := range prioritized {
		remaining[t.ID] = t
		order = append(order, t.ID)
	}

	satisfied := make(map[string]struct{})

	for len(remaining) > 0 {
		var wave []*taskmodels.Task
		for _, id := range order {
			t, ok := remaining[id]
			if !ok {
				continue
			}
			if allSatisfied(t, satisfied) {
				wave = append(wave, t)
			}
		}

		if len(wave) == 0 {
			// Cycle: emit the remainder, one per sequential group, in
			// prioritized order, and stop.
			var cycleIDs []string
			for _, id := range order {
				t, ok := remaining[id]
				if !ok {
					continue
				}
				groups = append(groups, []*taskmodels.Task{t})
				cycleIDs = append(cycleIDs, id)
				delete(remaining, id)
			}
			cycleDiagnostic = fmt.Sprintf("dependency cycle detected among tasks %v; emitted sequentially", cycleIDs)
			break
		}

		groups = append(groups, wave)
		for _, t := range wave {
			satisfied[t.ID] = struct{}{}
			delete(remaining, t.ID)
		}
	}

	return groups, cycleDiagnostic
}

func allSatisfied(t *taskmodels.Task, satisfied map[string]struct{}) bool {
	for dep := range t.Dependencies {
		if _, ok := satisfied[dep]; !ok {
			return false
		}
	}
	return true
}

// GenerateExecutionPlan matches every task to a preset, groups them for
// parallel execution, and tallies per-preset utilization.
func (p *Planner) GenerateExecutionPlan(tasks []*taskmodels.Task) taskmodels.ExecutionPlan {
	waves, cycleDiag := GroupForParallelExecution(tasks)

	plan := taskmodels.ExecutionPlan{
		AgentUtilization: make(map[string]int),
		CycleDetected:    cycleDiag != "",
		CycleDiagnostic:  cycleDiag,
	}

	dependents := make(map[string]int)
	for _, t := range tasks {
		for dep := range t.Dependencies {
			dependents[dep]++
		}
	}

	for _, wave := range waves {
		group := taskmodels.ExecutionGroup{CanRunInParallel: true}
		if len(wave) == 1 && dependents[wave[0].ID] > 0 {
			group.CanRunInParallel = false
		}
		for _, t := range wave {
			match := p.matcher.MatchTask(t)
			group.Matches = append(group.Matches, match)
			if match.Preset != nil {
				plan.AgentUtilization[match.Preset.Name]++
			}
		}
		plan.Groups = append(plan.Groups, group)
	}

	seen := make(map[string]struct{})
	for _, g := range plan.Groups {
		for _, m := range g.Matches {
			if m.Preset == nil {
				continue
			}
			seen[m.Preset.Name] = struct{}{}
		}
	}
	plan.TotalAgents = len(seen)

	return plan
}
