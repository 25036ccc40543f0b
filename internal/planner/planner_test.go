package planner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cortexrun/cortex/pkg/taskmodels"
)

type fakePresets struct {
	byName map[string]*taskmodels.AgentPreset
	order  []string
}

func newFakePresets(presets ...*taskmodels.AgentPreset) *fakePresets {
	fp := &fakePresets{byName: make(map[string]*taskmodels.AgentPreset)}
	for _, p := range presets {
		fp.byName[p.Name] = p
		fp.order = append(fp.order, p.Name)
	}
	if _, ok := fp.byName[taskmodels.GeneralPurposeName]; !ok {
		gp := &taskmodels.AgentPreset{Name: taskmodels.GeneralPurposeName, Description: "general purpose fallback"}
		fp.byName[gp.Name] = gp
		fp.order = append(fp.order, gp.Name)
	}
	return fp
}

func (f *fakePresets) List() []*taskmodels.AgentPreset {
	out := make([]*taskmodels.AgentPreset, 0, len(f.order))
	for _, n := range f.order {
		out = append(out, f.byName[n])
	}
	return out
}

func (f *fakePresets) Get(name string) (*taskmodels.AgentPreset, bool) {
	p, ok := f.byName[name]
	return p, ok
}

func newTask(id, desc string, priority int, deps ...string) *taskmodels.Task {
	t := taskmodels.NewTask(id, desc)
	t.Priority = priority
	for _, d := range deps {
		t.AddDependency(d)
	}
	return t
}

func TestMatchTaskByKeywordOverlap(t *testing.T) {
	presets := newFakePresets(
		&taskmodels.AgentPreset{Name: "frontend-developer", Description: "Build React components"},
		&taskmodels.AgentPreset{Name: "backend-architect", Description: "Design RESTful APIs"},
	)
	m := NewMatcher(presets)
	match := m.MatchTask(newTask("1", "Design RESTful API endpoints for user management", 5))
	require.Equal(t, "backend-architect", match.Preset.Name)
	require.Greater(t, match.Confidence, 0.5)
}

func TestMatchTaskNoMatchFallsBackToGeneralPurpose(t *testing.T) {
	presets := newFakePresets(
		&taskmodels.AgentPreset{Name: "frontend-developer", Description: "xyz123 qqq987"},
	)
	m := NewMatcher(presets)
	match := m.MatchTask(newTask("1", "zzz completely unrelated words here", 5))
	require.Equal(t, taskmodels.GeneralPurposeName, match.Preset.Name)
	require.Equal(t, "No specific match found", match.Reasoning)
	require.Zero(t, match.Confidence)
}

func TestGroupForParallelExecution(t *testing.T) {
	tasks := []*taskmodels.Task{
		newTask("1", "A", 5),
		newTask("2", "B", 5, "1"),
		newTask("3", "C", 5, "1"),
		newTask("4", "D", 5, "2", "3"),
	}
	groups, diag := GroupForParallelExecution(tasks)
	require.Empty(t, diag)
	require.Len(t, groups, 3)

	ids := func(g []*taskmodels.Task) []string {
		out := make([]string, len(g))
		for i, t := range g {
			out[i] = t.ID
		}
		return out
	}
	require.ElementsMatch(t, []string{"1"}, ids(groups[0]))
	require.ElementsMatch(t, []string{"2", "3"}, ids(groups[1]))
	require.ElementsMatch(t, []string{"4"}, ids(groups[2]))
}

func TestGroupForParallelExecutionDetectsCycle(t *testing.T) {
	tasks := []*taskmodels.Task{
		newTask("1", "A", 5, "2"),
		newTask("2", "B", 5, "1"),
	}
	groups, diag := GroupForParallelExecution(tasks)
	require.NotEmpty(t, diag)

	total := 0
	for _, g := range groups {
		total += len(g)
		require.Len(t, g, 1)
	}
	require.Equal(t, 2, total)
}

func TestGenerateExecutionPlan(t *testing.T) {
	presets := newFakePresets(
		&taskmodels.AgentPreset{Name: "backend-architect", Description: "Design RESTful APIs"},
	)
	planner := NewPlanner(NewMatcher(presets))
	tasks := []*taskmodels.Task{
		newTask("1", "Design RESTful API", 5),
		newTask("2", "Design RESTful API dependent", 5, "1"),
	}
	plan := planner.GenerateExecutionPlan(tasks)
	require.Len(t, plan.Groups, 2)
	require.False(t, plan.Groups[0].CanRunInParallel) // group[0] has task "1", relied on by "2"
	require.Equal(t, 2, plan.AgentUtilization["backend-architect"])
}

func TestPrioritizeTasksStableSort(t *testing.T) {
	tasks := []*taskmodels.Task{
		newTask("a", "x", 3),
		newTask("b", "x", 5),
		newTask("c", "x", 5, "a"),
		newTask("d", "x", 3),
	}
	out := PrioritizeTasks(tasks)
	ids := make([]string, len(out))
	for i, t := range out {
		ids[i] = t.ID
	}
	require.Equal(t, []string{"b", "c", "a", "d"}, ids)
}
