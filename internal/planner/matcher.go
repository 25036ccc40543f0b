// Package planner implements the Agent Matcher (task<->preset keyword
// scoring) and the Parallel Execution Planner (priority sort + Kahn
// layering into execution groups), spec §4.8.
package planner

import (
	"strings"

	"github.com/cortexrun/cortex/pkg/taskmodels"
)

// PresetSource is the seam over the Agent-Preset Registry the Matcher
// consults; internal/presets.Registry satisfies it.
type PresetSource interface {
	List() []*taskmodels.AgentPreset
	Get(name string) (*taskmodels.AgentPreset, bool)
}

// Matcher scores tasks against a preset catalog.
type Matcher struct {
	presets PresetSource
}

// NewMatcher builds a Matcher over presets.
func NewMatcher(presets PresetSource) *Matcher {
	return &Matcher{presets: presets}
}

// MatchTask scores task.Description against every preset's Description by
// case-insensitive keyword overlap. A direct mention of a preset's Name in
// the description forces that preset's selection regardless of score.
// Confidence is matched_keywords / max(1, preset_description_tokens) — the
// denominator is the matched preset's own description length, so a short,
// well-covered preset description scores high confidence. Falls back to
// general-purpose with reasoning "No specific match found" when every
// preset scores zero.
func (m *Matcher) MatchTask(task *taskmodels.Task) taskmodels.TaskAgentMatch {
	lowerDesc := strings.ToLower(task.Description)
	descTokens := tokenize(lowerDesc)

	presets := m.presets.List()

	for _, p := range presets {
		// The direct-mention check is a contiguous substring match on the
		// lowercased description, not a token comparison.
		if strings.Contains(lowerDesc, strings.ToLower(p.Name)) {
			return taskmodels.TaskAgentMatch{
				TaskID:     task.ID,
				Preset:     p,
				Confidence: 1.0,
				Reasoning:  "direct mention of preset name \"" + p.Name + "\"",
			}
		}
	}

	var best *taskmodels.AgentPreset
	bestMatched := 0
	bestDenom := 1
	for _, p := range presets {
		presetTokens := tokenize(strings.ToLower(p.Description))
		matched := overlap(descTokens, presetTokens)
		if matched > bestMatched {
			bestMatched = matched
			best = p
			bestDenom = len(presetTokens)
			if bestDenom == 0 {
				bestDenom = 1
			}
		}
	}

	if best == nil || bestMatched == 0 {
		gp, _ := m.presets.Get(taskmodels.GeneralPurposeName)
		return taskmodels.TaskAgentMatch{
			TaskID:     task.ID,
			Preset:     gp,
			Confidence: 0,
			Reasoning:  "No specific match found",
		}
	}

	return taskmodels.TaskAgentMatch{
		TaskID:     task.ID,
		Preset:     best,
		Confidence: float64(bestMatched) / float64(bestDenom),
		Reasoning:  "keyword overlap with preset description",
	}
}

func tokenize(s string) map[string]struct{} {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '-'
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func overlap(a, b map[string]struct{}) int {
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
