// Package toolselect implements the Dynamic Tool Selector: picking a
// provider-safe subset of the aggregated tool catalog for one turn, within
// a per-provider maximum (spec §4.4).
package toolselect

import (
	"strings"

	"github.com/cortexrun/cortex/pkg/taskmodels"
)

// Category tags a tool for the essential-category/priority rules.
type Category string

const (
	CategoryFilesystem Category = "filesystem"
	CategoryShell      Category = "shell"
	CategoryMemory     Category = "memory"
	CategoryOther      Category = "other"
)

// essentialOrder is the priority used both for the essential quota and for
// tie-breaking among non-essential tools.
var essentialOrder = []Category{CategoryFilesystem, CategoryShell, CategoryMemory, CategoryOther}

func categoryRank(c Category) int {
	for i, want := range essentialOrder {
		if c == want {
			return i
		}
	}
	return len(essentialOrder)
}

// Classify assigns a tool to a Category by name/description keyword
// matching. Unknown tools are CategoryOther.
func Classify(t taskmodels.ToolDefinition) Category {
	lower := strings.ToLower(t.Name + " " + t.Description)
	switch {
	case strings.Contains(lower, "file") || strings.Contains(lower, "read") || strings.Contains(lower, "write") || strings.Contains(lower, "edit"):
		return CategoryFilesystem
	case strings.Contains(lower, "shell") || strings.Contains(lower, "exec") || strings.Contains(lower, "bash") || strings.Contains(lower, "command"):
		return CategoryShell
	case strings.Contains(lower, "memory") || strings.Contains(lower, "recall"):
		return CategoryMemory
	default:
		return CategoryOther
	}
}

// knownProviderLimits are the per-provider maximums consulted before the
// heuristic default. Keys are lower-cased provider names.
var knownProviderLimits = map[string]int{
	"anthropic": 64,
	"openai":    128,
}

// heuristicDefault caps the subset when the provider is not in
// knownProviderLimits.
const heuristicDefault = 32

// essentialQuota bounds how many tools from each essential category are
// always included, before scoring fills the rest of the budget.
const essentialQuota = 3

// Limit returns the maximum tool-subset size for provider.
func Limit(provider string) int {
	if n, ok := knownProviderLimits[strings.ToLower(provider)]; ok {
		return n
	}
	return heuristicDefault
}

// Select picks a subset of catalog obeying Limit(provider). turnText
// scores token overlap against {Name, Description} for every tool not
// covered by the essential-category quota.
func Select(catalog []taskmodels.ToolDefinition, turnText, provider string) []taskmodels.ToolDefinition {
	limit := Limit(provider)
	if limit >= len(catalog) {
		return append([]taskmodels.ToolDefinition(nil), catalog...)
	}

	byCategory := make(map[Category][]taskmodels.ToolDefinition)
	for _, t := range catalog {
		cat := Classify(t)
		byCategory[cat] = append(byCategory[cat], t)
	}

	selected := make([]taskmodels.ToolDefinition, 0, limit)
	taken := make(map[string]struct{})

	for _, cat := range []Category{CategoryFilesystem, CategoryShell, CategoryMemory} {
		tools := byCategory[cat]
		for i := 0; i < len(tools) && i < essentialQuota && len(selected) < limit; i++ {
			selected = append(selected, tools[i])
			taken[tools[i].Name] = struct{}{}
		}
	}

	turnTokens := tokenize(turnText)
	var rest []scored
	for i, t := range catalog {
		if _, ok := taken[t.Name]; ok {
			continue
		}
		score := overlap(turnTokens, tokenize(t.Name+" "+t.Description))
		rest = append(rest, scored{tool: t, score: score, index: i})
	}

	stableSortScored(rest)

	for _, s := range rest {
		if len(selected) >= limit {
			break
		}
		selected = append(selected, s.tool)
	}
	return selected
}

type scored struct {
	tool  taskmodels.ToolDefinition
	score int
	index int
}

func stableSortScored(s []scored) {
	// insertion sort: stable, ties broken by category priority then
	// original catalog order (s is already in catalog order going in).
	for i := 1; i < len(s); i++ {
		j := i
		for j > 0 && less(s[j], s[j-1]) {
			s[j], s[j-1] = s[j-1], s[j]
			j--
		}
	}
}

func less(a, b scored) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	ra, rb := categoryRank(Classify(a.tool)), categoryRank(Classify(b.tool))
	if ra != rb {
		return ra < rb
	}
	return a.index < b.index
}

func tokenize(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len(f) > 2 {
			set[f] = struct{}{}
		}
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

// toolLimitPatterns are substrings observed in real provider error
// messages when a tool payload exceeds their limit.
var toolLimitPatterns = []string{
	"too many tools",
	"tool limit",
	"maximum number of tools",
	"exceeds the maximum",
	"functions array is too long",
}

// IsToolLimitError pattern-matches err's message against known
// provider phrasing for a rejected tools payload.
func IsToolLimitError(err error) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	for _, pat := range toolLimitPatterns {
		if strings.Contains(lower, pat) {
			return true
		}
	}
	return false
}

// Shrink drops the lowest-priority (largest-index, per essentialOrder)
// category from catalog entirely, for the Engine's one-shot retry after a
// tool-limit error.
func Shrink(catalog []taskmodels.ToolDefinition) []taskmodels.ToolDefinition {
	present := make(map[Category]bool)
	for _, t := range catalog {
		present[Classify(t)] = true
	}
	var drop Category
	for i := len(essentialOrder) - 1; i >= 0; i-- {
		if present[essentialOrder[i]] {
			drop = essentialOrder[i]
			break
		}
	}
	out := make([]taskmodels.ToolDefinition, 0, len(catalog))
	for _, t := range catalog {
		if Classify(t) == drop {
			continue
		}
		out = append(out, t)
	}
	return out
}
