// Package decompose implements the Task Decomposer: splitting one task
// description into subtasks by linguistic cues, and the size/urgency
// heuristics the Planner uses to prioritize them (spec §4.7).
package decompose

import "strings"

// connectives are tried in order; the first one present in text wins. Only
// one connective ever splits a given description.
var connectives = []string{" and ", "、", ";"}

// Decompose splits text into subtasks on the first connective it contains.
// A description with none of them is returned unchanged as a single-element
// slice.
func Decompose(text string) []string {
	for _, conn := range connectives {
		if strings.Contains(text, conn) {
			parts := strings.Split(text, conn)
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					out = append(out, p)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return []string{text}
}

// maxSimpleLength is the length past which a description is considered
// complex even without a connective.
const maxSimpleLength = 100

// IsComplex reports whether text would be split by Decompose, or is long
// enough on its own to warrant treating it as complex.
func IsComplex(text string) bool {
	for _, conn := range connectives {
		if strings.Contains(text, conn) {
			return true
		}
	}
	return len(text) > maxSimpleLength
}

var (
	urgentKeywords    = []string{"urgent", "asap", "immediately", "critical"}
	importantKeywords = []string{"important", "priority", "high-priority"}
)

// Priority returns 5 if text contains an urgency keyword, 4 for an
// importance keyword, else the default of 3.
func Priority(text string) int {
	lower := strings.ToLower(text)
	for _, kw := range urgentKeywords {
		if strings.Contains(lower, kw) {
			return 5
		}
	}
	for _, kw := range importantKeywords {
		if strings.Contains(lower, kw) {
			return 4
		}
	}
	return 3
}
