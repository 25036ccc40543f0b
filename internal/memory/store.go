// Package memory defines the small MemoryStore contract the Continuous
// Execution Engine consumes (spec §6) and ships an in-memory reference
// implementation. The document store / vector-embedding subsystem that
// would back a production MemoryStore is explicitly out of scope for this
// core (spec §1): a real deployment wires a different package behind this
// same interface.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cortexrun/cortex/pkg/taskmodels"
)

// Solution is what FindErrorSolution returns: a suggested fix plus the
// confidence the store has in it, derived from the historical success
// rate of entries matching the error text.
type Solution struct {
	Solution   string
	Confidence float64
}

// Store is the consumed-contract interface the Engine depends on. Nothing
// in this core constructs a Store other than the Reference implementation
// below; a composition root may supply a persistent-backed one instead.
type Store interface {
	StoreSuccessPattern(ctx context.Context, task string, steps []string, meta map[string]string) error
	StoreErrorPattern(ctx context.Context, errorMsg, solution string, meta map[string]string) error
	FindErrorSolution(ctx context.Context, errorText string, ctxTags []string) (*Solution, error)
	Recall(ctx context.Context, query string, ctxTags []string) ([]taskmodels.MemoryEntry, error)
	Statistics(ctx context.Context) (Statistics, error)
}

// Statistics summarizes the store's contents.
type Statistics struct {
	TotalMemories      int
	AverageSuccessRate float64
}

// Reference is an in-memory Store. It is single-writer (guarded by mu) so
// the Engine can await each write settling before composing the next turn,
// per spec §5's "shared-resource policy".
type Reference struct {
	mu      sync.Mutex
	entries []taskmodels.MemoryEntry
}

// NewReference builds an empty in-memory Store.
func NewReference() *Reference {
	return &Reference{}
}

func tagSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	return set
}

func (r *Reference) StoreSuccessPattern(ctx context.Context, task string, steps []string, meta map[string]string) error {
	content := strings.Join(append([]string{task}, steps...), "\n")
	return r.store(taskmodels.MemorySuccessPattern, content, tagsFromMeta(meta), 1.0)
}

func (r *Reference) StoreErrorPattern(ctx context.Context, errorMsg, solution string, meta map[string]string) error {
	content := errorMsg + "\n---\n" + solution

	// Re-recording the same error/solution pair reinforces it instead of
	// duplicating: each repeat bumps the success rate toward 0.95, which
	// is what lets a proven fix clear the engine's hint threshold.
	r.mu.Lock()
	for i := range r.entries {
		e := &r.entries[i]
		if e.Type == taskmodels.MemoryErrorSolution && string(e.Content) == content {
			e.AccessCount++
			if e.SuccessRate < 0.95 {
				e.SuccessRate += 0.15
				if e.SuccessRate > 0.95 {
					e.SuccessRate = 0.95
				}
			}
			e.LastAccessed = time.Now()
			r.mu.Unlock()
			return nil
		}
	}
	r.mu.Unlock()

	return r.store(taskmodels.MemoryErrorSolution, content, tagsFromMeta(meta), 0.5)
}

func tagsFromMeta(meta map[string]string) map[string]struct{} {
	set := make(map[string]struct{}, len(meta))
	for _, v := range meta {
		set[strings.ToLower(strings.TrimSpace(v))] = struct{}{}
	}
	return set
}

func (r *Reference) store(typ taskmodels.MemoryEntryType, content string, tags map[string]struct{}, successRate float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, taskmodels.MemoryEntry{
		ID:           uuid.NewString(),
		Content:      []byte(content),
		Type:         typ,
		Tags:         tags,
		SuccessRate:  successRate,
		LastAccessed: time.Now(),
	})
	return nil
}

// FindErrorSolution looks for the highest-confidence ErrorSolution entry
// whose content shares a token with errorText, confidence-ordered by the
// entry's recorded SuccessRate. Returns nil when nothing clears the bar.
func (r *Reference) FindErrorSolution(ctx context.Context, errorText string, ctxTags []string) (*Solution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	needle := tokenize(errorText)
	wantTags := tagSet(ctxTags)

	var best *taskmodels.MemoryEntry
	for i := range r.entries {
		e := &r.entries[i]
		if e.Type != taskmodels.MemoryErrorSolution {
			continue
		}
		if !overlaps(tokenize(string(e.Content)), needle) {
			continue
		}
		if len(wantTags) > 0 && !tagsIntersect(e.Tags, wantTags) {
			continue
		}
		if best == nil || e.SuccessRate > best.SuccessRate {
			best = e
		}
	}
	if best == nil {
		return nil, nil
	}
	best.AccessCount++
	best.LastAccessed = time.Now()

	parts := strings.SplitN(string(best.Content), "\n---\n", 2)
	solutionText := string(best.Content)
	if len(parts) == 2 {
		solutionText = parts[1]
	}
	return &Solution{Solution: solutionText, Confidence: best.SuccessRate}, nil
}

// Recall returns every entry whose tags intersect ctxTags or whose content
// shares a token with query, most-recently-accessed first.
func (r *Reference) Recall(ctx context.Context, query string, ctxTags []string) ([]taskmodels.MemoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	needle := tokenize(query)
	wantTags := tagSet(ctxTags)

	var out []taskmodels.MemoryEntry
	for _, e := range r.entries {
		if len(wantTags) > 0 && tagsIntersect(e.Tags, wantTags) {
			out = append(out, e)
			continue
		}
		if len(needle) > 0 && overlaps(tokenize(string(e.Content)), needle) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastAccessed.After(out[j].LastAccessed) })
	return out, nil
}

func (r *Reference) Statistics(ctx context.Context) (Statistics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) == 0 {
		return Statistics{}, nil
	}
	var sum float64
	for _, e := range r.entries {
		sum += e.SuccessRate
	}
	return Statistics{TotalMemories: len(r.entries), AverageSuccessRate: sum / float64(len(r.entries))}, nil
}

func tagsIntersect(a map[string]struct{}, b map[string]struct{}) bool {
	for t := range b {
		if _, ok := a[t]; ok {
			return true
		}
	}
	return false
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

func overlaps(a, b map[string]struct{}) bool {
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}
