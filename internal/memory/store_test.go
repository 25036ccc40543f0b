package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReferenceFindErrorSolution(t *testing.T) {
	ctx := context.Background()
	store := NewReference()

	require.NoError(t, store.StoreErrorPattern(ctx, "connection refused to database", "retry with backoff", map[string]string{"tag": "database"}))

	sol, err := store.FindErrorSolution(ctx, "got connection refused talking to the database", nil)
	require.NoError(t, err)
	require.NotNil(t, sol)
	require.Equal(t, "retry with backoff", sol.Solution)
	require.Equal(t, 0.5, sol.Confidence)
}

func TestReferenceFindErrorSolutionNoMatch(t *testing.T) {
	store := NewReference()
	sol, err := store.FindErrorSolution(context.Background(), "nothing stored yet", nil)
	require.NoError(t, err)
	require.Nil(t, sol)
}

func TestReferenceRecallByTag(t *testing.T) {
	ctx := context.Background()
	store := NewReference()
	require.NoError(t, store.StoreSuccessPattern(ctx, "build the widget", []string{"step one", "step two"}, map[string]string{"category": "build"}))

	entries, err := store.Recall(ctx, "irrelevant query", []string{"build"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestReferenceStatistics(t *testing.T) {
	ctx := context.Background()
	store := NewReference()
	require.NoError(t, store.StoreSuccessPattern(ctx, "t", nil, nil))
	require.NoError(t, store.StoreErrorPattern(ctx, "e", "s", nil))

	stats, err := store.Statistics(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.TotalMemories)
	require.InDelta(t, 0.75, stats.AverageSuccessRate, 0.001)
}
