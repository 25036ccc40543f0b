package decompose

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecomposeAndConnective(t *testing.T) {
	got := Decompose("Build UI and design API")
	require.Equal(t, []string{"Build UI", "design API"}, got)
	require.True(t, IsComplex("Build UI and design API"))
}

func TestDecomposeSemicolon(t *testing.T) {
	got := Decompose("write docs; ship release")
	require.Equal(t, []string{"write docs", "ship release"}, got)
}

func TestDecomposeNoConnective(t *testing.T) {
	got := Decompose("refactor the parser")
	require.Equal(t, []string{"refactor the parser"}, got)
	require.False(t, IsComplex("refactor the parser"))
}

func TestIsComplexByLength(t *testing.T) {
	require.True(t, IsComplex(strings.Repeat("a", 101)))
}

func TestDecomposeIdempotentOnRejoin(t *testing.T) {
	original := "refactor the parser"
	require.Equal(t, Decompose(original), Decompose(strings.Join(Decompose(original), " and ")))
}

func TestPriority(t *testing.T) {
	require.Equal(t, 5, Priority("this is urgent, fix now"))
	require.Equal(t, 4, Priority("this is important"))
	require.Equal(t, 3, Priority("normal task"))
}
