package presets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writePreset(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestRegistryPrecedenceUserWinsOverProject(t *testing.T) {
	userDir := t.TempDir()
	projectDir := t.TempDir()

	writePreset(t, userDir, "backend.md", "---\nname: backend-architect\ndescription: user version\n---\nUser prompt\n")
	writePreset(t, projectDir, "backend.md", "---\nname: backend-architect\ndescription: project version\n---\nProject prompt\n")

	reg := New(Dirs{UserHome: userDir, Project: projectDir})
	p, ok := reg.Get("backend-architect")
	require.True(t, ok)
	require.Equal(t, "user version", p.Description)
}

func TestGeneralPurposeAlwaysResolves(t *testing.T) {
	reg := New(Dirs{})
	p, ok := reg.Get("general-purpose")
	require.True(t, ok)
	require.NotEmpty(t, p.SystemPrompt)
}

func TestRecommendAgentByName(t *testing.T) {
	dir := t.TempDir()
	writePreset(t, dir, "frontend.md", "---\nname: frontend-developer\ndescription: Build React components\n---\nBuild UIs.\n")
	writePreset(t, dir, "backend.md", "---\nname: backend-architect\ndescription: Design RESTful APIs\n---\nDesign APIs.\n")

	reg := New(Dirs{BuiltIn: dir})
	got := reg.RecommendAgent("use backend-architect to fix this")
	require.Equal(t, "backend-architect", got.Name)
}

func TestRecommendAgentByKeywordOverlap(t *testing.T) {
	dir := t.TempDir()
	writePreset(t, dir, "frontend.md", "---\nname: frontend-developer\ndescription: Build React components\n---\nBuild UIs.\n")
	writePreset(t, dir, "backend.md", "---\nname: backend-architect\ndescription: Design RESTful APIs\n---\nDesign APIs.\n")

	reg := New(Dirs{BuiltIn: dir})
	got := reg.RecommendAgent("Design RESTful API endpoints for user management")
	require.Equal(t, "backend-architect", got.Name)
}

func TestRecommendAgentFallsBackToGeneralPurpose(t *testing.T) {
	reg := New(Dirs{})
	got := reg.RecommendAgent("something totally unrelated to any keyword")
	require.Equal(t, "general-purpose", got.Name)
}

func TestParseTOMLFrontMatter(t *testing.T) {
	preset, err := Parse([]byte("---\nname = \"data-scientist\"\ndescription = \"Analyze data\"\ntools = \"python,sql\"\n---\nBody text\n"))
	require.NoError(t, err)
	require.Equal(t, "data-scientist", preset.Name)
	require.True(t, preset.AllowsTool("python"))
	require.False(t, preset.AllowsTool("shell"))
}
