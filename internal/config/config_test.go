package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, "anthropic", cfg.LLM.Provider)
	require.Equal(t, 30, cfg.Engine.MaxIterations)
	require.Equal(t, 30*time.Second, cfg.Engine.PerCallTimeout)
}

func TestLoadParsesAndOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "cortex.yaml", `
llm:
  provider: openai
  model: gpt-4o
engine:
  max_iterations: 10
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "openai", cfg.LLM.Provider)
	require.Equal(t, "gpt-4o", cfg.LLM.Model)
	require.Equal(t, 10, cfg.Engine.MaxIterations)
	// untouched defaults survive
	require.Equal(t, 5, cfg.Engine.MaxParallelTools)
}

func TestEnvOverridesBeatFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "cortex.yaml", `
llm:
  provider: openai
`)
	t.Setenv(EnvProvider, "anthropic")
	t.Setenv(EnvModel, "claude-sonnet-4-5")
	t.Setenv(EnvSilent, "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "anthropic", cfg.LLM.Provider)
	require.Equal(t, "claude-sonnet-4-5", cfg.LLM.Model)
	require.True(t, cfg.Silent)
}

func TestEnvVarsExpandedInFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CORTEX_TEST_MODEL", "expanded-model")
	path := writeConfig(t, dir, "cortex.yaml", `
llm:
  model: ${CORTEX_TEST_MODEL}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "expanded-model", cfg.LLM.Model)
}

func TestIncludeMergesWithIncludingFileWinning(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
llm:
  provider: openai
  model: base-model
`)
	path := writeConfig(t, dir, "cortex.yaml", `
$include: base.yaml
llm:
  model: override-model
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "openai", cfg.LLM.Provider)
	require.Equal(t, "override-model", cfg.LLM.Model)
}

func TestIncludeCycleDetected(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "a.yaml", "$include: b.yaml\n")
	path := writeConfig(t, dir, "b.yaml", "$include: a.yaml\n")

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "cycle")
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "cortex.yaml", `
llm:
  provider: llamacpp
`)

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown llm provider")
}
