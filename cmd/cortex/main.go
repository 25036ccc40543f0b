// Package main provides the CLI entry point for cortex, an autonomous
// coding-agent runtime: it decomposes a task into subtasks, matches each
// to an agent preset, plans a dependency-respecting schedule, and drives
// execution through MCP tool providers and an LLM.
//
// # Basic Usage
//
// Run one prompt to completion:
//
//	cortex auto "add retry handling to the uploader"
//
// Decompose, plan and execute a multi-part task:
//
//	cortex task "Build UI and design API"
//
// # Environment Variables
//
//   - AGENTS_PROVIDER: LLM provider ("anthropic" or "openai")
//   - AGENTS_API_KEY: provider API key
//   - AGENTS_MODEL: model override
//   - AGENTS_LOCAL_ENDPOINT: custom provider endpoint
//   - AGENTS_SYSTEM_PROMPT: overrides the preset system prompt
//   - AGENTS_SILENT: suppress console logging
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cortexrun/cortex/internal/config"
	"github.com/cortexrun/cortex/internal/observability"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var configPath string

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cortex",
		Short: "cortex - autonomous coding-agent runtime",
		Long: `cortex decomposes a natural-language task into subtasks, matches each to
an agent preset, plans a dependency-respecting schedule, and drives
execution through MCP tool providers and an LLM until completion.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "cortex.yaml", "Path to YAML configuration file")

	rootCmd.AddCommand(
		buildInitCmd(),
		buildTaskCmd(),
		buildAutoCmd(),
		buildReplCmd(),
		buildWatchCmd(),
		buildStatusCmd(),
		buildSessionCmd(),
	)

	return rootCmd
}

// loadConfigAndLogger is the shared startup path: config (Fatal on
// error, spec's error taxonomy) then the process logger.
func loadConfigAndLogger() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Dir:    cfg.Logging.Dir,
		Silent: cfg.Silent,
	})
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}
