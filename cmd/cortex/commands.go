package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cortexrun/cortex/internal/approval"
	"github.com/cortexrun/cortex/internal/config"
	"github.com/cortexrun/cortex/internal/decompose"
	"github.com/cortexrun/cortex/internal/engine"
	"github.com/cortexrun/cortex/internal/llm"
	"github.com/cortexrun/cortex/internal/llm/anthropicprovider"
	"github.com/cortexrun/cortex/internal/llm/openaiprovider"
	"github.com/cortexrun/cortex/internal/mcp"
	"github.com/cortexrun/cortex/internal/memory"
	"github.com/cortexrun/cortex/internal/observability"
	"github.com/cortexrun/cortex/internal/planner"
	"github.com/cortexrun/cortex/internal/presets"
	"github.com/cortexrun/cortex/internal/scheduler"
	"github.com/cortexrun/cortex/internal/session"
	"github.com/cortexrun/cortex/internal/watch"
	"github.com/cortexrun/cortex/pkg/taskmodels"
)

// runtime is the composition root: every collaborator is constructed once
// here and threaded as an explicit dependency, never via globals.
type runtime struct {
	cfg      *config.Config
	log      *slog.Logger
	registry *presets.Registry
	manager  *mcp.Manager
	memory   memory.Store
	metrics  *observability.Metrics
	provider llm.Provider
	checker  *approval.Checker
}

func newRuntime(ctx context.Context, cfg *config.Config, log *slog.Logger) (*runtime, error) {
	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		cfg:      cfg,
		log:      log,
		registry: presets.New(presetDirs(cfg)),
		manager:  mcp.NewManager(&cfg.MCP, log),
		memory:   memory.NewReference(),
		metrics:  observability.NewMetrics(nil),
		provider: provider,
		checker:  buildChecker(cfg),
	}

	for event := range rt.manager.Initialize(ctx) {
		switch event.Kind {
		case mcp.EventServerInitialized:
			log.Info("mcp server ready", "server", event.ServerID, "tools", event.ToolCount)
			rt.metrics.MCPServerUp.WithLabelValues(event.ServerID).Set(1)
		case mcp.EventServerStatusUpdated:
			if event.Err != nil {
				log.Warn("mcp server failed", "server", event.ServerID, "error", event.Err)
				rt.metrics.MCPServerUp.WithLabelValues(event.ServerID).Set(0)
			}
		}
	}

	return rt, nil
}

func (rt *runtime) close() {
	if err := rt.manager.Stop(); err != nil {
		rt.log.Warn("mcp shutdown", "error", err)
	}
}

func buildProvider(cfg *config.Config) (llm.Provider, error) {
	switch cfg.LLM.Provider {
	case "openai":
		return openaiprovider.New(openaiprovider.Config{
			APIKey:       cfg.LLM.APIKey,
			DefaultModel: cfg.LLM.Model,
			BaseURL:      cfg.LLM.LocalEndpoint,
		}), nil
	case "anthropic", "":
		return anthropicprovider.New(anthropicprovider.Config{
			APIKey:       cfg.LLM.APIKey,
			DefaultModel: cfg.LLM.Model,
			BaseURL:      cfg.LLM.LocalEndpoint,
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

func buildChecker(cfg *config.Config) *approval.Checker {
	policy := approval.DefaultPolicy()
	if cfg.Engine.RequireHumanApproval {
		policy.Mode = approval.ModeInteractive
	} else {
		policy.Mode = approval.ModeDefaultOnlyDestructive
	}
	checker := approval.NewChecker(policy)
	checker.SetStore(approval.NewMemoryStore())
	return checker
}

func presetDirs(cfg *config.Config) presets.Dirs {
	dirs := presets.Dirs{
		UserHome: cfg.Presets.UserDir,
		Project:  cfg.Presets.ProjectDir,
		BuiltIn:  cfg.Presets.BuiltinDir,
	}
	if dirs.UserHome == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dirs.UserHome = filepath.Join(home, ".agents", "agents")
		}
	}
	if dirs.Project == "" {
		dirs.Project = filepath.Join(".agents", "agents")
	}
	if dirs.BuiltIn == "" {
		if exe, err := os.Executable(); err == nil {
			dirs.BuiltIn = filepath.Join(filepath.Dir(exe), "presets")
		}
	}
	return dirs
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, so a ^C
// propagates as cooperative cancellation through the engine and scheduler.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// runPrompt drives one engine run for prompt under preset and persists the
// session afterwards.
func (rt *runtime) runPrompt(ctx context.Context, preset *taskmodels.AgentPreset, prompt string) (engine.Result, error) {
	if rt.cfg.LLM.SystemPrompt != "" && preset != nil {
		p := *preset
		p.SystemPrompt = rt.cfg.LLM.SystemPrompt
		preset = &p
	}

	catalog := engine.BuildCatalog(rt.manager.ListTools())
	sched := scheduler.New(
		engine.ManagerInvoker{Manager: rt.manager},
		engine.MetadataLookup(catalog),
		rt.checker,
		scheduler.Config{
			MaxParallel:    rt.cfg.Engine.MaxParallelTools,
			PerCallTimeout: rt.cfg.Engine.PerCallTimeout,
			Metrics:        rt.metrics,
		},
		rt.log,
	)
	sess := session.NewWithRetention(rt.cfg.Session.MaxHistorySize, rt.cfg.Session.MaxAge)

	if rt.cfg.Engine.RequireHumanApproval {
		stop := rt.promptForApprovals(ctx)
		defer stop()
	}

	eng := engine.New(engine.Config{
		Provider:   rt.provider,
		Scheduler:  sched,
		Memory:     rt.memory,
		Session:    sess,
		Catalog:    catalog,
		Preset:     preset,
		ProviderID: rt.cfg.LLM.Provider,
		Metrics:    rt.metrics,
		Log:        rt.log,
	})

	opts := engine.DefaultOptions()
	if rt.cfg.Engine.MaxIterations >= 0 {
		opts.MaxIterations = rt.cfg.Engine.MaxIterations
	}
	opts.RequireHumanApproval = rt.cfg.Engine.RequireHumanApproval

	result, err := eng.ExecuteUntilComplete(ctx, prompt, opts)
	if dir, saveErr := sess.Save(rt.cfg.Session.Dir); saveErr != nil {
		rt.log.Warn("session save failed", "error", saveErr)
	} else {
		rt.log.Info("session saved", "dir", dir)
	}
	return result, err
}

// promptForApprovals polls the approval store and asks on the terminal for
// each pending request until the returned stop function is called.
func (rt *runtime) promptForApprovals(ctx context.Context) func() {
	done := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(300 * time.Millisecond)
		defer ticker.Stop()
		reader := bufio.NewReader(os.Stdin)
		asked := map[string]bool{}
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			pending, err := rt.checker.ListPending(ctx)
			if err != nil {
				continue
			}
			for _, req := range pending {
				if asked[req.ID] {
					continue
				}
				asked[req.ID] = true
				fmt.Fprintf(os.Stderr, "approve tool call %s (%s)? [y/N] ", req.ToolName, req.CallID)
				line, _ := reader.ReadString('\n')
				if strings.EqualFold(strings.TrimSpace(line), "y") {
					_ = rt.checker.Approve(ctx, req.ID)
				} else {
					_ = rt.checker.Deny(ctx, req.ID)
				}
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}

func buildInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration and preset directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(filepath.Join(".agents", "agents"), 0o755); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Join(".agents", "sessions"), 0o755); err != nil {
				return err
			}

			if _, err := os.Stat("cortex.yaml"); os.IsNotExist(err) {
				starter := `llm:
  provider: anthropic
  # api_key: set AGENTS_API_KEY instead of committing a key here
engine:
  max_iterations: 30
mcp:
  enabled: true
  servers: []
`
				if err := os.WriteFile("cortex.yaml", []byte(starter), 0o644); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Wrote cortex.yaml")
			}

			samplePath := filepath.Join(".agents", "agents", "general-purpose.md")
			if _, err := os.Stat(samplePath); os.IsNotExist(err) {
				sample := `---
name: general-purpose
description: General-purpose agent for any coding task
---
You are a capable software engineering agent. Work the task to completion,
using the available tools, and report what you did.
`
				if err := os.WriteFile(samplePath, []byte(sample), 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", samplePath)
			}
			return nil
		},
	}
}

func buildTaskCmd() *cobra.Command {
	var planOnly bool
	cmd := &cobra.Command{
		Use:   "task <description>",
		Short: "Decompose a task, plan execution, and run it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			rt, err := newRuntime(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer rt.close()

			description := strings.Join(args, " ")
			subtasks := decompose.Decompose(description)

			tasks := make([]*taskmodels.Task, 0, len(subtasks))
			for i, sub := range subtasks {
				task := taskmodels.NewTask(fmt.Sprintf("task-%d", i+1), sub)
				task.Priority = decompose.Priority(sub)
				tasks = append(tasks, task)
			}

			matcher := planner.NewMatcher(rt.registry)
			plan := planner.NewPlanner(matcher).GenerateExecutionPlan(tasks)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Plan: %d group(s), %d agent(s)\n", len(plan.Groups), plan.TotalAgents)
			for i, group := range plan.Groups {
				fmt.Fprintf(out, "  group %d (parallel=%v):\n", i+1, group.CanRunInParallel)
				for _, match := range group.Matches {
					fmt.Fprintf(out, "    %s -> %s (%.2f) %s\n", match.TaskID, match.Preset.Name, match.Confidence, match.Reasoning)
				}
			}
			if plan.CycleDetected {
				fmt.Fprintf(out, "  warning: %s\n", plan.CycleDiagnostic)
			}
			if planOnly {
				return nil
			}

			byID := make(map[string]*taskmodels.Task, len(tasks))
			for _, t := range tasks {
				byID[t.ID] = t
			}

			for _, group := range plan.Groups {
				if group.CanRunInParallel && len(group.Matches) > 1 {
					var wg sync.WaitGroup
					for _, match := range group.Matches {
						wg.Add(1)
						go func(match taskmodels.TaskAgentMatch) {
							defer wg.Done()
							rt.runMatch(ctx, out, byID[match.TaskID], match)
						}(match)
					}
					wg.Wait()
				} else {
					for _, match := range group.Matches {
						rt.runMatch(ctx, out, byID[match.TaskID], match)
					}
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&planOnly, "plan-only", false, "Print the execution plan without running it")
	return cmd
}

func (rt *runtime) runMatch(ctx context.Context, out io.Writer, task *taskmodels.Task, match taskmodels.TaskAgentMatch) {
	if task == nil {
		return
	}
	result, err := rt.runPrompt(ctx, match.Preset, task.Description)
	if err != nil {
		fmt.Fprintf(out, "[%s] failed: %v\n", task.ID, err)
		return
	}
	fmt.Fprintf(out, "[%s] %s after %d iteration(s)\n%s\n", task.ID, result.CompletionReason, result.Iterations, result.FinalResult)
}

func buildAutoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auto <prompt>",
		Short: "Run one prompt to completion with the best-matching preset",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			rt, err := newRuntime(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer rt.close()

			prompt := strings.Join(args, " ")
			preset := rt.registry.RecommendAgent(prompt)

			result, err := rt.runPrompt(ctx, preset, prompt)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s after %d iteration(s)\n%s\n", result.CompletionReason, result.Iterations, result.FinalResult)
			return nil
		},
	}
}

func buildReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactive prompt loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			rt, err := newRuntime(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer rt.close()

			out := cmd.OutOrStdout()
			scanner := bufio.NewScanner(cmd.InOrStdin())
			fmt.Fprintln(out, `cortex repl - type a prompt, or "exit" to quit`)
			for {
				fmt.Fprint(out, "> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "exit" || line == "quit" {
					return nil
				}
				preset := rt.registry.RecommendAgent(line)
				result, err := rt.runPrompt(ctx, preset, line)
				if err != nil {
					fmt.Fprintf(out, "error: %v\n", err)
					continue
				}
				fmt.Fprintf(out, "%s\n", result.FinalResult)
				if ctx.Err() != nil {
					return nil
				}
			}
		},
	}
}

func buildWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Reload presets and configuration when their files change",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			dirs := presetDirs(cfg)
			registry := presets.New(dirs)
			registry.List() // force the initial load before watching starts

			w := &watch.Watcher{
				Dirs:  []string{dirs.UserHome, dirs.Project, dirs.BuiltIn},
				Files: []string{configPath},
				OnChange: func(paths []string) {
					registry = presets.New(dirs)
					log.Info("presets reloaded", "count", len(registry.List()), "changed", paths)
				},
				Log: log,
			}
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}

func buildStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show MCP server, preset, and memory status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			rt, err := newRuntime(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer rt.close()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "MCP servers:")
			for _, status := range rt.manager.Status() {
				state := "disconnected"
				if status.Connected {
					state = "connected"
				}
				fmt.Fprintf(out, "  %-20s %-12s tools=%d\n", status.ID, state, status.Tools)
			}

			fmt.Fprintf(out, "Presets: %d loaded\n", len(rt.registry.List()))

			stats, err := rt.memory.Statistics(ctx)
			if err == nil {
				fmt.Fprintf(out, "Memory: %d entries, avg success %.2f\n", stats.TotalMemories, stats.AverageSuccessRate)
			}
			return nil
		},
	}
}

func buildSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect persisted sessions",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			dirs, err := session.ListSaved(cfg.Session.Dir)
			if err != nil {
				return err
			}
			for _, dir := range dirs {
				fmt.Fprintln(cmd.OutOrStdout(), dir)
			}
			return nil
		},
	}

	view := &cobra.Command{
		Use:   "view <dir>",
		Short: "Print one saved session's history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := session.Load(args[0])
			if err != nil {
				return err
			}
			snap := store.Snapshot()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "session %s (%d messages, compressed=%v)\n", snap.ID, snap.MessageCount, snap.Compressed)
			for _, msg := range snap.History {
				fmt.Fprintf(out, "[%s] %s\n", msg.Role, msg.Content)
			}
			return nil
		},
	}

	current := &cobra.Command{
		Use:   "current",
		Short: "Show the most recent saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			dirs, err := session.ListSaved(cfg.Session.Dir)
			if err != nil {
				return err
			}
			if len(dirs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no sessions")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), dirs[0])
			return nil
		},
	}

	restore := &cobra.Command{
		Use:   "restore <dir>",
		Short: "Load a saved session and print its id, message count and parent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := session.Load(args[0])
			if err != nil {
				return err
			}
			snap := store.Snapshot()
			fmt.Fprintf(cmd.OutOrStdout(), "restored session %s with %d messages; parent=%s\n",
				snap.ID, snap.MessageCount, snap.ParentSessionID)
			return nil
		},
	}

	cmd.AddCommand(list, view, current, restore)
	return cmd
}
