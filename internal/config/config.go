// Package config loads the cortex runtime configuration: a single YAML
// file plus environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cortexrun/cortex/internal/mcp"
)

// Environment variables recognized as overrides. Values here beat the
// config file; the file beats built-in defaults.
const (
	EnvProvider      = "AGENTS_PROVIDER"
	EnvAPIKey        = "AGENTS_API_KEY"
	EnvModel         = "AGENTS_MODEL"
	EnvLocalEndpoint = "AGENTS_LOCAL_ENDPOINT"
	EnvSystemPrompt  = "AGENTS_SYSTEM_PROMPT"
	EnvSilent        = "AGENTS_SILENT"
	EnvMCPEnabled    = "AGENTS_MCP_ENABLED"
	EnvLogLevel      = "AGENTS_LOG_LEVEL"
	EnvLogDir        = "AGENTS_LOG_DIR"
)

// Config is the root configuration for the cortex runtime.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	MCP     mcp.Config    `yaml:"mcp"`
	Engine  EngineConfig  `yaml:"engine"`
	Session SessionConfig `yaml:"session"`
	Presets PresetsConfig `yaml:"presets"`
	Logging LoggingConfig `yaml:"logging"`
	Silent  bool          `yaml:"silent"`
}

// LLMConfig selects and parameterizes the LLM provider.
type LLMConfig struct {
	Provider      string `yaml:"provider"` // "anthropic" | "openai"
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	LocalEndpoint string `yaml:"local_endpoint"`
	SystemPrompt  string `yaml:"system_prompt"` // overrides the preset prompt when set
}

// EngineConfig parameterizes the continuous execution engine.
type EngineConfig struct {
	MaxIterations        int           `yaml:"max_iterations"`
	RequireHumanApproval bool          `yaml:"require_human_approval"`
	PerCallTimeout       time.Duration `yaml:"per_call_timeout"`
	MaxParallelTools     int           `yaml:"max_parallel_tools"`
}

// SessionConfig parameterizes the session store.
type SessionConfig struct {
	Dir            string        `yaml:"dir"`
	MaxHistorySize int           `yaml:"max_history_size"`
	MaxAge         time.Duration `yaml:"max_age"`
}

// PresetsConfig points at the three precedence-ordered preset sources.
// Empty entries fall back to the standard locations.
type PresetsConfig struct {
	UserDir    string `yaml:"user_dir"`    // default ~/.agents/agents
	ProjectDir string `yaml:"project_dir"` // default ./.agents/agents
	BuiltinDir string `yaml:"builtin_dir"` // default <install>/presets
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
	Dir   string `yaml:"dir"`   // default .agents/logs
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{Provider: "anthropic"},
		Engine: EngineConfig{
			MaxIterations:    30,
			PerCallTimeout:   30 * time.Second,
			MaxParallelTools: 5,
		},
		Session: SessionConfig{
			Dir:            ".agents/sessions",
			MaxHistorySize: 100,
			MaxAge:         30 * 24 * time.Hour,
		},
		Logging: LoggingConfig{Level: "info", Dir: ".agents/logs"},
	}
}

// applyEnv layers environment variable overrides on top of c.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvProvider); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv(EnvLocalEndpoint); v != "" {
		c.LLM.LocalEndpoint = v
	}
	if v := os.Getenv(EnvSystemPrompt); v != "" {
		c.LLM.SystemPrompt = v
	}
	if v := os.Getenv(EnvSilent); v != "" {
		c.Silent = parseBool(v)
	}
	if v := os.Getenv(EnvMCPEnabled); v != "" {
		c.MCP.Enabled = parseBool(v)
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv(EnvLogDir); v != "" {
		c.Logging.Dir = v
	}
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return b
}

// Validate checks invariants a startup cannot proceed without. Failures
// here are Fatal (spec §7): the process exits non-zero.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "anthropic", "openai", "":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	for _, server := range c.MCP.Servers {
		if err := server.Validate(); err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
	}
	if c.Engine.MaxIterations < 0 {
		return fmt.Errorf("engine.max_iterations must be >= 0")
	}
	return nil
}
