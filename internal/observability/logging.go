package observability

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LogConfig configures the runtime's slog handler.
type LogConfig struct {
	// Level is the minimum level: "debug", "info", "warn", "error".
	Level string

	// Dir, when set, also mirrors log records to a JSONL file
	// agents-console-log-<ts>.jsonl under it.
	Dir string

	// Silent suppresses stderr output entirely (file logging, if
	// configured, still applies).
	Silent bool
}

// NewLogger builds the process logger: JSON records to stderr, optionally
// teed into a timestamped file under cfg.Dir.
func NewLogger(cfg LogConfig) (*slog.Logger, error) {
	var writers []io.Writer
	if !cfg.Silent {
		writers = append(writers, os.Stderr)
	}

	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		name := fmt.Sprintf("agents-console-log-%d.jsonl", time.Now().Unix())
		f, err := os.OpenFile(filepath.Join(cfg.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, f)
	}

	var out io.Writer = io.Discard
	switch len(writers) {
	case 1:
		out = writers[0]
	default:
		if len(writers) > 1 {
			out = io.MultiWriter(writers...)
		}
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: parseLevel(cfg.Level)})
	return slog.New(handler), nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
