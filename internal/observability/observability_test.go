package observability

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveToolCallIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveToolCall("read_file", "success", 120*time.Millisecond)
	m.ObserveToolCall("read_file", "error", 40*time.Millisecond)
	m.ObserveToolCall("read_file", "success", 80*time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(m.ToolCallCounter.WithLabelValues("read_file", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ToolCallCounter.WithLabelValues("read_file", "error")))
}

func TestSchedulerQueueDepthGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SchedulerQueueDepth.Inc()
	m.SchedulerQueueDepth.Inc()
	m.SchedulerQueueDepth.Dec()

	require.Equal(t, 1.0, testutil.ToFloat64(m.SchedulerQueueDepth))
}

func TestNewLoggerWritesJSONLFile(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(LogConfig{Level: "debug", Dir: dir, Silent: true})
	require.NoError(t, err)

	logger.Info("hello", "component", "test")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, strings.HasPrefix(entries[0].Name(), "agents-console-log-"))

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	require.Contains(t, string(data), `"msg":"hello"`)
	require.Contains(t, string(data), `"component":"test"`)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseLevel("debug"))
	require.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	require.Equal(t, slog.LevelError, parseLevel("error"))
	require.Equal(t, slog.LevelInfo, parseLevel(""))
	require.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}
