// Package observability provides the cortex runtime's structured logging
// setup and Prometheus instrumentation for the orchestration loop: tool
// call latency and outcomes, scheduler queue depth, retry attempts, LLM
// turn latency, and MCP server health.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the runtime's Prometheus instruments. Exposing them
// over HTTP is left to whatever embeds the core; the CLI itself never
// serves an endpoint.
type Metrics struct {
	// ToolCallCounter counts scheduled tool calls by terminal status.
	// Labels: tool_name, status (success|error|cancelled)
	ToolCallCounter *prometheus.CounterVec

	// ToolCallDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolCallDuration *prometheus.HistogramVec

	// SchedulerQueueDepth gauges calls waiting behind the maxParallel
	// semaphore.
	SchedulerQueueDepth prometheus.Gauge

	// RetryAttempts counts supervisor retry attempts by operation.
	// Labels: operation
	RetryAttempts *prometheus.CounterVec

	// LLMTurnDuration measures one Generate call in seconds.
	// Labels: provider
	LLMTurnDuration *prometheus.HistogramVec

	// EngineIterations counts engine iterations by completion reason,
	// recorded once per run.
	// Labels: reason (completed|iteration_cap|cancelled)
	EngineIterations *prometheus.CounterVec

	// MCPServerUp gauges per-server connectivity (1 connected, 0 not).
	// Labels: server
	MCPServerUp *prometheus.GaugeVec
}

// NewMetrics registers the runtime's instruments on reg, or on the default
// registerer when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ToolCallCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cortex_tool_calls_total",
			Help: "Tool calls by terminal status.",
		}, []string{"tool_name", "status"}),

		ToolCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cortex_tool_call_duration_seconds",
			Help:    "Tool execution latency.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool_name"}),

		SchedulerQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cortex_scheduler_queue_depth",
			Help: "Tool calls waiting for an execution slot.",
		}),

		RetryAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cortex_retry_attempts_total",
			Help: "Retry supervisor attempts by operation.",
		}, []string{"operation"}),

		LLMTurnDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cortex_llm_turn_duration_seconds",
			Help:    "LLM generate call latency.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider"}),

		EngineIterations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cortex_engine_iterations_total",
			Help: "Engine iterations consumed, by completion reason.",
		}, []string{"reason"}),

		MCPServerUp: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cortex_mcp_server_up",
			Help: "Per-server MCP connectivity.",
		}, []string{"server"}),
	}
}

// ObserveToolCall records one terminal tool call.
func (m *Metrics) ObserveToolCall(toolName, status string, elapsed time.Duration) {
	m.ToolCallCounter.WithLabelValues(toolName, status).Inc()
	m.ToolCallDuration.WithLabelValues(toolName).Observe(elapsed.Seconds())
}

// ObserveLLMTurn records one Generate call.
func (m *Metrics) ObserveLLMTurn(provider string, elapsed time.Duration) {
	m.LLMTurnDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}
