package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting runtime metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Session lifecycle transitions and active-session counts
//   - Turn and tool-execution durations and outcomes
//   - Model-call latency, token usage, and estimated cost
//   - Budget-check outcomes and checkpoint durations
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.TurnDurationSeconds.WithLabelValues(session.AgentID).Observe(time.Since(start).Seconds())
type Metrics struct {
	// SessionTransitions counts status transitions by target status.
	// Labels: status (active|paused|completed|failed|stale)
	SessionTransitions *prometheus.CounterVec

	// ActiveSessions is a gauge tracking current active sessions.
	ActiveSessions prometheus.Gauge

	// TurnDurationSeconds measures the wall time of a single turn.
	// Labels: agent_id
	TurnDurationSeconds *prometheus.HistogramVec

	// ModelRequestDuration measures model-call latency in seconds.
	// Labels: provider, model
	ModelRequestDuration *prometheus.HistogramVec

	// ModelRequestCounter counts model calls by provider, model, and stop reason.
	ModelRequestCounter *prometheus.CounterVec

	// ModelTokensUsed tracks token consumption.
	// Labels: provider, model, kind (input|output)
	ModelTokensUsed *prometheus.CounterVec

	// ModelCostUSD tracks estimated spend.
	// Labels: provider, model
	ModelCostUSD *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error|timeout)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// BudgetChecks counts checkBudget outcomes.
	// Labels: allowed (true|false)
	BudgetChecks *prometheus.CounterVec

	// CheckpointDuration measures the replaceMessages+touchSession pair latency.
	CheckpointDuration prometheus.Histogram

	// CheckpointErrors counts failed checkpoint writes (loop continues regardless).
	CheckpointErrors prometheus.Counter

	// HookErrors counts hook invocations that returned an error (swallowed).
	// Labels: hook
	HookErrors *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
// This should be called once at process startup; constructing it twice
// against the default registry will panic on duplicate registration, so
// callers embedding the runtime in a larger process should use
// NewMetricsWithRegisterer instead.
func NewMetrics() *Metrics {
	return NewMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates and registers all metrics against the
// given registerer, allowing embedding in a process with its own registry.
func NewMetricsWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentruntime_session_transitions_total",
				Help: "Total number of session status transitions by target status",
			},
			[]string{"status"},
		),
		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "agentruntime_active_sessions",
				Help: "Current number of sessions with a running loop",
			},
		),
		TurnDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentruntime_turn_duration_seconds",
				Help:    "Duration of a single think-act turn",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"agent_id"},
		),
		ModelRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentruntime_model_request_duration_seconds",
				Help:    "Duration of model inference calls",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		ModelRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentruntime_model_requests_total",
				Help: "Total number of model calls by provider, model, and stop reason",
			},
			[]string{"provider", "model", "stop_reason"},
		),
		ModelTokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentruntime_model_tokens_total",
				Help: "Total tokens consumed by provider, model, and kind",
			},
			[]string{"provider", "model", "kind"},
		),
		ModelCostUSD: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentruntime_model_cost_usd_total",
				Help: "Estimated cumulative model spend in USD",
			},
			[]string{"provider", "model"},
		),
		ToolExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentruntime_tool_executions_total",
				Help: "Total number of tool executions by tool name and outcome",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentruntime_tool_execution_duration_seconds",
				Help:    "Duration of tool executions",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),
		BudgetChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentruntime_budget_checks_total",
				Help: "Total checkBudget outcomes",
			},
			[]string{"allowed"},
		),
		CheckpointDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agentruntime_checkpoint_duration_seconds",
				Help:    "Duration of the replaceMessages+touchSession checkpoint pair",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),
		CheckpointErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "agentruntime_checkpoint_errors_total",
				Help: "Total checkpoint writes that failed (loop continues; logged and swallowed)",
			},
		),
		HookErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentruntime_hook_errors_total",
				Help: "Total hook invocations that returned an error (fail-open, swallowed)",
			},
			[]string{"hook"},
		),
	}
}
