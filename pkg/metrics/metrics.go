// Package metrics centralizes Prometheus instrumentation for the runtime.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the runtime records into.
//
// Tracked concerns:
//   - Session lifecycle (started/completed by outcome, active gauge)
//   - LLM call counts, retries, and latency
//   - Tool executions by tool and status
//   - Sandbox execution latency
//   - Event bus throughput and subscriber drops
//   - WebSocket connection gauge
type Metrics struct {
	// SessionsStarted counts sessions by strategy tag.
	SessionsStarted *prometheus.CounterVec

	// SessionsCompleted counts terminal sessions.
	// Labels: outcome (completed|failed|stopped)
	SessionsCompleted *prometheus.CounterVec

	// ActiveSessions tracks sessions whose strategy goroutine is running.
	ActiveSessions prometheus.Gauge

	// LLMCalls counts chat completions by outcome (success|error).
	LLMCalls *prometheus.CounterVec

	// LLMRetries counts transient-failure retries when establishing a stream.
	LLMRetries prometheus.Counter

	// LLMCallDuration measures chat completion latency in seconds.
	// Buckets: 0.1s .. 120s
	LLMCallDuration prometheus.Histogram

	// ToolExecutions counts tool invocations.
	// Labels: tool, status (success|error|timeout|invalid)
	ToolExecutions *prometheus.CounterVec

	// SandboxDuration measures sandboxed code execution latency in seconds.
	SandboxDuration prometheus.Histogram

	// EventsPublished counts events appended to session streams by type.
	EventsPublished *prometheus.CounterVec

	// EventsDropped counts subscribers dropped for lagging.
	EventsDropped prometheus.Counter

	// WSConnections tracks open WebSocket connections.
	WSConnections prometheus.Gauge
}

// New creates and registers all collectors against the given registerer.
// Pass prometheus.DefaultRegisterer in main; tests use an isolated
// prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SessionsStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dana_sessions_started_total",
				Help: "Total number of analysis sessions started, by strategy",
			},
			[]string{"strategy"},
		),

		SessionsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dana_sessions_completed_total",
				Help: "Total number of sessions reaching a terminal phase, by outcome",
			},
			[]string{"outcome"},
		),

		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dana_active_sessions",
				Help: "Current number of running analysis sessions",
			},
		),

		LLMCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dana_llm_calls_total",
				Help: "Total number of LLM chat completions, by outcome",
			},
			[]string{"outcome"},
		),

		LLMRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dana_llm_retries_total",
				Help: "Total number of retried LLM stream attempts",
			},
		),

		LLMCallDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dana_llm_call_duration_seconds",
				Help:    "Duration of LLM chat completions in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),

		ToolExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dana_tool_executions_total",
				Help: "Total number of tool executions, by tool and status",
			},
			[]string{"tool", "status"},
		),

		SandboxDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dana_sandbox_duration_seconds",
				Help:    "Duration of sandboxed code executions in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
		),

		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dana_events_published_total",
				Help: "Total number of events published to session streams, by type",
			},
			[]string{"type"},
		),

		EventsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dana_events_dropped_total",
				Help: "Total number of subscribers dropped for lagging behind",
			},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dana_ws_connections",
				Help: "Current number of open WebSocket connections",
			},
		),
	}
}

// RecordLLMCall records one completed LLM call.
func (m *Metrics) RecordLLMCall(outcome string, durationSeconds float64) {
	m.LLMCalls.WithLabelValues(outcome).Inc()
	m.LLMCallDuration.Observe(durationSeconds)
}

// RecordToolExecution records one tool invocation.
func (m *Metrics) RecordToolExecution(tool, status string, durationSeconds float64) {
	m.ToolExecutions.WithLabelValues(tool, status).Inc()
	if tool == "run_code" {
		m.SandboxDuration.Observe(durationSeconds)
	}
}

// SessionStarted records a session entering the running phase.
func (m *Metrics) SessionStarted(strategy string) {
	m.SessionsStarted.WithLabelValues(strategy).Inc()
	m.ActiveSessions.Inc()
}

// SessionEnded records a session reaching a terminal phase.
func (m *Metrics) SessionEnded(outcome string) {
	m.SessionsCompleted.WithLabelValues(outcome).Inc()
	m.ActiveSessions.Dec()
}
