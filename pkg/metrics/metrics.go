// Package metrics exposes Prometheus series for the council's scheduling
// and provider-call behavior, scoped to the council's own domain
// vocabulary (bids, fairness adjustments,
// conflict scores, dyadic exchanges, tool calls) instead of generic
// per-agent request counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector the council registers.
type Metrics struct {
	BidsTotal                *prometheus.CounterVec
	FairnessAdjustmentsTotal *prometheus.CounterVec
	ConflictScore            *prometheus.GaugeVec
	DyadicExchangesTotal     prometheus.Counter
	ToolCallsTotal           *prometheus.CounterVec
	StreamChunksTotal        *prometheus.CounterVec
	CostUSDTotal             *prometheus.CounterVec
	RequestDuration          *prometheus.HistogramVec
	AgentErrorsTotal         *prometheus.CounterVec
	ActiveSessions           prometheus.Gauge
}

// NewMetrics registers every collector on registry and returns the handle
// used to record observations.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		BidsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "council_bids_total",
			Help: "Total bidding rounds won, by agent.",
		}, []string{"agent"}),
		FairnessAdjustmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "council_fairness_adjustments_total",
			Help: "Total nonzero fairness adjustments applied, by agent and sign.",
		}, []string{"agent", "sign"}),
		ConflictScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "council_conflict_score",
			Help: "Most recent pairwise tension score, by agent pair.",
		}, []string{"agent_a", "agent_b"}),
		DyadicExchangesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "council_dyadic_exchanges_total",
			Help: "Total dyadic exchanges activated by the conflict detector.",
		}),
		ToolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "council_tool_calls_total",
			Help: "Total tool-call directives dispatched, by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		StreamChunksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "council_stream_chunks_total",
			Help: "Total streamed response chunks delivered, by agent.",
		}, []string{"agent"}),
		CostUSDTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "council_cost_usd_total",
			Help: "Total estimated cost in USD, by agent.",
		}, []string{"agent"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "council_agent_request_duration_seconds",
			Help:    "Provider call latency, by agent.",
			Buckets: prometheus.DefBuckets,
		}, []string{"agent"}),
		AgentErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "council_agent_errors_total",
			Help: "Total provider call errors, by agent and error code.",
		}, []string{"agent", "code"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "council_active_sessions",
			Help: "Current number of running council sessions.",
		}),
	}

	registry.MustRegister(
		m.BidsTotal,
		m.FairnessAdjustmentsTotal,
		m.ConflictScore,
		m.DyadicExchangesTotal,
		m.ToolCallsTotal,
		m.StreamChunksTotal,
		m.CostUSDTotal,
		m.RequestDuration,
		m.AgentErrorsTotal,
		m.ActiveSessions,
	)

	return m
}

func adjustmentSign(delta float64) string {
	if delta >= 0 {
		return "boost"
	}
	return "penalty"
}

// RecordFairnessAdjustment records a nonzero fairness adjustment for agent.
func (m *Metrics) RecordFairnessAdjustment(agent string, delta float64) {
	if delta == 0 {
		return
	}
	m.FairnessAdjustmentsTotal.WithLabelValues(agent, adjustmentSign(delta)).Inc()
}

// RecordToolCall records one dispatched tool call's outcome ("ok" or "error").
func (m *Metrics) RecordToolCall(tool string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
}
