package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	m := &dto.Metric{}
	if err := (<-ch).Write(m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestNewMetricsRegistersAllCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	if m.BidsTotal == nil || m.ConflictScore == nil || m.ActiveSessions == nil {
		t.Fatalf("expected collectors to be initialized")
	}
}

func TestRecordFairnessAdjustmentSkipsZero(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.RecordFairnessAdjustment("ada", 0)
	got := counterValue(t, m.FairnessAdjustmentsTotal.WithLabelValues("ada", "boost"))
	if got != 0 {
		t.Fatalf("expected no increment for zero delta, got %v", got)
	}
}

func TestRecordFairnessAdjustmentLabelsBoostAndPenalty(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.RecordFairnessAdjustment("ada", 60)
	m.RecordFairnessAdjustment("ada", -100)

	boost := counterValue(t, m.FairnessAdjustmentsTotal.WithLabelValues("ada", "boost"))
	penalty := counterValue(t, m.FairnessAdjustmentsTotal.WithLabelValues("ada", "penalty"))
	if boost != 1 || penalty != 1 {
		t.Fatalf("expected 1 boost and 1 penalty, got boost=%v penalty=%v", boost, penalty)
	}
}

func TestRecordToolCallLabelsOutcome(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.RecordToolCall("oracle.search", nil)
	m.RecordToolCall("oracle.search", errors.New("timeout"))

	ok := counterValue(t, m.ToolCallsTotal.WithLabelValues("oracle.search", "ok"))
	failed := counterValue(t, m.ToolCallsTotal.WithLabelValues("oracle.search", "error"))
	if ok != 1 || failed != 1 {
		t.Fatalf("expected 1 ok and 1 error, got ok=%v error=%v", ok, failed)
	}
}

func TestNewServerAppliesDefaults(t *testing.T) {
	s := NewServer(ServerConfig{})
	if s.addr != ":9090" {
		t.Fatalf("expected default addr :9090, got %q", s.addr)
	}
	if s.Metrics() == nil || s.Registry() == nil {
		t.Fatalf("expected metrics and registry to be populated")
	}
}

func TestNewServerHonorsExplicitAddr(t *testing.T) {
	s := NewServer(ServerConfig{Addr: ":9999"})
	if s.addr != ":9999" {
		t.Fatalf("expected explicit addr preserved, got %q", s.addr)
	}
}
