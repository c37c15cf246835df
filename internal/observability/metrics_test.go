package observability

import (
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
		t.Fatalf("Write: %v", err)
	}
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	default:
		t.Fatal("expected a counter or gauge metric")
		return 0
	}
}

func TestNewMetricsWithRegistererRegistersDistinctMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetricsWithRegisterer(reg)

	metrics.SessionTransitions.WithLabelValues("active").Inc()
	metrics.ActiveSessions.Set(3)
	metrics.ModelTokensUsed.WithLabelValues("anthropic", "claude-sonnet", "input").Add(42)

	if got := counterValue(t, metrics.SessionTransitions.WithLabelValues("active")); got != 1 {
		t.Fatalf("expected SessionTransitions{active}=1, got %v", got)
	}
	if got := counterValue(t, metrics.ActiveSessions); got != 3 {
		t.Fatalf("expected ActiveSessions=3, got %v", got)
	}
	if got := counterValue(t, metrics.ModelTokensUsed.WithLabelValues("anthropic", "claude-sonnet", "input")); got != 42 {
		t.Fatalf("expected ModelTokensUsed=42, got %v", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected at least one registered metric family")
	}
}

func TestNewMetricsWithRegistererAllowsASecondIndependentRegistry(t *testing.T) {
	// Two independent registries must not collide — this is the whole
	// reason NewMetricsWithRegisterer exists alongside NewMetrics.
	regA := prometheus.NewRegistry()
	regB := prometheus.NewRegistry()
	NewMetricsWithRegisterer(regA)
	NewMetricsWithRegisterer(regB)
}
