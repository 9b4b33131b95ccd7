package authcore

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsIncAndSnapshot(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Inc(MetricLoginSuccess)
		}()
	}
	wg.Wait()

	if got := m.Value(MetricLoginSuccess); got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
	snap := m.Snapshot()
	if snap.Counters[MetricLoginSuccess] != 50 || snap.Counters[MetricLoginFailure] != 0 {
		t.Fatalf("unexpected snapshot %v", snap.Counters)
	}
	if len(snap.Histograms) != 0 {
		t.Fatal("histograms should be off")
	}
}

func TestMetricsDisabled(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false, EnableLatencyHistograms: true})
	m.Inc(MetricLoginSuccess)
	m.Observe(MetricAuthenticateLatency, time.Millisecond)
	if m.Value(MetricLoginSuccess) != 0 {
		t.Fatal("disabled metrics counted")
	}
	if len(m.Snapshot().Counters) != 0 {
		t.Fatal("disabled snapshot should be empty")
	}

	var nilMetrics *Metrics
	nilMetrics.Inc(MetricLoginSuccess)
	if nilMetrics.Enabled() {
		t.Fatal("nil metrics enabled")
	}
}

func TestMetricsLatencyBuckets(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Observe(MetricAuthenticateLatency, 3*time.Millisecond)
	m.Observe(MetricAuthenticateLatency, 5*time.Millisecond)
	m.Observe(MetricAuthenticateLatency, 40*time.Millisecond)
	m.Observe(MetricAuthenticateLatency, 2*time.Second)
	m.Observe(MetricLoginSuccess, time.Millisecond)

	buckets := m.Snapshot().Histograms[MetricAuthenticateLatency]
	if len(buckets) != len(HistogramBounds)+1 {
		t.Fatalf("expected %d buckets, got %d", len(HistogramBounds)+1, len(buckets))
	}
	if buckets[0] != 2 || buckets[3] != 1 || buckets[len(buckets)-1] != 1 {
		t.Fatalf("unexpected buckets %v", buckets)
	}
}

func TestMetricIDNames(t *testing.T) {
	seen := make(map[string]MetricID)
	for id := MetricID(0); id < metricIDCount; id++ {
		name := id.String()
		if name == "" || name == "unknown" {
			t.Fatalf("metric %d has no name", id)
		}
		if prev, dup := seen[name]; dup {
			t.Fatalf("metrics %d and %d share name %q", prev, id, name)
		}
		seen[name] = id
	}
}
