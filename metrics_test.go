package goRecovery

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricResolveSuccess)

	if got := m.Value(MetricResolveSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricResolveSuccess)
	m.Inc(MetricResolveSuccess)
	m.Inc(MetricResolveSuccess)

	if got := m.Value(MetricResolveSuccess); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricCodeIssued)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricCodeIssued); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	}

	for _, d := range observations {
		m.Observe(MetricValidateLatency, d)
	}

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricValidateLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}

	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestMetricsSnapshotConsistency(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	m.Inc(MetricResolveSuccess)
	m.Inc(MetricResolveFailure)
	m.Inc(MetricResolveFailure)
	m.Observe(MetricValidateLatency, 2*time.Millisecond)

	snap := m.Snapshot()

	if snap.Counters[MetricResolveSuccess] != 1 {
		t.Fatalf("expected MetricResolveSuccess=1 got %d", snap.Counters[MetricResolveSuccess])
	}
	if snap.Counters[MetricResolveFailure] != 2 {
		t.Fatalf("expected MetricResolveFailure=2 got %d", snap.Counters[MetricResolveFailure])
	}
	if len(snap.Histograms[MetricValidateLatency]) != 8 {
		t.Fatalf("expected histogram length 8")
	}
	if snap.Histograms[MetricValidateLatency][0] != 1 {
		t.Fatalf("expected first histogram bucket=1 got %d", snap.Histograms[MetricValidateLatency][0])
	}
}

func TestMetricsResolveLatencyHistogramSeparate(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	m.Observe(MetricResolveLatency, 30*time.Millisecond)
	m.Observe(MetricResolveLatency, time.Second)
	m.Observe(MetricCodeIssued, time.Millisecond)

	snap := m.Snapshot()
	resolve := snap.Histograms[MetricResolveLatency]
	if resolve[3] != 1 || resolve[7] != 1 {
		t.Fatalf("unexpected resolve buckets %v", resolve)
	}
	for i, v := range snap.Histograms[MetricValidateLatency] {
		if v != 0 {
			t.Fatalf("validate bucket %d expected 0, got %d", i, v)
		}
	}
	if _, ok := snap.Histograms[MetricCodeIssued]; ok {
		t.Fatal("counter metric must not produce a histogram")
	}
}

func TestMetricsLatencyDisabledWithoutHistograms(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Observe(MetricValidateLatency, time.Millisecond)

	if len(m.Snapshot().Histograms) != 0 {
		t.Fatal("expected no histograms when latency is disabled")
	}
}
