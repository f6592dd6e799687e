package lockr

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLoginAttempt)

	if got := m.Value(MetricLoginAttempt); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if snap := m.Snapshot(); len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricMFASuccess)
	m.Inc(MetricMFASuccess)
	m.Inc(MetricMFASuccess)

	if got := m.Value(MetricMFASuccess); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricLogout)
	m.Observe(MetricRefreshLatency, time.Second)
	if m.Value(MetricLogout) != 0 || m.Enabled() {
		t.Fatal("nil metrics must be inert")
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
				m.Inc(MetricRefreshSuccess)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricRefreshSuccess); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		20 * time.Millisecond,
		100 * time.Millisecond,
		200 * time.Millisecond,
		500 * time.Millisecond,
		900 * time.Millisecond,
		2 * time.Second,
		5 * time.Second,
		30 * time.Second,
	}
	for _, d := range observations {
		m.Observe(MetricRefreshLatency, d)
	}
	m.Observe(MetricLogout, time.Second)

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricRefreshLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}
	for i, b := range buckets {
		if b != 1 {
			t.Fatalf("bucket %d: expected 1, got %d", i, b)
		}
	}
	if _, ok := snap.Histograms[MetricLogout]; ok {
		t.Fatal("only refresh latency carries a histogram")
	}
	if _, ok := snap.Counters[MetricRefreshLatency]; ok {
		t.Fatal("latency must not appear among counters")
	}
}

func TestMetricsHistogramDisabled(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Observe(MetricRefreshLatency, time.Second)
	if _, ok := m.Snapshot().Histograms[MetricRefreshLatency]; ok {
		t.Fatal("histogram must be absent when latency is disabled")
	}
}

func TestRefreshObserverCounts(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	o := refreshObserver{m: m}

	o.RefreshStarted()
	o.RefreshFinished(nil, 10*time.Millisecond)
	o.RefreshJoined()
	o.RefreshJoined()
	o.RefreshFinished(errors.New("rejected"), 3*time.Second)

	if m.Value(MetricRefreshSuccess) != 1 || m.Value(MetricRefreshFailure) != 1 {
		t.Fatalf("unexpected refresh outcome counts %+v", m.Snapshot().Counters)
	}
	if m.Value(MetricRefreshCoalesced) != 2 {
		t.Fatalf("expected 2 coalesced, got %d", m.Value(MetricRefreshCoalesced))
	}
	buckets := m.Snapshot().Histograms[MetricRefreshLatency]
	if buckets[0] != 1 || buckets[6] != 1 {
		t.Fatalf("unexpected latency buckets %v", buckets)
	}
}
