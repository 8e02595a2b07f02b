package stagepass

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsCountersConcurrent(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Inc(MetricLoginSuccess)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(800), m.Value(MetricLoginSuccess))
	assert.Equal(t, uint64(800), m.Snapshot().Counters[MetricLoginSuccess])
}

func TestMetricsHistogramBuckets(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, LatencyHistograms: true})

	m.Observe(MetricLoginLatency, 3*time.Millisecond)
	m.Observe(MetricLoginLatency, 5*time.Millisecond)
	m.Observe(MetricLoginLatency, 40*time.Millisecond)
	m.Observe(MetricLoginLatency, 2*time.Second)
	m.Observe(MetricLoginSuccess, time.Second)

	snap := m.Snapshot()
	h := snap.Histograms[MetricLoginLatency]
	assert.Equal(t, []uint64{2, 0, 0, 1, 0, 0, 0, 1}, h.Buckets)
	assert.Equal(t, 2048*time.Millisecond, h.Sum)

	_, isCounter := snap.Counters[MetricLoginLatency]
	assert.False(t, isCounter)
}

func TestMetricsDisabled(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false, LatencyHistograms: true})
	m.Inc(MetricLogout)
	m.Observe(MetricValidateLatency, time.Millisecond)

	assert.False(t, m.LatencyEnabled())
	snap := m.Snapshot()
	assert.Empty(t, snap.Counters)
	assert.Empty(t, snap.Histograms)

	var nilMetrics *Metrics
	nilMetrics.Inc(MetricLogout)
	assert.Zero(t, nilMetrics.Value(MetricLogout))
}

func BenchmarkMetricsInc(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Inc(MetricLoginSuccess)
	}
}

func BenchmarkMetricsIncParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Inc(MetricLoginSuccess)
		}
	})
}
