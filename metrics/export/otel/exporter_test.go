package otel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrEthical07/stagepass"
)

type fakeSource struct {
	mu       sync.RWMutex
	counters map[stagepass.MetricID]uint64
	latency  stagepass.HistogramSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() stagepass.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := stagepass.MetricsSnapshot{
		Counters:   make(map[stagepass.MetricID]uint64, len(f.counters)),
		Histograms: map[stagepass.MetricID]stagepass.HistogramSnapshot{},
	}
	for k, v := range f.counters {
		out.Counters[k] = v
	}
	if f.latency.Buckets != nil {
		out.Histograms[stagepass.MetricValidateLatency] = stagepass.HistogramSnapshot{
			Buckets: append([]uint64(nil), f.latency.Buckets...),
			Sum:     f.latency.Sum,
		}
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return reader, provider
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func intValue(t *testing.T, data metricdata.Aggregation) int64 {
	t.Helper()
	switch d := data.(type) {
	case metricdata.Sum[int64]:
		require.Len(t, d.DataPoints, 1)
		return d.DataPoints[0].Value
	case metricdata.Gauge[int64]:
		require.Len(t, d.DataPoints, 1)
		return d.DataPoints[0].Value
	default:
		t.Fatalf("unexpected aggregation %T", data)
		return 0
	}
}

func TestExporterCollectsCountersAndHistogram(t *testing.T) {
	reader, provider := newReader(t)
	src := &fakeSource{
		counters: map[stagepass.MetricID]uint64{stagepass.MetricLoginSuccess: 3},
		latency: stagepass.HistogramSnapshot{
			Buckets: []uint64{1, 1, 0, 0, 0, 0, 0, 2},
			Sum:     2 * time.Second,
		},
		dropped: 1,
	}

	exp, err := NewExporter(provider.Meter("stagepass-test"), src)
	require.NoError(t, err)
	defer func() { require.NoError(t, exp.Close()) }()

	got := collect(t, reader)
	assert.EqualValues(t, 3, intValue(t, got["stagepass_login_success_total"]))
	assert.EqualValues(t, 0, intValue(t, got["stagepass_logout_total"]))
	assert.EqualValues(t, 1, intValue(t, got["stagepass_validate_latency_seconds_bucket_le_0_005"]))
	assert.EqualValues(t, 2, intValue(t, got["stagepass_validate_latency_seconds_bucket_le_0_01"]))
	assert.EqualValues(t, 4, intValue(t, got["stagepass_validate_latency_seconds_bucket_le_inf"]))
	assert.EqualValues(t, 4, intValue(t, got["stagepass_validate_latency_seconds_count"]))
	assert.EqualValues(t, 1, intValue(t, got["stagepass_audit_dropped_total"]))

	sum, ok := got["stagepass_validate_latency_seconds_sum"].(metricdata.Gauge[float64])
	require.True(t, ok)
	assert.InDelta(t, 2.0, sum.DataPoints[0].Value, 1e-9)

	_, ok = got["stagepass_login_latency_seconds_count"]
	assert.False(t, ok, "histogram without data must not be observed")
}

func TestExporterRejectsNilArguments(t *testing.T) {
	_, provider := newReader(t)

	_, err := NewExporter(provider.Meter("stagepass-test"), nil)
	assert.ErrorIs(t, err, ErrNilSource)
	_, err = NewExporter(nil, &fakeSource{})
	assert.ErrorIs(t, err, ErrNilMeter)
}

func TestExporterConcurrentCollect(t *testing.T) {
	reader, provider := newReader(t)
	src := &fakeSource{counters: map[stagepass.MetricID]uint64{stagepass.MetricLoginSuccess: 1}}

	exp, err := NewExporter(provider.Meter("stagepass-test"), src)
	require.NoError(t, err)
	defer func() { require.NoError(t, exp.Close()) }()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.counters[stagepass.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}

func TestBoundSuffixes(t *testing.T) {
	assert.Equal(t, []string{"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf"}, boundSuffixes())
}
