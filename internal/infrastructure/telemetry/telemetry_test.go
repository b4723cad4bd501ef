package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestMetricsRecord(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.GateEvaluated(ctx, "BASELINE", "PASS")
	m.GateEvaluated(ctx, "BASELINE", "PASS")
	m.StateTransitioned(ctx, "ACTIVE", "PAUSED")
	m.PauseTriggered(ctx, "momentum")
	m.JobFinished(ctx, "daily", 2*time.Second, nil)

	got := collect(t, reader)

	gates, ok := got["commandcentre.gate.evaluations"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, gates.DataPoints, 1)
	assert.Equal(t, int64(2), gates.DataPoints[0].Value)

	jobs, ok := got["commandcentre.job.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, jobs.DataPoints, 1)
	assert.Equal(t, uint64(1), jobs.DataPoints[0].Count)

	assert.Contains(t, got, "commandcentre.state.transitions")
	assert.Contains(t, got, "commandcentre.pause.triggers")
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.GateEvaluated(context.Background(), "INCOME", "FAIL")
		m.JobFinished(context.Background(), "x", time.Second, nil)
	})
	assert.NotNil(t, NopMetrics())
}

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), Options{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
