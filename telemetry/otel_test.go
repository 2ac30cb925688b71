package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/coachpo/softpool/config"
)

func TestParseEndpoint(t *testing.T) {
	host, insecure, err := parseEndpoint("https://example.com:4318")
	require.NoError(t, err)
	require.Equal(t, "example.com:4318", host)
	require.False(t, insecure)

	host, insecure, err = parseEndpoint("http://localhost:4318")
	require.NoError(t, err)
	require.Equal(t, "localhost:4318", host)
	require.True(t, insecure)
}

func TestParseEndpointRejectsBadSchemes(t *testing.T) {
	_, _, err := parseEndpoint("grpc://collector:4317")
	require.Error(t, err)

	_, _, err = parseEndpoint("https://")
	require.Error(t, err)
}

func TestInitNoEndpointUsesNoop(t *testing.T) {
	provider, shutdown, err := Init(context.Background(), config.TelemetryConfig{})
	require.NoError(t, err)
	require.NotNil(t, provider)
	require.NotNil(t, shutdown)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitInvalidEndpoint(t *testing.T) {
	_, _, err := Init(context.Background(), config.TelemetryConfig{OTLPEndpoint: "ftp://bad"})
	require.Error(t, err)
}

func TestCollectorRecordsInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	collector := NewCollector(provider.Meter("softpool-test"))
	labels := map[string]string{"pool": "sessions"}

	collector.IncCounter("softpool_borrows_total", 1, labels)
	collector.IncCounter("softpool_borrows_total", 1, labels)
	collector.SetGauge("softpool_idle", 3, labels)
	collector.ObserveHistogram("softpool_borrow_wait_seconds", 0.25, labels)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	byName := make(map[string]metricdata.Metrics)
	for _, m := range rm.ScopeMetrics[0].Metrics {
		byName[m.Name] = m
	}

	counter, ok := byName["softpool_borrows_total"].Data.(metricdata.Sum[float64])
	require.True(t, ok)
	require.Len(t, counter.DataPoints, 1)
	require.Equal(t, float64(2), counter.DataPoints[0].Value)

	gauge, ok := byName["softpool_idle"].Data.(metricdata.Gauge[float64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	require.Equal(t, float64(3), gauge.DataPoints[0].Value)

	hist, ok := byName["softpool_borrow_wait_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	require.Equal(t, uint64(1), hist.DataPoints[0].Count)
}
