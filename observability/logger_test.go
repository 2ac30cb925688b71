package observability

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	entries []string
}

func (l *recordingLogger) Debug(msg string, _ ...Field) { l.entries = append(l.entries, "debug:"+msg) }
func (l *recordingLogger) Info(msg string, _ ...Field)  { l.entries = append(l.entries, "info:"+msg) }
func (l *recordingLogger) Error(msg string, _ ...Field) { l.entries = append(l.entries, "error:"+msg) }

func TestSetLoggerSwapsGlobal(t *testing.T) {
	rec := new(recordingLogger)
	SetLogger(rec)
	t.Cleanup(func() { SetLogger(nil) })

	Log().Info("hello", Field{Key: "k", Value: "v"})
	require.Equal(t, []string{"info:hello"}, rec.entries)
}

func TestSetLoggerNilRestoresNoop(t *testing.T) {
	SetLogger(nil)
	require.NotPanics(t, func() {
		Log().Debug("ignored")
		Log().Error("ignored")
	})
}

type countingMetrics struct {
	counters int
	gauges   int
}

func (m *countingMetrics) IncCounter(string, float64, map[string]string)       { m.counters++ }
func (m *countingMetrics) ObserveHistogram(string, float64, map[string]string) {}
func (m *countingMetrics) SetGauge(string, float64, map[string]string)         { m.gauges++ }

func TestSetMetricsSwapsGlobal(t *testing.T) {
	counting := new(countingMetrics)
	SetMetrics(counting)
	t.Cleanup(func() { SetMetrics(nil) })

	Telemetry().IncCounter("c", 1, nil)
	Telemetry().SetGauge("g", 1, nil)
	require.Equal(t, 1, counting.counters)
	require.Equal(t, 1, counting.gauges)
}
