package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestStageHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.STTDuration.Record(ctx, 0.12)
	m.TurnDuration.Record(ctx, 0.5)

	rm := collect(t, reader)
	if findMetric(rm, "voxloop.stt.duration") == nil {
		t.Error("voxloop.stt.duration not recorded")
	}
	if findMetric(rm, "voxloop.turn.duration") == nil {
		t.Error("voxloop.turn.duration not recorded")
	}
}

func TestTurnCounterAttributes(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.Turns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", "audio"),
		attribute.String("status", "ok"),
	))
	m.Turns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", "text"),
		attribute.String("status", "ok"),
	))

	rm := collect(t, reader)
	mt := findMetric(rm, "voxloop.turns")
	if mt == nil {
		t.Fatal("voxloop.turns not recorded")
	}
	sum, ok := mt.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("voxloop.turns data type = %T, want Sum[int64]", mt.Data)
	}
	if len(sum.DataPoints) != 2 {
		t.Errorf("data points = %d, want 2 (one per attribute set)", len(sum.DataPoints))
	}
}

func TestActiveSessionsGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)

	rm := collect(t, reader)
	mt := findMetric(rm, "voxloop.active_sessions")
	if mt == nil {
		t.Fatal("voxloop.active_sessions not recorded")
	}
	sum, ok := mt.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("data type = %T, want Sum[int64]", mt.Data)
	}
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("active sessions = %d, want 1", got)
	}
}

func TestDefaultMetricsSingleton(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics should return the same instance")
	}
}
