package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
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

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

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

// sumWhere returns the value of the first data point of the named counter
// whose attributes contain key=value.
func sumWhere(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	t.Fatalf("metric %q has no data point with %s=%s", name, key, value)
	return 0
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordPlayback(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordPlayback(ctx, "file", "ok")
	m.RecordPlayback(ctx, "file", "ok")
	m.RecordPlayback(ctx, "remote", "remote_error")

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "pascal.playback.requests", "status", "ok"); got != 2 {
		t.Errorf("ok count = %d, want 2", got)
	}
	if got := sumWhere(t, rm, "pascal.playback.requests", "kind", "remote"); got != 1 {
		t.Errorf("remote count = %d, want 1", got)
	}
}

func TestRecordIntro(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordIntro(ctx, "skipped", "not_a_join")
	m.RecordIntro(ctx, "triggered", "")

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "pascal.intro.outcomes", "reason", "not_a_join"); got != 1 {
		t.Errorf("not_a_join count = %d, want 1", got)
	}
	if got := sumWhere(t, rm, "pascal.intro.outcomes", "status", "triggered"); got != 1 {
		t.Errorf("triggered count = %d, want 1", got)
	}
}

func TestRecordBreakerTransition(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordBreakerTransition(context.Background(), "ytdlp", "open")

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "pascal.remote.breaker.state_changes", "to", "open"); got != 1 {
		t.Errorf("open transitions = %d, want 1", got)
	}
}

func TestActiveSessions(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)

	rm := collect(t, reader)
	met := findMetric(rm, "pascal.voice.sessions.active")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) == 0 {
		t.Fatal("metric is not a sum with data points")
	}
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("active sessions = %d, want 1", got)
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.PlaybackDuration.Record(ctx, 3.2)
	m.CatalogScanDuration.Record(ctx, 0.002)
	m.CatalogScanDuration.Record(ctx, 0.004)
	m.HTTPRequestDuration.Record(ctx, 0.01)

	rm := collect(t, reader)

	tests := []struct {
		name string
		want uint64
	}{
		{"pascal.playback.duration", 1},
		{"pascal.catalog.scan.duration", 2},
		{"pascal.http.request.duration", 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok || len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q is not a histogram with data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != tc.want {
				t.Errorf("sample count = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
