package observe

import (
	"context"
	"testing"
	"time"

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

// sumFor returns the value of the counter data point carrying every given
// attribute, and whether such a point exists.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name string, attrs ...attribute.KeyValue) (int64, bool) {
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
		match := true
		for _, want := range attrs {
			got, ok := dp.Attributes.Value(want.Key)
			if !ok || got.AsString() != want.Value.AsString() {
				match = false
				break
			}
		}
		if match {
			return dp.Value, true
		}
	}
	return 0, false
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordCommand(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCommand(ctx, "play", StatusOK, 120*time.Millisecond)
	m.RecordCommand(ctx, "play", StatusOK, 80*time.Millisecond)
	m.RecordCommand(ctx, "play", StatusError, 10*time.Millisecond)

	rm := collect(t, reader)
	if got, ok := sumFor(t, rm, "dmbot.commands", Attr("command", "play"), Attr("status", StatusOK)); !ok || got != 2 {
		t.Errorf("play/ok = %d (found=%v), want 2", got, ok)
	}

	met := findMetric(rm, "dmbot.command.duration")
	if met == nil {
		t.Fatal("dmbot.command.duration not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 || hist.DataPoints[0].Count != 3 {
		t.Errorf("histogram points = %+v, want one point with count 3", hist.DataPoints)
	}
}

func TestRecordRegistryOp(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRegistryOp(ctx, "insert", StatusOK)
	m.RecordRegistryOp(ctx, "insert", StatusDuplicate)
	m.RecordRegistryOp(ctx, "insert", StatusDuplicate)
	m.RecordRegistryOp(ctx, "find", StatusOK)

	rm := collect(t, reader)
	tests := []struct {
		op, status string
		want       int64
	}{
		{"insert", StatusOK, 1},
		{"insert", StatusDuplicate, 2},
		{"find", StatusOK, 1},
	}
	for _, tt := range tests {
		got, ok := sumFor(t, rm, "dmbot.registry.operations", Attr("op", tt.op), Attr("status", tt.status))
		if !ok || got != tt.want {
			t.Errorf("%s/%s = %d (found=%v), want %d", tt.op, tt.status, got, ok, tt.want)
		}
	}
}

func TestRecordToolRun(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordToolRun(ctx, "yt-dlp", StatusError, 2*time.Second)

	rm := collect(t, reader)
	if got, ok := sumFor(t, rm, "dmbot.tool.runs", Attr("tool", "yt-dlp"), Attr("status", StatusError)); !ok || got != 1 {
		t.Errorf("yt-dlp/error = %d (found=%v), want 1", got, ok)
	}
	if findMetric(rm, "dmbot.tool.duration") == nil {
		t.Error("dmbot.tool.duration not recorded")
	}
}

func TestTrackCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTrackEnqueued(ctx)
	m.RecordTrackEnqueued(ctx)
	m.RecordTrackError(ctx, "stream")

	rm := collect(t, reader)
	if got, _ := sumFor(t, rm, "dmbot.tracks.enqueued"); got != 2 {
		t.Errorf("tracks enqueued = %d, want 2", got)
	}
	if got, ok := sumFor(t, rm, "dmbot.track.errors", Attr("stage", "stream")); !ok || got != 1 {
		t.Errorf("track errors = %d (found=%v), want 1", got, ok)
	}
}

func TestVoiceConnectionGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	// UpDownCounters are additive.
	m.AddVoiceConnections(ctx, 1)
	m.AddVoiceConnections(ctx, 1)
	m.AddVoiceConnections(ctx, -1)

	rm := collect(t, reader)
	if got, _ := sumFor(t, rm, "dmbot.active_voice_connections"); got != 1 {
		t.Errorf("active voice connections = %d, want 1", got)
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05,
		metric.WithAttributes(
			attribute.String("method", "GET"),
			attribute.String("path", "/healthz"),
		),
	)

	rm := collect(t, reader)
	met := findMetric(rm, "dmbot.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := hist.DataPoints[0].Count; got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestNilMetrics_IsNoop(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	// None of these may panic.
	m.RecordCommand(ctx, "play", StatusOK, time.Second)
	m.RecordRegistryOp(ctx, "insert", StatusOK)
	m.RecordToolRun(ctx, "yt-dlp", StatusOK, time.Second)
	m.RecordTrackEnqueued(ctx)
	m.RecordTrackError(ctx, "stream")
	m.AddVoiceConnections(ctx, 1)
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	// DefaultMetrics uses the global OTel provider so we just check
	// that repeated calls return the same pointer.
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
