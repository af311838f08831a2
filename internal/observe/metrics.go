// Package observe provides application-wide observability primitives for
// dmbot: OpenTelemetry metrics, distributed tracing, structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all dmbot metrics.
const meterName = "github.com/MrWong99/dmbot"

// Status values shared by the counters below.
const (
	StatusOK        = "ok"
	StatusError     = "error"
	StatusDuplicate = "duplicate"
	StatusInvalid   = "invalid"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// --- Latency histograms ---

	// CommandDuration tracks how long a chat command takes from receipt to
	// reply. Use with attribute.String("command", ...).
	CommandDuration metric.Float64Histogram

	// ToolDuration tracks external tool invocations (yt-dlp title lookups).
	// Use with attribute.String("tool", ...).
	ToolDuration metric.Float64Histogram

	// --- Counters ---

	// Commands counts handled commands. Use with attributes:
	//   attribute.String("command", ...), attribute.String("status", ...)
	Commands metric.Int64Counter

	// RegistryOps counts song registry operations. Use with attributes:
	//   attribute.String("op", ...), attribute.String("status", ...)
	RegistryOps metric.Int64Counter

	// ToolRuns counts external tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolRuns metric.Int64Counter

	// TracksEnqueued counts tracks handed to the player.
	TracksEnqueued metric.Int64Counter

	// --- Error counters ---

	// TrackErrors counts playback failures. Use with attribute:
	//   attribute.String("stage", ...)
	TrackErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveVoiceConnections tracks the number of guilds the bot is
	// currently connected to by voice.
	ActiveVoiceConnections metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Command
// latency is dominated by yt-dlp, which regularly takes several seconds.
var latencyBuckets = []float64{
	0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.CommandDuration, err = m.Float64Histogram("dmbot.command.duration",
		metric.WithDescription("Latency of chat command handling."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolDuration, err = m.Float64Histogram("dmbot.tool.duration",
		metric.WithDescription("Latency of external tool invocations."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Commands, err = m.Int64Counter("dmbot.commands",
		metric.WithDescription("Total chat commands by command and status."),
	); err != nil {
		return nil, err
	}
	if met.RegistryOps, err = m.Int64Counter("dmbot.registry.operations",
		metric.WithDescription("Total song registry operations by op and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolRuns, err = m.Int64Counter("dmbot.tool.runs",
		metric.WithDescription("Total external tool invocations by tool and status."),
	); err != nil {
		return nil, err
	}
	if met.TracksEnqueued, err = m.Int64Counter("dmbot.tracks.enqueued",
		metric.WithDescription("Total tracks added to a playback queue."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.TrackErrors, err = m.Int64Counter("dmbot.track.errors",
		metric.WithDescription("Total playback failures by stage."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveVoiceConnections, err = m.Int64UpDownCounter("dmbot.active_voice_connections",
		metric.WithDescription("Number of guilds with a live voice connection."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("dmbot.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordCommand records one handled command together with its latency.
func (m *Metrics) RecordCommand(ctx context.Context, command, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.Commands.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("command", command),
			attribute.String("status", status),
		),
	)
	m.CommandDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("command", command)),
	)
}

// RecordRegistryOp records a song registry operation.
func (m *Metrics) RecordRegistryOp(ctx context.Context, op, status string) {
	if m == nil {
		return
	}
	m.RegistryOps.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("status", status),
		),
	)
}

// RecordToolRun records one external tool invocation and its latency.
func (m *Metrics) RecordToolRun(ctx context.Context, tool, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ToolRuns.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
	m.ToolDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("tool", tool)),
	)
}

// RecordTrackEnqueued increments the enqueued-tracks counter.
func (m *Metrics) RecordTrackEnqueued(ctx context.Context) {
	if m == nil {
		return
	}
	m.TracksEnqueued.Add(ctx, 1)
}

// RecordTrackError records a playback failure at the given stage
// ("connect", "open", "stream").
func (m *Metrics) RecordTrackError(ctx context.Context, stage string) {
	if m == nil {
		return
	}
	m.TrackErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// AddVoiceConnections adjusts the active voice connection gauge by delta.
func (m *Metrics) AddVoiceConnections(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.ActiveVoiceConnections.Add(ctx, delta)
}
