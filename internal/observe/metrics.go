// Package observe provides the observability primitives for pascal:
// OpenTelemetry metrics, tracing helpers and HTTP middleware.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus via [InitProvider]. [DefaultMetrics] returns a package-level
// instance bound to the global provider; tests should use [NewMetrics] with
// their own [metric.MeterProvider].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all pascal metrics.
const meterName = "github.com/MrWong99/pascal"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// PlaybackRequests counts play requests. Attributes: kind (file, remote),
	// status (ok, queued, busy, unknown, not_in_voice, remote_error, error).
	PlaybackRequests metric.Int64Counter

	// PlaybackDuration tracks how long a source streamed before completing.
	PlaybackDuration metric.Float64Histogram

	// ActiveSessions tracks the number of connected guild voice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// IntroOutcomes counts presence transitions by status and reason.
	IntroOutcomes metric.Int64Counter

	// CatalogScanDuration tracks sound directory scan latency.
	CatalogScanDuration metric.Float64Histogram

	// BreakerStateChanges counts circuit breaker transitions. Attributes:
	// breaker, to.
	BreakerStateChanges metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// scanBuckets are histogram boundaries (in seconds) for directory scans.
var scanBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1,
}

// playbackBuckets are histogram boundaries (in seconds) for clip lengths.
var playbackBuckets = []float64{
	0.5, 1, 2, 5, 10, 30, 60, 300, 900, 3600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.PlaybackRequests, err = m.Int64Counter("pascal.playback.requests",
		metric.WithDescription("Play requests by source kind and status."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackDuration, err = m.Float64Histogram("pascal.playback.duration",
		metric.WithDescription("Time from playback start to completion."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(playbackBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("pascal.voice.sessions.active",
		metric.WithDescription("Number of connected guild voice sessions."),
	); err != nil {
		return nil, err
	}
	if met.IntroOutcomes, err = m.Int64Counter("pascal.intro.outcomes",
		metric.WithDescription("Presence transitions by intro outcome and reason."),
	); err != nil {
		return nil, err
	}
	if met.CatalogScanDuration, err = m.Float64Histogram("pascal.catalog.scan.duration",
		metric.WithDescription("Latency of sound directory scans."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(scanBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BreakerStateChanges, err = m.Int64Counter("pascal.remote.breaker.state_changes",
		metric.WithDescription("Circuit breaker state transitions."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("pascal.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
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

// RecordPlayback increments the play request counter.
func (m *Metrics) RecordPlayback(ctx context.Context, kind, status string) {
	m.PlaybackRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordIntro increments the intro outcome counter. reason may be empty.
func (m *Metrics) RecordIntro(ctx context.Context, status, reason string) {
	m.IntroOutcomes.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("status", status),
			attribute.String("reason", reason),
		),
	)
}

// RecordBreakerTransition increments the breaker transition counter.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, to string) {
	m.BreakerStateChanges.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("breaker", breaker),
			attribute.String("to", to),
		),
	)
}
