// Package observe provides application-wide observability primitives for
// Whisperkey: OpenTelemetry metrics with a Prometheus exporter bridge so the
// background service can be scraped via the standard /metrics endpoint.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Whisperkey metrics.
const meterName = "github.com/whisperkey/whisperkey"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// TranscriptionDuration tracks the latency of single remote
	// transcription attempts.
	TranscriptionDuration metric.Float64Histogram

	// PipelineDuration tracks end-to-end processing time from capture stop
	// to terminal state.
	PipelineDuration metric.Float64Histogram

	// TranscriptionRequests counts remote call attempts. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	TranscriptionRequests metric.Int64Counter

	// QuotaTrips counts rate-limit rejections that widened request spacing.
	QuotaTrips metric.Int64Counter

	// SessionOutcomes counts completed sessions. Use with attribute:
	//   attribute.String("outcome", ...) — delivered, no_speech, failed.
	SessionOutcomes metric.Int64Counter

	// ActiveSessions tracks whether a capture/processing session is live
	// (0 or 1 under the mutual-exclusion invariant).
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// remote transcription round trips and local tool invocations.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TranscriptionDuration, err = m.Float64Histogram("whisperkey.transcription.duration",
		metric.WithDescription("Latency of remote transcription attempts."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PipelineDuration, err = m.Float64Histogram("whisperkey.pipeline.duration",
		metric.WithDescription("End-to-end processing time from capture stop to terminal state."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionRequests, err = m.Int64Counter("whisperkey.transcription.requests",
		metric.WithDescription("Total remote transcription attempts by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.QuotaTrips, err = m.Int64Counter("whisperkey.quota.trips",
		metric.WithDescription("Total quota rejections that widened request spacing."),
	); err != nil {
		return nil, err
	}
	if met.SessionOutcomes, err = m.Int64Counter("whisperkey.session.outcomes",
		metric.WithDescription("Completed sessions by terminal outcome."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("whisperkey.active_sessions",
		metric.WithDescription("Number of live recording/processing sessions."),
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

// RecordTranscriptionRequest records one remote call attempt with its latency.
func (m *Metrics) RecordTranscriptionRequest(ctx context.Context, provider, status string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("status", status),
	)
	m.TranscriptionRequests.Add(ctx, 1, attrs)
	m.TranscriptionDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordQuotaTrip records a quota rejection.
func (m *Metrics) RecordQuotaTrip(ctx context.Context) {
	m.QuotaTrips.Add(ctx, 1)
}

// RecordSessionOutcome records a completed session with its terminal outcome
// and total processing time.
func (m *Metrics) RecordSessionOutcome(ctx context.Context, outcome string, d time.Duration) {
	m.SessionOutcomes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
	m.PipelineDuration.Record(ctx, d.Seconds())
}
