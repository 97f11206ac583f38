// Package observe provides observability primitives for VisionAlly:
// OpenTelemetry metrics, tracing helpers, trace-correlated logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and bridged to
// Prometheus by [InitProvider] so they can be scraped from /metrics. A
// package-level [DefaultMetrics] instance is provided for convenience; tests
// should use [NewMetrics] with their own [metric.MeterProvider].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/visionally"

// Metrics holds every instrument the assistant records. All fields are safe
// for concurrent use.
type Metrics struct {
	// QueryDuration tracks one-shot query latency. Attributes: trigger, kind.
	QueryDuration metric.Float64Histogram

	// QueryRequests counts one-shot queries. Attributes: provider, kind,
	// trigger, status ("ok", "empty", "error", "busy", "dropped").
	QueryRequests metric.Int64Counter

	// ScanTicks counts autonomous scan ticks. Attribute: outcome ("issued",
	// "busy", "speaking", "stopped").
	ScanTicks metric.Int64Counter

	// OutboundMessages counts media sent on the live stream. Attributes:
	// kind, status ("sent", "dropped").
	OutboundMessages metric.Int64Counter

	// DecodeErrors counts inbound audio payloads that failed to decode.
	DecodeErrors metric.Int64Counter

	// ChunksScheduled counts audio chunks handed to the playback scheduler.
	ChunksScheduled metric.Int64Counter

	// ScheduledAudio accumulates the seconds of audio scheduled for playback.
	ScheduledAudio metric.Float64Counter

	// Interruptions counts barge-in events.
	Interruptions metric.Int64Counter

	// InterruptedChunks counts chunks stopped by barge-in events.
	InterruptedChunks metric.Int64Counter

	// SessionTransitions counts session status changes. Attributes: from, to.
	SessionTransitions metric.Int64Counter

	// ActiveSessions tracks sessions currently in the Active state.
	ActiveSessions metric.Int64UpDownCounter

	// ProviderErrors counts transport and provider failures. Attributes:
	// provider, kind.
	ProviderErrors metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds, tuned for vision model
// round trips.
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13, 20, 30,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.QueryDuration, err = m.Float64Histogram("visionally.query.duration",
		metric.WithDescription("Latency of one-shot image queries."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.QueryRequests, err = m.Int64Counter("visionally.query.requests",
		metric.WithDescription("One-shot queries by provider, kind, trigger, and status."),
	); err != nil {
		return nil, err
	}
	if met.ScanTicks, err = m.Int64Counter("visionally.scan.ticks",
		metric.WithDescription("Autonomous scan ticks by outcome."),
	); err != nil {
		return nil, err
	}
	if met.OutboundMessages, err = m.Int64Counter("visionally.live.outbound_messages",
		metric.WithDescription("Media messages offered to the live stream by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.DecodeErrors, err = m.Int64Counter("visionally.live.decode_errors",
		metric.WithDescription("Inbound audio payloads dropped because they failed to decode."),
	); err != nil {
		return nil, err
	}
	if met.ChunksScheduled, err = m.Int64Counter("visionally.playback.chunks",
		metric.WithDescription("Audio chunks scheduled for playback."),
	); err != nil {
		return nil, err
	}
	if met.ScheduledAudio, err = m.Float64Counter("visionally.playback.scheduled",
		metric.WithDescription("Seconds of audio scheduled for playback."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.Interruptions, err = m.Int64Counter("visionally.playback.interruptions",
		metric.WithDescription("Barge-in interruptions received from the live stream."),
	); err != nil {
		return nil, err
	}
	if met.InterruptedChunks, err = m.Int64Counter("visionally.playback.interrupted_chunks",
		metric.WithDescription("Audio chunks stopped by interruptions."),
	); err != nil {
		return nil, err
	}
	if met.SessionTransitions, err = m.Int64Counter("visionally.session.transitions",
		metric.WithDescription("Session status transitions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("visionally.active_sessions",
		metric.WithDescription("Number of sessions in the Active state."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("visionally.provider.errors",
		metric.WithDescription("Provider and transport errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("visionally.http.request.duration",
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

// DefaultMetrics returns the package-level [Metrics] instance, created on
// first call from [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
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

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordQuery records one finished one-shot query.
func (m *Metrics) RecordQuery(ctx context.Context, provider, kind, trigger, status string, d time.Duration) {
	m.QueryRequests.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider),
		Attr("kind", kind),
		Attr("trigger", trigger),
		Attr("status", status),
	))
	if d > 0 {
		m.QueryDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
			Attr("trigger", trigger),
			Attr("kind", kind),
		))
	}
}

// RecordScanTick records the outcome of one autonomous tick.
func (m *Metrics) RecordScanTick(ctx context.Context, outcome string) {
	m.ScanTicks.Add(ctx, 1, metric.WithAttributes(Attr("outcome", outcome)))
}

// RecordOutbound records one media message offered to the live stream.
func (m *Metrics) RecordOutbound(ctx context.Context, kind, status string) {
	m.OutboundMessages.Add(ctx, 1, metric.WithAttributes(
		Attr("kind", kind),
		Attr("status", status),
	))
}

// RecordChunk records one scheduled audio chunk of the given length.
func (m *Metrics) RecordChunk(ctx context.Context, d time.Duration) {
	m.ChunksScheduled.Add(ctx, 1)
	m.ScheduledAudio.Add(ctx, d.Seconds())
}

// RecordInterruption records a barge-in that stopped n chunks.
func (m *Metrics) RecordInterruption(ctx context.Context, n int) {
	m.Interruptions.Add(ctx, 1)
	if n > 0 {
		m.InterruptedChunks.Add(ctx, int64(n))
	}
}

// RecordTransition records a session status change and keeps
// [Metrics.ActiveSessions] in step.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.SessionTransitions.Add(ctx, 1, metric.WithAttributes(
		Attr("from", from),
		Attr("to", to),
	))
	switch {
	case to == "active":
		m.ActiveSessions.Add(ctx, 1)
	case from == "active":
		m.ActiveSessions.Add(ctx, -1)
	}
}

// RecordProviderError records a provider or transport error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider),
		Attr("kind", kind),
	))
}
