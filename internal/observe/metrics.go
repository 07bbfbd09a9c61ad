// Package observe provides Harken's observability primitives: OpenTelemetry
// metrics exported for Prometheus scraping, per-item tracing spans, and HTTP
// middleware for the ops server.
//
// Tests should use [NewMetrics] with their own [metric.MeterProvider] to avoid
// cross-test pollution; production code shares [DefaultMetrics].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Harken metrics.
const meterName = "github.com/MrWong99/harken"

// Transcript outcomes recorded by [Metrics.RecordTranscript].
const (
	OutcomeForwarded = "forwarded"
	OutcomeNoWake    = "no_wake"
	OutcomeWakeOnly  = "wake_only"
	OutcomeError     = "error"
)

// Reply outcomes recorded by [Metrics.RecordReply].
const (
	ReplySpoken     = "spoken"
	ReplyErrorReply = "error_reply"
	ReplySkipped    = "skipped"
)

// Metrics holds all OpenTelemetry instruments. The underlying OTel types are
// safe for concurrent use.
type Metrics struct {
	// TranscribeDuration tracks transcription latency per utterance.
	TranscribeDuration metric.Float64Histogram

	// ChatDuration tracks chat completion latency per question.
	ChatDuration metric.Float64Histogram

	// SynthesizeDuration tracks text-to-speech latency per reply.
	SynthesizeDuration metric.Float64Histogram

	// PlaybackDuration tracks how long replies took to play.
	PlaybackDuration metric.Float64Histogram

	// UtteranceAudio tracks the audio length of captured utterances.
	UtteranceAudio metric.Float64Histogram

	// ResponseLatency tracks the time from end of speech to start of playback.
	ResponseLatency metric.Float64Histogram

	// Utterances counts utterances captured.
	Utterances metric.Int64Counter

	// Transcripts counts transcription results by outcome.
	Transcripts metric.Int64Counter

	// Replies counts responder items by outcome.
	Replies metric.Int64Counter

	// ProviderRequests counts provider calls by provider, kind and status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors by provider and kind.
	ProviderErrors metric.Int64Counter

	// QueueDepth is the number of items buffered per hand-off queue.
	QueueDepth metric.Int64Gauge

	// CircuitState is the breaker state per provider (0 closed, 1 open,
	// 2 half-open).
	CircuitState metric.Int64Gauge

	// StagesRunning is the number of pipeline stages currently running.
	StagesRunning metric.Int64UpDownCounter

	// HTTPRequestDuration tracks ops server request time by method and path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds sized for local model
// inference and remote API calls.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.TranscribeDuration, "harken.transcribe.duration", "Latency of transcribing one utterance."},
		{&met.ChatDuration, "harken.chat.duration", "Latency of one chat completion."},
		{&met.SynthesizeDuration, "harken.synthesize.duration", "Latency of synthesising one reply."},
		{&met.PlaybackDuration, "harken.playback.duration", "Time spent playing one reply."},
		{&met.UtteranceAudio, "harken.utterance.audio_duration", "Audio length of captured utterances."},
		{&met.ResponseLatency, "harken.response.latency", "Time from end of speech to start of reply playback."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	if met.Utterances, err = m.Int64Counter("harken.utterances",
		metric.WithDescription("Total utterances captured."),
	); err != nil {
		return nil, err
	}
	if met.Transcripts, err = m.Int64Counter("harken.transcripts",
		metric.WithDescription("Total transcription results by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Replies, err = m.Int64Counter("harken.replies",
		metric.WithDescription("Total questions handled by the responder, by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("harken.provider.requests",
		metric.WithDescription("Total provider requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("harken.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.QueueDepth, err = m.Int64Gauge("harken.queue.depth",
		metric.WithDescription("Items buffered in each hand-off queue."),
	); err != nil {
		return nil, err
	}
	if met.CircuitState, err = m.Int64Gauge("harken.provider.circuit_state",
		metric.WithDescription("Circuit breaker state per provider: 0 closed, 1 open, 2 half-open."),
	); err != nil {
		return nil, err
	}
	if met.StagesRunning, err = m.Int64UpDownCounter("harken.stages.running",
		metric.WithDescription("Pipeline stages currently running."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("harken.http.request.duration",
		metric.WithDescription("Ops HTTP request latency by method and path."),
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
// first call from [otel.GetMeterProvider]. Call it after [InitProvider] so the
// instruments bind to the Prometheus exporter.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest counts one provider call and, on failure, one
// provider error.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		))
	}
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

// RecordTranscript counts one transcription result with the given outcome.
func (m *Metrics) RecordTranscript(ctx context.Context, outcome string) {
	m.Transcripts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordReply counts one responder item with the given outcome.
func (m *Metrics) RecordReply(ctx context.Context, outcome string) {
	m.Replies.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordQueueDepth sets the depth gauge for the named queue.
func (m *Metrics) RecordQueueDepth(ctx context.Context, queue string, depth int) {
	m.QueueDepth.Record(ctx, int64(depth), metric.WithAttributes(attribute.String("queue", queue)))
}

// RecordCircuitState sets the breaker gauge for the named provider.
func (m *Metrics) RecordCircuitState(ctx context.Context, provider string, state int) {
	m.CircuitState.Record(ctx, int64(state), metric.WithAttributes(attribute.String("provider", provider)))
}

// ObserveDuration records the time elapsed since start on h.
func ObserveDuration(ctx context.Context, h metric.Float64Histogram, start time.Time, attrs ...attribute.KeyValue) {
	h.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
}
