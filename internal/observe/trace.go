package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/harken"

// Tracer returns the Harken tracer from the global [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span. The caller must call span.End().
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartItemSpan starts the root span for one queue item handled by a pipeline
// stage, e.g. "transcribe" for an utterance. Items are independent, so each
// gets a new trace linked to nothing.
func StartItemSpan(ctx context.Context, stage, itemID string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, stage,
		trace.WithNewRoot(),
		trace.WithAttributes(
			attribute.String("harken.stage", stage),
			attribute.String("harken.item_id", itemID),
		),
	)
}

// CorrelationID returns the trace ID of the active span in ctx, or "".
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns base enriched with trace_id and span_id from the active span
// in ctx. A nil base selects slog.Default(). Without an active span base is
// returned unchanged.
func Logger(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return base
	}
	return base.With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
