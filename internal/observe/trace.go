package observe

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the voxroom tracer.
const tracerName = "github.com/voxroom/voxroom"

// Tracer returns the package-level [trace.Tracer] for voxroom. It uses the
// globally registered [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span and returns the updated context and span. The
// caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// TurnSpan starts a span covering one speaking turn, from reply generation
// through playback queueing, tagged with the room and the responding agent.
func TurnSpan(ctx context.Context, roomID, agentID string) (context.Context, trace.Span) {
	return StartSpan(ctx, "agent.turn",
		trace.WithAttributes(
			attribute.String("room.id", roomID),
			attribute.String("agent.id", agentID),
		),
	)
}

// CorrelationID extracts the trace ID from the OTel span context in ctx.
// Returns the empty string when no active span with a valid trace ID exists.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}
