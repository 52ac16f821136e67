package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer uses the global OTel tracer provider.
var tracer = otel.Tracer("eventhub")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartEventSpan starts a span covering one event's processors and listeners.
	StartEventSpan(ctx context.Context, hubName string, number int32, name, eventType, source string) (context.Context, trace.Span)

	// StartModuleSpan starts a child span for one module's listeners of an event.
	StartModuleSpan(ctx context.Context, module string, listeners int) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// It uses the global OTel tracer provider, so configure it first:
//
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

func (m *otelSpanManager) StartEventSpan(ctx context.Context, hubName string, number int32, name, eventType, source string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "eventhub.event",
		trace.WithAttributes(
			attribute.String("hub.name", hubName),
			attribute.Int64("event.number", int64(number)),
			attribute.String("event.name", name),
			attribute.String("event.type", eventType),
			attribute.String("event.source", source),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (m *otelSpanManager) StartModuleSpan(ctx context.Context, module string, listeners int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "eventhub.module."+module,
		trace.WithAttributes(
			attribute.String("module.name", module),
			attribute.Int("module.listeners", listeners),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
