package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
type NoopMetrics struct{}

var _ MetricsRecorder = NoopMetrics{}

func (NoopMetrics) RecordDispatch(context.Context, string, string)                   {}
func (NoopMetrics) RecordEventProcessed(context.Context, string, int, time.Duration) {}
func (NoopMetrics) RecordCallbackError(context.Context, string, string)              {}
func (NoopMetrics) RecordSharedStateWrite(context.Context, string, string, error)    {}
func (NoopMetrics) RecordTaskRejected(context.Context, string)                       {}

// NoopSpanManager is a SpanManager that does nothing.
type NoopSpanManager struct{}

var _ SpanManager = NoopSpanManager{}

var noopSpan = noop.Span{}

// StartEventSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartEventSpan(ctx context.Context, _ string, _ int32, _, _, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartModuleSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartModuleSpan(ctx context.Context, _ string, _ int) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(trace.Span, error) {}

// AddSpanEvent does nothing.
func (NoopSpanManager) AddSpanEvent(context.Context, string, ...attribute.KeyValue) {}
