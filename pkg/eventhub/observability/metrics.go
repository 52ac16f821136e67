package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records hub metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordDispatch records an event accepted into the queue.
	RecordDispatch(ctx context.Context, eventType, source string)

	// RecordEventProcessed records the end of an event's processing.
	RecordEventProcessed(ctx context.Context, eventType string, listeners int, duration time.Duration)

	// RecordCallbackError records a failed module callback.
	RecordCallbackError(ctx context.Context, module, callback string)

	// RecordSharedStateWrite records a shared state write attempt.
	RecordSharedStateWrite(ctx context.Context, state, op string, err error)

	// RecordTaskRejected records module work refused by the executor.
	RecordTaskRejected(ctx context.Context, module string)
}

type otelMetrics struct {
	dispatched     metric.Int64Counter
	processed      metric.Int64Counter
	eventLatency   metric.Float64Histogram
	fanOut         metric.Int64Histogram
	callbackErrors metric.Int64Counter
	stateWrites    metric.Int64Counter
	tasksRejected  metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("eventhub")

	dispatched, err := meter.Int64Counter("eventhub.events.dispatched",
		metric.WithDescription("Number of events accepted for dispatch"),
	)
	if err != nil {
		return nil, err
	}

	processed, err := meter.Int64Counter("eventhub.events.processed",
		metric.WithDescription("Number of events fully processed"),
	)
	if err != nil {
		return nil, err
	}

	eventLatency, err := meter.Float64Histogram("eventhub.event.latency_ms",
		metric.WithDescription("Time from dequeue to the end of listener fan-out"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	fanOut, err := meter.Int64Histogram("eventhub.event.listeners",
		metric.WithDescription("Listeners invoked per event"),
	)
	if err != nil {
		return nil, err
	}

	callbackErrors, err := meter.Int64Counter("eventhub.callback.errors",
		metric.WithDescription("Module callbacks that returned an error or panicked"),
	)
	if err != nil {
		return nil, err
	}

	stateWrites, err := meter.Int64Counter("eventhub.sharedstate.writes",
		metric.WithDescription("Shared state write attempts"),
	)
	if err != nil {
		return nil, err
	}

	tasksRejected, err := meter.Int64Counter("eventhub.tasks.rejected",
		metric.WithDescription("Module tasks refused by the executor"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		dispatched:     dispatched,
		processed:      processed,
		eventLatency:   eventLatency,
		fanOut:         fanOut,
		callbackErrors: callbackErrors,
		stateWrites:    stateWrites,
		tasksRejected:  tasksRejected,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, it returns a no-op recorder.
//
// The recorder uses the global OTel meter provider, so configure it first:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) RecordDispatch(ctx context.Context, eventType, source string) {
	m.dispatched.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event.type", eventType),
		attribute.String("event.source", source),
	))
}

func (m *otelMetrics) RecordEventProcessed(ctx context.Context, eventType string, listeners int, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("event.type", eventType))
	m.processed.Add(ctx, 1, attrs)
	m.eventLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	m.fanOut.Record(ctx, int64(listeners), attrs)
}

func (m *otelMetrics) RecordCallbackError(ctx context.Context, module, callback string) {
	m.callbackErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("module", module),
		attribute.String("callback", callback),
	))
}

func (m *otelMetrics) RecordSharedStateWrite(ctx context.Context, state, op string, err error) {
	m.stateWrites.Add(ctx, 1, metric.WithAttributes(
		attribute.String("state", state),
		attribute.String("operation", op),
		attribute.Bool("success", err == nil),
	))
}

func (m *otelMetrics) RecordTaskRejected(ctx context.Context, module string) {
	m.tasksRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("module", module)))
}
