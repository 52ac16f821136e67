// Package observability provides structured logging, metrics and tracing for
// the event hub.
//
// Features:
//   - Structured logging via slog
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// Metrics and tracing are opt-in and have no-op implementations when disabled.
// Every Log helper accepts a nil logger and does nothing with it.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger scopes a logger to one module of one hub. Every line the module
// logs carries hub and module attributes, which serve as its log prefix.
func EnrichLogger(logger *slog.Logger, hubName, module string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("hub", hubName),
		slog.String("module", module),
	)
}

// LogHubStarted logs hub creation.
func LogHubStarted(logger *slog.Logger, hubName, hubID string, workers int) {
	if logger == nil {
		return
	}
	logger.Info("event hub started",
		slog.String("hub", hubName),
		slog.String("hub_id", hubID),
		slog.Int("workers", workers),
	)
}

// LogHubBooted logs the end of initial module registration.
func LogHubBooted(logger *slog.Logger, hubName string, modules int) {
	if logger == nil {
		return
	}
	logger.Info("event hub booted",
		slog.String("hub", hubName),
		slog.Int("modules", modules),
	)
}

// LogHubDisposed logs the outcome of hub disposal.
func LogHubDisposed(logger *slog.Logger, hubName string, completed bool, droppedEvents int) {
	if logger == nil {
		return
	}
	logger.Info("event hub disposed",
		slog.String("hub", hubName),
		slog.Bool("completed", completed),
		slog.Int("dropped_events", droppedEvents),
	)
}

// LogModuleRegistered logs a completed module registration.
func LogModuleRegistered(logger *slog.Logger, module, stateName string) {
	if logger == nil {
		return
	}
	logger.Debug("module registered",
		slog.String("module", module),
		slog.String("shared_state", stateName),
	)
}

// LogModuleUnregistered logs a completed module unregistration.
func LogModuleUnregistered(logger *slog.Logger, module string, cancelledTasks int) {
	if logger == nil {
		return
	}
	logger.Debug("module unregistered",
		slog.String("module", module),
		slog.Int("cancelled_tasks", cancelledTasks),
	)
}

// LogCallbackError logs a module callback that returned an error or panicked.
// callback names the hook, e.g. "OnRegistered" or "listener hub/booted".
func LogCallbackError(logger *slog.Logger, module, callback string, err error) {
	if logger == nil {
		return
	}
	logger.Error("module callback failed",
		slog.String("module", module),
		slog.String("callback", callback),
		slog.String("error", err.Error()),
	)
}

// LogEventQueued logs an accepted dispatch.
func LogEventQueued(logger *slog.Logger, number int32, name, eventType, source string) {
	if logger == nil {
		return
	}
	logger.Debug("event queued",
		slog.Int64("event_number", int64(number)),
		slog.String("event_name", name),
		slog.String("event_type", eventType),
		slog.String("event_source", source),
	)
}

// LogEventProcessed logs the completion of one event's processing.
func LogEventProcessed(logger *slog.Logger, number int32, listeners int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("event processed",
		slog.Int64("event_number", int64(number)),
		slog.Int("listeners", listeners),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogRejected logs an API call ignored because of hub or module state.
func LogRejected(logger *slog.Logger, operation string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("call rejected",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// LogSharedStateWrite logs a shared state change.
func LogSharedStateWrite(logger *slog.Logger, op, state string, version int32, value string) {
	if logger == nil {
		return
	}
	logger.Debug("shared state written",
		slog.String("operation", op),
		slog.String("state", state),
		slog.Int64("version", int64(version)),
		slog.String("value", value),
	)
}

// LogSharedStateError logs a rejected shared state write.
func LogSharedStateError(logger *slog.Logger, op, state string, version int32, err error) {
	if logger == nil {
		return
	}
	logger.Warn("shared state write failed",
		slog.String("operation", op),
		slog.String("state", state),
		slog.Int64("version", int64(version)),
		slog.String("error", err.Error()),
	)
}

// TimedOperation returns a function reporting the elapsed milliseconds.
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
