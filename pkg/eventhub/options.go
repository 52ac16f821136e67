package eventhub

import (
	"log/slog"

	"github.com/randalmurphal/eventhub/pkg/eventhub/config"
	"github.com/randalmurphal/eventhub/pkg/eventhub/executor"
	"github.com/randalmurphal/eventhub/pkg/eventhub/observability"
)

// hubOptions holds construction settings for a Hub.
type hubOptions struct {
	cfg     config.HubConfig
	logger  *slog.Logger
	exec    executor.TaskExecutor
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
}

func defaultHubOptions() hubOptions {
	return hubOptions{
		cfg: config.DefaultHubConfig,
	}
}

// Option configures a Hub.
type Option func(*hubOptions)

// WithConfig replaces the default configuration.
//
// Example:
//
//	cfg, err := config.LoadHubConfig("hub.yaml")
//	hub, err := eventhub.New("main", nil, eventhub.WithConfig(cfg))
func WithConfig(cfg config.HubConfig) Option {
	return func(o *hubOptions) {
		o.cfg = cfg
	}
}

// WithLogger sets the hub logger. Modules receive it enriched with their name.
// Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *hubOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithExecutor runs listener fan-out on exec instead of a pool owned by the
// hub. Module tasks always run on the hub's own task goroutines. The hub does not dispose an injected executor, and
// exec must outlive the hub.
func WithExecutor(exec executor.TaskExecutor) Option {
	return func(o *hubOptions) {
		o.exec = exec
	}
}

// WithMetrics sets the metrics recorder. Setting one also enables metrics.
// Default: OpenTelemetry when HubConfig.Metrics is set, otherwise no-op.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(o *hubOptions) {
		o.metrics = m
	}
}

// WithSpanManager sets the span manager. Setting one also enables tracing.
// Default: OpenTelemetry when HubConfig.Tracing is set, otherwise no-op.
func WithSpanManager(s observability.SpanManager) Option {
	return func(o *hubOptions) {
		o.spans = s
	}
}
