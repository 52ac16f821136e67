package config

import (
	"fmt"
	"os"
	"time"

	hberrors "github.com/randalmurphal/eventhub/pkg/eventhub/errors"
)

// Datastore drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// HubConfig holds the settings of one event hub.
type HubConfig struct {
	// Name identifies the hub in logs, spans and the hub shared state.
	Name string

	// Workers is the size of the listener/task worker pool, 1 to 16.
	Workers int

	// DisposeTimeout bounds Dispose().
	DisposeTimeout time.Duration

	// UnregisterWait bounds how long unregistration waits for a module's
	// running task before firing OnUnregistered.
	UnregisterWait time.Duration

	// SDKVersion is reported by the ~sdkver token and the hub shared state.
	SDKVersion string

	// Metrics enables OpenTelemetry metrics.
	Metrics bool

	// Tracing enables OpenTelemetry spans.
	Tracing bool

	// DataStore selects the backend of platform local storage.
	DataStore DataStoreConfig
}

// DataStoreConfig selects and configures a datastore backend.
type DataStoreConfig struct {
	Driver   string
	Path     string
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// DefaultHubConfig is used for any setting a document leaves out.
var DefaultHubConfig = HubConfig{
	Name:           "eventhub",
	Workers:        4,
	DisposeTimeout: 5 * time.Second,
	UnregisterWait: time.Second,
	SDKVersion:     "1.0.0",
	DataStore: DataStoreConfig{
		Driver: DriverMemory,
		Prefix: "eventhub",
	},
}

// hubKeys are the settings HubConfigFrom reads.
var hubKeys = []string{
	"name", "workers", "dispose_timeout", "unregister_wait", "sdk_version", "metrics", "tracing",
	"datastore.driver", "datastore.path", "datastore.addr", "datastore.password", "datastore.db", "datastore.prefix",
}

// HubConfigFrom reads hub settings from c on top of DefaultHubConfig.
func HubConfigFrom(c Config) HubConfig {
	d := DefaultHubConfig
	return HubConfig{
		Name:           c.String("name", d.Name),
		Workers:        c.Int("workers", d.Workers),
		DisposeTimeout: c.Duration("dispose_timeout", d.DisposeTimeout),
		UnregisterWait: c.Duration("unregister_wait", d.UnregisterWait),
		SDKVersion:     c.String("sdk_version", d.SDKVersion),
		Metrics:        c.Bool("metrics", d.Metrics),
		Tracing:        c.Bool("tracing", d.Tracing),
		DataStore: DataStoreConfig{
			Driver:   c.String("datastore.driver", d.DataStore.Driver),
			Path:     c.String("datastore.path", d.DataStore.Path),
			Addr:     c.String("datastore.addr", d.DataStore.Addr),
			Password: c.String("datastore.password", d.DataStore.Password),
			DB:       c.Int("datastore.db", d.DataStore.DB),
			Prefix:   c.String("datastore.prefix", d.DataStore.Prefix),
		},
	}
}

// LoadHubConfig reads hub settings from a YAML or JSON file, applies
// EVENTHUB_* environment overrides and validates the result.
func LoadHubConfig(path string) (HubConfig, error) {
	c, err := FromFile(path)
	if err != nil {
		return HubConfig{}, err
	}
	hc := HubConfigFrom(c.WithEnv(EnvPrefix, os.Environ(), hubKeys))
	if err := hc.Validate(); err != nil {
		return HubConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return hc, nil
}

// Validate reports the first setting that cannot be used.
func (c HubConfig) Validate() error {
	if c.Name == "" {
		return hberrors.InvalidArgument("config: name is required")
	}
	if c.Workers < 1 || c.Workers > 16 {
		return hberrors.InvalidArgument("config: workers must be in [1, 16], got %d", c.Workers)
	}
	if c.DisposeTimeout < 0 || c.UnregisterWait < 0 {
		return hberrors.InvalidArgument("config: timeouts must not be negative")
	}
	return c.DataStore.Validate()
}

// Validate checks that the selected driver has what it needs.
func (c DataStoreConfig) Validate() error {
	switch c.Driver {
	case DriverMemory:
		return nil
	case DriverSQLite:
		if c.Path == "" {
			return hberrors.InvalidArgument("config: datastore.path is required for sqlite")
		}
		return nil
	case DriverRedis:
		if c.Addr == "" {
			return hberrors.InvalidArgument("config: datastore.addr is required for redis")
		}
		return nil
	default:
		return hberrors.InvalidArgument("config: unknown datastore driver %q", c.Driver)
	}
}
