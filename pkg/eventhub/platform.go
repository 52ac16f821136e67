package eventhub

import (
	"context"
	"log/slog"
	"os"
	"runtime"

	"github.com/randalmurphal/eventhub/pkg/eventhub/config"
	"github.com/randalmurphal/eventhub/pkg/eventhub/datastore"
)

// PlatformServices is what the host application provides to modules. The hub
// only passes it through; modules reach it with Handle.Platform.
type PlatformServices interface {
	// Logger returns the host logger.
	Logger() *slog.Logger

	// LocalStorage returns key/value persistence for module settings.
	LocalStorage() *datastore.LocalStorage

	// SystemInfo describes the host.
	SystemInfo() SystemInfo
}

// SystemInfo describes the process the hub runs in.
type SystemInfo struct {
	OS        string
	Arch      string
	Hostname  string
	NumCPU    int
	GoVersion string
}

// CurrentSystemInfo reads SystemInfo from the runtime.
func CurrentSystemInfo() SystemInfo {
	host, _ := os.Hostname()
	return SystemInfo{
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		Hostname:  host,
		NumCPU:    runtime.NumCPU(),
		GoVersion: runtime.Version(),
	}
}

type platform struct {
	logger  *slog.Logger
	storage *datastore.LocalStorage
	info    SystemInfo
}

// NewPlatform returns PlatformServices backed by the given logger and storage.
// A nil logger means slog.Default(); nil storage means in-memory storage.
func NewPlatform(logger *slog.Logger, storage *datastore.LocalStorage) PlatformServices {
	if logger == nil {
		logger = slog.Default()
	}
	if storage == nil {
		storage = datastore.NewLocalStorage(datastore.NewMemoryBackend(), datastore.WithLogger(logger))
	}
	return &platform{logger: logger, storage: storage, info: CurrentSystemInfo()}
}

// OpenPlatform builds PlatformServices with the local storage backend cfg
// selects.
func OpenPlatform(ctx context.Context, cfg config.HubConfig, logger *slog.Logger) (PlatformServices, error) {
	if logger == nil {
		logger = slog.Default()
	}
	storage, err := datastore.Open(ctx, cfg.DataStore, datastore.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return NewPlatform(logger, storage), nil
}

func (p *platform) Logger() *slog.Logger                  { return p.logger }
func (p *platform) LocalStorage() *datastore.LocalStorage { return p.storage }
func (p *platform) SystemInfo() SystemInfo                { return p.info }
