package datastore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/eventhub/pkg/eventhub/config"
	hberrors "github.com/randalmurphal/eventhub/pkg/eventhub/errors"
)

// LocalStorage hands out DataStores that share one Backend.
type LocalStorage struct {
	backend Backend
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	stores map[string]*DataStore
}

// LocalStorageOption configures a LocalStorage.
type LocalStorageOption func(*LocalStorage)

// WithTimeout bounds each DataStore operation.
func WithTimeout(d time.Duration) LocalStorageOption {
	return func(l *LocalStorage) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithLogger sets the logger for read failures.
func WithLogger(logger *slog.Logger) LocalStorageOption {
	return func(l *LocalStorage) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLocalStorage wraps backend.
func NewLocalStorage(backend Backend, opts ...LocalStorageOption) *LocalStorage {
	l := &LocalStorage{
		backend: backend,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		stores:  make(map[string]*DataStore),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Open builds LocalStorage on the backend cfg selects.
func Open(ctx context.Context, cfg config.DataStoreConfig, opts ...LocalStorageOption) (*LocalStorage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var backend Backend
	switch cfg.Driver {
	case config.DriverSQLite:
		b, err := NewSQLiteBackend(cfg.Path)
		if err != nil {
			return nil, err
		}
		backend = b
	case config.DriverRedis:
		b, err := NewRedisBackend(ctx, RedisOptions{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			Prefix:   cfg.Prefix,
		})
		if err != nil {
			return nil, err
		}
		backend = b
	default:
		backend = NewMemoryBackend()
	}
	return NewLocalStorage(backend, opts...), nil
}

// DataStore returns the store called name, creating it on first use.
func (l *LocalStorage) DataStore(name string) (*DataStore, error) {
	if name == "" {
		return nil, hberrors.InvalidArgument("datastore: empty store name")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stores == nil {
		return nil, fmt.Errorf("datastore %q: %w", name, ErrClosed)
	}
	if ds, ok := l.stores[name]; ok {
		return ds, nil
	}
	ds := &DataStore{
		name:    name,
		backend: l.backend,
		timeout: l.timeout,
		logger:  l.logger.With(slog.String("store", name)),
	}
	l.stores[name] = ds
	return ds, nil
}

// Close closes the backend.
func (l *LocalStorage) Close() error {
	l.mu.Lock()
	l.stores = nil
	l.mu.Unlock()
	return l.backend.Close()
}
