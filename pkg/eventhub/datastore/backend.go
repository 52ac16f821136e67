// Package datastore provides the key/value persistence modules use to keep
// small settings across process restarts.
//
// A Backend stores raw bytes in named partitions. DataStore is the typed view
// of one partition (int, string, double, long, float, bool, vector and map
// values with defaults), and LocalStorage hands out DataStores by name:
//
//	ls, err := datastore.Open(ctx, config.DataStoreConfig{Driver: "sqlite", Path: "kv.db"})
//	ds, err := ls.DataStore("configuration")
//	ds.SetString("appId", "ABC")
//	appID := ds.GetString("appId", "")
//
// Backends: memory (tests and ephemeral hosts), SQLite via modernc.org/sqlite,
// and Redis via go-redis.
package datastore

import (
	"context"

	hberrors "github.com/randalmurphal/eventhub/pkg/eventhub/errors"
)

// Errors returned by backends.
var (
	ErrNotFound = hberrors.New(hberrors.CodeDataStoreNotFound, "key not found")
	ErrClosed   = hberrors.New(hberrors.CodeDataStoreClosed, "datastore is closed")
)

// Backend is raw key/value storage partitioned by store name.
type Backend interface {
	// Set stores value under (store, key), replacing any previous value.
	Set(ctx context.Context, store, key string, value []byte) error

	// Get returns the value under (store, key), or ErrNotFound.
	Get(ctx context.Context, store, key string) ([]byte, error)

	// Delete removes (store, key). Removing a missing key is not an error.
	Delete(ctx context.Context, store, key string) error

	// Clear removes every key of store.
	Clear(ctx context.Context, store string) error

	// Keys returns the keys of store in sorted order.
	Keys(ctx context.Context, store string) ([]string, error)

	// Close releases resources. Further calls return ErrClosed.
	Close() error
}
