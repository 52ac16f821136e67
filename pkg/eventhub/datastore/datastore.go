package datastore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	hberrors "github.com/randalmurphal/eventhub/pkg/eventhub/errors"
	"github.com/randalmurphal/eventhub/pkg/eventhub/variant"
)

// DefaultTimeout bounds each DataStore operation.
const DefaultTimeout = 2 * time.Second

// DataStore is a typed view of one named partition of a Backend.
//
// Values are stored as JSON. Getters return the default when the key is
// missing, the backend fails, or the stored value has another type; backend
// failures are logged.
type DataStore struct {
	name    string
	backend Backend
	timeout time.Duration
	logger  *slog.Logger
}

// Name returns the partition name.
func (d *DataStore) Name() string { return d.name }

// SetInt stores an int32.
func (d *DataStore) SetInt(key string, v int32) error { return d.set(key, variant.Int32(v)) }

// GetInt returns the int32 under key, or defaultVal.
func (d *DataStore) GetInt(key string, defaultVal int32) int32 {
	if v, ok := d.get(key); ok {
		if i, ok := v.AsInt32(); ok {
			return i
		}
	}
	return defaultVal
}

// SetLong stores an int64.
func (d *DataStore) SetLong(key string, v int64) error { return d.set(key, variant.Int64(v)) }

// GetLong returns the integer under key, or defaultVal.
func (d *DataStore) GetLong(key string, defaultVal int64) int64 {
	if v, ok := d.get(key); ok {
		if i, ok := v.AsInt64(); ok {
			return i
		}
	}
	return defaultVal
}

// SetString stores a string.
func (d *DataStore) SetString(key, v string) error { return d.set(key, variant.String(v)) }

// GetString returns the string under key, or defaultVal.
func (d *DataStore) GetString(key, defaultVal string) string {
	if v, ok := d.get(key); ok {
		if s, ok := v.AsString(); ok {
			return s
		}
	}
	return defaultVal
}

// SetDouble stores a float64.
func (d *DataStore) SetDouble(key string, v float64) error { return d.set(key, variant.Double(v)) }

// GetDouble returns the number under key, or defaultVal.
func (d *DataStore) GetDouble(key string, defaultVal float64) float64 {
	if v, ok := d.get(key); ok {
		if f, ok := v.AsDouble(); ok {
			return f
		}
	}
	return defaultVal
}

// SetFloat stores a float32.
func (d *DataStore) SetFloat(key string, v float32) error {
	return d.set(key, variant.Double(float64(v)))
}

// GetFloat returns the number under key as float32, or defaultVal.
func (d *DataStore) GetFloat(key string, defaultVal float32) float32 {
	if v, ok := d.get(key); ok {
		if f, ok := v.AsDouble(); ok {
			return float32(f)
		}
	}
	return defaultVal
}

// SetBool stores a bool.
func (d *DataStore) SetBool(key string, v bool) error { return d.set(key, variant.Bool(v)) }

// GetBool returns the bool under key, or defaultVal.
func (d *DataStore) GetBool(key string, defaultVal bool) bool {
	if v, ok := d.get(key); ok {
		if b, ok := v.AsBool(); ok {
			return b
		}
	}
	return defaultVal
}

// SetVector stores a list of strings.
func (d *DataStore) SetVector(key string, v []string) error {
	items := make([]variant.Variant, len(v))
	for i, s := range v {
		items[i] = variant.String(s)
	}
	return d.set(key, variant.Vector(items...))
}

// GetVector returns the string list under key, or defaultVal if missing or
// if any element is not a string.
func (d *DataStore) GetVector(key string, defaultVal []string) []string {
	v, ok := d.get(key)
	if !ok {
		return defaultVal
	}
	items, ok := v.AsVector()
	if !ok {
		return defaultVal
	}
	out := make([]string, len(items))
	for i, item := range items {
		s, ok := item.AsString()
		if !ok {
			return defaultVal
		}
		out[i] = s
	}
	return out
}

// SetMap stores a string map.
func (d *DataStore) SetMap(key string, v map[string]string) error {
	m := make(map[string]variant.Variant, len(v))
	for k, s := range v {
		m[k] = variant.String(s)
	}
	return d.set(key, variant.Map(m))
}

// GetMap returns the string map under key, or defaultVal if missing or if any
// value is not a string.
func (d *DataStore) GetMap(key string, defaultVal map[string]string) map[string]string {
	v, ok := d.get(key)
	if !ok {
		return defaultVal
	}
	m, ok := v.AsMap()
	if !ok {
		return defaultVal
	}
	out := make(map[string]string, len(m))
	for k, item := range m {
		s, ok := item.AsString()
		if !ok {
			return defaultVal
		}
		out[k] = s
	}
	return out
}

// Contains reports whether key is stored.
func (d *DataStore) Contains(key string) bool {
	ctx, cancel := d.context()
	defer cancel()
	_, err := d.backend.Get(ctx, d.name, key)
	return err == nil
}

// Keys returns the stored keys in sorted order.
func (d *DataStore) Keys() ([]string, error) {
	ctx, cancel := d.context()
	defer cancel()
	return d.backend.Keys(ctx, d.name)
}

// Remove deletes key.
func (d *DataStore) Remove(key string) error {
	ctx, cancel := d.context()
	defer cancel()
	return d.backend.Delete(ctx, d.name, key)
}

// RemoveAll deletes every key of this store.
func (d *DataStore) RemoveAll() error {
	ctx, cancel := d.context()
	defer cancel()
	return d.backend.Clear(ctx, d.name)
}

func (d *DataStore) set(key string, v variant.Variant) error {
	if key == "" {
		return hberrors.InvalidArgument("datastore: empty key")
	}
	raw, err := v.MarshalJSON()
	if err != nil {
		return hberrors.Wrap(err, hberrors.CodeDataStoreType, "encode value")
	}
	ctx, cancel := d.context()
	defer cancel()
	return d.backend.Set(ctx, d.name, key, raw)
}

func (d *DataStore) get(key string) (variant.Variant, bool) {
	ctx, cancel := d.context()
	defer cancel()

	raw, err := d.backend.Get(ctx, d.name, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			d.logger.Warn("datastore read failed",
				slog.String("store", d.name),
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		return variant.Variant{}, false
	}

	var v variant.Variant
	if err := v.UnmarshalJSON(raw); err != nil {
		d.logger.Warn("datastore value is corrupt",
			slog.String("store", d.name),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return variant.Variant{}, false
	}
	return v, true
}

func (d *DataStore) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d.timeout)
}
