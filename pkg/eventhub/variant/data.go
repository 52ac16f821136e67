package variant

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// EventData is a string-keyed map of variants.
//
// Producers build it with the Put methods and then hand it off. Readers get
// copies from AsMapCopy and the typed getters; the zero value and a nil
// *EventData both read as empty.
type EventData struct {
	entries map[string]Variant
}

// NewEventData returns an empty EventData.
func NewEventData() *EventData {
	return &EventData{entries: make(map[string]Variant)}
}

// FromMap converts a JSON-like map into EventData.
func FromMap(m map[string]any) (*EventData, error) {
	d := NewEventData()
	for k, v := range m {
		converted, err := FromAny(v)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		d.entries[k] = converted
	}
	return d, nil
}

// MustFromMap is FromMap that panics on unsupported values. For literals in
// tests and examples.
func MustFromMap(m map[string]any) *EventData {
	d, err := FromMap(m)
	if err != nil {
		panic(err)
	}
	return d
}

// FromVariants builds EventData from a map of variants.
func FromVariants(m map[string]Variant) *EventData {
	return &EventData{entries: copyMap(m)}
}

// Put stores a copy of v under key and returns d for chaining.
func (d *EventData) Put(key string, v Variant) *EventData {
	if d.entries == nil {
		d.entries = make(map[string]Variant)
	}
	d.entries[key] = v.Copy()
	return d
}

// PutString stores a string.
func (d *EventData) PutString(key, s string) *EventData { return d.Put(key, String(s)) }

// PutInt32 stores an int32.
func (d *EventData) PutInt32(key string, i int32) *EventData { return d.Put(key, Int32(i)) }

// PutInt64 stores an int64.
func (d *EventData) PutInt64(key string, i int64) *EventData { return d.Put(key, Int64(i)) }

// PutDouble stores a float64.
func (d *EventData) PutDouble(key string, f float64) *EventData { return d.Put(key, Double(f)) }

// PutBool stores a bool.
func (d *EventData) PutBool(key string, b bool) *EventData { return d.Put(key, Bool(b)) }

// PutNull stores null.
func (d *EventData) PutNull(key string) *EventData { return d.Put(key, Null()) }

// PutMap stores a nested map.
func (d *EventData) PutMap(key string, m map[string]Variant) *EventData { return d.Put(key, Map(m)) }

// PutVector stores a vector.
func (d *EventData) PutVector(key string, items ...Variant) *EventData {
	return d.Put(key, Vector(items...))
}

// Get returns a copy of the value stored under key.
func (d *EventData) Get(key string) (Variant, bool) {
	if d == nil {
		return Variant{}, false
	}
	v, ok := d.entries[key]
	if !ok {
		return Variant{}, false
	}
	return v.Copy(), true
}

// Contains reports whether key is present.
func (d *EventData) Contains(key string) bool {
	if d == nil {
		return false
	}
	_, ok := d.entries[key]
	return ok
}

// String returns the string under key, or defaultVal if missing or not a string.
func (d *EventData) String(key, defaultVal string) string {
	if v, ok := d.Get(key); ok {
		if s, ok := v.AsString(); ok {
			return s
		}
	}
	return defaultVal
}

// Int32 returns the int32 under key, or defaultVal.
func (d *EventData) Int32(key string, defaultVal int32) int32 {
	if v, ok := d.Get(key); ok {
		if i, ok := v.AsInt32(); ok {
			return i
		}
	}
	return defaultVal
}

// Int64 returns the integer under key, or defaultVal.
func (d *EventData) Int64(key string, defaultVal int64) int64 {
	if v, ok := d.Get(key); ok {
		if i, ok := v.AsInt64(); ok {
			return i
		}
	}
	return defaultVal
}

// Double returns the number under key as float64, or defaultVal.
func (d *EventData) Double(key string, defaultVal float64) float64 {
	if v, ok := d.Get(key); ok {
		if f, ok := v.AsDouble(); ok {
			return f
		}
	}
	return defaultVal
}

// Bool returns the bool under key, or defaultVal.
func (d *EventData) Bool(key string, defaultVal bool) bool {
	if v, ok := d.Get(key); ok {
		if b, ok := v.AsBool(); ok {
			return b
		}
	}
	return defaultVal
}

// Map returns the nested map under key, or nil.
func (d *EventData) Map(key string) map[string]Variant {
	if v, ok := d.Get(key); ok {
		if m, ok := v.AsMap(); ok {
			return m
		}
	}
	return nil
}

// Len returns the number of keys.
func (d *EventData) Len() int {
	if d == nil {
		return 0
	}
	return len(d.entries)
}

// Keys returns the keys in sorted order.
func (d *EventData) Keys() []string {
	if d == nil {
		return nil
	}
	return sortedKeys(d.entries)
}

// AsMapCopy returns a deep copy of the entries.
func (d *EventData) AsMapCopy() map[string]Variant {
	if d == nil {
		return map[string]Variant{}
	}
	return copyMap(d.entries)
}

// ToAny converts d to a map of plain Go values.
func (d *EventData) ToAny() map[string]any {
	out := make(map[string]any, d.Len())
	if d == nil {
		return out
	}
	for k, v := range d.entries {
		out[k] = v.ToAny()
	}
	return out
}

// Copy returns a deep copy. Copying nil yields an empty EventData.
func (d *EventData) Copy() *EventData {
	if d == nil {
		return NewEventData()
	}
	return &EventData{entries: copyMap(d.entries)}
}

// Merge returns a copy of d overlaid with other's entries.
func (d *EventData) Merge(other *EventData) *EventData {
	out := d.Copy()
	if other != nil {
		maps.Copy(out.entries, copyMap(other.entries))
	}
	return out
}

// Equal reports deep equality. Nil equals empty.
func (d *EventData) Equal(other *EventData) bool {
	var a, b map[string]Variant
	if d != nil {
		a = d.entries
	}
	if other != nil {
		b = other.entries
	}
	return mapsEqual(a, b)
}

// Flatten returns every leaf keyed by its dotted path. Nested maps are
// expanded; vectors and scalars are leaves.
//
//	{"a": {"b": 1}, "c": [1]}  ->  {"a.b": 1, "c": [1]}
func (d *EventData) Flatten() map[string]Variant {
	out := make(map[string]Variant)
	if d == nil {
		return out
	}
	flattenInto(out, "", d.entries)
	return out
}

// Lookup resolves a dotted path through nested maps.
func (d *EventData) Lookup(path string) (Variant, bool) {
	if d == nil || path == "" {
		return Variant{}, false
	}
	if v, ok := d.entries[path]; ok {
		return v.Copy(), true
	}
	current := d.entries
	parts := strings.Split(path, ".")
	for i, part := range parts {
		v, ok := current[part]
		if !ok {
			return Variant{}, false
		}
		if i == len(parts)-1 {
			return v.Copy(), true
		}
		if v.kind != KindMap {
			return Variant{}, false
		}
		current = v.m
	}
	return Variant{}, false
}

// GoString renders d with its JSON encoding for test failures.
func (d *EventData) GoString() string {
	raw, err := d.MarshalJSON()
	if err != nil {
		return "EventData(?)"
	}
	return "EventData(" + string(raw) + ")"
}

func flattenInto(out map[string]Variant, prefix string, m map[string]Variant) {
	for _, k := range slices.Sorted(maps.Keys(m)) {
		v := m[k]
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if v.kind == KindMap && len(v.m) > 0 {
			flattenInto(out, key, v.m)
			continue
		}
		out[key] = v.Copy()
	}
}
