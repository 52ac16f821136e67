// Package variant implements the JSON-shaped values carried by events and
// shared states.
//
// A Variant is one of null, string, int32, int64, double, bool, a vector of
// variants, or a string-keyed map of variants. EventData is the top-level
// string-keyed map used as an event payload. Both are values: constructors and
// accessors copy containers so no two owners share mutable state.
package variant

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Kind identifies which member of the union a Variant holds.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInt32
	KindInt64
	KindDouble
	KindBool
	KindVector
	KindMap
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindDouble:
		return "double"
	case KindBool:
		return "bool"
	case KindVector:
		return "vector"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Variant is an immutable tagged union. The zero value is null.
type Variant struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
	vec  []Variant
	m    map[string]Variant
}

// Null returns the null variant.
func Null() Variant { return Variant{} }

// String returns a string variant.
func String(s string) Variant { return Variant{kind: KindString, s: s} }

// Int32 returns an int32 variant.
func Int32(i int32) Variant { return Variant{kind: KindInt32, i: int64(i)} }

// Int64 returns an int64 variant.
func Int64(i int64) Variant { return Variant{kind: KindInt64, i: i} }

// Double returns a double variant.
func Double(f float64) Variant { return Variant{kind: KindDouble, f: f} }

// Bool returns a bool variant.
func Bool(b bool) Variant { return Variant{kind: KindBool, b: b} }

// Vector returns a vector variant holding copies of items.
func Vector(items ...Variant) Variant {
	vec := make([]Variant, len(items))
	for i, item := range items {
		vec[i] = item.Copy()
	}
	return Variant{kind: KindVector, vec: vec}
}

// Map returns a map variant holding copies of m.
func Map(m map[string]Variant) Variant {
	return Variant{kind: KindMap, m: copyMap(m)}
}

// Kind returns the variant's kind.
func (v Variant) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Variant) IsNull() bool { return v.kind == KindNull }

// AsString returns the string value if v is a string.
func (v Variant) AsString() (string, bool) {
	return v.s, v.kind == KindString
}

// AsInt32 returns v as an int32. Int64 values that fit are converted.
func (v Variant) AsInt32() (int32, bool) {
	switch v.kind {
	case KindInt32:
		return int32(v.i), true
	case KindInt64:
		if v.i >= math.MinInt32 && v.i <= math.MaxInt32 {
			return int32(v.i), true
		}
	}
	return 0, false
}

// AsInt64 returns v as an int64 if v is an integer.
func (v Variant) AsInt64() (int64, bool) {
	if v.kind == KindInt32 || v.kind == KindInt64 {
		return v.i, true
	}
	return 0, false
}

// AsDouble returns v as a float64 if v is numeric.
func (v Variant) AsDouble() (float64, bool) {
	switch v.kind {
	case KindDouble:
		return v.f, true
	case KindInt32, KindInt64:
		return float64(v.i), true
	}
	return 0, false
}

// AsBool returns the bool value if v is a bool.
func (v Variant) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// AsVector returns a copy of the items if v is a vector.
func (v Variant) AsVector() ([]Variant, bool) {
	if v.kind != KindVector {
		return nil, false
	}
	out := make([]Variant, len(v.vec))
	for i, item := range v.vec {
		out[i] = item.Copy()
	}
	return out, true
}

// AsMap returns a copy of the entries if v is a map.
func (v Variant) AsMap() (map[string]Variant, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	return copyMap(v.m), true
}

// Len returns the number of items of a vector or map, and 0 otherwise.
func (v Variant) Len() int {
	switch v.kind {
	case KindVector:
		return len(v.vec)
	case KindMap:
		return len(v.m)
	}
	return 0
}

// Copy returns a deep copy of v.
func (v Variant) Copy() Variant {
	switch v.kind {
	case KindVector:
		return Vector(v.vec...)
	case KindMap:
		return Map(v.m)
	}
	return v
}

// Equal reports deep equality. Kinds must match exactly.
func (v Variant) Equal(other Variant) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.s == other.s
	case KindInt32, KindInt64:
		return v.i == other.i
	case KindDouble:
		return v.f == other.f
	case KindBool:
		return v.b == other.b
	case KindVector:
		if len(v.vec) != len(other.vec) {
			return false
		}
		for i := range v.vec {
			if !v.vec[i].Equal(other.vec[i]) {
				return false
			}
		}
		return true
	case KindMap:
		return mapsEqual(v.m, other.m)
	}
	return false
}

// Text renders v for string substitution: strings verbatim, numbers and bools
// in their shortest form, null as empty, containers as JSON.
func (v Variant) Text() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindString:
		return v.s
	case KindInt32, KindInt64:
		return strconv.FormatInt(v.i, 10)
	case KindDouble:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	}
	raw, err := v.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(raw)
}

// GoString implements fmt.GoStringer for readable test failures.
func (v Variant) GoString() string {
	return fmt.Sprintf("variant.%s(%s)", v.kind, v.Text())
}

// FromAny converts a JSON-like Go value into a Variant.
//
// Accepts nil, string, bool, all integer and float types, json.Number,
// []any, []string, []Variant, map[string]any, map[string]string,
// map[string]Variant, Variant and *EventData.
func FromAny(value any) (Variant, error) {
	switch val := value.(type) {
	case nil:
		return Null(), nil
	case Variant:
		return val.Copy(), nil
	case *EventData:
		if val == nil {
			return Null(), nil
		}
		return Map(val.entries), nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return integer(int64(val)), nil
	case int8:
		return Int32(int32(val)), nil
	case int16:
		return Int32(int32(val)), nil
	case int32:
		return Int32(val), nil
	case int64:
		return Int64(val), nil
	case uint8:
		return Int32(int32(val)), nil
	case uint16:
		return Int32(int32(val)), nil
	case uint32:
		return integer(int64(val)), nil
	case uint:
		if uint64(val) > math.MaxInt64 {
			return Variant{}, fmt.Errorf("variant: %d overflows int64", val)
		}
		return integer(int64(val)), nil
	case uint64:
		if val > math.MaxInt64 {
			return Variant{}, fmt.Errorf("variant: %d overflows int64", val)
		}
		return integer(int64(val)), nil
	case float32:
		return Double(float64(val)), nil
	case float64:
		return Double(val), nil
	case interface{ Int64() (int64, error) }:
		return fromNumber(val)
	case []Variant:
		return Vector(val...), nil
	case []string:
		vec := make([]Variant, len(val))
		for i, s := range val {
			vec[i] = String(s)
		}
		return Variant{kind: KindVector, vec: vec}, nil
	case []any:
		vec := make([]Variant, len(val))
		for i, item := range val {
			converted, err := FromAny(item)
			if err != nil {
				return Variant{}, fmt.Errorf("index %d: %w", i, err)
			}
			vec[i] = converted
		}
		return Variant{kind: KindVector, vec: vec}, nil
	case map[string]Variant:
		return Map(val), nil
	case map[string]string:
		m := make(map[string]Variant, len(val))
		for k, s := range val {
			m[k] = String(s)
		}
		return Variant{kind: KindMap, m: m}, nil
	case map[string]any:
		m := make(map[string]Variant, len(val))
		for k, item := range val {
			converted, err := FromAny(item)
			if err != nil {
				return Variant{}, fmt.Errorf("key %q: %w", k, err)
			}
			m[k] = converted
		}
		return Variant{kind: KindMap, m: m}, nil
	}
	return Variant{}, fmt.Errorf("variant: unsupported type %T", value)
}

// ToAny converts v to plain Go values: nil, string, int32, int64, float64,
// bool, []any and map[string]any.
func (v Variant) ToAny() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt32:
		return int32(v.i)
	case KindInt64:
		return v.i
	case KindDouble:
		return v.f
	case KindBool:
		return v.b
	case KindVector:
		out := make([]any, len(v.vec))
		for i, item := range v.vec {
			out[i] = item.ToAny()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, item := range v.m {
			out[k] = item.ToAny()
		}
		return out
	}
	return nil
}

// integer picks the narrowest integer kind that holds i.
func integer(i int64) Variant {
	if i >= math.MinInt32 && i <= math.MaxInt32 {
		return Int32(int32(i))
	}
	return Int64(i)
}

func fromNumber(n interface{ Int64() (int64, error) }) (Variant, error) {
	if i, err := n.Int64(); err == nil {
		return integer(i), nil
	}
	if f, ok := n.(interface{ Float64() (float64, error) }); ok {
		if val, err := f.Float64(); err == nil {
			return Double(val), nil
		}
	}
	return Variant{}, fmt.Errorf("variant: invalid number %v", n)
}

func copyMap(m map[string]Variant) map[string]Variant {
	out := make(map[string]Variant, len(m))
	for k, v := range m {
		out[k] = v.Copy()
	}
	return out
}

func mapsEqual(a, b map[string]Variant) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !av.Equal(bv) {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]Variant) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
