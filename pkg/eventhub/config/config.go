package config

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Config is a decoded settings document. Keys may be dotted paths into
// nested sections ("datastore.driver"). Accessors return the default for
// missing keys and for values that do not convert.
//
// Scalars are converted leniently so values from environment variables,
// which are always strings, read the same as typed YAML values.
type Config struct {
	data map[string]any
}

// New wraps data. A nil map gives an empty Config.
func New(data map[string]any) Config {
	if data == nil {
		data = map[string]any{}
	}
	return Config{data: data}
}

func (c Config) lookup(path string) (any, bool) {
	var cur any = c.data
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the scalar at path as text.
func (c Config) String(path, defaultVal string) string {
	switch v, _ := c.lookup(path); val := v.(type) {
	case string:
		return val
	case int, int64, float64, bool:
		return toText(val)
	}
	return defaultVal
}

// Int returns the integer at path. Fractional numbers are rejected.
func (c Config) Int(path string, defaultVal int) int {
	switch v, _ := c.lookup(path); val := v.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		if val == float64(int(val)) {
			return int(val)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return i
		}
	}
	return defaultVal
}

// Bool returns the boolean at path. Strings accepted by strconv.ParseBool
// count.
func (c Config) Bool(path string, defaultVal bool) bool {
	switch v, _ := c.lookup(path); val := v.(type) {
	case bool:
		return val
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(val)); err == nil {
			return b
		}
	}
	return defaultVal
}

// Duration returns the duration at path: a Go duration string, or a number
// of seconds.
func (c Config) Duration(path string, defaultVal time.Duration) time.Duration {
	switch v, _ := c.lookup(path); val := v.(type) {
	case time.Duration:
		return val
	case int:
		return time.Duration(val) * time.Second
	case int64:
		return time.Duration(val) * time.Second
	case float64:
		return time.Duration(val * float64(time.Second))
	case string:
		s := strings.TrimSpace(val)
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return time.Duration(f * float64(time.Second))
		}
	}
	return defaultVal
}

// Section returns the nested document at path, or an empty Config.
func (c Config) Section(path string) Config {
	v, _ := c.lookup(path)
	m, _ := v.(map[string]any)
	return New(m)
}

// Has reports whether path is set.
func (c Config) Has(path string) bool {
	_, ok := c.lookup(path)
	return ok
}

// Keys returns the top-level keys, sorted.
func (c Config) Keys() []string {
	keys := make([]string, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// set stores value at path, creating sections on the way.
func (c Config) set(path string, value any) {
	parts := strings.Split(path, ".")
	m := c.data
	for _, part := range parts[:len(parts)-1] {
		next, ok := m[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[part] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}

func toText(v any) string {
	switch val := v.(type) {
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	}
	return ""
}
