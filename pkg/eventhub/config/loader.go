package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	hberrors "github.com/randalmurphal/eventhub/pkg/eventhub/errors"
)

// EnvPrefix is the prefix of environment variables that override settings
// loaded by LoadHubConfig.
const EnvPrefix = "EVENTHUB"

// FromFile loads a .yaml, .yml or .json settings file.
func FromFile(path string) (Config, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml", ".json":
	default:
		return Config{}, hberrors.InvalidArgument("config: unsupported file extension %q", ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML document. JSON documents are valid YAML and parse the
// same way.
func Parse(data []byte) (Config, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Config{}, hberrors.Wrap(err, hberrors.CodeInvalidArgument, "config: parse")
	}
	return New(m), nil
}

// WithEnv returns a copy of c overlaid with environment variables of the
// form PREFIX_SECTION_KEY=value, so EVENTHUB_DATASTORE_DRIVER sets
// datastore.driver. Only keys already known to keys are applied, because an
// underscore in a variable name is ambiguous.
func (c Config) WithEnv(prefix string, environ []string, keys []string) Config {
	out := New(clone(c.data))
	byVar := make(map[string]string, len(keys))
	for _, k := range keys {
		byVar[prefix+"_"+strings.ToUpper(strings.NewReplacer(".", "_").Replace(k))] = k
	}
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if key, known := byVar[name]; known {
			out.set(key, value)
		}
	}
	return out
}

func clone(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			v = clone(nested)
		}
		out[k] = v
	}
	return out
}
