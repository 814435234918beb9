package confloader

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the default environment variable prefix.
const DefaultEnvPrefix = "MESHKV_"

// ErrUnknownKeys is returned in strict mode when the config file sets
// keys that no field of the target maps to.
var ErrUnknownKeys = errors.New("confloader: unknown configuration keys")

// Loader loads configuration from multiple sources.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
	flags     map[string]any
	strict    bool
	loaded    bool
}

// Option configures the Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithConfigFile sets the configuration file path.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

// WithFlags sets dotted-key overrides applied after the environment.
func WithFlags(flags map[string]any) Option {
	return func(l *Loader) {
		l.flags = flags
	}
}

// WithStrict rejects config file keys that do not match a koanf-tagged
// field of the target. Environment variables are not checked, since the
// prefix is shared with CLI-only settings.
func WithStrict() Option {
	return func(l *Loader) {
		l.strict = true
	}
}

// NewLoader creates a new configuration loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: DefaultEnvPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads file, environment and flags in that order and unmarshals
// the merged result into target. Fields absent from every source keep
// the value target already holds.
func (l *Loader) Load(target any) error {
	if l.filePath != "" {
		if err := l.LoadFile(l.filePath); err != nil {
			return fmt.Errorf("load config file: %w", err)
		}
		if l.strict {
			if unknown := UnknownKeys(l.k.Keys(), target); len(unknown) > 0 {
				return fmt.Errorf("%w in %s: %s", ErrUnknownKeys, l.filePath, strings.Join(unknown, ", "))
			}
		}
	}
	if err := l.LoadEnv(); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	if len(l.flags) > 0 {
		if err := l.LoadMap(l.flags); err != nil {
			return fmt.Errorf("load flags: %w", err)
		}
	}
	if err := l.Unmarshal(target); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	l.loaded = true
	return nil
}

// LoadFile loads configuration from a YAML file.
func (l *Loader) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	if err := l.k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("load file %s: %w", path, err)
	}
	return nil
}

// LoadEnv loads configuration from environment variables.
//
// The first underscore after the prefix separates the section from the
// key; the rest are kept, so MESHKV_STORE_LOAD_TIMEOUT sets
// store.load_timeout.
func (l *Loader) LoadEnv() error {
	provider := env.Provider(l.envPrefix, ".", func(s string) string {
		return EnvKey(l.envPrefix, s)
	})
	if err := l.k.Load(provider, nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	return nil
}

// EnvKey maps an environment variable name to a dotted config key.
func EnvKey(prefix, name string) string {
	s := strings.ToLower(strings.TrimPrefix(name, prefix))
	section, key, ok := strings.Cut(s, "_")
	if !ok {
		return section
	}
	return section + "." + key
}

// LoadMap loads dotted keys from a map.
func (l *Loader) LoadMap(data map[string]any) error {
	if err := l.k.Load(mapProvider(data), nil); err != nil {
		return fmt.Errorf("load map: %w", err)
	}
	return nil
}

// Unmarshal unmarshals the loaded configuration into target using koanf tags.
func (l *Loader) Unmarshal(target any) error {
	return l.k.UnmarshalWithConf("", target, koanf.UnmarshalConf{Tag: "koanf"})
}

// Get returns a value by dotted key.
func (l *Loader) Get(key string) any {
	return l.k.Get(key)
}

// GetString returns a string value by dotted key.
func (l *Loader) GetString(key string) string {
	return l.k.String(key)
}

// IsLoaded reports whether Load has succeeded.
func (l *Loader) IsLoaded() bool {
	return l.loaded
}

// Keys returns all loaded keys.
func (l *Loader) Keys() []string {
	return l.k.Keys()
}

// UnknownKeys returns the dotted keys that no koanf-tagged field of
// target's struct type accepts, sorted. A map-typed field accepts every
// key below it.
func UnknownKeys(keys []string, target any) []string {
	t := reflect.TypeOf(target)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}

	leaves := map[string]struct{}{}
	open := map[string]struct{}{}
	collectKeys(t, "", leaves, open)

	var unknown []string
	for _, k := range keys {
		if _, ok := leaves[k]; ok {
			continue
		}
		if !underOpen(k, open) {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	return unknown
}

func collectKeys(t reflect.Type, prefix string, leaves, open map[string]struct{}) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
		if tag == "" || tag == "-" || !f.IsExported() {
			continue
		}
		key := prefix + tag

		ft := f.Type
		for ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		switch ft.Kind() {
		case reflect.Struct:
			collectKeys(ft, key+".", leaves, open)
		case reflect.Map:
			open[key] = struct{}{}
		default:
			leaves[key] = struct{}{}
		}
	}
}

func underOpen(key string, open map[string]struct{}) bool {
	for p := range open {
		if key == p || strings.HasPrefix(key, p+".") {
			return true
		}
	}
	return false
}
