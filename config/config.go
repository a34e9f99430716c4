// Package config loads store settings and seed values from a YAML file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/jilio/sharedstate"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. SHAREDSTATE_LOG_LEVEL
const EnvPrefix = "SHAREDSTATE"

// ErrNoDefault is returned by ApplyDefault when the config has no seed for a key
var ErrNoDefault = errors.New("config: no default for key")

// Config holds store settings.
type Config struct {
	Log   LogConfig
	Trace bool

	// Defaults holds seed values by key name. Names keep their case, which
	// is why they are read with yaml directly instead of through viper.
	Defaults map[string]yaml.Node `mapstructure:"-"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from path and the environment. An empty path
// falls back to $SHAREDSTATE_CONFIG; with neither set only defaults and
// environment variables apply.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("trace", false)

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if path != "" {
		defaults, err := readDefaults(path)
		if err != nil {
			return Config{}, err
		}
		c.Defaults = defaults
	}
	return c, nil
}

func readDefaults(path string) (map[string]yaml.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	return decodeDefaults(f)
}

func decodeDefaults(r io.Reader) (map[string]yaml.Node, error) {
	var doc struct {
		Defaults map[string]yaml.Node `yaml:"defaults"`
	}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode defaults: %w", err)
	}
	return doc.Defaults, nil
}

// DefaultKeys returns the seeded key names, sorted
func (c Config) DefaultKeys() []string {
	keys := make([]string, 0, len(c.Defaults))
	for k := range c.Defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ApplyDefault decodes the seed for key into T and applies it with
// first-default-wins semantics. It reports whether the store took the value.
func ApplyDefault[T any](s *sharedstate.Store, key sharedstate.Key[T], c Config) (bool, error) {
	node, ok := c.Defaults[key.Name()]
	if !ok {
		return false, fmt.Errorf("%w %q", ErrNoDefault, key.Name())
	}

	var value T
	if err := node.Decode(&value); err != nil {
		return false, fmt.Errorf("decode default %q: %w", key.Name(), err)
	}
	return sharedstate.SetDefault(s, key, value)
}

// Logger builds a slog.Logger writing to w according to c.Log
func (c Config) Logger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(c.Log.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("log format %q: want text or json", c.Log.Format)
	}
}
