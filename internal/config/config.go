// Package config loads and validates refract-mcp server configuration from
// a YAML file. Invalid values, non-positive limits and timeouts included,
// are rejected before any plugin initializes.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/dlanger/refract-mcp/pkg/types"
)

// Duration wraps time.Duration so YAML accepts "30s"-style strings.
type Duration time.Duration

// UnmarshalYAML parses either a duration string or integer nanoseconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(v)
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// PluginConfig is the per-plugin configuration surface. A zero
// OperationTimeout inherits the server default; negative values are invalid.
type PluginConfig struct {
	Enabled               *bool          `yaml:"enabled"`
	Priority              int            `yaml:"priority" validate:"gte=0,lte=1000"`
	OperationTimeout      Duration       `yaml:"operation_timeout" validate:"gte=0"`
	EnableDetailedLogging bool           `yaml:"enable_detailed_logging"`
	Options               map[string]any `yaml:"options"`
}

// EngineConfig configures the reference text engine.
type EngineConfig struct {
	MaxFileSize int      `yaml:"max_file_size" validate:"gt=0"`
	Extensions  []string `yaml:"extensions"`
}

// Config is the top-level server configuration.
type Config struct {
	MaxSessions   int      `yaml:"max_sessions" validate:"gt=0"`
	IdleTimeout   Duration `yaml:"idle_timeout" validate:"gt=0"`
	SweepInterval Duration `yaml:"sweep_interval" validate:"gt=0"`
	LogLevel      string   `yaml:"log_level" validate:"oneof=debug info warn error"`

	Engine  EngineConfig            `yaml:"engine"`
	Plugins map[string]PluginConfig `yaml:"plugins"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		MaxSessions:   8,
		IdleTimeout:   Duration(30 * time.Minute),
		SweepInterval: Duration(time.Minute),
		LogLevel:      "info",
		Engine: EngineConfig{
			MaxFileSize: 1 << 20,
		},
		Plugins: make(map[string]PluginConfig),
	}
}

// Load reads a YAML config file, fills defaults, and validates. An empty
// path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", types.ErrConfigInvalid, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural and range constraints.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", types.ErrConfigInvalid, err)
	}
	for name, pc := range c.Plugins {
		if err := v.Struct(pc); err != nil {
			return fmt.Errorf("%w: plugin %s: %v", types.ErrConfigInvalid, name, err)
		}
	}
	return nil
}

// PluginFor resolves the effective configuration for a plugin name,
// returning defaults when the file does not mention it.
func (c *Config) PluginFor(name string) PluginConfig {
	pc, ok := c.Plugins[name]
	if !ok {
		enabled := true
		return PluginConfig{Enabled: &enabled}
	}
	if pc.Enabled == nil {
		enabled := true
		pc.Enabled = &enabled
	}
	return pc
}
