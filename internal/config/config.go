// Package config provides configuration management for Crucible using
// Viper for flexible loading from files, environment variables, and
// command-line flags.
//
// The configuration system supports YAML files and environment variable
// overrides with a CRUCIBLE_ prefix. It manages compilation settings
// (sandbox strategy, timeouts, memory limits), preview server settings,
// and logging options.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/crucible/internal/sandbox"
	"github.com/conneroisu/crucible/internal/validation"
)

type Config struct {
	Compile CompileConfig `yaml:"compile" mapstructure:"compile"`
	Preview PreviewConfig `yaml:"preview" mapstructure:"preview"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

type CompileConfig struct {
	// Strategy selects the sandbox tier: permissive, heap-isolated, or
	// wasm-validated.
	Strategy string `yaml:"strategy" mapstructure:"strategy"`

	// Timeout bounds each sandboxed run.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// MemoryLimitMB caps phase-1 validation heaps.
	MemoryLimitMB int `yaml:"memory_limit_mb" mapstructure:"memory_limit_mb"`
}

type PreviewConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`

	// Watch enables recompilation on source changes.
	Watch bool `yaml:"watch" mapstructure:"watch"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Handle settings set via viper (workaround for viper nested-key
	// handling when no config file is present)
	if viper.IsSet("compile.strategy") && config.Compile.Strategy == "" {
		config.Compile.Strategy = viper.GetString("compile.strategy")
	}
	if viper.IsSet("compile.timeout") && config.Compile.Timeout == 0 {
		config.Compile.Timeout = viper.GetDuration("compile.timeout")
	}
	// Watching defaults to on; a bool field cannot distinguish "unset"
	// from "false", so consult viper directly.
	if viper.IsSet("preview.watch") {
		config.Preview.Watch = viper.GetBool("preview.watch")
	} else {
		config.Preview.Watch = true
	}

	applyDefaults(&config)

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(config *Config) {
	if config.Compile.Strategy == "" {
		config.Compile.Strategy = string(sandbox.DefaultKind())
	}
	if config.Compile.Timeout == 0 {
		config.Compile.Timeout = sandbox.DefaultTimeout
	}
	if config.Compile.MemoryLimitMB == 0 {
		config.Compile.MemoryLimitMB = int(sandbox.DefaultMemoryLimit >> 20)
	}
	if config.Preview.Host == "" {
		config.Preview.Host = "localhost"
	}
	if config.Preview.Port == 0 {
		config.Preview.Port = 8420
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}
}

// Validate checks a loaded configuration for values the pipeline would
// reject later.
func Validate(config *Config) error {
	if _, err := sandbox.ParseKind(config.Compile.Strategy); err != nil {
		return fmt.Errorf("compile.strategy: %w", err)
	}

	if config.Compile.Timeout < 0 {
		return fmt.Errorf("compile.timeout must be positive, got %s", config.Compile.Timeout)
	}
	if config.Compile.Timeout > time.Minute {
		return fmt.Errorf("compile.timeout must not exceed 1m, got %s", config.Compile.Timeout)
	}

	if config.Compile.MemoryLimitMB < 0 {
		return fmt.Errorf("compile.memory_limit_mb must be positive, got %d", config.Compile.MemoryLimitMB)
	}

	if config.Preview.Port < 0 || config.Preview.Port > 65535 {
		return fmt.Errorf("preview.port must be between 1 and 65535, got %d", config.Preview.Port)
	}

	switch config.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error, got %q", config.Log.Level)
	}

	return nil
}

// Strategy returns the parsed sandbox tier.
func (c *Config) Strategy() sandbox.Kind {
	kind, _ := sandbox.ParseKind(c.Compile.Strategy)
	return kind
}

// MemoryLimit returns the phase-1 heap cap in bytes.
func (c *Config) MemoryLimit() int64 {
	return int64(c.Compile.MemoryLimitMB) << 20
}

// WriteDefault writes a commented starter configuration to path. It
// refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}

	var config Config
	applyDefaults(&config)

	body, err := yaml.Marshal(&config)
	if err != nil {
		return fmt.Errorf("encoding default config: %w", err)
	}

	header := fmt.Sprintf(`# Crucible configuration.
# Environment variables with a CRUCIBLE_ prefix override these values,
# e.g. CRUCIBLE_COMPILE_STRATEGY=permissive.
#
# compile.strategy is one of: %s, %s, %s.
# compile sources are limited to %d bytes.
`, sandbox.StrategyPermissive, sandbox.StrategyHeapIsolated, sandbox.StrategyWASMValidated,
		validation.MaxSourceBytes)

	return os.WriteFile(path, append([]byte(header), body...), 0o644)
}
