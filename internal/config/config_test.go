package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/crucible/internal/sandbox"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadDefaults(t *testing.T) {
	resetViper(t)

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, string(sandbox.DefaultKind()), config.Compile.Strategy)
	assert.Equal(t, sandbox.DefaultTimeout, config.Compile.Timeout)
	assert.Equal(t, 128, config.Compile.MemoryLimitMB)
	assert.Equal(t, "localhost", config.Preview.Host)
	assert.Equal(t, 8420, config.Preview.Port)
	assert.True(t, config.Preview.Watch)
	assert.Equal(t, "info", config.Log.Level)
}

func TestLoadFromViperKeys(t *testing.T) {
	resetViper(t)
	viper.Set("compile.strategy", "permissive")
	viper.Set("compile.timeout", "2s")
	viper.Set("preview.watch", true)

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "permissive", config.Compile.Strategy)
	assert.Equal(t, 2*time.Second, config.Compile.Timeout)
	assert.True(t, config.Preview.Watch)
	assert.Equal(t, sandbox.StrategyPermissive, config.Strategy())
}

func TestLoadRejectsUnknownStrategy(t *testing.T) {
	resetViper(t)
	viper.Set("compile.strategy", "chroot")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile.strategy")
}

func TestValidateRejectsBadValues(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"excessive timeout", func(c *Config) { c.Compile.Timeout = 2 * time.Minute }},
		{"negative memory", func(c *Config) { c.Compile.MemoryLimitMB = -1 }},
		{"port out of range", func(c *Config) { c.Preview.Port = 70000 }},
		{"unknown log level", func(c *Config) { c.Log.Level = "verbose" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var config Config
			applyDefaults(&config)
			tc.mutate(&config)

			assert.Error(t, Validate(&config))
		})
	}
}

func TestMemoryLimitConversion(t *testing.T) {
	config := &Config{Compile: CompileConfig{MemoryLimitMB: 64}}

	assert.Equal(t, int64(64<<20), config.MemoryLimit())
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".crucible.yml")

	require.NoError(t, WriteDefault(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var config Config
	require.NoError(t, yaml.Unmarshal(raw, &config))
	assert.Equal(t, string(sandbox.DefaultKind()), config.Compile.Strategy)

	// Second write must not clobber the file.
	assert.Error(t, WriteDefault(path))
}
