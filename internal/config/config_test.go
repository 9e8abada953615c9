package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlanger/refract-mcp/pkg/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, 8, cfg.MaxSessions)
		assert.Equal(t, 30*time.Minute, cfg.IdleTimeout.Std())
		assert.Equal(t, time.Minute, cfg.SweepInterval.Std())
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, 1<<20, cfg.Engine.MaxFileSize)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := writeConfig(t, `
max_sessions: 4
idle_timeout: 10m
sweep_interval: 30s
log_level: debug
engine:
  max_file_size: 65536
  extensions: [".go", ".md"]
plugins:
  analysis:
    priority: 50
    operation_timeout: 5s
    enable_detailed_logging: true
  edit:
    enabled: false
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 4, cfg.MaxSessions)
		assert.Equal(t, 10*time.Minute, cfg.IdleTimeout.Std())
		assert.Equal(t, 30*time.Second, cfg.SweepInterval.Std())
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, 65536, cfg.Engine.MaxFileSize)
		assert.Equal(t, []string{".go", ".md"}, cfg.Engine.Extensions)

		analysis := cfg.PluginFor("analysis")
		require.NotNil(t, analysis.Enabled)
		assert.True(t, *analysis.Enabled)
		assert.Equal(t, 50, analysis.Priority)
		assert.Equal(t, 5*time.Second, analysis.OperationTimeout.Std())
		assert.True(t, analysis.EnableDetailedLogging)

		edit := cfg.PluginFor("edit")
		require.NotNil(t, edit.Enabled)
		assert.False(t, *edit.Enabled)
	})

	t.Run("missing file fails", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml fails", func(t *testing.T) {
		_, err := Load(writeConfig(t, "max_sessions: [not a number"))
		assert.ErrorIs(t, err, types.ErrConfigInvalid)
	})
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"zero max_sessions", "max_sessions: 0"},
		{"negative idle_timeout", "idle_timeout: -5m"},
		{"unknown log_level", "log_level: loud"},
		{"zero engine file size", "engine:\n  max_file_size: 0"},
		{"plugin priority out of range", "plugins:\n  analysis:\n    priority: 5000"},
		{"negative plugin timeout", "plugins:\n  analysis:\n    operation_timeout: -1s"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			assert.ErrorIs(t, err, types.ErrConfigInvalid)
		})
	}
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	t.Run("integer nanoseconds", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, "idle_timeout: 60000000000"))
		require.NoError(t, err)
		assert.Equal(t, time.Minute, cfg.IdleTimeout.Std())
	})

	t.Run("bad duration string", func(t *testing.T) {
		_, err := Load(writeConfig(t, "idle_timeout: soonish"))
		assert.Error(t, err)
	})
}

func TestConfig_PluginFor(t *testing.T) {
	cfg := Default()
	pc := cfg.PluginFor("unmentioned")
	require.NotNil(t, pc.Enabled)
	assert.True(t, *pc.Enabled)
	assert.Zero(t, pc.Priority)
}
