package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlanger/refract-mcp/internal/config"
	"github.com/dlanger/refract-mcp/internal/plugin"
	"github.com/dlanger/refract-mcp/pkg/types"
)

func TestNewServer(t *testing.T) {
	t.Run("default config exposes the built-in catalog", func(t *testing.T) {
		s, err := NewServer(nil)
		require.NoError(t, err)
		defer s.Shutdown(context.Background())

		names := make(map[string]bool)
		for _, d := range s.Plugins().GetTools() {
			names[d.Name] = true
		}
		for _, want := range []string{
			"create_session", "end_session", "list_sessions", "session_status",
			"refresh_session", "pause_session", "resume_session",
			"stage_edit", "stage_batch", "list_pending", "commit_edits", "rollback_edits",
			"get_diagnostics",
			"plugin_health", "list_tools",
		} {
			assert.True(t, names[want], "missing tool %s", want)
		}
		assert.Equal(t, 0, s.Sessions().Len())
	})

	t.Run("config disables a plugin wholesale", func(t *testing.T) {
		cfg := config.Default()
		disabled := false
		cfg.Plugins["edit"] = config.PluginConfig{Enabled: &disabled}

		s, err := NewServer(cfg)
		require.NoError(t, err)
		defer s.Shutdown(context.Background())

		for _, d := range s.Plugins().GetTools() {
			assert.NotEqual(t, "edit", d.PluginID)
		}
		_, err = s.Plugins().Dispatch(context.Background(), "stage_edit", map[string]any{})
		assert.ErrorIs(t, err, types.ErrToolDisabled)
	})

	t.Run("config priority overrides the built-in ordering", func(t *testing.T) {
		cfg := config.Default()
		cfg.Plugins["analysis"] = config.PluginConfig{Priority: 999}

		s, err := NewServer(cfg)
		require.NoError(t, err)
		defer s.Shutdown(context.Background())

		tools := s.Plugins().GetTools()
		require.NotEmpty(t, tools)
		assert.Equal(t, "get_diagnostics", tools[0].Name)
	})
}

func TestToMCPError(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{types.ErrSessionNotFound, ErrorCodeSessionNotFound},
		{types.ErrCapacityExceeded, ErrorCodeCapacityExceeded},
		{types.ErrStaleEdit, ErrorCodeStaleEdit},
		{types.ErrOverlappingEdit, ErrorCodeOverlappingEdit},
		{types.ErrToolNotFound, ErrorCodeToolNotFound},
		{types.ErrOperationTimedOut, ErrorCodeTimedOut},
		{errors.New("anything else"), ErrorCodeInternalError},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("code %d", tc.code), func(t *testing.T) {
			wrapped := fmt.Errorf("context: %w", tc.err)
			merr := toMCPError(wrapped)
			var m *MCPError
			require.ErrorAs(t, merr, &m)
			assert.Equal(t, tc.code, m.Code)
		})
	}
}

func TestMarshalResult(t *testing.T) {
	assert.Equal(t, "{}", marshalResult(nil))
	assert.Equal(t, "plain", marshalResult("plain"))
	assert.Contains(t, marshalResult(map[string]any{"k": 1}), `"k": 1`)
}

func TestToMCPTool(t *testing.T) {
	desc := plugin.ToolDescriptor{
		Name:        "sample",
		Description: "does things",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id": map[string]any{"type": "string"},
			},
			"required": []string{"id"},
		},
	}
	tool := toMCPTool(desc)
	assert.Equal(t, "sample", tool.Name)
	assert.Equal(t, "object", tool.InputSchema.Type)
	assert.Contains(t, tool.InputSchema.Properties, "id")
	assert.Equal(t, []string{"id"}, tool.InputSchema.Required)
}

func TestSettingsFor(t *testing.T) {
	cfg := config.Default()
	cfg.Plugins["edit"] = config.PluginConfig{
		Priority:         5,
		OperationTimeout: config.Duration(2 * time.Second),
	}
	s := &Server{cfg: cfg}

	t.Run("file values win", func(t *testing.T) {
		settings := s.settingsFor("edit", 90)
		assert.Equal(t, 5, settings.Priority)
		assert.Equal(t, 2*time.Second, settings.OperationTimeout)
		assert.True(t, settings.Enabled)
	})

	t.Run("unmentioned plugin gets defaults", func(t *testing.T) {
		settings := s.settingsFor("session", 100)
		assert.Equal(t, 100, settings.Priority)
		assert.Equal(t, plugin.DefaultOperationTimeout, settings.OperationTimeout)
		assert.True(t, settings.Enabled)
	})
}
