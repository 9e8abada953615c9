package mcp

import (
	"context"
	"fmt"

	"github.com/dlanger/refract-mcp/internal/plugin"
)

// systemPlugin exposes registry introspection: plugin health and the full
// tool catalog. It closes over the server so it can read the plugin registry
// that owns it; dispatch only happens after initialization, so the deferred
// reference is safe.
func (s *Server) systemPlugin() plugin.Factory {
	return func() (*plugin.Plugin, error) {
		return &plugin.Plugin{
			ID:          "system",
			Name:        "System",
			Description: "Server and plugin introspection",
			Category:    "system",
			Settings:    s.settingsFor("system", 10),
			Tools: []plugin.Tool{
				{
					Name:        "plugin_health",
					Description: "Report health for one plugin, or all plugins when plugin_id is omitted",
					Enabled:     true,
					Handler:     s.handlePluginHealth,
					InputSchema: map[string]any{
						"type": "object",
						"properties": map[string]any{
							"plugin_id": map[string]any{
								"type":        "string",
								"description": "Plugin ID; omit for all plugins",
							},
						},
					},
				},
				{
					Name:        "list_tools",
					Description: "List every known tool including disabled ones",
					Enabled:     true,
					Handler:     s.handleListTools,
					InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
				},
			},
		}, nil
	}
}

func (s *Server) handlePluginHealth(ctx context.Context, args map[string]any) (any, error) {
	if id, ok := args["plugin_id"].(string); ok && id != "" {
		h := s.plugins.HealthCheck(id)
		if h.Status == plugin.HealthUnknown && h.Message == "unknown plugin" {
			return nil, fmt.Errorf("unknown plugin %q", id)
		}
		return map[string]any{id: h}, nil
	}

	all := make(map[string]any)
	for _, id := range s.plugins.PluginIDs() {
		all[id] = s.plugins.HealthCheck(id)
	}
	return all, nil
}

func (s *Server) handleListTools(ctx context.Context, args map[string]any) (any, error) {
	return map[string]any{
		"tools":    s.plugins.GetAllTools(),
		"sessions": s.sessions.Len(),
	}, nil
}
