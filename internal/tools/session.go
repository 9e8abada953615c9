package tools

import (
	"context"

	"github.com/dlanger/refract-mcp/internal/plugin"
	"github.com/dlanger/refract-mcp/internal/session"
)

// SessionPlugin builds the plugin exposing session lifecycle tools.
func SessionPlugin(registry *session.Registry, settings plugin.Settings) plugin.Factory {
	return func() (*plugin.Plugin, error) {
		h := &sessionTools{registry: registry}
		return &plugin.Plugin{
			ID:          "session",
			Name:        "Session Lifecycle",
			Description: "Create, inspect, refresh, pause, resume, and end analysis sessions",
			Category:    "session",
			Settings:    settings,
			Tools: []plugin.Tool{
				{
					Name:        "create_session",
					Description: "Load a codebase and open a long-lived analysis session over it",
					Enabled:     true,
					Handler:     h.create,
					InputSchema: map[string]any{
						"type": "object",
						"properties": map[string]any{
							"locator": map[string]any{
								"type":        "string",
								"description": "Absolute path to the codebase root",
							},
						},
						"required": []string{"locator"},
					},
				},
				{
					Name:        "end_session",
					Description: "Dispose a session and release its resources (idempotent)",
					Enabled:     true,
					Handler:     h.end,
					InputSchema: sessionOnlySchema(),
				},
				{
					Name:        "list_sessions",
					Description: "Enumerate live sessions with state and snapshot version",
					Enabled:     true,
					Handler:     h.list,
					InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
				},
				{
					Name:        "session_status",
					Description: "Describe one session: state, version, pending edit count",
					Enabled:     true,
					Handler:     h.status,
					InputSchema: sessionOnlySchema(),
				},
				{
					Name:        "refresh_session",
					Description: "Reload the codebase from source, replacing the snapshot; fails if edits are staged",
					Enabled:     true,
					Handler:     h.refresh,
					InputSchema: sessionOnlySchema(),
				},
				{
					Name:        "pause_session",
					Description: "Freeze mutation and start recording external changes",
					Enabled:     true,
					Handler:     h.pause,
					InputSchema: sessionOnlySchema(),
				},
				{
					Name:        "resume_session",
					Description: "Re-sync recorded external changes and return the changed documents",
					Enabled:     true,
					Handler:     h.resume,
					InputSchema: sessionOnlySchema(),
				},
			},
		}, nil
	}
}

func sessionOnlySchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"session_id": sessionIDProperty(),
		},
		"required": []string{"session_id"},
	}
}

type sessionTools struct {
	registry *session.Registry
}

func (h *sessionTools) create(ctx context.Context, args map[string]any) (any, error) {
	locator, err := requireString(args, "locator")
	if err != nil {
		return nil, err
	}
	s, err := h.registry.CreateSession(ctx, locator)
	if err != nil {
		return nil, err
	}
	snap := s.Snapshot()
	return map[string]any{
		"session_id": s.ID,
		"locator":    s.Locator,
		"version":    snap.Version,
		"documents":  snap.Len(),
		"projects":   snap.Projects(),
	}, nil
}

func (h *sessionTools) end(ctx context.Context, args map[string]any) (any, error) {
	id, err := requireString(args, "session_id")
	if err != nil {
		return nil, err
	}
	if err := h.registry.EndSession(id); err != nil {
		return nil, err
	}
	return map[string]any{"ended": true, "session_id": id}, nil
}

func (h *sessionTools) list(ctx context.Context, args map[string]any) (any, error) {
	return map[string]any{"sessions": h.registry.List()}, nil
}

func (h *sessionTools) status(ctx context.Context, args map[string]any) (any, error) {
	s, err := h.lookup(args)
	if err != nil {
		return nil, err
	}
	return s.Describe(), nil
}

func (h *sessionTools) refresh(ctx context.Context, args map[string]any) (any, error) {
	s, err := h.lookup(args)
	if err != nil {
		return nil, err
	}
	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	return map[string]any{"refreshed": true, "version": s.Version()}, nil
}

func (h *sessionTools) pause(ctx context.Context, args map[string]any) (any, error) {
	s, err := h.lookup(args)
	if err != nil {
		return nil, err
	}
	if err := s.Pause(); err != nil {
		return nil, err
	}
	return map[string]any{"paused": true}, nil
}

func (h *sessionTools) resume(ctx context.Context, args map[string]any) (any, error) {
	s, err := h.lookup(args)
	if err != nil {
		return nil, err
	}
	changed, err := s.Resume(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"resumed":           true,
		"version":           s.Version(),
		"changed_documents": changed,
	}, nil
}

func (h *sessionTools) lookup(args map[string]any) (*session.Session, error) {
	id, err := requireString(args, "session_id")
	if err != nil {
		return nil, err
	}
	return h.registry.GetSession(id)
}
