package tools

import (
	"context"
	"fmt"

	"github.com/dlanger/refract-mcp/internal/plugin"
	"github.com/dlanger/refract-mcp/internal/session"
	"github.com/dlanger/refract-mcp/pkg/types"
)

// AnalysisPlugin builds the plugin exposing diagnostic tools. Results are
// served through each session's diagnostic cache, so repeated queries at the
// same snapshot version cost one engine call.
func AnalysisPlugin(registry *session.Registry, settings plugin.Settings) plugin.Factory {
	return func() (*plugin.Plugin, error) {
		h := &analysisTools{registry: registry}
		return &plugin.Plugin{
			ID:          "analysis",
			Name:        "Diagnostics",
			Description: "Compute diagnostics for a session, project, or document",
			Category:    "analysis",
			Settings:    settings,
			Tools: []plugin.Tool{
				{
					Name:        "get_diagnostics",
					Description: "Compute (or serve cached) diagnostics for the given scope at the current snapshot version",
					Enabled:     true,
					Handler:     h.diagnostics,
					InputSchema: map[string]any{
						"type": "object",
						"properties": map[string]any{
							"session_id": sessionIDProperty(),
							"scope": map[string]any{
								"type":        "string",
								"enum":        []string{"session", "project", "document"},
								"default":     "session",
								"description": "How much of the session to analyze",
							},
							"target": map[string]any{
								"type":        "string",
								"description": "Project name or document ID; required for project and document scopes",
							},
						},
						"required": []string{"session_id"},
					},
				},
			},
		}, nil
	}
}

type analysisTools struct {
	registry *session.Registry
}

func (h *analysisTools) diagnostics(ctx context.Context, args map[string]any) (any, error) {
	id, err := requireString(args, "session_id")
	if err != nil {
		return nil, err
	}
	s, err := h.registry.GetSession(id)
	if err != nil {
		return nil, err
	}

	scope, err := parseScope(getString(args, "scope", "session"), getString(args, "target", ""))
	if err != nil {
		return nil, err
	}

	entry, err := s.Diagnostics(ctx, scope)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"scope":       scope,
		"version":     entry.Version,
		"counts":      entry.Counts,
		"diagnostics": entry.Diagnostics,
		"computed_at": entry.ComputedAt,
	}, nil
}

// parseScope builds a diagnostics scope from tool arguments.
func parseScope(kind, target string) (types.Scope, error) {
	switch types.ScopeKind(kind) {
	case types.ScopeSession:
		return types.SessionScope(), nil
	case types.ScopeProject:
		if target == "" {
			return types.Scope{}, fmt.Errorf("target parameter is required for project scope")
		}
		return types.ProjectScope(target), nil
	case types.ScopeDocument:
		if target == "" {
			return types.Scope{}, fmt.Errorf("target parameter is required for document scope")
		}
		return types.DocumentScope(target), nil
	default:
		return types.Scope{}, fmt.Errorf("invalid scope %q", kind)
	}
}
