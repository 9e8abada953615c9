package tools

import (
	"context"
	"fmt"

	"github.com/dlanger/refract-mcp/internal/plugin"
	"github.com/dlanger/refract-mcp/internal/session"
	"github.com/dlanger/refract-mcp/pkg/types"
)

// EditPlugin builds the plugin exposing the staged-edit transaction tools.
func EditPlugin(registry *session.Registry, settings plugin.Settings) plugin.Factory {
	return func() (*plugin.Plugin, error) {
		h := &editTools{registry: registry}
		return &plugin.Plugin{
			ID:          "edit",
			Name:        "Staged Edits",
			Description: "Stage, preview, commit, and roll back virtual edits",
			Category:    "edit",
			Settings:    settings,
			Tools: []plugin.Tool{
				{
					Name:        "stage_edit",
					Description: "Stage edits for one document against the current snapshot version and preview the resulting diagnostics",
					Enabled:     true,
					Handler:     h.stage,
					InputSchema: map[string]any{
						"type": "object",
						"properties": map[string]any{
							"session_id": sessionIDProperty(),
							"document_id": map[string]any{
								"type":        "string",
								"description": "Document path relative to the codebase root",
							},
							"edits": map[string]any{
								"type":  "array",
								"items": editSchema(),
							},
							"version": map[string]any{
								"type":        "integer",
								"description": "Snapshot version the edits were computed against (optimistic concurrency token)",
							},
						},
						"required": []string{"session_id", "document_id", "edits", "version"},
					},
				},
				{
					Name:        "stage_batch",
					Description: "Stage edits across multiple documents as one preview unit",
					Enabled:     true,
					Handler:     h.stageBatch,
					InputSchema: map[string]any{
						"type": "object",
						"properties": map[string]any{
							"session_id": sessionIDProperty(),
							"documents": map[string]any{
								"type": "array",
								"items": map[string]any{
									"type": "object",
									"properties": map[string]any{
										"document_id": map[string]any{"type": "string"},
										"edits":       map[string]any{"type": "array", "items": editSchema()},
									},
									"required": []string{"document_id", "edits"},
								},
							},
							"version": map[string]any{"type": "integer"},
						},
						"required": []string{"session_id", "documents", "version"},
					},
				},
				{
					Name:        "list_pending",
					Description: "List staged edits in sequence order",
					Enabled:     true,
					Handler:     h.listPending,
					InputSchema: sessionOnlySchema(),
				},
				{
					Name:        "commit_edits",
					Description: "Atomically apply all staged edits, producing a new snapshot version",
					Enabled:     true,
					Handler:     h.commit,
					InputSchema: sessionOnlySchema(),
				},
				{
					Name:        "rollback_edits",
					Description: "Discard all staged edits, leaving the snapshot untouched",
					Enabled:     true,
					Handler:     h.rollback,
					InputSchema: sessionOnlySchema(),
				},
			},
		}, nil
	}
}

type editTools struct {
	registry *session.Registry
}

func (h *editTools) stage(ctx context.Context, args map[string]any) (any, error) {
	s, err := h.lookup(args)
	if err != nil {
		return nil, err
	}
	docID, err := requireString(args, "document_id")
	if err != nil {
		return nil, err
	}
	edits, err := decodeEdits(args["edits"])
	if err != nil {
		return nil, err
	}
	version, err := requireInt64(args, "version")
	if err != nil {
		return nil, err
	}
	return s.StageEdit(ctx, docID, edits, version)
}

func (h *editTools) stageBatch(ctx context.Context, args map[string]any) (any, error) {
	s, err := h.lookup(args)
	if err != nil {
		return nil, err
	}
	rawDocs, ok := args["documents"].([]any)
	if !ok || len(rawDocs) == 0 {
		return nil, fmt.Errorf("documents parameter is required and must be a non-empty array")
	}
	version, err := requireInt64(args, "version")
	if err != nil {
		return nil, err
	}

	batch := make([]types.DocumentEdits, 0, len(rawDocs))
	for i, raw := range rawDocs {
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("documents[%d] must be an object", i)
		}
		docID, ok := obj["document_id"].(string)
		if !ok || docID == "" {
			return nil, fmt.Errorf("documents[%d].document_id is required", i)
		}
		edits, err := decodeEdits(obj["edits"])
		if err != nil {
			return nil, fmt.Errorf("documents[%d]: %w", i, err)
		}
		batch = append(batch, types.DocumentEdits{DocumentID: docID, Edits: edits})
	}
	return s.StageBatch(ctx, batch, version)
}

func (h *editTools) listPending(ctx context.Context, args map[string]any) (any, error) {
	s, err := h.lookup(args)
	if err != nil {
		return nil, err
	}
	pending, err := s.ListPending()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"version": s.Version(),
		"pending": pending,
	}, nil
}

func (h *editTools) commit(ctx context.Context, args map[string]any) (any, error) {
	s, err := h.lookup(args)
	if err != nil {
		return nil, err
	}
	return s.Commit(ctx)
}

func (h *editTools) rollback(ctx context.Context, args map[string]any) (any, error) {
	s, err := h.lookup(args)
	if err != nil {
		return nil, err
	}
	if err := s.Rollback(); err != nil {
		return nil, err
	}
	return map[string]any{"rolled_back": true, "version": s.Version()}, nil
}

func (h *editTools) lookup(args map[string]any) (*session.Session, error) {
	id, err := requireString(args, "session_id")
	if err != nil {
		return nil, err
	}
	return h.registry.GetSession(id)
}
