package tools

import (
	"fmt"

	"github.com/dlanger/refract-mcp/pkg/types"
)

// requireString extracts a mandatory string argument.
func requireString(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s parameter is required", key)
	}
	return v, nil
}

// getString extracts an optional string argument with a default.
func getString(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return def
}

// requireInt64 extracts a mandatory integer argument. JSON numbers decode as
// float64, so both forms are accepted.
func requireInt64(args map[string]any, key string) (int64, error) {
	switch v := args[key].(type) {
	case float64:
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	default:
		return 0, fmt.Errorf("%s parameter is required and must be an integer", key)
	}
}

// asInt converts a decoded JSON number.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

// decodeEdits converts a decoded JSON array of {start, end, new_text}
// objects into edits.
func decodeEdits(raw any) ([]types.Edit, error) {
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return nil, fmt.Errorf("edits parameter is required and must be a non-empty array")
	}

	edits := make([]types.Edit, 0, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("edits[%d] must be an object", i)
		}
		start, ok := asInt(obj["start"])
		if !ok {
			return nil, fmt.Errorf("edits[%d].start must be an integer", i)
		}
		end, ok := asInt(obj["end"])
		if !ok {
			return nil, fmt.Errorf("edits[%d].end must be an integer", i)
		}
		text, _ := obj["new_text"].(string)
		r := types.Range{Start: start, End: end}
		if !r.Valid() {
			return nil, fmt.Errorf("edits[%d]: invalid range %s", i, r)
		}
		edits = append(edits, types.Edit{Range: r, NewText: text})
	}
	return edits, nil
}

// editSchema describes one edit object for tool input schemas.
func editSchema() map[string]any {
	return map[string]any{
		"type":        "object",
		"description": "A text replacement over a half-open byte range [start, end)",
		"properties": map[string]any{
			"start":    map[string]any{"type": "integer", "minimum": 0},
			"end":      map[string]any{"type": "integer", "minimum": 0},
			"new_text": map[string]any{"type": "string"},
		},
		"required": []string{"start", "end"},
	}
}

// sessionIDProperty is the shared session_id schema fragment.
func sessionIDProperty() map[string]any {
	return map[string]any{
		"type":        "string",
		"description": "Session ID returned by create_session",
	}
}
