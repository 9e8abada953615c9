package mcp

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dlanger/refract-mcp/pkg/types"
)

// MCP error codes. The JSON-RPC reserved codes come first, then the domain
// codes for the error taxonomy.
const (
	ErrorCodeInvalidParams = -32602
	ErrorCodeInternalError = -32603

	ErrorCodeEngineLoad       = -32001
	ErrorCodeCapacityExceeded = -32002
	ErrorCodeSessionNotFound  = -32003
	ErrorCodeSessionDisposed  = -32004
	ErrorCodeStaleEdit        = -32005
	ErrorCodeOverlappingEdit  = -32006
	ErrorCodeOutOfRange       = -32007
	ErrorCodeToolDisabled     = -32008
	ErrorCodeToolNotFound     = -32009
	ErrorCodeConfigInvalid    = -32010
	ErrorCodeTimedOut         = -32011
	ErrorCodeCancelled        = -32012
	ErrorCodeEditsPending     = -32013
	ErrorCodeSessionState     = -32014
	ErrorCodeRefresh          = -32015
)

// MCPError is a coded protocol error; the framework handles encoding.
type MCPError struct {
	Code    int
	Message string
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// toMCPError maps a taxonomy error onto its MCP code. Anything unrecognized
// becomes an internal error carrying the message, never a raw fault.
func toMCPError(err error) error {
	code := ErrorCodeInternalError
	switch {
	case errors.Is(err, types.ErrEngineLoad):
		code = ErrorCodeEngineLoad
	case errors.Is(err, types.ErrRefresh):
		code = ErrorCodeRefresh
	case errors.Is(err, types.ErrCapacityExceeded):
		code = ErrorCodeCapacityExceeded
	case errors.Is(err, types.ErrSessionNotFound):
		code = ErrorCodeSessionNotFound
	case errors.Is(err, types.ErrSessionDisposed):
		code = ErrorCodeSessionDisposed
	case errors.Is(err, types.ErrSessionNotActive), errors.Is(err, types.ErrSessionNotPaused):
		code = ErrorCodeSessionState
	case errors.Is(err, types.ErrEditsPending):
		code = ErrorCodeEditsPending
	case errors.Is(err, types.ErrStaleEdit):
		code = ErrorCodeStaleEdit
	case errors.Is(err, types.ErrOverlappingEdit):
		code = ErrorCodeOverlappingEdit
	case errors.Is(err, types.ErrOutOfRange), errors.Is(err, types.ErrDocumentNotFound):
		code = ErrorCodeOutOfRange
	case errors.Is(err, types.ErrToolDisabled):
		code = ErrorCodeToolDisabled
	case errors.Is(err, types.ErrToolNotFound):
		code = ErrorCodeToolNotFound
	case errors.Is(err, types.ErrConfigInvalid):
		code = ErrorCodeConfigInvalid
	case errors.Is(err, types.ErrOperationTimedOut):
		code = ErrorCodeTimedOut
	case errors.Is(err, types.ErrOperationCancelled):
		code = ErrorCodeCancelled
	}
	return &MCPError{Code: code, Message: err.Error()}
}

// marshalResult serializes a tool result value as indented JSON text.
func marshalResult(value any) string {
	if value == nil {
		return "{}"
	}
	if s, ok := value.(string); ok {
		return s
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(data)
}
