package types

import "errors"

// Sentinel errors for every anticipated failure condition. Public operations
// return these (possibly wrapped with %w) rather than raising faults;
// unexpected faults are caught at the dispatch boundary and normalized.
var (
	// Session registry errors
	ErrEngineLoad        = errors.New("analysis engine failed to load codebase")
	ErrRefresh           = errors.New("analysis engine failed to refresh snapshot")
	ErrCapacityExceeded  = errors.New("session capacity exceeded")
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionDisposed   = errors.New("session is disposed")
	ErrSessionNotActive  = errors.New("session is not active")
	ErrSessionNotPaused  = errors.New("session is not paused")
	ErrEditsPending      = errors.New("staged edits pending; commit or rollback first")

	// Edit ledger errors
	ErrStaleEdit       = errors.New("edit staged against a stale snapshot version")
	ErrOverlappingEdit = errors.New("edit range overlaps a previously staged edit")
	ErrOutOfRange      = errors.New("edit range outside document bounds")

	// Tool/plugin registry errors
	ErrToolDisabled       = errors.New("tool belongs to a disabled plugin")
	ErrToolNotFound       = errors.New("tool not found")
	ErrConfigInvalid      = errors.New("configuration invalid")
	ErrOperationTimedOut  = errors.New("operation timed out")
	ErrOperationCancelled = errors.New("operation cancelled")
	ErrPluginInit         = errors.New("plugin initialization failed")

	// Engine adapter errors
	ErrDocumentNotFound = errors.New("document not found in snapshot")
)
