// Package engine defines the analysis-engine adapter boundary: the interface
// the rest of refract-mcp uses to load a codebase into an immutable versioned
// snapshot, compute diagnostics, and apply edits yielding new snapshots.
//
// The real semantic engine is a black box behind the Engine interface. The
// in-tree TextEngine is a reference implementation that treats the codebase
// as plain text documents and computes lightweight textual lints; it exists
// so the server runs end-to-end and the core packages have something real to
// test against.
//
// # Snapshots
//
// Snapshots are immutable. Every mutating engine call (ApplyEdits, Refresh,
// Resync) returns a new snapshot with an advanced version; callers that hold
// the old snapshot keep seeing consistent data.
//
// # Cancellation
//
// Engine calls are treated as potentially long-running. Implementations check
// ctx between documents, so cancellation is best-effort: the caller stops
// waiting at the boundary, not mid-parse.
package engine
