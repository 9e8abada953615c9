// Package types defines the shared value types used across refract-mcp:
// text edits and ranges, diagnostics and severities, analysis scopes, edit
// previews and commit reports, plus the sentinel error taxonomy every public
// operation reports through.
//
// All types here are plain values with no behavior beyond validation and
// small derivations (range overlap, severity tallies). Components communicate
// through these types so that internal packages never import each other's
// internals.
//
// # Error Taxonomy
//
// Every anticipated failure condition has a sentinel in errors.go and is
// matchable with errors.Is even when wrapped:
//
//	if errors.Is(err, types.ErrStaleEdit) {
//	    // re-read the snapshot version and re-stage
//	}
package types
