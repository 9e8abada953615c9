package engine

import (
	"context"
	"sort"
	"strings"

	"github.com/dlanger/refract-mcp/pkg/types"
)

// Engine is the adapter boundary to the underlying source-analysis engine.
// refract-mcp never parses source text itself; everything semantic goes
// through this interface.
type Engine interface {
	// Load resolves a codebase locator into an initial snapshot.
	Load(ctx context.Context, locator string) (*Snapshot, error)

	// Refresh reloads the codebase behind an existing snapshot from its
	// source, returning a new snapshot with an advanced version.
	Refresh(ctx context.Context, snap *Snapshot) (*Snapshot, error)

	// Resync incrementally re-reads only the given changed paths, returning
	// the new snapshot and the set of document IDs that actually changed.
	Resync(ctx context.Context, snap *Snapshot, changed []string) (*Snapshot, []string, error)

	// ComputeDiagnostics analyzes the documents selected by scope.
	ComputeDiagnostics(ctx context.Context, snap *Snapshot, scope types.Scope) ([]types.Diagnostic, error)

	// ApplyEdits applies per-document edits to a snapshot, producing a new
	// snapshot. All-or-nothing: any invalid edit fails the whole call and
	// the input snapshot remains the latest.
	ApplyEdits(ctx context.Context, snap *Snapshot, edits map[string][]types.Edit) (*Snapshot, error)
}

// Document is one text document within a snapshot. ID is the path relative
// to the codebase root; Project is the top-level directory it belongs to.
type Document struct {
	ID      string
	Project string
	Text    string
}

// Len returns the document length in bytes.
func (d *Document) Len() int {
	return len(d.Text)
}

// Snapshot is an immutable, versioned view of a loaded codebase. Treat the
// Documents map as frozen; derive new snapshots through the Engine.
type Snapshot struct {
	Locator string
	Version int64

	docs map[string]*Document
}

// NewSnapshot builds a snapshot over the given documents. The map is owned
// by the snapshot after the call.
func NewSnapshot(locator string, version int64, docs map[string]*Document) *Snapshot {
	if docs == nil {
		docs = make(map[string]*Document)
	}
	return &Snapshot{Locator: locator, Version: version, docs: docs}
}

// Document returns the document with the given ID, or ErrDocumentNotFound.
func (s *Snapshot) Document(id string) (*Document, error) {
	doc, ok := s.docs[id]
	if !ok {
		return nil, types.ErrDocumentNotFound
	}
	return doc, nil
}

// Has reports whether the snapshot contains a document.
func (s *Snapshot) Has(id string) bool {
	_, ok := s.docs[id]
	return ok
}

// Len returns the number of documents.
func (s *Snapshot) Len() int {
	return len(s.docs)
}

// DocumentIDs returns all document IDs in sorted order.
func (s *Snapshot) DocumentIDs() []string {
	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Projects returns the distinct project names in sorted order.
func (s *Snapshot) Projects() []string {
	seen := make(map[string]struct{})
	for _, doc := range s.docs {
		seen[doc.Project] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select returns the sorted document IDs covered by a scope.
func (s *Snapshot) Select(scope types.Scope) []string {
	switch scope.Kind {
	case types.ScopeDocument:
		if s.Has(scope.Target) {
			return []string{scope.Target}
		}
		return nil
	case types.ScopeProject:
		var ids []string
		for id, doc := range s.docs {
			if doc.Project == scope.Target {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)
		return ids
	default:
		return s.DocumentIDs()
	}
}

// derive builds a new snapshot sharing unchanged documents with the receiver.
// Replacements with a nil document are deletions.
func (s *Snapshot) derive(version int64, replacements map[string]*Document) *Snapshot {
	docs := make(map[string]*Document, len(s.docs)+len(replacements))
	for id, doc := range s.docs {
		docs[id] = doc
	}
	for id, doc := range replacements {
		if doc == nil {
			delete(docs, id)
			continue
		}
		docs[id] = doc
	}
	return NewSnapshot(s.Locator, version, docs)
}

// projectOf derives the project name for a document path: its top-level
// directory, or "." for root-level files.
func projectOf(id string) string {
	if i := strings.IndexByte(id, '/'); i > 0 {
		return id[:i]
	}
	return "."
}
