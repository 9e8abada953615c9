package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dlanger/refract-mcp/pkg/types"
)

const (
	// DefaultMaxFileSize bounds the size of a document the text engine loads.
	DefaultMaxFileSize = 1 << 20 // 1MB

	// maxLineLength is the threshold for the long-line lint.
	maxLineLength = 120
)

// TextEngine is the reference Engine implementation. It loads a directory
// tree of text documents and computes lightweight textual lints. It has no
// semantic understanding; it exists to exercise the session, ledger, cache,
// and plugin machinery end to end.
type TextEngine struct {
	maxFileSize int
	extensions  map[string]struct{} // nil means all non-binary files
}

// TextEngineOption configures a TextEngine.
type TextEngineOption func(*TextEngine)

// WithMaxFileSize overrides the per-document size limit.
func WithMaxFileSize(n int) TextEngineOption {
	return func(e *TextEngine) {
		if n > 0 {
			e.maxFileSize = n
		}
	}
}

// WithExtensions restricts loading to the given file extensions (".go", ".md").
func WithExtensions(exts ...string) TextEngineOption {
	return func(e *TextEngine) {
		e.extensions = make(map[string]struct{}, len(exts))
		for _, ext := range exts {
			e.extensions[ext] = struct{}{}
		}
	}
}

// NewTextEngine creates a text engine with default limits.
func NewTextEngine(opts ...TextEngineOption) *TextEngine {
	e := &TextEngine{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load walks the locator directory and builds the initial snapshot at
// version 1. Hidden directories and oversized or binary files are skipped.
func (e *TextEngine) Load(ctx context.Context, locator string) (*Snapshot, error) {
	info, err := os.Stat(locator)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrEngineLoad, locator, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s: not a directory", types.ErrEngineLoad, locator)
	}

	docs := make(map[string]*Document)
	err = filepath.Walk(locator, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if fi.IsDir() {
			if strings.HasPrefix(fi.Name(), ".") && path != locator {
				return filepath.SkipDir
			}
			return nil
		}
		doc, ok := e.readDocument(locator, path, fi)
		if ok {
			docs[doc.ID] = doc
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrEngineLoad, locator, err)
	}

	return NewSnapshot(locator, 1, docs), nil
}

// Refresh reloads the whole tree behind a snapshot, keeping the version
// lineage monotonic.
func (e *TextEngine) Refresh(ctx context.Context, snap *Snapshot) (*Snapshot, error) {
	fresh, err := e.Load(ctx, snap.Locator)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrRefresh, err)
	}
	fresh.Version = snap.Version + 1
	return fresh, nil
}

// Resync re-reads only the given changed paths (relative to the locator).
// Missing files become deletions. Returns the new snapshot and the document
// IDs that actually changed content.
func (e *TextEngine) Resync(ctx context.Context, snap *Snapshot, changed []string) (*Snapshot, []string, error) {
	replacements := make(map[string]*Document)
	var changedIDs []string

	for _, rel := range changed {
		if cerr := ctx.Err(); cerr != nil {
			return nil, nil, cerr
		}
		id := filepath.ToSlash(rel)
		abs := filepath.Join(snap.Locator, rel)
		fi, err := os.Stat(abs)
		if os.IsNotExist(err) {
			if snap.Has(id) {
				replacements[id] = nil
				changedIDs = append(changedIDs, id)
			}
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("resync %s: %w", rel, err)
		}
		if fi.IsDir() {
			continue
		}
		doc, ok := e.readDocument(snap.Locator, abs, fi)
		if !ok {
			continue
		}
		if prev, perr := snap.Document(id); perr == nil && prev.Text == doc.Text {
			continue
		}
		replacements[id] = doc
		changedIDs = append(changedIDs, id)
	}

	if len(replacements) == 0 {
		return snap, nil, nil
	}
	sort.Strings(changedIDs)
	return snap.derive(snap.Version+1, replacements), changedIDs, nil
}

// ComputeDiagnostics runs the textual lints over the documents in scope.
func (e *TextEngine) ComputeDiagnostics(ctx context.Context, snap *Snapshot, scope types.Scope) ([]types.Diagnostic, error) {
	var diags []types.Diagnostic
	for _, id := range snap.Select(scope) {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		doc, err := snap.Document(id)
		if err != nil {
			return nil, err
		}
		diags = append(diags, lintDocument(doc)...)
	}
	return diags, nil
}

// ApplyEdits applies per-document edits and returns a new snapshot with the
// version advanced by one. Any invalid document or range fails the whole
// call; the input snapshot stays authoritative.
func (e *TextEngine) ApplyEdits(ctx context.Context, snap *Snapshot, edits map[string][]types.Edit) (*Snapshot, error) {
	replacements := make(map[string]*Document, len(edits))
	for id, docEdits := range edits {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		doc, err := snap.Document(id)
		if err != nil {
			return nil, fmt.Errorf("apply edits to %s: %w", id, err)
		}
		text, err := ApplyToText(doc.Text, docEdits)
		if err != nil {
			return nil, fmt.Errorf("apply edits to %s: %w", id, err)
		}
		replacements[id] = &Document{ID: id, Project: doc.Project, Text: text}
	}
	return snap.derive(snap.Version+1, replacements), nil
}

// ApplyToText applies edits to a single text, validating bounds and overlap.
// Edits are applied back-to-front so earlier offsets stay valid.
func ApplyToText(text string, edits []types.Edit) (string, error) {
	for i, e := range edits {
		if !e.Range.Within(len(text)) {
			return "", fmt.Errorf("%w: %s in document of %d bytes", types.ErrOutOfRange, e.Range, len(text))
		}
		for j := 0; j < i; j++ {
			if e.Range.Overlaps(edits[j].Range) {
				return "", fmt.Errorf("%w: %s and %s", types.ErrOverlappingEdit, edits[j].Range, e.Range)
			}
		}
	}

	// Equal Starts: apply the spanning edit before a zero-length insertion at
	// the same offset, so the inserted text ends up ahead of the replacement
	// regardless of input order.
	ordered := make([]types.Edit, len(edits))
	copy(ordered, edits)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Range.Start != ordered[j].Range.Start {
			return ordered[i].Range.Start > ordered[j].Range.Start
		}
		return ordered[i].Range.End > ordered[j].Range.End
	})

	var b strings.Builder
	result := text
	for _, e := range ordered {
		b.Reset()
		b.Grow(len(result) - e.Range.Len() + len(e.NewText))
		b.WriteString(result[:e.Range.Start])
		b.WriteString(e.NewText)
		b.WriteString(result[e.Range.End:])
		result = b.String()
	}
	return result, nil
}

// readDocument loads one file as a document, skipping binary and oversized
// content. The second return is false when the file should be skipped.
func (e *TextEngine) readDocument(root, path string, fi os.FileInfo) (*Document, bool) {
	if fi.Size() > int64(e.maxFileSize) {
		return nil, false
	}
	if e.extensions != nil {
		if _, ok := e.extensions[filepath.Ext(path)]; !ok {
			return nil, false
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	if isBinary(data) {
		return nil, false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return nil, false
	}
	id := filepath.ToSlash(rel)
	return &Document{ID: id, Project: projectOf(id), Text: string(data)}, true
}

// isBinary uses a NUL-byte heuristic over the first 8KB.
func isBinary(data []byte) bool {
	probe := data
	if len(probe) > 8192 {
		probe = probe[:8192]
	}
	for _, b := range probe {
		if b == 0 {
			return true
		}
	}
	return false
}

// lintDocument computes the reference lints for one document.
func lintDocument(doc *Document) []types.Diagnostic {
	var diags []types.Diagnostic
	if len(doc.Text) == 0 {
		return []types.Diagnostic{{
			DocumentID: doc.ID,
			Severity:   types.SeverityHint,
			Code:       "empty-document",
			Message:    "document is empty",
		}}
	}

	offset := 0
	for _, line := range strings.Split(doc.Text, "\n") {
		lineRange := types.Range{Start: offset, End: offset + len(line)}
		if len(line) > maxLineLength {
			diags = append(diags, types.Diagnostic{
				DocumentID: doc.ID,
				Range:      lineRange,
				Severity:   types.SeverityInfo,
				Code:       "long-line",
				Message:    fmt.Sprintf("line exceeds %d characters", maxLineLength),
			})
		}
		if trimmed := strings.TrimRight(line, " \t"); len(trimmed) != len(line) {
			diags = append(diags, types.Diagnostic{
				DocumentID: doc.ID,
				Range:      types.Range{Start: offset + len(trimmed), End: offset + len(line)},
				Severity:   types.SeverityWarning,
				Code:       "trailing-whitespace",
				Message:    "line has trailing whitespace",
			})
		}
		offset += len(line) + 1
	}
	return diags
}
