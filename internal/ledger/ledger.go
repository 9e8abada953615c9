package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dlanger/refract-mcp/internal/engine"
	"github.com/dlanger/refract-mcp/pkg/types"
)

// Ledger stages per-document edits against one snapshot and commits or
// rolls them back atomically. The snapshot it holds is the pre-edit
// reference used for validation, previews, and diffing; staging never
// mutates it.
type Ledger struct {
	eng engine.Engine

	mu      sync.Mutex
	snap    *engine.Snapshot
	pending map[string][]types.StagedEdit
	nextSeq uint64
}

// New creates a ledger over the given base snapshot.
func New(eng engine.Engine, snap *engine.Snapshot) *Ledger {
	return &Ledger{
		eng:     eng,
		snap:    snap,
		pending: make(map[string][]types.StagedEdit),
		nextSeq: 1,
	}
}

// Snapshot returns the ledger's current base snapshot.
func (l *Ledger) Snapshot() *engine.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snap
}

// Version returns the base snapshot version edits must be staged against.
func (l *Ledger) Version() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snap.Version
}

// Dirty reports whether any edits are pending.
func (l *Ledger) Dirty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending) > 0
}

// Rebase points an empty ledger at a new base snapshot. Pending edits were
// staged in old-snapshot coordinates, so rebasing a dirty ledger is refused.
func (l *Ledger) Rebase(snap *engine.Snapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pending) > 0 {
		return types.ErrEditsPending
	}
	l.snap = snap
	return nil
}

// StageEdit stages edits for a single document and returns a preview of the
// resulting diagnostics. The authoritative snapshot is not touched.
func (l *Ledger) StageEdit(ctx context.Context, documentID string, edits []types.Edit, versionToken int64) (*types.Preview, error) {
	return l.StageBatch(ctx, []types.DocumentEdits{{DocumentID: documentID, Edits: edits}}, versionToken)
}

// StageBatch stages edits across multiple documents as one logical unit with
// a single combined preview. If any edit in the batch is invalid, nothing is
// staged.
func (l *Ledger) StageBatch(ctx context.Context, batch []types.DocumentEdits, versionToken int64) (*types.Preview, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if versionToken != l.snap.Version {
		return nil, fmt.Errorf("%w: token %d, snapshot at %d", types.ErrStaleEdit, versionToken, l.snap.Version)
	}

	// Validate the whole batch before touching ledger state.
	staged := make(map[string][]types.StagedEdit, len(batch))
	seq := l.nextSeq
	for _, de := range batch {
		doc, err := l.snap.Document(de.DocumentID)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", de.DocumentID, err)
		}
		for _, e := range de.Edits {
			if !e.Range.Within(doc.Len()) {
				return nil, fmt.Errorf("%w: %s %s in %d-byte document",
					types.ErrOutOfRange, de.DocumentID, e.Range, doc.Len())
			}
			for _, prior := range l.pending[de.DocumentID] {
				if e.Range.Overlaps(prior.Edit.Range) {
					return nil, fmt.Errorf("%w: %s %s overlaps staged %s (seq %d)",
						types.ErrOverlappingEdit, de.DocumentID, e.Range, prior.Edit.Range, prior.Seq)
				}
			}
			for _, prior := range staged[de.DocumentID] {
				if e.Range.Overlaps(prior.Edit.Range) {
					return nil, fmt.Errorf("%w: %s %s overlaps %s within batch",
						types.ErrOverlappingEdit, de.DocumentID, e.Range, prior.Edit.Range)
				}
			}
			staged[de.DocumentID] = append(staged[de.DocumentID], types.StagedEdit{
				DocumentID: de.DocumentID,
				Edit:       e,
				Seq:        seq,
			})
			seq++
		}
	}

	affected := make([]string, 0, len(staged))
	for id := range staged {
		affected = append(affected, id)
	}
	sort.Strings(affected)

	// Preview against an isolated copy: all pending edits for the affected
	// documents, including the ones being staged now.
	previewEdits := make(map[string][]types.Edit, len(affected))
	for _, id := range affected {
		previewEdits[id] = editsInOrder(append(append([]types.StagedEdit(nil), l.pending[id]...), staged[id]...))
	}
	preview, err := l.computePreview(ctx, affected, previewEdits)
	if err != nil {
		return nil, err
	}

	// Validation and preview succeeded; record the batch.
	for id, se := range staged {
		l.pending[id] = append(l.pending[id], se...)
	}
	l.nextSeq = seq
	return preview, nil
}

// ListPending returns a copy of all staged edits ordered by sequence number.
// The copy is stable against later staging.
func (l *Ledger) ListPending() []types.StagedEdit {
	l.mu.Lock()
	defer l.mu.Unlock()

	var all []types.StagedEdit
	for _, edits := range l.pending {
		all = append(all, edits...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Seq < all[j].Seq })
	return all
}

// Commit applies every pending edit in one atomic step. On success it
// returns the new snapshot plus a per-document diagnostic delta report and
// clears the ledger. On failure the base snapshot and the pending edits are
// untouched.
func (l *Ledger) Commit(ctx context.Context) (*engine.Snapshot, *types.CommitReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.pending) == 0 {
		return l.snap, &types.CommitReport{
			OldVersion: l.snap.Version,
			NewVersion: l.snap.Version,
		}, nil
	}

	docIDs := make([]string, 0, len(l.pending))
	edits := make(map[string][]types.Edit, len(l.pending))
	for id, staged := range l.pending {
		docIDs = append(docIDs, id)
		edits[id] = editsInOrder(staged)
	}
	sort.Strings(docIDs)

	before, err := l.countByDocument(ctx, l.snap, docIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("commit: pre-commit diagnostics: %w", err)
	}

	next, err := l.eng.ApplyEdits(ctx, l.snap, edits)
	if err != nil {
		return nil, nil, fmt.Errorf("commit: %w", err)
	}

	after, err := l.countByDocument(ctx, next, docIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("commit: post-commit diagnostics: %w", err)
	}

	report := &types.CommitReport{
		OldVersion: l.snap.Version,
		NewVersion: next.Version,
	}
	for _, id := range docIDs {
		report.Documents = append(report.Documents, types.DocumentDelta{
			DocumentID:   id,
			EditsApplied: len(edits[id]),
			Before:       before[id],
			After:        after[id],
		})
	}

	l.snap = next
	l.pending = make(map[string][]types.StagedEdit)
	return next, report, nil
}

// Rollback discards all pending edits. It always succeeds and leaves the
// base snapshot version unchanged.
func (l *Ledger) Rollback() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = make(map[string][]types.StagedEdit)
}

// computePreview applies the given edits to an isolated snapshot and
// recomputes diagnostics for the affected documents only, one goroutine per
// document. Results are slotted by index so the output order is stable.
func (l *Ledger) computePreview(ctx context.Context, affected []string, edits map[string][]types.Edit) (*types.Preview, error) {
	isolated, err := l.eng.ApplyEdits(ctx, l.snap, edits)
	if err != nil {
		return nil, err
	}

	perDoc := make([][]types.Diagnostic, len(affected))
	diffs := make([]string, len(affected))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range affected {
		g.Go(func() error {
			diags, err := l.eng.ComputeDiagnostics(gctx, isolated, types.DocumentScope(id))
			if err != nil {
				return fmt.Errorf("preview diagnostics for %s: %w", id, err)
			}
			perDoc[i] = diags

			oldDoc, err := l.snap.Document(id)
			if err != nil {
				return err
			}
			newDoc, err := isolated.Document(id)
			if err != nil {
				return err
			}
			diffs[i] = unifiedDiff(id, oldDoc.Text, newDoc.Text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	preview := &types.Preview{
		AffectedDocuments: affected,
		Diffs:             make(map[string]string, len(affected)),
	}
	for i, id := range affected {
		preview.Diagnostics = append(preview.Diagnostics, perDoc[i]...)
		preview.Diffs[id] = diffs[i]
	}
	preview.Counts = types.CountSeverities(preview.Diagnostics)
	return preview, nil
}

// countByDocument computes severity tallies for each document on a snapshot.
func (l *Ledger) countByDocument(ctx context.Context, snap *engine.Snapshot, docIDs []string) (map[string]types.SeverityCounts, error) {
	counts := make(map[string]types.SeverityCounts, len(docIDs))
	for _, id := range docIDs {
		diags, err := l.eng.ComputeDiagnostics(ctx, snap, types.DocumentScope(id))
		if err != nil {
			return nil, err
		}
		counts[id] = types.CountSeverities(diags)
	}
	return counts, nil
}

// editsInOrder strips staged edits to plain edits in ascending sequence order.
func editsInOrder(staged []types.StagedEdit) []types.Edit {
	ordered := make([]types.StagedEdit, len(staged))
	copy(ordered, staged)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	edits := make([]types.Edit, len(ordered))
	for i, se := range ordered {
		edits[i] = se.Edit
	}
	return edits
}
