package types

// Preview is the result of staging edits: diagnostics recomputed against an
// isolated copy of the snapshot with the pending edits applied, plus rendered
// diffs per affected document. The authoritative snapshot is untouched.
type Preview struct {
	AffectedDocuments []string          `json:"affected_documents"`
	Diagnostics       []Diagnostic      `json:"diagnostics"`
	Counts            SeverityCounts    `json:"counts"`
	Diffs             map[string]string `json:"diffs,omitempty"`
}

// DocumentDelta reports the diagnostic shift for one document across a commit.
type DocumentDelta struct {
	DocumentID   string         `json:"document_id"`
	EditsApplied int            `json:"edits_applied"`
	Before       SeverityCounts `json:"before"`
	After        SeverityCounts `json:"after"`
}

// CommitReport summarizes a successful atomic commit of staged edits.
type CommitReport struct {
	OldVersion int64           `json:"old_version"`
	NewVersion int64           `json:"new_version"`
	Documents  []DocumentDelta `json:"documents"`
}
