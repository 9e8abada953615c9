package types

import "fmt"

// Range identifies a half-open byte span [Start, End) within a document.
// A zero-length range (Start == End) is a pure insertion point.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of bytes covered by the range.
func (r Range) Len() int {
	return r.End - r.Start
}

// Valid reports whether the range is well-formed (non-negative, ordered).
func (r Range) Valid() bool {
	return r.Start >= 0 && r.End >= r.Start
}

// Overlaps reports whether two ranges share at least one byte.
// Pure insertions at the same offset do not overlap; an insertion strictly
// inside another range does.
func (r Range) Overlaps(other Range) bool {
	if r.Len() == 0 && other.Len() == 0 {
		return false
	}
	if r.Len() == 0 {
		return r.Start > other.Start && r.Start < other.End
	}
	if other.Len() == 0 {
		return other.Start > r.Start && other.Start < r.End
	}
	return r.Start < other.End && other.Start < r.End
}

// Within reports whether the range fits inside a document of the given size.
func (r Range) Within(docLen int) bool {
	return r.Valid() && r.End <= docLen
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// Edit is a single text replacement: the bytes in Range are replaced by
// NewText. With an empty Range it is an insertion; with empty NewText a
// deletion.
type Edit struct {
	Range   Range  `json:"range"`
	NewText string `json:"new_text"`
}

// StagedEdit is an Edit recorded in the ledger, bound to a document and
// stamped with a ledger-wide monotonically increasing sequence number.
type StagedEdit struct {
	DocumentID string `json:"document_id"`
	Edit       Edit   `json:"edit"`
	Seq        uint64 `json:"seq"`
}

// DocumentEdits groups the edits of one StageBatch call for a single document.
type DocumentEdits struct {
	DocumentID string `json:"document_id"`
	Edits      []Edit `json:"edits"`
}
