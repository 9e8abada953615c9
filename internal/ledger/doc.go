// Package ledger implements the staged-edit transaction engine. Edits are
// recorded against one immutable snapshot, previewed on isolated copies, and
// committed atomically: either every pending edit applies and a new snapshot
// version is produced, or nothing changes.
//
// # Staging Rules
//
//   - An edit's version token must match the current snapshot version
//     (optimistic concurrency); stale tokens fail with ErrStaleEdit.
//   - Ranges must fall inside the target document (ErrOutOfRange).
//   - Ranges may not overlap an already-staged edit on the same document;
//     the first-staged edit wins and the newcomer fails (ErrOverlappingEdit).
//   - Each staging call is all-or-nothing: one invalid edit rejects the
//     whole call and the ledger is left exactly as it was.
//
// Zero-length ranges are pure insertions and are permitted.
package ledger
