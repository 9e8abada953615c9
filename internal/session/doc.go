// Package session implements the session lifecycle: a Session owns exactly
// one live graph snapshot, one edit ledger, and one diagnostic cache, and
// moves through Created -> Active -> {Paused <-> Active} -> Disposed. The
// Registry creates, looks up, and disposes sessions under capacity and
// idle-timeout policy.
//
// # Serialization
//
// Within one session, ledger mutation, commit/rollback, refresh, and
// pause/resume are single-writer serialized behind the session lock.
// Diagnostic reads take the read side, so they run concurrently with each
// other but never overlap a commit on the same session. Unrelated sessions
// never contend.
//
// Operations on a disposed session fail with types.ErrSessionDisposed; the
// package performs no automatic retries.
package session
