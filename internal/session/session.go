package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dlanger/refract-mcp/internal/diagcache"
	"github.com/dlanger/refract-mcp/internal/engine"
	"github.com/dlanger/refract-mcp/internal/ledger"
	"github.com/dlanger/refract-mcp/internal/watch"
	"github.com/dlanger/refract-mcp/pkg/types"
)

// State is a session lifecycle state.
type State string

const (
	StateCreated  State = "created"
	StateActive   State = "active"
	StatePaused   State = "paused"
	StateDisposed State = "disposed"
)

// Session is a long-lived handle over one loaded codebase: its snapshot,
// its pending-edit ledger, and its diagnostic cache.
type Session struct {
	ID      string
	Locator string

	eng             engine.Engine
	recorderFactory watch.Factory

	mu        sync.RWMutex
	state     State
	snap      *engine.Snapshot
	ledger    *ledger.Ledger
	cache     *diagcache.Cache
	recorder  watch.Recorder
	createdAt time.Time
	lastUsed  time.Time
}

// Info is a read-only snapshot of session metadata.
type Info struct {
	ID           string    `json:"id"`
	Locator      string    `json:"locator"`
	State        State     `json:"state"`
	Version      int64     `json:"version"`
	PendingEdits int       `json:"pending_edits"`
	CreatedAt    time.Time `json:"created_at"`
	LastUsed     time.Time `json:"last_used"`
}

// newSession builds a session in the Created state over an initial snapshot.
func newSession(id string, eng engine.Engine, snap *engine.Snapshot, factory watch.Factory) *Session {
	now := time.Now()
	return &Session{
		ID:              id,
		Locator:         snap.Locator,
		eng:             eng,
		recorderFactory: factory,
		state:           StateCreated,
		snap:            snap,
		ledger:          ledger.New(eng, snap),
		cache:           diagcache.New(),
		createdAt:       now,
		lastUsed:        now,
	}
}

// activate moves Created -> Active. The registry calls this once before
// handing the session out.
func (s *Session) activate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCreated {
		s.state = StateActive
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Version returns the current snapshot version.
func (s *Session) Version() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Version
}

// Snapshot returns the session's current snapshot.
func (s *Session) Snapshot() *engine.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Describe returns current session metadata.
func (s *Session) Describe() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{
		ID:           s.ID,
		Locator:      s.Locator,
		State:        s.state,
		Version:      s.snap.Version,
		PendingEdits: len(s.ledger.ListPending()),
		CreatedAt:    s.createdAt,
		LastUsed:     s.lastUsed,
	}
}

// touch records activity for the idle sweeper.
func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

// idleSince returns the last activity time.
func (s *Session) idleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUsed
}

// StageEdit stages edits for one document. Active state only.
func (s *Session) StageEdit(ctx context.Context, documentID string, edits []types.Edit, versionToken int64) (*types.Preview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireActive(); err != nil {
		return nil, err
	}
	s.lastUsed = time.Now()
	return s.ledger.StageEdit(ctx, documentID, edits, versionToken)
}

// StageBatch stages edits across documents as one preview unit. Active only.
func (s *Session) StageBatch(ctx context.Context, batch []types.DocumentEdits, versionToken int64) (*types.Preview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireActive(); err != nil {
		return nil, err
	}
	s.lastUsed = time.Now()
	return s.ledger.StageBatch(ctx, batch, versionToken)
}

// ListPending returns the staged edits in sequence order. Valid in any
// non-disposed state.
func (s *Session) ListPending() ([]types.StagedEdit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == StateDisposed {
		return nil, types.ErrSessionDisposed
	}
	return s.ledger.ListPending(), nil
}

// Commit atomically applies all staged edits, replacing the snapshot and
// invalidating stale diagnostics. Active state only.
func (s *Session) Commit(ctx context.Context) (*types.CommitReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireActive(); err != nil {
		return nil, err
	}
	s.lastUsed = time.Now()

	next, report, err := s.ledger.Commit(ctx)
	if err != nil {
		return nil, err
	}
	s.snap = next
	s.cache.Invalidate(next.Version)
	return report, nil
}

// Rollback discards all staged edits. Active state only.
func (s *Session) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireActive(); err != nil {
		return err
	}
	s.lastUsed = time.Now()
	s.ledger.Rollback()
	return nil
}

// Refresh reloads the codebase from source, replacing the snapshot. It is
// all-or-nothing: a load failure leaves the prior snapshot intact. Staged
// edits block a refresh; commit or roll back first.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireActive(); err != nil {
		return err
	}
	if s.ledger.Dirty() {
		return types.ErrEditsPending
	}
	s.lastUsed = time.Now()

	fresh, err := s.eng.Refresh(ctx, s.snap)
	if err != nil {
		return err
	}
	return s.install(fresh)
}

// Pause freezes mutation and starts recording externally-observed changes.
// Active -> Paused. Staged edits block a pause: Resume re-syncs the snapshot,
// which would invalidate the coordinates they were staged against.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireActive(); err != nil {
		return err
	}
	if s.ledger.Dirty() {
		return types.ErrEditsPending
	}
	s.lastUsed = time.Now()

	recorder, err := s.recorderFactory(s.Locator)
	if err != nil {
		return fmt.Errorf("start change recorder: %w", err)
	}
	s.recorder = recorder
	s.state = StatePaused
	return nil
}

// Resume applies an incremental re-sync from the recorded changelist and
// returns the changed document IDs. If the re-sync fails it falls back to a
// full refresh (and then reports every document as potentially changed).
// Paused -> Active.
func (s *Session) Resume(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisposed {
		return nil, types.ErrSessionDisposed
	}
	if s.state != StatePaused {
		return nil, types.ErrSessionNotPaused
	}
	s.lastUsed = time.Now()

	changes := s.recorder.Changes()
	if err := s.recorder.Close(); err != nil {
		slog.Warn("closing change recorder", "session", s.ID, "error", err)
	}
	s.recorder = nil
	s.state = StateActive

	if len(changes) == 0 {
		return nil, nil
	}

	next, changed, err := s.eng.Resync(ctx, s.snap, changes)
	if err != nil {
		slog.Warn("incremental resync failed, falling back to full refresh",
			"session", s.ID, "error", err)
		fresh, rerr := s.eng.Refresh(ctx, s.snap)
		if rerr != nil {
			return nil, fmt.Errorf("resume: %w", rerr)
		}
		if ierr := s.install(fresh); ierr != nil {
			return nil, ierr
		}
		return fresh.DocumentIDs(), nil
	}
	if err := s.install(next); err != nil {
		return nil, err
	}
	return changed, nil
}

// Diagnostics computes (or serves cached) diagnostics for a scope at the
// current snapshot version. Reads run concurrently with each other but are
// excluded from overlapping a commit on this session.
func (s *Session) Diagnostics(ctx context.Context, scope types.Scope) (*diagcache.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == StateDisposed {
		return nil, types.ErrSessionDisposed
	}

	snap := s.snap
	return s.cache.GetOrCompute(ctx, scope, snap.Version, func(ctx context.Context) ([]types.Diagnostic, error) {
		return s.eng.ComputeDiagnostics(ctx, snap, scope)
	})
}

// Dispose releases the session's resources. Idempotent; every later
// operation fails with ErrSessionDisposed.
func (s *Session) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisposed {
		return
	}
	if s.recorder != nil {
		_ = s.recorder.Close()
		s.recorder = nil
	}
	s.ledger.Rollback()
	s.cache.Invalidate(s.snap.Version + 1)
	s.state = StateDisposed
}

// install replaces the snapshot after a refresh or resume, pointing the
// ledger at it and dropping stale diagnostics. Caller holds the write lock.
func (s *Session) install(next *engine.Snapshot) error {
	if err := s.ledger.Rebase(next); err != nil {
		return err
	}
	s.snap = next
	s.cache.Invalidate(next.Version)
	return nil
}

// requireActive checks the state for mutating operations. Caller holds a lock.
func (s *Session) requireActive() error {
	switch s.state {
	case StateDisposed:
		return types.ErrSessionDisposed
	case StateActive:
		return nil
	default:
		return fmt.Errorf("%w: state %s", types.ErrSessionNotActive, s.state)
	}
}
