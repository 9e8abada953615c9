package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/dlanger/refract-mcp/internal/engine"
	"github.com/dlanger/refract-mcp/internal/watch"
	"github.com/dlanger/refract-mcp/pkg/types"
)

const (
	// DefaultMaxSessions caps concurrently live sessions.
	DefaultMaxSessions = 8
	// DefaultIdleTimeout disposes sessions with no activity past this long.
	DefaultIdleTimeout = 30 * time.Minute
	// DefaultSweepInterval is how often the background sweeper runs.
	DefaultSweepInterval = time.Minute
)

// RegistryConfig holds capacity and timeout policy for the registry.
type RegistryConfig struct {
	MaxSessions   int
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

// withDefaults fills zero fields.
func (c RegistryConfig) withDefaults() RegistryConfig {
	if c.MaxSessions <= 0 {
		c.MaxSessions = DefaultMaxSessions
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	return c
}

// Registry creates, looks up, enumerates, and disposes sessions. Create and
// end are serialized per session ID; unrelated lookups proceed concurrently
// on the read lock.
type Registry struct {
	eng     engine.Engine
	factory watch.Factory
	cfg     RegistryConfig

	mu       sync.RWMutex
	sessions map[string]*Session

	sweeps   singleflight.Group
	stop     chan struct{}
	stopOnce sync.Once
	started  sync.Once
}

// NewRegistry creates a registry over the given engine. The watch factory
// supplies change recorders for Pause; pass watch.NewFSRecorder in
// production.
func NewRegistry(eng engine.Engine, factory watch.Factory, cfg RegistryConfig) *Registry {
	return &Registry{
		eng:      eng,
		factory:  factory,
		cfg:      cfg.withDefaults(),
		sessions: make(map[string]*Session),
		stop:     make(chan struct{}),
	}
}

// CreateSession loads the codebase at locator and allocates an active
// session for it. Fails with ErrEngineLoad if the locator cannot be
// resolved and ErrCapacityExceeded at the session limit; capacity is
// enforced at creation and never evicts an existing session.
func (r *Registry) CreateSession(ctx context.Context, locator string) (*Session, error) {
	r.mu.RLock()
	n := len(r.sessions)
	r.mu.RUnlock()
	if n >= r.cfg.MaxSessions {
		return nil, fmt.Errorf("%w: limit %d", types.ErrCapacityExceeded, r.cfg.MaxSessions)
	}

	snap, err := r.eng.Load(ctx, locator)
	if err != nil {
		return nil, err
	}

	s := newSession(uuid.NewString(), r.eng, snap, r.factory)

	r.mu.Lock()
	// Re-check under the write lock; a concurrent create may have landed.
	if len(r.sessions) >= r.cfg.MaxSessions {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: limit %d", types.ErrCapacityExceeded, r.cfg.MaxSessions)
	}
	r.sessions[s.ID] = s
	r.mu.Unlock()

	s.activate()
	slog.Info("session created", "session", s.ID, "locator", locator, "documents", snap.Len())
	return s, nil
}

// GetSession looks up a live session and records the access for the idle
// sweeper. Absent or disposed sessions fail with ErrSessionNotFound.
func (r *Registry) GetSession(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok || s.State() == StateDisposed {
		return nil, fmt.Errorf("%w: %s", types.ErrSessionNotFound, id)
	}
	s.touch()
	return s, nil
}

// EndSession disposes a session and removes it from the registry. Ending an
// already-ended or unknown session succeeds as a no-op.
func (r *Registry) EndSession(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if ok {
		s.Dispose()
		slog.Info("session ended", "session", id)
	}
	return nil
}

// List returns metadata for every live session, ordered by creation time.
func (r *Registry) List() []Info {
	r.mu.RLock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()

	infos := make([]Info, 0, len(all))
	for _, s := range all {
		infos = append(infos, s.Describe())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.Before(infos[j].CreatedAt) })
	return infos
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep disposes sessions idle past the configured timeout. Concurrent
// callers share a single flight; the sweep only takes the write lock for
// the sessions it actually removes, so unrelated lookups are not blocked.
// Returns the number of sessions disposed.
func (r *Registry) Sweep() int {
	n, _, _ := r.sweeps.Do("sweep", func() (interface{}, error) {
		cutoff := time.Now().Add(-r.cfg.IdleTimeout)

		r.mu.RLock()
		var expired []string
		for id, s := range r.sessions {
			if s.idleSince().Before(cutoff) {
				expired = append(expired, id)
			}
		}
		r.mu.RUnlock()

		disposed := 0
		for _, id := range expired {
			r.mu.Lock()
			s, ok := r.sessions[id]
			// Re-check idleness; the session may have been touched since.
			if ok && s.idleSince().Before(cutoff) {
				delete(r.sessions, id)
			} else {
				ok = false
			}
			r.mu.Unlock()

			if ok {
				s.Dispose()
				disposed++
				slog.Info("session swept", "session", id, "idle_timeout", r.cfg.IdleTimeout)
			}
		}
		return disposed, nil
	})
	return n.(int)
}

// Start launches the periodic background sweeper. Safe to call once;
// subsequent calls are no-ops.
func (r *Registry) Start() {
	r.started.Do(func() {
		go func() {
			ticker := time.NewTicker(r.cfg.SweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-r.stop:
					return
				case <-ticker.C:
					r.Sweep()
				}
			}
		}()
	})
}

// Close stops the sweeper and disposes every live session.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stop) })

	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for id, s := range all {
		s.Dispose()
		slog.Debug("session disposed on shutdown", "session", id)
	}
}
