package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlanger/refract-mcp/internal/engine"
	"github.com/dlanger/refract-mcp/internal/watch"
	"github.com/dlanger/refract-mcp/pkg/types"
)

func fakeFactory(string) (watch.Recorder, error) {
	return &fakeRecorder{}, nil
}

func newTestRegistry(t *testing.T, cfg RegistryConfig) *Registry {
	t.Helper()
	r := NewRegistry(engine.NewTextEngine(), fakeFactory, cfg)
	t.Cleanup(r.Close)
	return r
}

func seedRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "main.txt", "hello\n")
	return root
}

func TestRegistry_CreateSession(t *testing.T) {
	ctx := context.Background()

	t.Run("creates active sessions with unique ids", func(t *testing.T) {
		r := newTestRegistry(t, RegistryConfig{})
		a, err := r.CreateSession(ctx, seedRoot(t))
		require.NoError(t, err)
		b, err := r.CreateSession(ctx, seedRoot(t))
		require.NoError(t, err)

		assert.Equal(t, StateActive, a.State())
		assert.NotEqual(t, a.ID, b.ID)
		assert.Equal(t, 2, r.Len())
	})

	t.Run("bad locator fails without consuming capacity", func(t *testing.T) {
		r := newTestRegistry(t, RegistryConfig{MaxSessions: 1})
		_, err := r.CreateSession(ctx, "/nonexistent/path")
		assert.ErrorIs(t, err, types.ErrEngineLoad)
		assert.Equal(t, 0, r.Len())

		_, err = r.CreateSession(ctx, seedRoot(t))
		assert.NoError(t, err)
	})

	t.Run("capacity never evicts", func(t *testing.T) {
		r := newTestRegistry(t, RegistryConfig{MaxSessions: 2})
		a, err := r.CreateSession(ctx, seedRoot(t))
		require.NoError(t, err)
		_, err = r.CreateSession(ctx, seedRoot(t))
		require.NoError(t, err)

		_, err = r.CreateSession(ctx, seedRoot(t))
		assert.ErrorIs(t, err, types.ErrCapacityExceeded)
		assert.Equal(t, 2, r.Len())
		assert.Equal(t, StateActive, a.State())

		// Ending one frees a slot.
		require.NoError(t, r.EndSession(a.ID))
		_, err = r.CreateSession(ctx, seedRoot(t))
		assert.NoError(t, err)
	})
}

func TestRegistry_GetSession(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, RegistryConfig{})
	s, err := r.CreateSession(ctx, seedRoot(t))
	require.NoError(t, err)

	t.Run("returns live sessions", func(t *testing.T) {
		got, err := r.GetSession(s.ID)
		require.NoError(t, err)
		assert.Same(t, s, got)
	})

	t.Run("unknown id fails", func(t *testing.T) {
		_, err := r.GetSession("no-such-session")
		assert.ErrorIs(t, err, types.ErrSessionNotFound)
	})

	t.Run("ended session is gone", func(t *testing.T) {
		require.NoError(t, r.EndSession(s.ID))
		_, err := r.GetSession(s.ID)
		assert.ErrorIs(t, err, types.ErrSessionNotFound)
		assert.Equal(t, StateDisposed, s.State())
	})

	t.Run("ending again is a no-op", func(t *testing.T) {
		assert.NoError(t, r.EndSession(s.ID))
	})
}

func TestRegistry_List(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, RegistryConfig{})

	var ids []string
	for i := 0; i < 3; i++ {
		s, err := r.CreateSession(ctx, seedRoot(t))
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}

	infos := r.List()
	require.Len(t, infos, 3)
	for i := 1; i < len(infos); i++ {
		assert.False(t, infos[i].CreatedAt.Before(infos[i-1].CreatedAt),
			fmt.Sprintf("list out of creation order at %d", i))
	}
	listed := make([]string, 0, len(infos))
	for _, info := range infos {
		listed = append(listed, info.ID)
	}
	assert.ElementsMatch(t, ids, listed)
}

func TestRegistry_Sweep(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, RegistryConfig{IdleTimeout: 50 * time.Millisecond})

	idle, err := r.CreateSession(ctx, seedRoot(t))
	require.NoError(t, err)
	busy, err := r.CreateSession(ctx, seedRoot(t))
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)
	busy.touch()

	assert.Equal(t, 1, r.Sweep())
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, StateDisposed, idle.State())
	assert.Equal(t, StateActive, busy.State())

	_, err = r.GetSession(idle.ID)
	assert.ErrorIs(t, err, types.ErrSessionNotFound)

	t.Run("nothing left to sweep", func(t *testing.T) {
		assert.Equal(t, 0, r.Sweep())
	})
}

func TestRegistry_Close(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(engine.NewTextEngine(), fakeFactory, RegistryConfig{})

	s, err := r.CreateSession(ctx, seedRoot(t))
	require.NoError(t, err)

	r.Close()
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, StateDisposed, s.State())

	// Idempotent.
	r.Close()
}
