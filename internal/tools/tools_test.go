package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlanger/refract-mcp/internal/engine"
	"github.com/dlanger/refract-mcp/internal/plugin"
	"github.com/dlanger/refract-mcp/internal/session"
	"github.com/dlanger/refract-mcp/internal/watch"
	"github.com/dlanger/refract-mcp/pkg/types"
)

type nopRecorder struct{}

func (nopRecorder) Changes() []string { return nil }
func (nopRecorder) Close() error      { return nil }

// newStack wires the full dispatch chain: session registry, plugin registry,
// and the built-in tool plugins.
func newStack(t *testing.T) (*plugin.Registry, *session.Registry) {
	t.Helper()

	sessions := session.NewRegistry(engine.NewTextEngine(),
		func(string) (watch.Recorder, error) { return nopRecorder{}, nil },
		session.RegistryConfig{})
	t.Cleanup(sessions.Close)

	plugins := plugin.NewRegistry()
	plugins.Register(SessionPlugin(sessions, plugin.Settings{Enabled: true, Priority: 100}))
	plugins.Register(EditPlugin(sessions, plugin.Settings{Enabled: true, Priority: 90}))
	plugins.Register(AnalysisPlugin(sessions, plugin.Settings{Enabled: true, Priority: 80}))

	load, err := plugins.DiscoverAndLoad()
	require.NoError(t, err)
	require.Empty(t, load.Failures)
	initReport, err := plugins.InitializeAll(context.Background())
	require.NoError(t, err)
	require.Empty(t, initReport.Failures)
	return plugins, sessions
}

func seedCodebase(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.txt"), []byte("hello world\n"), 0o644))
	return root
}

func dispatchMap(t *testing.T, r *plugin.Registry, tool string, args map[string]any) map[string]any {
	t.Helper()
	res, err := r.Dispatch(context.Background(), tool, args)
	require.NoError(t, err, "dispatch %s", tool)
	m, ok := res.(map[string]any)
	require.True(t, ok, "result of %s is %T", tool, res)
	return m
}

func TestToolChain_EditTransaction(t *testing.T) {
	plugins, _ := newStack(t)
	root := seedCodebase(t)

	created := dispatchMap(t, plugins, "create_session", map[string]any{"locator": root})
	sessionID, _ := created["session_id"].(string)
	require.NotEmpty(t, sessionID)
	version := created["version"].(int64)

	// Stage a replacement over "world" and inspect the isolated preview.
	res, err := plugins.Dispatch(context.Background(), "stage_edit", map[string]any{
		"session_id":  sessionID,
		"document_id": "main.txt",
		"version":     version,
		"edits": []any{
			map[string]any{"start": 6, "end": 11, "new_text": "refract"},
		},
	})
	require.NoError(t, err)
	preview, ok := res.(*types.Preview)
	require.True(t, ok)
	require.Len(t, preview.AffectedDocuments, 1)
	assert.Contains(t, preview.Diffs["main.txt"], "+hello refract")

	res, err = plugins.Dispatch(context.Background(), "session_status", map[string]any{"session_id": sessionID})
	require.NoError(t, err)
	info, ok := res.(session.Info)
	require.True(t, ok)
	assert.Equal(t, 1, info.PendingEdits)
	assert.Equal(t, session.StateActive, info.State)

	pending := dispatchMap(t, plugins, "list_pending", map[string]any{"session_id": sessionID})
	staged, ok := pending["pending"].([]types.StagedEdit)
	require.True(t, ok)
	require.Len(t, staged, 1)
	assert.Equal(t, "main.txt", staged[0].DocumentID)

	// A stale version token is refused.
	_, err = plugins.Dispatch(context.Background(), "stage_edit", map[string]any{
		"session_id":  sessionID,
		"document_id": "main.txt",
		"version":     version + 1,
		"edits":       []any{map[string]any{"start": 0, "end": 1, "new_text": "H"}},
	})
	assert.ErrorIs(t, err, types.ErrStaleEdit)

	// Commit produces a new version and drains the ledger.
	res, err = plugins.Dispatch(context.Background(), "commit_edits", map[string]any{"session_id": sessionID})
	require.NoError(t, err)
	report, ok := res.(*types.CommitReport)
	require.True(t, ok)
	assert.Equal(t, version, report.OldVersion)
	assert.Greater(t, report.NewVersion, report.OldVersion)

	pending = dispatchMap(t, plugins, "list_pending", map[string]any{"session_id": sessionID})
	assert.Empty(t, pending["pending"])

	// End of life: the session is gone afterwards.
	ended := dispatchMap(t, plugins, "end_session", map[string]any{"session_id": sessionID})
	assert.Equal(t, true, ended["ended"])

	_, err = plugins.Dispatch(context.Background(), "session_status", map[string]any{"session_id": sessionID})
	assert.ErrorIs(t, err, types.ErrSessionNotFound)
}

func TestToolChain_Rollback(t *testing.T) {
	plugins, sessions := newStack(t)
	root := seedCodebase(t)

	created := dispatchMap(t, plugins, "create_session", map[string]any{"locator": root})
	sessionID := created["session_id"].(string)
	version := created["version"].(int64)

	_, err := plugins.Dispatch(context.Background(), "stage_edit", map[string]any{
		"session_id":  sessionID,
		"document_id": "main.txt",
		"version":     version,
		"edits":       []any{map[string]any{"start": 0, "end": 5, "new_text": "howdy"}},
	})
	require.NoError(t, err)

	rolled := dispatchMap(t, plugins, "rollback_edits", map[string]any{"session_id": sessionID})
	assert.Equal(t, true, rolled["rolled_back"])

	s, err := sessions.GetSession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, version, s.Version())
	doc, err := s.Snapshot().Document("main.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", doc.Text)
}

func TestToolChain_Diagnostics(t *testing.T) {
	plugins, _ := newStack(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "dirty.txt"), []byte("trailing  \n"), 0o644))

	created := dispatchMap(t, plugins, "create_session", map[string]any{"locator": root})
	sessionID := created["session_id"].(string)

	t.Run("document scope", func(t *testing.T) {
		res := dispatchMap(t, plugins, "get_diagnostics", map[string]any{
			"session_id": sessionID,
			"scope":      "document",
			"target":     "dirty.txt",
		})
		counts, ok := res["counts"].(types.SeverityCounts)
		require.True(t, ok)
		assert.Equal(t, 1, counts.Warnings)
	})

	t.Run("default scope is session", func(t *testing.T) {
		res := dispatchMap(t, plugins, "get_diagnostics", map[string]any{"session_id": sessionID})
		scope, ok := res["scope"].(types.Scope)
		require.True(t, ok)
		assert.Equal(t, types.ScopeSession, scope.Kind)
	})

	t.Run("project scope requires a target", func(t *testing.T) {
		_, err := plugins.Dispatch(context.Background(), "get_diagnostics", map[string]any{
			"session_id": sessionID,
			"scope":      "project",
		})
		assert.Error(t, err)
	})

	t.Run("unknown scope kind", func(t *testing.T) {
		_, err := plugins.Dispatch(context.Background(), "get_diagnostics", map[string]any{
			"session_id": sessionID,
			"scope":      "galaxy",
		})
		assert.Error(t, err)
	})
}

func TestToolChain_PauseResume(t *testing.T) {
	plugins, _ := newStack(t)
	root := seedCodebase(t)

	created := dispatchMap(t, plugins, "create_session", map[string]any{"locator": root})
	sessionID := created["session_id"].(string)

	paused := dispatchMap(t, plugins, "pause_session", map[string]any{"session_id": sessionID})
	assert.Equal(t, true, paused["paused"])

	// Mutation is off while paused.
	_, err := plugins.Dispatch(context.Background(), "stage_edit", map[string]any{
		"session_id":  sessionID,
		"document_id": "main.txt",
		"version":     created["version"],
		"edits":       []any{map[string]any{"start": 0, "end": 1, "new_text": "H"}},
	})
	assert.ErrorIs(t, err, types.ErrSessionNotActive)

	resumed := dispatchMap(t, plugins, "resume_session", map[string]any{"session_id": sessionID})
	assert.Equal(t, true, resumed["resumed"])
}

func TestDecodeEdits(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		edits, err := decodeEdits([]any{
			map[string]any{"start": float64(0), "end": float64(5), "new_text": "x"},
			map[string]any{"start": 7, "end": 7},
		})
		require.NoError(t, err)
		require.Len(t, edits, 2)
		assert.Equal(t, types.Range{Start: 0, End: 5}, edits[0].Range)
		assert.Equal(t, "x", edits[0].NewText)
		assert.Equal(t, "", edits[1].NewText)
	})

	t.Run("empty array", func(t *testing.T) {
		_, err := decodeEdits([]any{})
		assert.Error(t, err)
	})

	t.Run("inverted range", func(t *testing.T) {
		_, err := decodeEdits([]any{map[string]any{"start": 5, "end": 2}})
		assert.Error(t, err)
	})

	t.Run("missing start", func(t *testing.T) {
		_, err := decodeEdits([]any{map[string]any{"end": 2}})
		assert.Error(t, err)
	})
}
