package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dlanger/refract-mcp/pkg/types"
)

// DefaultOperationTimeout bounds a tool call when the plugin does not set one.
const DefaultOperationTimeout = 30 * time.Second

// counters are the per-plugin dispatch statistics HealthCheck reads. All
// fields are atomically maintained so health reads never block dispatch.
type counters struct {
	calls      atomic.Int64
	failures   atomic.Int64
	timeouts   atomic.Int64
	cancels    atomic.Int64
	inFlight   atomic.Int64
	lastErrNS  atomic.Int64 // unix nanos of the last failure, 0 = never
	lastErrMsg atomic.Value // string
}

func (c *counters) recordFailure(err error) {
	c.failures.Add(1)
	c.lastErrNS.Store(time.Now().UnixNano())
	c.lastErrMsg.Store(err.Error())
}

// entry pairs a plugin with its lifecycle state and counters.
type entry struct {
	plugin *Plugin
	state  State
	stats  counters
}

type toolRef struct {
	entry *entry
	tool  *Tool
}

// ItemFailure records one failed plugin in a batch operation.
type ItemFailure struct {
	PluginID string `json:"plugin_id"`
	Error    string `json:"error"`
}

// LoadReport summarizes DiscoverAndLoad.
type LoadReport struct {
	Loaded   int           `json:"loaded"`
	Failures []ItemFailure `json:"failures,omitempty"`
}

// InitReport summarizes InitializeAll.
type InitReport struct {
	Succeeded []string      `json:"succeeded"`
	Failures  []ItemFailure `json:"failures,omitempty"`
}

// ShutdownReport summarizes ShutdownAll.
type ShutdownReport struct {
	ShutDown []string      `json:"shut_down"`
	Failures []ItemFailure `json:"failures,omitempty"`
}

// Registry owns the plugin set: discovery, configuration validation,
// initialization, dispatch, health, and shutdown. The plugin list is frozen
// after DiscoverAndLoad; dispatch counters are the only mutable state after
// that point.
type Registry struct {
	factories []Factory
	validate  *validator.Validate

	mu      sync.RWMutex
	entries map[string]*entry
	tools   map[string]*toolRef
	loaded  bool
}

// NewRegistry creates an empty registry. Register factories, then call
// DiscoverAndLoad and InitializeAll.
func NewRegistry() *Registry {
	return &Registry{
		validate: validator.New(),
		entries:  make(map[string]*entry),
		tools:    make(map[string]*toolRef),
	}
}

// Register adds a plugin factory. Must be called before DiscoverAndLoad.
func (r *Registry) Register(f Factory) {
	r.factories = append(r.factories, f)
}

// DiscoverAndLoad constructs every registered plugin. A single construction
// failure is recorded and skipped rather than failing the batch. Returns the
// number of plugins loaded.
func (r *Registry) DiscoverAndLoad() (*LoadReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded {
		return nil, fmt.Errorf("plugins already loaded")
	}

	report := &LoadReport{}
	for i, f := range r.factories {
		p, err := f()
		if err != nil {
			report.Failures = append(report.Failures, ItemFailure{
				PluginID: fmt.Sprintf("factory[%d]", i),
				Error:    err.Error(),
			})
			slog.Warn("plugin construction failed", "factory", i, "error", err)
			continue
		}
		if _, dup := r.entries[p.ID]; dup {
			report.Failures = append(report.Failures, ItemFailure{
				PluginID: p.ID,
				Error:    "duplicate plugin id",
			})
			continue
		}
		if p.Settings.OperationTimeout == 0 {
			p.Settings.OperationTimeout = DefaultOperationTimeout
		}

		e := &entry{plugin: p, state: StateDiscovered}
		r.entries[p.ID] = e
		for i := range p.Tools {
			t := &p.Tools[i]
			if _, dup := r.tools[t.Name]; dup {
				report.Failures = append(report.Failures, ItemFailure{
					PluginID: p.ID,
					Error:    fmt.Sprintf("duplicate tool name %q", t.Name),
				})
				continue
			}
			r.tools[t.Name] = &toolRef{entry: e, tool: t}
		}
		report.Loaded++
	}

	r.loaded = true
	return report, nil
}

// InitializeAll validates each plugin's settings and runs its Init hook.
// Failures are aggregated, not short-circuited: plugins that initialize
// cleanly stay dispatchable even when siblings fail.
func (r *Registry) InitializeAll(ctx context.Context) (*InitReport, error) {
	r.mu.Lock()
	ordered := r.orderedEntriesLocked(false)
	r.mu.Unlock()

	report := &InitReport{}
	for _, e := range ordered {
		if err := r.initOne(ctx, e); err != nil {
			report.Failures = append(report.Failures, ItemFailure{
				PluginID: e.plugin.ID,
				Error:    err.Error(),
			})
			slog.Warn("plugin initialization failed", "plugin", e.plugin.ID, "error", err)
			continue
		}
		report.Succeeded = append(report.Succeeded, e.plugin.ID)
	}
	return report, nil
}

// initOne validates settings and initializes a single plugin.
func (r *Registry) initOne(ctx context.Context, e *entry) error {
	if err := r.validate.Struct(e.plugin.Settings); err != nil {
		r.setState(e, StateInitFailed)
		return fmt.Errorf("%w: %v", types.ErrConfigInvalid, err)
	}

	r.setState(e, StateInitializing)
	if e.plugin.Init != nil {
		if err := e.plugin.Init(ctx); err != nil {
			r.setState(e, StateInitFailed)
			e.stats.recordFailure(err)
			return fmt.Errorf("%w: %v", types.ErrPluginInit, err)
		}
	}
	r.setState(e, StateReady)

	if e.plugin.Settings.EnableDetailedLogging {
		slog.Info("plugin initialized",
			"plugin", e.plugin.ID,
			"tools", len(e.plugin.Tools),
			"priority", e.plugin.Settings.Priority,
			"timeout", e.plugin.Settings.OperationTimeout)
	}
	return nil
}

// GetTools returns descriptors for dispatchable tools only: enabled tools of
// enabled, ready plugins. Ordered by descending plugin priority, then name.
func (r *Registry) GetTools() []ToolDescriptor {
	return r.listTools(true)
}

// GetAllTools returns descriptors for every known tool, including disabled
// ones, in the same deterministic order.
func (r *Registry) GetAllTools() []ToolDescriptor {
	return r.listTools(false)
}

func (r *Registry) listTools(enabledOnly bool) []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ToolDescriptor
	for _, ref := range r.tools {
		p := ref.entry.plugin
		dispatchable := p.Settings.Enabled && ref.tool.Enabled && ref.entry.state == StateReady
		if enabledOnly && !dispatchable {
			continue
		}
		out = append(out, ToolDescriptor{
			Name:        ref.tool.Name,
			Description: ref.tool.Description,
			PluginID:    p.ID,
			Category:    p.Category,
			Priority:    p.Settings.Priority,
			Enabled:     dispatchable,
			InputSchema: ref.tool.InputSchema,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Dispatch invokes a tool by name under the owning plugin's timeout raced
// against caller cancellation. Disabled plugins and tools fail without any
// plugin code running. Panics inside handlers are recovered and normalized
// into an error carrying the fault message.
func (r *Registry) Dispatch(ctx context.Context, toolName string, args map[string]any) (any, error) {
	r.mu.RLock()
	ref, ok := r.tools[toolName]
	var (
		state    State
		settings Settings
	)
	if ok {
		state = ref.entry.state
		settings = ref.entry.plugin.Settings
	}
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrToolNotFound, toolName)
	}
	if !settings.Enabled || !ref.tool.Enabled || state != StateReady {
		return nil, fmt.Errorf("%w: %s", types.ErrToolDisabled, toolName)
	}

	stats := &ref.entry.stats
	stats.calls.Add(1)
	stats.inFlight.Add(1)
	defer stats.inFlight.Add(-1)

	if settings.EnableDetailedLogging {
		slog.Debug("dispatching tool", "tool", toolName, "plugin", ref.entry.plugin.ID)
	}

	cctx, cancel := context.WithTimeout(ctx, settings.OperationTimeout)
	defer cancel()

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("tool %s panicked: %v", toolName, rec)}
			}
		}()
		v, err := ref.tool.Handler(cctx, args)
		done <- outcome{value: v, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			stats.recordFailure(out.err)
			return nil, out.err
		}
		return out.value, nil
	case <-cctx.Done():
		// The handler may still be running; we stop waiting at the boundary.
		if ctx.Err() != nil {
			err := fmt.Errorf("%w: %s", types.ErrOperationCancelled, toolName)
			stats.cancels.Add(1)
			stats.recordFailure(err)
			return nil, err
		}
		err := fmt.Errorf("%w: %s after %s", types.ErrOperationTimedOut, toolName, settings.OperationTimeout)
		stats.timeouts.Add(1)
		stats.recordFailure(err)
		return nil, err
	}
}

// HealthCheck reports one plugin's health from its lifecycle state and
// dispatch counters. It never invokes plugin code and never waits on
// in-flight calls.
func (r *Registry) HealthCheck(pluginID string) Health {
	r.mu.RLock()
	e, ok := r.entries[pluginID]
	var state State
	if ok {
		state = e.state
	}
	r.mu.RUnlock()

	now := time.Now()
	if !ok {
		return Health{Status: HealthUnknown, Message: "unknown plugin", Timestamp: now}
	}

	calls := e.stats.calls.Load()
	failures := e.stats.failures.Load()
	detail := map[string]any{
		"state":     string(state),
		"calls":     calls,
		"failures":  failures,
		"timeouts":  e.stats.timeouts.Load(),
		"cancels":   e.stats.cancels.Load(),
		"in_flight": e.stats.inFlight.Load(),
	}
	if msg, _ := e.stats.lastErrMsg.Load().(string); msg != "" {
		detail["last_error"] = msg
	}

	switch state {
	case StateInitFailed:
		return Health{Status: HealthUnhealthy, Message: "initialization failed", Timestamp: now, Detail: detail}
	case StateShuttingDown, StateShutDown:
		return Health{Status: HealthUnknown, Message: "plugin shut down", Timestamp: now, Detail: detail}
	case StateReady:
		if calls > 0 && failures*2 > calls {
			return Health{Status: HealthDegraded, Message: "failure rate above 50%", Timestamp: now, Detail: detail}
		}
		return Health{Status: HealthHealthy, Message: "ok", Timestamp: now, Detail: detail}
	default:
		return Health{Status: HealthUnknown, Message: "not initialized", Timestamp: now, Detail: detail}
	}
}

// ShutdownAll shuts plugins down in reverse priority order so foundational
// high-priority plugins go last. Best-effort: failures are logged, recorded,
// and do not stop the batch.
func (r *Registry) ShutdownAll(ctx context.Context) (*ShutdownReport, error) {
	r.mu.Lock()
	ordered := r.orderedEntriesLocked(true)
	r.mu.Unlock()

	report := &ShutdownReport{}
	for _, e := range ordered {
		r.mu.RLock()
		state := e.state
		r.mu.RUnlock()
		if state == StateShutDown || state == StateDiscovered {
			continue
		}

		r.setState(e, StateShuttingDown)
		if e.plugin.Shutdown != nil {
			if err := e.plugin.Shutdown(ctx); err != nil {
				report.Failures = append(report.Failures, ItemFailure{
					PluginID: e.plugin.ID,
					Error:    err.Error(),
				})
				slog.Warn("plugin shutdown failed", "plugin", e.plugin.ID, "error", err)
				r.setState(e, StateShutDown)
				continue
			}
		}
		r.setState(e, StateShutDown)
		report.ShutDown = append(report.ShutDown, e.plugin.ID)
	}
	return report, nil
}

// PluginState returns the lifecycle state of a plugin, or "" if unknown.
func (r *Registry) PluginState(pluginID string) State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[pluginID]; ok {
		return e.state
	}
	return ""
}

// PluginIDs returns every known plugin ID in priority order.
func (r *Registry) PluginIDs() []string {
	r.mu.RLock()
	ordered := r.orderedEntriesLocked(false)
	r.mu.RUnlock()

	ids := make([]string, len(ordered))
	for i, e := range ordered {
		ids[i] = e.plugin.ID
	}
	return ids
}

func (r *Registry) setState(e *entry, s State) {
	r.mu.Lock()
	e.state = s
	r.mu.Unlock()
}

// orderedEntriesLocked returns entries by descending priority then ID, or
// the reverse when reversed is true. Caller holds at least the read lock.
func (r *Registry) orderedEntriesLocked(reversed bool) []*entry {
	ordered := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool {
		pi, pj := ordered[i].plugin.Settings.Priority, ordered[j].plugin.Settings.Priority
		less := pi > pj
		if pi == pj {
			less = ordered[i].plugin.ID < ordered[j].plugin.ID
		}
		if reversed {
			return !less
		}
		return less
	})
	return ordered
}
