// Package diagcache memoizes diagnostic computation per (scope, snapshot
// version). A session holds at most one live snapshot version, so eviction
// is lazy: Invalidate drops everything strictly older than the version it is
// given, bounding growth to the number of concurrently-open scopes.
package diagcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dlanger/refract-mcp/pkg/types"
)

// ComputeFunc produces diagnostics for a scope when the cache misses.
type ComputeFunc func(ctx context.Context) ([]types.Diagnostic, error)

// Entry is one cached diagnostic result.
type Entry struct {
	Scope       types.Scope
	Version     int64
	Diagnostics []types.Diagnostic
	Counts      types.SeverityCounts
	ComputedAt  time.Time
}

type cacheKey struct {
	scope   string
	version int64
}

// Cache memoizes diagnostics keyed by (scope, snapshot version). Concurrent
// callers asking for the same key share one computation via singleflight.
type Cache struct {
	mu      sync.RWMutex
	entries map[cacheKey]*Entry
	group   singleflight.Group
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[cacheKey]*Entry)}
}

// GetOrCompute returns the cached entry for (scope, version) or invokes
// compute exactly once to fill it. Errors are not cached; the next caller
// recomputes.
func (c *Cache) GetOrCompute(ctx context.Context, scope types.Scope, version int64, compute ComputeFunc) (*Entry, error) {
	k := cacheKey{scope: scope.Key(), version: version}

	c.mu.RLock()
	entry, ok := c.entries[k]
	c.mu.RUnlock()
	if ok {
		return entry, nil
	}

	flightKey := fmt.Sprintf("%s@%d", k.scope, k.version)
	v, err, _ := c.group.Do(flightKey, func() (interface{}, error) {
		c.mu.RLock()
		cached, ok := c.entries[k]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}

		diags, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		fresh := &Entry{
			Scope:       scope,
			Version:     version,
			Diagnostics: diags,
			Counts:      types.CountSeverities(diags),
			ComputedAt:  time.Now(),
		}
		c.mu.Lock()
		c.entries[k] = fresh
		c.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

// Invalidate drops every entry whose version is strictly older than version.
// It returns the number of entries removed.
func (c *Cache) Invalidate(version int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k := range c.entries {
		if k.version < version {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
