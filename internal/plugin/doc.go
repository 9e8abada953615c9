// Package plugin implements the tool/plugin dispatch registry. A plugin is
// one value: its settings, its tool table, and a small set of function
// fields for initialize/health/shutdown. There is no reflection and no
// inheritance; tools are explicit name -> handler entries built at
// construction time.
//
// The registry discovers plugins from registered factories, validates each
// plugin's settings before initialization, and dispatches tool calls under a
// per-plugin timeout raced against caller cancellation. Batch operations
// (DiscoverAndLoad, InitializeAll, ShutdownAll) use partial-failure
// semantics: one bad plugin is recorded and skipped, the rest keep working.
//
// The plugin list is immutable once DiscoverAndLoad returns; only per-plugin
// call counters change afterwards, and those are atomic.
package plugin
