// Package tools provides the built-in plugin catalog: thin adapters that
// expose session lifecycle, staged-edit, and diagnostic operations as
// dispatchable tools. Each plugin is built by a plugin.Factory closing over
// the session registry; the adapters validate and decode arguments, call the
// core, and shape JSON-friendly results, nothing more.
package tools
