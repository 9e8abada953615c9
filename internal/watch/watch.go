// Package watch provides the change-detection collaborator used while a
// session is paused: a recorder that accumulates externally-observed file
// changes under a codebase root until the session resumes and re-syncs.
package watch

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Recorder accumulates external file changes under one root. Implementations
// must be safe for concurrent use.
type Recorder interface {
	// Changes returns the accumulated changed paths, relative to the root,
	// deduplicated and sorted.
	Changes() []string

	// Close stops recording. After Close, Changes still returns what was
	// accumulated.
	Close() error
}

// Factory creates a Recorder for a codebase root. Sessions receive a Factory
// at construction so tests can substitute a scripted recorder.
type Factory func(root string) (Recorder, error)

// NewFSRecorder starts an fsnotify-backed recorder watching root recursively.
func NewFSRecorder(root string) (Recorder, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	r := &fsRecorder{
		root:    root,
		watcher: w,
		seen:    make(map[string]struct{}),
		done:    make(chan struct{}),
	}
	if err := r.watchTree(root); err != nil {
		_ = w.Close()
		return nil, err
	}
	go r.run()
	return r, nil
}

type fsRecorder struct {
	root    string
	watcher *fsnotify.Watcher

	mu   sync.Mutex
	seen map[string]struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// watchTree registers the root and every non-hidden subdirectory.
func (r *fsRecorder) watchTree(dir string) error {
	return filepath.Walk(dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			return nil
		}
		if strings.HasPrefix(fi.Name(), ".") && path != dir {
			return filepath.SkipDir
		}
		if werr := r.watcher.Add(path); werr != nil {
			return fmt.Errorf("watch %s: %w", path, werr)
		}
		return nil
	})
}

// run pumps fsnotify events into the accumulated change set until Close.
func (r *fsRecorder) run() {
	for {
		select {
		case <-r.done:
			return
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			r.record(ev)
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("change recorder error", "root", r.root, "error", err)
		}
	}
}

func (r *fsRecorder) record(ev fsnotify.Event) {
	// Chmod-only events carry no content change.
	if ev.Op == fsnotify.Chmod {
		return
	}

	rel, err := filepath.Rel(r.root, ev.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, ".") {
		return
	}

	// New directories need their own watch to see nested changes.
	if ev.Op.Has(fsnotify.Create) {
		if fi, serr := os.Stat(ev.Name); serr == nil && fi.IsDir() {
			_ = r.watchTree(ev.Name)
			return
		}
	}

	r.mu.Lock()
	r.seen[filepath.ToSlash(rel)] = struct{}{}
	r.mu.Unlock()
}

func (r *fsRecorder) Changes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.seen))
	for rel := range r.seen {
		out = append(out, rel)
	}
	sort.Strings(out)
	return out
}

func (r *fsRecorder) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.done)
		err = r.watcher.Close()
	})
	return err
}
