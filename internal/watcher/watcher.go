// Package watcher implements the change detection half of the
// watch-build-serve loop: a recursive fsnotify watcher that filters out
// irrelevant paths and a debouncer that coalesces bursts of change events
// into single rebuild requests.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/docserve/internal/logging"
)

// EventKind represents the type of file change
type EventKind int

const (
	KindCreated EventKind = iota
	KindModified
	KindRemoved
	KindRenamed
)

// String returns the string representation of the EventKind
func (k EventKind) String() string {
	switch k {
	case KindCreated:
		return "created"
	case KindModified:
		return "modified"
	case KindRemoved:
		return "removed"
	case KindRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// ChangeEvent represents a single filesystem notification
type ChangeEvent struct {
	Kind    EventKind
	Path    string
	ModTime time.Time
}

// RebuildRequest is a coalesced intent to rebuild, emitted once per burst
// of change events after the quiet period elapses.
type RebuildRequest struct {
	// BurstEndedAt is when the quiet period elapsed.
	BurstEndedAt time.Time
	// Events is the number of change events coalesced into this request.
	Events int
}

// PathFilter reports whether a path is relevant to watching. A path is
// dropped as soon as any filter returns false.
type PathFilter func(path string) bool

// DocWatcher watches source trees for changes and emits debounced rebuild
// requests. The event sequence is non-restartable: once Start's context is
// cancelled or the underlying watch fails, the watcher is done.
type DocWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *debouncer
	filters   []PathFilter
	fatal     chan error
	log       logging.Logger
	mutex     sync.RWMutex
}

// NewDocWatcher creates a new watcher with the given debounce quiet period.
func NewDocWatcher(quiet time.Duration, log logging.Logger) (*DocWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &DocWatcher{
		watcher:   fsw,
		debouncer: newDebouncer(quiet),
		fatal:     make(chan error, 1),
		log:       log.WithComponent("watcher"),
	}, nil
}

// AddFilter adds a path filter. Filters must be added before Start.
func (w *DocWatcher) AddFilter(filter PathFilter) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.filters = append(w.filters, filter)
}

// AddRecursive adds a directory and all subdirectories to the watch set.
// Directories rejected by a filter are skipped entirely.
func (w *DocWatcher) AddRecursive(root string) error {
	cleanRoot := filepath.Clean(root)

	return filepath.Walk(cleanRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != cleanRoot && !w.allowed(path) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// Requests returns the channel carrying debounced rebuild requests.
func (w *DocWatcher) Requests() <-chan RebuildRequest {
	return w.debouncer.requests
}

// Fatal returns a channel that receives at most one error when the watch
// fails irrecoverably (for example the watch root was removed). There is
// no automatic retry; re-watching a removed root is not meaningful.
func (w *DocWatcher) Fatal() <-chan error {
	return w.fatal
}

// Start begins watching. It returns immediately; events flow until ctx is
// cancelled or the underlying watch fails.
func (w *DocWatcher) Start(ctx context.Context) {
	go w.debouncer.run(ctx)
	go w.watchLoop(ctx)
}

// Stop closes the underlying watcher and terminates the event sequence.
func (w *DocWatcher) Stop() error {
	return w.watcher.Close()
}

func (w *DocWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				w.reportFatal(fmt.Errorf("file watch terminated"))
				return
			}
			w.handleFsnotifyEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				w.reportFatal(fmt.Errorf("file watch terminated"))
				return
			}
			// fsnotify reports transient errors here; only a closed
			// channel is irrecoverable.
			w.log.Warn(ctx, err, "file watch error")
		}
	}
}

func (w *DocWatcher) reportFatal(err error) {
	select {
	case w.fatal <- err:
	default:
	}
}

func (w *DocWatcher) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event) {
	if !w.allowed(event.Name) {
		return
	}

	var kind EventKind
	switch {
	case event.Op.Has(fsnotify.Create):
		kind = KindCreated
	case event.Op.Has(fsnotify.Write):
		kind = KindModified
	case event.Op.Has(fsnotify.Remove):
		kind = KindRemoved
	case event.Op.Has(fsnotify.Rename):
		kind = KindRenamed
	default:
		kind = KindModified
	}

	change := ChangeEvent{Kind: kind, Path: event.Name, ModTime: time.Now()}

	// New directories must be watched too, so edits under them keep
	// triggering rebuilds.
	if kind == KindCreated {
		if info, err := os.Stat(event.Name); err == nil {
			change.ModTime = info.ModTime()
			if info.IsDir() {
				if err := w.AddRecursive(event.Name); err != nil {
					w.log.Warn(ctx, err, "watching new directory", "path", event.Name)
				}
			}
		}
	}

	w.log.Debug(ctx, "change detected", "path", change.Path, "kind", change.Kind.String())
	w.debouncer.submit(change)
}

func (w *DocWatcher) allowed(path string) bool {
	w.mutex.RLock()
	filters := w.filters
	w.mutex.RUnlock()

	for _, filter := range filters {
		if !filter(path) {
			return false
		}
	}
	return true
}
