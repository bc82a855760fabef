package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/docserve/internal/logging"
)

func testLogger() logging.Logger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.LevelError,
		Format: "text",
		Output: os.Stderr,
	})
}

func TestEventKindString(t *testing.T) {
	testCases := []struct {
		kind     EventKind
		expected string
	}{
		{KindCreated, "created"},
		{KindModified, "modified"},
		{KindRemoved, "removed"},
		{KindRenamed, "renamed"},
		{EventKind(99), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.kind.String())
		})
	}
}

func TestNewDocWatcher(t *testing.T) {
	w, err := NewDocWatcher(100*time.Millisecond, testLogger())
	require.NoError(t, err)
	defer w.Stop()

	assert.NotNil(t, w.watcher)
	assert.NotNil(t, w.debouncer)
	assert.Empty(t, w.filters)
}

func TestChangeEventsCarryTimestamps(t *testing.T) {
	w, err := NewDocWatcher(50*time.Millisecond, testLogger())
	require.NoError(t, err)
	defer w.Stop()

	events := []fsnotify.Event{
		{Name: filepath.Join("src", "lib.rs"), Op: fsnotify.Write},
		{Name: filepath.Join("src", "gone.rs"), Op: fsnotify.Remove},
		{Name: filepath.Join("src", "moved.rs"), Op: fsnotify.Rename},
	}

	for _, ev := range events {
		w.handleFsnotifyEvent(context.Background(), ev)

		select {
		case change := <-w.debouncer.events:
			assert.Equal(t, ev.Name, change.Path)
			assert.False(t, change.ModTime.IsZero(), "event for %s has no timestamp", ev.Name)
		default:
			t.Fatalf("no change event emitted for %s", ev.Name)
		}
	}
}

func TestWatcherEmitsRequestOnChange(t *testing.T) {
	tempDir := t.TempDir()

	w, err := NewDocWatcher(100*time.Millisecond, testLogger())
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, w.AddRecursive(tempDir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "lib.rs"), []byte("fn main() {}"), 0o644))

	select {
	case req := <-w.Requests():
		assert.GreaterOrEqual(t, req.Events, 1)
		assert.False(t, req.BurstEndedAt.IsZero())
	case <-time.After(3 * time.Second):
		t.Fatal("expected a rebuild request after file change")
	}
}

func TestWatcherIgnoresExcludedPaths(t *testing.T) {
	tempDir := t.TempDir()
	outDir := filepath.Join(tempDir, "target")
	require.NoError(t, os.MkdirAll(outDir, 0o755))

	w, err := NewDocWatcher(100*time.Millisecond, testLogger())
	require.NoError(t, err)
	defer w.Stop()

	w.AddFilter(ExcludeGlobs(tempDir, []string{"target"}))
	require.NoError(t, w.AddRecursive(tempDir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	// Writes into the excluded build output must not trigger a rebuild;
	// this is what prevents infinite rebuild loops.
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "index.html"), []byte("<html></html>"), 0o644))

	select {
	case req := <-w.Requests():
		t.Fatalf("unexpected rebuild request for excluded path: %+v", req)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcherWatchesNewSubdirectories(t *testing.T) {
	tempDir := t.TempDir()

	w, err := NewDocWatcher(100*time.Millisecond, testLogger())
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, w.AddRecursive(tempDir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	subDir := filepath.Join(tempDir, "src")
	require.NoError(t, os.MkdirAll(subDir, 0o755))

	// The mkdir itself debounces into one request.
	select {
	case <-w.Requests():
	case <-time.After(3 * time.Second):
		t.Fatal("expected a rebuild request for new directory")
	}

	// Give the watcher a moment to register the new directory, then a
	// change inside it must also be seen.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(subDir, "mod.rs"), []byte("// docs"), 0o644))

	select {
	case <-w.Requests():
	case <-time.After(3 * time.Second):
		t.Fatal("expected a rebuild request for file in new directory")
	}
}

func TestWatcherFatalOnClose(t *testing.T) {
	tempDir := t.TempDir()

	w, err := NewDocWatcher(100*time.Millisecond, testLogger())
	require.NoError(t, err)
	require.NoError(t, w.AddRecursive(tempDir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	// Closing the underlying watcher terminates the event sequence; the
	// failure must surface as a fatal condition, not a silent stop.
	require.NoError(t, w.Stop())

	select {
	case err := <-w.Fatal():
		assert.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("expected fatal error after watcher close")
	}
}
