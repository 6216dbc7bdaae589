package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"autosub/internal/services"
)

const testDebounce = 50 * time.Millisecond

func startWatcher(t *testing.T, opts Options) *Watcher {
	t.Helper()
	w, err := New(opts, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Run(ctx) }()
	return w
}

func waitEvent(t *testing.T, w *Watcher, timeout time.Duration) (FileEvent, bool) {
	t.Helper()
	select {
	case event, ok := <-w.Events():
		if !ok {
			t.Fatal("events channel closed unexpectedly")
		}
		return event, true
	case <-time.After(timeout):
		return FileEvent{}, false
	}
}

func expectNoEvent(t *testing.T, w *Watcher, timeout time.Duration) {
	t.Helper()
	if event, ok := waitEvent(t, w, timeout); ok {
		t.Fatalf("unexpected event for %s", event.Path)
	}
}

func TestNewRejectsMissingRoot(t *testing.T) {
	_, err := New(Options{Root: filepath.Join(t.TempDir(), "nope")}, nil)
	if !errors.Is(err, services.ErrWatchSetup) {
		t.Fatalf("expected watch setup error, got %v", err)
	}
}

func TestNewRejectsNonDirectoryRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(root, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	_, err := New(Options{Root: root}, nil)
	if !errors.Is(err, services.ErrWatchSetup) {
		t.Fatalf("expected watch setup error, got %v", err)
	}
}

func TestRapidWritesYieldSingleEvent(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, Options{Root: root, Suffixes: []string{".mkv"}, Debounce: testDebounce})

	path := filepath.Join(root, "movie.mkv")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("chunk"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	event, ok := waitEvent(t, w, 2*time.Second)
	if !ok {
		t.Fatal("expected an event after debounce")
	}
	if event.Path != path {
		t.Errorf("event path = %q, want %q", event.Path, path)
	}
	if event.Kind != KindCreated {
		t.Errorf("event kind = %q, want %q", event.Kind, KindCreated)
	}

	// The burst must have collapsed into exactly one event.
	expectNoEvent(t, w, 4*testDebounce)
}

func TestSuffixFilterIsCaseInsensitive(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, Options{Root: root, Suffixes: []string{".mkv"}, Debounce: testDebounce})

	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	upper := filepath.Join(root, "MOVIE.MKV")
	if err := os.WriteFile(upper, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	event, ok := waitEvent(t, w, 2*time.Second)
	if !ok {
		t.Fatal("expected event for uppercase suffix")
	}
	if event.Path != upper {
		t.Errorf("event path = %q, want %q", event.Path, upper)
	}
	expectNoEvent(t, w, 4*testDebounce)
}

func TestMuxedOutputsAreIgnored(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, Options{Root: root, Suffixes: []string{".mkv"}, Debounce: testDebounce})

	if err := os.WriteFile(filepath.Join(root, "movie_w_sub.mkv"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	expectNoEvent(t, w, 4*testDebounce)
}

func TestOwnershipSuppressesEventsUntilRelease(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, Options{Root: root, Suffixes: []string{".mkv"}, Debounce: testDebounce})

	path := filepath.Join(root, "movie.mkv")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, ok := waitEvent(t, w, 2*time.Second); !ok {
		t.Fatal("expected initial event")
	}

	// While the job is in flight, further writes must not produce events.
	if err := os.WriteFile(path, []byte("more"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	expectNoEvent(t, w, 4*testDebounce)

	w.Release(path)
	if err := os.WriteFile(path, []byte("again"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, ok := waitEvent(t, w, 2*time.Second); !ok {
		t.Fatal("expected event after release")
	}
}

func TestRecursiveWatchPicksUpNewDirectories(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, Options{Root: root, Recursive: true, Suffixes: []string{".mkv"}, Debounce: testDebounce})

	sub := filepath.Join(root, "season1")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// Give the watcher a beat to register the new directory.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(sub, "episode.mkv")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	event, ok := waitEvent(t, w, 2*time.Second)
	if !ok {
		t.Fatal("expected event from subdirectory")
	}
	if event.Path != path {
		t.Errorf("event path = %q, want %q", event.Path, path)
	}
}
