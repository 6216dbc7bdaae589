// Package watcher turns raw filesystem notifications into a stream of
// debounced, deduplicated file events for the pipeline. Each path is owned by
// at most one in-flight job until the consumer releases it.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"autosub/internal/logging"
	"autosub/internal/services"
	"autosub/internal/subtitles"
)

// Kind records how a file came into view.
type Kind string

const (
	// KindCreated covers new files, including renames into the watch root,
	// which the OS reports as creations.
	KindCreated Kind = "created"
	// KindModified covers writes to files that already existed.
	KindModified Kind = "modified"
)

// FileEvent announces a settled file ready for processing.
type FileEvent struct {
	Path     string
	Kind     Kind
	Sequence uint64
}

// Options configures the watcher.
type Options struct {
	// Root is the directory to watch. Must exist and be a directory.
	Root string
	// Recursive watches subdirectories, including ones created later.
	Recursive bool
	// Suffixes filters events by file extension, case-insensitively.
	Suffixes []string
	// Debounce is the quiet window required before a path is announced.
	Debounce time.Duration
	// MaxPending caps the number of buffered events; 0 means unbounded.
	// When the cap is reached the newest event is dropped with a warning.
	MaxPending int
}

// Watcher owns the fsnotify subscription and the debounce state.
type Watcher struct {
	opts   Options
	logger *slog.Logger
	fs     *fsnotify.Watcher
	events chan FileEvent

	mu      sync.Mutex
	owned   map[string]struct{}
	pending map[string]*pendingEvent
	queue   []FileEvent
	seq     uint64

	notify chan struct{}
	done   chan struct{}
}

// New validates the watch root and registers it (and, when recursive, its
// subdirectories) with fsnotify. Any setup failure is fatal for startup.
func New(opts Options, logger *slog.Logger) (*Watcher, error) {
	info, err := os.Stat(opts.Root)
	if err != nil {
		return nil, services.Wrap(services.ErrWatchSetup, "watcher", "stat root", opts.Root, err)
	}
	if !info.IsDir() {
		return nil, services.Wrap(services.ErrWatchSetup, "watcher", "check root", fmt.Sprintf("%s is not a directory", opts.Root), nil)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, services.Wrap(services.ErrWatchSetup, "watcher", "create watcher", "", err)
	}

	w := &Watcher{
		opts:    opts,
		logger:  logging.NewComponentLogger(logger, "watcher"),
		fs:      fsWatcher,
		events:  make(chan FileEvent),
		owned:   make(map[string]struct{}),
		pending: make(map[string]*pendingEvent),
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	if err := w.addRoot(); err != nil {
		fsWatcher.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addRoot() error {
	if !w.opts.Recursive {
		if err := w.fs.Add(w.opts.Root); err != nil {
			return services.Wrap(services.ErrWatchSetup, "watcher", "watch root", w.opts.Root, err)
		}
		return nil
	}
	err := filepath.WalkDir(w.opts.Root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() {
			return w.fs.Add(path)
		}
		return nil
	})
	if err != nil {
		return services.Wrap(services.ErrWatchSetup, "watcher", "watch tree", w.opts.Root, err)
	}
	return nil
}

// Events returns the channel of settled file events. It is closed after Run
// returns.
func (w *Watcher) Events() <-chan FileEvent {
	return w.events
}

// Run consumes filesystem notifications until the context is cancelled. It
// closes the events channel on return.
func (w *Watcher) Run(ctx context.Context) error {
	go w.pump(ctx)

	defer func() {
		close(w.done)
		w.cancelPending()
		w.fs.Close()
	}()

	w.logger.Info("watching for new files",
		logging.String(logging.FieldEventType, "watch_started"),
		logging.String("root", w.opts.Root),
		logging.Bool("recursive", w.opts.Recursive),
		logging.String("suffixes", strings.Join(w.opts.Suffixes, ",")))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error",
				logging.String(logging.FieldEventType, "watch_error"),
				logging.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	switch {
	case event.Op.Has(fsnotify.Create):
		if w.opts.Recursive {
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := w.fs.Add(event.Name); err != nil {
					w.logger.Warn("failed to watch new directory",
						logging.String(logging.FieldPath, event.Name),
						logging.Error(err))
				}
				return
			}
		}
		w.schedule(event.Name, KindCreated)
	case event.Op.Has(fsnotify.Write):
		w.schedule(event.Name, KindModified)
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		w.cancel(event.Name)
	}
}

// pendingEvent is a debouncing path waiting for its quiet window. The kind
// of the first notification wins; later writes only re-arm the timer.
type pendingEvent struct {
	timer *time.Timer
	kind  Kind
}

// schedule arms (or re-arms) the debounce timer for a path, so a burst of
// notifications for the same file yields a single event once writes settle.
func (w *Watcher) schedule(path string, kind Kind) {
	if !w.matchesSuffix(path) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if pending, ok := w.pending[path]; ok {
		pending.timer.Reset(w.opts.Debounce)
		return
	}
	w.pending[path] = &pendingEvent{
		kind: kind,
		timer: time.AfterFunc(w.opts.Debounce, func() {
			w.settle(path)
		}),
	}
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if pending, ok := w.pending[path]; ok {
		pending.timer.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, pending := range w.pending {
		pending.timer.Stop()
		delete(w.pending, path)
	}
}

// settle fires after the debounce window. The path is claimed here: while a
// job for it is in flight, further events for the same path are dropped.
func (w *Watcher) settle(path string) {
	select {
	case <-w.done:
		return
	default:
	}

	w.mu.Lock()
	pending, ok := w.pending[path]
	if !ok {
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)

	if _, busy := w.owned[path]; busy {
		w.mu.Unlock()
		w.logger.Debug("path already in flight",
			logging.String(logging.FieldEventType, "event_deduplicated"),
			logging.String(logging.FieldPath, path))
		return
	}

	if w.opts.MaxPending > 0 && len(w.queue) >= w.opts.MaxPending {
		w.mu.Unlock()
		w.logger.Warn("event buffer full, dropping event",
			logging.String(logging.FieldEventType, "event_dropped"),
			logging.String(logging.FieldPath, path),
			logging.Int("max_pending", w.opts.MaxPending))
		return
	}

	w.owned[path] = struct{}{}
	w.seq++
	event := FileEvent{Path: path, Kind: pending.kind, Sequence: w.seq}
	w.queue = append(w.queue, event)
	w.mu.Unlock()

	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// Release returns ownership of a path so future events for it produce new
// jobs. Call it exactly once per delivered event, after the job finishes.
func (w *Watcher) Release(path string) {
	w.mu.Lock()
	delete(w.owned, path)
	w.mu.Unlock()
}

// pump delivers queued events to the consumer in arrival order.
func (w *Watcher) pump(ctx context.Context) {
	defer close(w.events)
	for {
		w.mu.Lock()
		var next *FileEvent
		if len(w.queue) > 0 {
			event := w.queue[0]
			w.queue = w.queue[1:]
			next = &event
		}
		w.mu.Unlock()

		if next == nil {
			select {
			case <-ctx.Done():
				return
			case <-w.notify:
				continue
			}
		}

		select {
		case <-ctx.Done():
			return
		case w.events <- *next:
		}
	}
}

func (w *Watcher) matchesSuffix(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	// Never re-ingest our own muxed outputs.
	if subtitles.IsOutputPath(path) {
		return false
	}
	if len(w.opts.Suffixes) == 0 {
		return true
	}
	lower := strings.ToLower(base)
	for _, suffix := range w.opts.Suffixes {
		if strings.HasSuffix(lower, strings.ToLower(suffix)) {
			return true
		}
	}
	return false
}
