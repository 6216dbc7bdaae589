// Package daemon wires the watcher, pipeline, history store, and notifier
// into the long-running service and the one-shot scan mode.
package daemon

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"autosub/internal/config"
	"autosub/internal/logging"
	"autosub/internal/media/ffprobe"
	"autosub/internal/notifications"
	"autosub/internal/pipeline"
	"autosub/internal/report"
	"autosub/internal/subtitles"
	"autosub/internal/subtitles/opensubtitles"
	"autosub/internal/watcher"
)

// Daemon owns the process-wide resources: the instance lock, the history
// store, and the notifier.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	lock     *flock.Flock
	store    *report.Store
	notifier notifications.Service
}

// New acquires the single-instance lock and opens the history store. Callers
// must Close the daemon when done.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	lock := flock.New(filepath.Join(cfg.Paths.LogDir, "autosub.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another autosub instance is already running")
	}

	store, err := report.Open(filepath.Join(cfg.Paths.LogDir, "history.db"))
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		lock:     lock,
		store:    store,
		notifier: notifications.NewService(cfg),
	}, nil
}

// Close releases the instance lock and the history store.
func (d *Daemon) Close() error {
	if d == nil {
		return nil
	}
	var firstErr error
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			firstErr = err
		}
	}
	if d.lock != nil {
		if err := d.lock.Unlock(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Store exposes the run history for the CLI.
func (d *Daemon) Store() *report.Store { return d.store }

// Notifier exposes the notification service for the CLI.
func (d *Daemon) Notifier() notifications.Service { return d.notifier }

// Run watches the configured root until the context is cancelled, then drains
// in-flight jobs and records the run.
func (d *Daemon) Run(ctx context.Context) (*pipeline.Summary, error) {
	runner, err := d.buildRunner()
	if err != nil {
		return nil, err
	}

	source, err := watcher.New(watcher.Options{
		Root:       d.cfg.Watch.Root,
		Recursive:  d.cfg.Watch.Recursive,
		Suffixes:   d.cfg.Watch.Suffixes,
		Debounce:   time.Duration(d.cfg.Watch.DebounceMS) * time.Millisecond,
		MaxPending: d.cfg.Watch.MaxPending,
	}, d.logger)
	if err != nil {
		return nil, err
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go func() { _ = source.Run(watchCtx) }()

	return d.coordinate(ctx, runner, source)
}

// Scan processes every matching file currently under root once and returns
// the summary.
func (d *Daemon) Scan(ctx context.Context, root string) (*pipeline.Summary, error) {
	if root == "" {
		root = d.cfg.Watch.Root
	}

	paths, err := d.collectFiles(root)
	if err != nil {
		return nil, err
	}
	d.logger.Info("scan started",
		logging.String(logging.FieldEventType, "scan_started"),
		logging.String("root", root),
		logging.Int("files", len(paths)))

	runner, err := d.buildRunner()
	if err != nil {
		return nil, err
	}
	return d.coordinate(ctx, runner, pipeline.NewStaticSource(paths))
}

func (d *Daemon) coordinate(ctx context.Context, runner *pipeline.Runner, source pipeline.Source) (*pipeline.Summary, error) {
	coordinator := pipeline.NewCoordinator(pipeline.CoordinatorConfig{
		Workers:      d.cfg.Pipeline.Workers,
		DrainTimeout: time.Duration(d.cfg.Pipeline.DrainTimeoutSeconds) * time.Second,
	}, runner, source, d.logger, d.notifyResult)

	summary, runErr := coordinator.Run(ctx)

	recordCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := d.store.RecordRun(recordCtx, summary); err != nil {
		d.logger.Warn("failed to record run history",
			logging.String(logging.FieldEventType, "history_write_failed"),
			logging.Error(err))
	}
	if err := d.notifier.NotifyRunCompleted(recordCtx, summary.Muxed(), summary.Skipped(), summary.Failed(),
		summary.FinishedAt.Sub(summary.StartedAt)); err != nil {
		d.logger.Warn("run notification failed", logging.Error(err))
	}

	return summary, runErr
}

// notifyResult pushes per-file outcomes as they finish. Notification errors
// never affect the pipeline.
func (d *Daemon) notifyResult(result pipeline.JobResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	switch result.Outcome {
	case pipeline.OutcomeMuxed:
		err = d.notifier.NotifyFileMuxed(ctx, result.Path, result.OutputPath)
	case pipeline.OutcomeFailed:
		err = d.notifier.NotifyFileFailed(ctx, result.Path, result.ErrorKind, result.Err)
	default:
		return
	}
	if err != nil {
		d.logger.Warn("notification failed",
			logging.String(logging.FieldPath, result.Path),
			logging.Error(err))
	}
}

func (d *Daemon) buildRunner() (*pipeline.Runner, error) {
	client, err := opensubtitles.New(opensubtitles.Config{
		APIKey:    d.cfg.Subtitles.APIKey,
		UserAgent: d.cfg.Subtitles.UserAgent,
		UserToken: d.cfg.Subtitles.UserToken,
		BaseURL:   d.cfg.Subtitles.BaseURL,
	})
	if err != nil {
		return nil, err
	}

	fetcher := subtitles.NewFetcher(client, subtitles.FetcherConfig{
		Language:          d.cfg.Subtitles.Language,
		RequestsPerMinute: d.cfg.Subtitles.RequestsPerMinute,
	}, d.logger)

	inspector := ffprobe.NewInspector(d.cfg.FFprobeBinary())
	muxer := subtitles.NewMuxer(d.cfg.MkvmergeBinary(), d.logger)

	return pipeline.NewRunner(pipeline.Config{
		Language:         d.cfg.Subtitles.Language,
		SetDefault:       d.cfg.Subtitles.SetDefault,
		FetchMaxAttempts: d.cfg.Pipeline.FetchMaxAttempts,
		FetchBackoffBase: time.Duration(d.cfg.Pipeline.FetchBackoffBase) * time.Second,
		FetchBackoffCap:  time.Duration(d.cfg.Pipeline.FetchBackoffCap) * time.Second,
	}, inspector, fetcher, muxer, d.logger), nil
}

// collectFiles lists files under root matching the configured suffixes,
// skipping hidden files and previously muxed outputs.
func (d *Daemon) collectFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() {
			if !d.cfg.Watch.Recursive && path != root {
				return fs.SkipDir
			}
			return nil
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || subtitles.IsOutputPath(path) {
			return nil
		}
		lower := strings.ToLower(name)
		for _, suffix := range d.cfg.Watch.Suffixes {
			if strings.HasSuffix(lower, strings.ToLower(suffix)) {
				paths = append(paths, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	return paths, nil
}
