package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"autosub/internal/logging"
	"autosub/internal/media/ffprobe"
	"autosub/internal/services"
	"autosub/internal/subtitles"
	"autosub/internal/subtitles/opensubtitles"
)

// Inspector probes a container file and returns its stream profile.
type Inspector interface {
	Inspect(ctx context.Context, path string) (*ffprobe.Profile, error)
}

// Fetcher locates and downloads a subtitle for a file.
type Fetcher interface {
	Fetch(ctx context.Context, identity subtitles.FileIdentity) (subtitles.SubtitleResult, error)
}

// Muxer writes a subtitle payload into a new container beside the source.
type Muxer interface {
	Mux(ctx context.Context, sourcePath string, payload []byte, opts subtitles.TrackOptions) (string, error)
}

// Config tunes the per-file state machine.
type Config struct {
	// Language is the target subtitle language (ISO 639-1).
	Language string
	// SetDefault marks the muxed track as the container default.
	SetDefault bool
	// FetchMaxAttempts bounds fetch tries for transient failures.
	FetchMaxAttempts int
	// FetchBackoffBase and FetchBackoffCap shape the retry delays.
	FetchBackoffBase time.Duration
	FetchBackoffCap  time.Duration
}

func (c *Config) normalize() {
	if c.FetchMaxAttempts <= 0 {
		c.FetchMaxAttempts = 3
	}
	if c.FetchBackoffBase <= 0 {
		c.FetchBackoffBase = time.Second
	}
	if c.FetchBackoffCap <= 0 {
		c.FetchBackoffCap = 30 * time.Second
	}
}

// Runner executes the per-file state machine:
//
//	pending -> inspecting -> deciding -> fetching -> muxing -> done
//
// with deciding short-circuiting to done when no work is needed, and any
// stage error moving the job to failed.
type Runner struct {
	cfg       Config
	inspector Inspector
	fetcher   Fetcher
	muxer     Muxer
	logger    *slog.Logger

	// identify derives the lookup identity for a file. Overridable in tests.
	identify func(path string) (subtitles.FileIdentity, error)
	// sleep waits between fetch attempts. Overridable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRunner builds a Runner from the adapters.
func NewRunner(cfg Config, inspector Inspector, fetcher Fetcher, muxer Muxer, logger *slog.Logger) *Runner {
	cfg.normalize()
	return &Runner{
		cfg:       cfg,
		inspector: inspector,
		fetcher:   fetcher,
		muxer:     muxer,
		logger:    logging.NewComponentLogger(logger, "pipeline"),
		identify:  subtitles.ComputeIdentity,
		sleep:     opensubtitles.SleepWithContext,
	}
}

// Process drives job to a terminal state. The returned error is the job's
// classified failure, also recorded on the job; a nil return means the job
// finished in StateDone with one of the success outcomes.
func (r *Runner) Process(ctx context.Context, job *Job) error {
	ctx = services.WithJobID(ctx, job.ID)
	err := r.run(ctx, job)
	job.FinishedAt = time.Now()
	if err != nil {
		job.Err = err
		job.Outcome = OutcomeFailed
		r.transition(job, StateFailed,
			logging.String(logging.FieldErrorHint, services.Kind(err)),
			logging.Error(err))
		return err
	}
	r.transition(job, StateDone, logging.String("outcome", string(job.Outcome)))
	return nil
}

func (r *Runner) run(ctx context.Context, job *Job) error {
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrCancelled, "pipeline", "start", job.Path, err)
	}

	r.transition(job, StateInspecting)
	profile, err := r.inspector.Inspect(ctx, job.Path)
	if err != nil {
		return err
	}

	r.transition(job, StateDeciding)
	outputPath := subtitles.OutputPath(job.Path)
	if _, err := os.Stat(outputPath); err == nil {
		job.Outcome = OutcomeSkippedExisting
		job.OutputPath = outputPath
		return nil
	}
	if profile.HasSubtitleLanguage(r.cfg.Language) {
		job.Outcome = OutcomeSkippedPresent
		return nil
	}

	r.transition(job, StateFetching)
	result, err := r.fetchWithRetry(ctx, job)
	if err != nil {
		return err
	}
	if !result.Present {
		job.Outcome = OutcomeSkippedNoSubtitle
		return nil
	}

	r.transition(job, StateMuxing)
	output, err := r.muxer.Mux(ctx, job.Path, result.Payload, subtitles.TrackOptions{
		Language:   r.cfg.Language,
		SetDefault: r.cfg.SetDefault,
	})
	if err != nil {
		return err
	}

	job.Outcome = OutcomeMuxed
	job.OutputPath = output
	return nil
}

// fetchWithRetry retries transient fetch failures with exponential backoff.
// Permanent failures and cancellations abort immediately; running out of
// attempts converts the last transient failure into an exhaustion error.
func (r *Runner) fetchWithRetry(ctx context.Context, job *Job) (subtitles.SubtitleResult, error) {
	identity, err := r.identify(job.Path)
	if err != nil {
		return subtitles.SubtitleResult{}, services.Wrap(services.ErrPermanentFetch, "pipeline", "identify", job.Path, err)
	}

	var lastErr error
	for attempt := 1; attempt <= r.cfg.FetchMaxAttempts; attempt++ {
		job.FetchAttempts = attempt

		result, err := r.fetcher.Fetch(ctx, identity)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if errors.Is(err, services.ErrCancelled) || ctx.Err() != nil {
			return subtitles.SubtitleResult{}, err
		}
		if !services.IsRetryable(err) {
			return subtitles.SubtitleResult{}, err
		}
		if attempt == r.cfg.FetchMaxAttempts {
			break
		}

		delay := Backoff(attempt, r.cfg.FetchBackoffBase, r.cfg.FetchBackoffCap)
		r.logger.Warn("fetch attempt failed, retrying",
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldPath, job.Path),
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", r.cfg.FetchMaxAttempts),
			logging.Duration("delay", delay),
			logging.Error(err))
		if err := r.sleep(ctx, delay); err != nil {
			return subtitles.SubtitleResult{}, services.Wrap(services.ErrCancelled, "pipeline", "retry wait", job.Path, err)
		}
	}

	return subtitles.SubtitleResult{}, services.Wrap(services.ErrFetchExhausted, "pipeline", "fetch",
		fmt.Sprintf("%s: %d attempts", job.Path, r.cfg.FetchMaxAttempts), lastErr)
}

func (r *Runner) transition(job *Job, next State, attrs ...logging.Attr) {
	job.State = next
	fields := append([]logging.Attr{
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldPath, job.Path),
		logging.String(logging.FieldState, string(next)),
	}, attrs...)
	args := make([]any, len(fields))
	for i, attr := range fields {
		args[i] = attr
	}
	r.logger.Info("state change", args...)
}
