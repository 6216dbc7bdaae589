package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"autosub/internal/logging"
	"autosub/internal/services"
	"autosub/internal/watcher"
)

// Source supplies file events and tracks per-path ownership. The watcher
// implements it for daemon mode; scans use a static source.
type Source interface {
	Events() <-chan watcher.FileEvent
	Release(path string)
}

// CoordinatorConfig tunes the worker pool and shutdown behavior.
type CoordinatorConfig struct {
	// Workers bounds concurrent jobs; 0 means one per available CPU.
	Workers int
	// DrainTimeout is how long shutdown waits for in-flight jobs before
	// cancelling them.
	DrainTimeout time.Duration
}

// JobResult is the per-file line item of a run summary.
type JobResult struct {
	Path       string
	Outcome    Outcome
	OutputPath string
	Attempts   int
	ErrorKind  string
	Err        error
	Duration   time.Duration
}

// Summary aggregates the results of a coordinator run.
type Summary struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []JobResult
}

// Muxed counts jobs that produced a new container.
func (s *Summary) Muxed() int { return s.count(func(r JobResult) bool { return r.Outcome == OutcomeMuxed }) }

// Skipped counts jobs that finished without muxing or failing.
func (s *Summary) Skipped() int {
	return s.count(func(r JobResult) bool { return r.Outcome.Skipped() })
}

// Failed counts jobs that ended with an error.
func (s *Summary) Failed() int {
	return s.count(func(r JobResult) bool { return r.Outcome == OutcomeFailed })
}

func (s *Summary) count(match func(JobResult) bool) int {
	n := 0
	for _, result := range s.Results {
		if match(result) {
			n++
		}
	}
	return n
}

// ResultHook observes each finished job. Used for notifications and the run
// history store; hooks run on the worker goroutine.
type ResultHook func(result JobResult)

// Coordinator fans file events out to a bounded pool of pipeline runs. A
// failing file never affects other files; shutdown stops admission and
// drains in-flight jobs within the configured timeout.
type Coordinator struct {
	cfg    CoordinatorConfig
	runner *Runner
	source Source
	logger *slog.Logger
	hooks  []ResultHook

	mu      sync.Mutex
	results []JobResult

	// forced is set when the drain deadline expires, so in-flight jobs
	// cancelled at that point are classified as shutdown failures.
	forced atomic.Bool
}

// NewCoordinator builds a Coordinator around a runner and an event source.
func NewCoordinator(cfg CoordinatorConfig, runner *Runner, source Source, logger *slog.Logger, hooks ...ResultHook) *Coordinator {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 2 * time.Minute
	}
	return &Coordinator{
		cfg:    cfg,
		runner: runner,
		source: source,
		logger: logging.NewComponentLogger(logger, "coordinator"),
		hooks:  hooks,
	}
}

// Run admits events until the context is cancelled or the source closes its
// channel, then drains. It returns the run summary; the error is non-nil
// only when the drain deadline expired and jobs were force-failed.
func (c *Coordinator) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{StartedAt: time.Now()}

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	slots := make(chan struct{}, c.cfg.Workers)
	var wg sync.WaitGroup

	c.logger.Info("coordinator started",
		logging.String(logging.FieldEventType, "run_started"),
		logging.Int("workers", c.cfg.Workers))

admit:
	for {
		select {
		case <-ctx.Done():
			break admit
		case event, ok := <-c.source.Events():
			if !ok {
				break admit
			}
			select {
			case slots <- struct{}{}:
			case <-ctx.Done():
				c.source.Release(event.Path)
				break admit
			}
			wg.Add(1)
			go func(event watcher.FileEvent) {
				defer wg.Done()
				defer func() { <-slots }()
				defer c.source.Release(event.Path)
				c.process(jobCtx, event.Path)
			}(event)
		}
	}

	err := c.drain(&wg, cancelJobs)

	summary.FinishedAt = time.Now()
	c.mu.Lock()
	summary.Results = c.results
	c.mu.Unlock()

	c.logger.Info("coordinator finished",
		logging.String(logging.FieldEventType, "run_finished"),
		logging.Int("muxed", summary.Muxed()),
		logging.Int("skipped", summary.Skipped()),
		logging.Int("failed", summary.Failed()))
	return summary, err
}

// drain waits for in-flight jobs, cancelling them when the deadline expires.
func (c *Coordinator) drain(wg *sync.WaitGroup, cancelJobs context.CancelFunc) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(c.cfg.DrainTimeout):
	}

	c.forced.Store(true)
	cancelJobs()
	c.logger.Warn("drain deadline expired, cancelling in-flight jobs",
		logging.String(logging.FieldEventType, "drain_timeout"),
		logging.Duration("timeout", c.cfg.DrainTimeout))
	<-done
	return services.Wrap(services.ErrShutdown, "coordinator", "drain", "in-flight jobs cancelled at deadline", nil)
}

// process runs one job and records its result. A panic or error here is
// isolated to this file.
func (c *Coordinator) process(ctx context.Context, path string) {
	job := NewJob(path)
	err := c.runner.Process(ctx, job)

	if err != nil && c.forced.Load() && errors.Is(err, services.ErrCancelled) {
		err = services.Wrap(services.ErrShutdown, "coordinator", "process", path, err)
		job.Err = err
	}

	result := JobResult{
		Path:       job.Path,
		Outcome:    job.Outcome,
		OutputPath: job.OutputPath,
		Attempts:   job.FetchAttempts,
		Err:        err,
		ErrorKind:  services.Kind(err),
		Duration:   job.Duration(),
	}

	c.mu.Lock()
	c.results = append(c.results, result)
	c.mu.Unlock()

	for _, hook := range c.hooks {
		hook(result)
	}
}
