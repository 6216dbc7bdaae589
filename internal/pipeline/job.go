// Package pipeline drives each discovered file through inspection, subtitle
// fetch, and mux, and coordinates a bounded pool of such jobs.
package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// State names a stage in the per-file lifecycle.
type State string

const (
	StatePending    State = "pending"
	StateInspecting State = "inspecting"
	StateDeciding   State = "deciding"
	StateFetching   State = "fetching"
	StateMuxing     State = "muxing"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Outcome classifies how a finished job ended.
type Outcome string

const (
	// OutcomeMuxed means a subtitle was fetched and written to a new container.
	OutcomeMuxed Outcome = "muxed"
	// OutcomeSkippedExisting means the muxed output already existed.
	OutcomeSkippedExisting Outcome = "skipped_existing"
	// OutcomeSkippedPresent means the file already carried a subtitle track in
	// the target language.
	OutcomeSkippedPresent Outcome = "skipped_present"
	// OutcomeSkippedNoSubtitle means the provider had no candidate.
	OutcomeSkippedNoSubtitle Outcome = "skipped_no_subtitle"
	// OutcomeFailed means the job ended with a classified error.
	OutcomeFailed Outcome = "failed"
)

// Skipped reports whether the outcome finished the job without muxing and
// without an error.
func (o Outcome) Skipped() bool {
	switch o {
	case OutcomeSkippedExisting, OutcomeSkippedPresent, OutcomeSkippedNoSubtitle:
		return true
	}
	return false
}

// Job tracks one file's trip through the pipeline.
type Job struct {
	ID         string
	Path       string
	State      State
	Outcome    Outcome
	OutputPath string
	// FetchAttempts counts subtitle fetch tries, including the successful one.
	FetchAttempts int
	Err           error
	StartedAt     time.Time
	FinishedAt    time.Time
}

// NewJob builds a pending job for a path.
func NewJob(path string) *Job {
	return &Job{
		ID:        uuid.NewString(),
		Path:      path,
		State:     StatePending,
		StartedAt: time.Now(),
	}
}

// Duration returns the job's wall-clock runtime.
func (j *Job) Duration() time.Duration {
	if j.FinishedAt.IsZero() {
		return time.Since(j.StartedAt)
	}
	return j.FinishedAt.Sub(j.StartedAt)
}
