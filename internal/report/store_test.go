package report

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"autosub/internal/pipeline"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleSummary() *pipeline.Summary {
	started := time.Now().Add(-time.Minute)
	return &pipeline.Summary{
		StartedAt:  started,
		FinishedAt: started.Add(30 * time.Second),
		Results: []pipeline.JobResult{
			{
				Path:       "/media/a.mkv",
				Outcome:    pipeline.OutcomeMuxed,
				OutputPath: "/media/a_w_sub.mkv",
				Attempts:   1,
				Duration:   12 * time.Second,
			},
			{
				Path:     "/media/b.mkv",
				Outcome:  pipeline.OutcomeSkippedPresent,
				Duration: time.Second,
			},
			{
				Path:      "/media/c.mkv",
				Outcome:   pipeline.OutcomeFailed,
				Attempts:  3,
				ErrorKind: "fetch_exhausted",
				Err:       errors.New("fetch attempts exhausted: 3 attempts"),
				Duration:  8 * time.Second,
			},
		},
	}
}

func TestRecordRunAndRecentRuns(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	runID, err := store.RecordRun(ctx, sampleSummary())
	if err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	if runID <= 0 {
		t.Fatalf("run id = %d, want positive", runID)
	}

	runs, err := store.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	run := runs[0]
	if run.Muxed != 1 || run.Skipped != 1 || run.Failed != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/1/1", run.Muxed, run.Skipped, run.Failed)
	}
}

func TestRecentJobsNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.RecordRun(ctx, sampleSummary()); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	jobs, err := store.RecentJobs(ctx, 10)
	if err != nil {
		t.Fatalf("RecentJobs failed: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("jobs = %d, want 3", len(jobs))
	}
	if jobs[0].Path != "/media/c.mkv" {
		t.Errorf("newest job path = %q, want /media/c.mkv", jobs[0].Path)
	}
	if jobs[0].ErrorKind != "fetch_exhausted" || jobs[0].Attempts != 3 {
		t.Errorf("failed job record = %+v", jobs[0])
	}
	if jobs[2].OutputPath != "/media/a_w_sub.mkv" {
		t.Errorf("muxed job output = %q", jobs[2].OutputPath)
	}
}

func TestJobsForPath(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.RecordRun(ctx, sampleSummary()); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	if _, err := store.RecordRun(ctx, sampleSummary()); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	jobs, err := store.JobsForPath(ctx, "/media/a.mkv", 10)
	if err != nil {
		t.Fatalf("JobsForPath failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(jobs))
	}
	for _, job := range jobs {
		if job.Path != "/media/a.mkv" {
			t.Errorf("unexpected path %q", job.Path)
		}
	}
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "history.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	store.Close()
}
