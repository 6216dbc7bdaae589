// Package report persists run summaries and per-file results to SQLite so
// past runs can be reviewed from the CLI.
package report

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"autosub/internal/pipeline"
)

// Store is a SQLite-backed history of pipeline runs.
type Store struct {
	db *sql.DB
}

// RunRecord is one persisted run summary.
type RunRecord struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	Muxed      int
	Skipped    int
	Failed     int
}

// JobRecord is one persisted per-file result.
type JobRecord struct {
	ID         int64
	RunID      int64
	Path       string
	Outcome    string
	OutputPath string
	Attempts   int
	ErrorKind  string
	Error      string
	Duration   time.Duration
	CreatedAt  time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	muxed INTEGER NOT NULL,
	skipped INTEGER NOT NULL,
	failed INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS jobs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	path TEXT NOT NULL,
	outcome TEXT NOT NULL,
	output_path TEXT,
	attempts INTEGER NOT NULL DEFAULT 0,
	error_kind TEXT,
	error TEXT,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_run_id ON jobs(run_id);
CREATE INDEX IF NOT EXISTS idx_jobs_path ON jobs(path);
`

// Open creates or opens the history database at path and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create report directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open report database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordRun persists a summary and its per-file results in one transaction.
func (s *Store) RecordRun(ctx context.Context, summary *pipeline.Summary) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO runs (started_at, finished_at, muxed, skipped, failed) VALUES (?, ?, ?, ?, ?)`,
		summary.StartedAt.UTC().Format(time.RFC3339Nano),
		summary.FinishedAt.UTC().Format(time.RFC3339Nano),
		summary.Muxed(), summary.Skipped(), summary.Failed())
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	runID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("run id: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, job := range summary.Results {
		var errText string
		if job.Err != nil {
			errText = job.Err.Error()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO jobs (run_id, path, outcome, output_path, attempts, error_kind, error, duration_ms, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, job.Path, string(job.Outcome),
			nullableString(job.OutputPath), job.Attempts,
			nullableString(job.ErrorKind), nullableString(errText),
			job.Duration.Milliseconds(), now)
		if err != nil {
			return 0, fmt.Errorf("insert job: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return runID, nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, muxed, skipped, failed
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var record RunRecord
		var started, finished string
		if err := rows.Scan(&record.ID, &started, &finished, &record.Muxed, &record.Skipped, &record.Failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		record.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		record.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		runs = append(runs, record)
	}
	return runs, rows.Err()
}

// RecentJobs returns up to limit per-file results, newest first.
func (s *Store) RecentJobs(ctx context.Context, limit int) ([]JobRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, path, outcome, output_path, attempts, error_kind, error, duration_ms, created_at
		 FROM jobs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []JobRecord
	for rows.Next() {
		record, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, record)
	}
	return jobs, rows.Err()
}

// JobsForPath returns the history of a single file, newest first.
func (s *Store) JobsForPath(ctx context.Context, path string, limit int) ([]JobRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, path, outcome, output_path, attempts, error_kind, error, duration_ms, created_at
		 FROM jobs WHERE path = ? ORDER BY id DESC LIMIT ?`, path, limit)
	if err != nil {
		return nil, fmt.Errorf("query jobs for path: %w", err)
	}
	defer rows.Close()

	var jobs []JobRecord
	for rows.Next() {
		record, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, record)
	}
	return jobs, rows.Err()
}

func scanJob(rows *sql.Rows) (JobRecord, error) {
	var record JobRecord
	var outputPath, errorKind, errText sql.NullString
	var durationMS int64
	var created string
	if err := rows.Scan(&record.ID, &record.RunID, &record.Path, &record.Outcome,
		&outputPath, &record.Attempts, &errorKind, &errText, &durationMS, &created); err != nil {
		return JobRecord{}, fmt.Errorf("scan job: %w", err)
	}
	record.OutputPath = outputPath.String
	record.ErrorKind = errorKind.String
	record.Error = errText.String
	record.Duration = time.Duration(durationMS) * time.Millisecond
	record.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return record, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
