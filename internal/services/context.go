package services

import "context"

type contextKey string

const jobIDKey contextKey = "job_id"

// WithJobID annotates context with the pipeline job identifier so adapters
// can correlate their log lines with the owning job.
func WithJobID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, jobIDKey, id)
}

// JobIDFromContext extracts the pipeline job identifier if present.
func JobIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(jobIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
