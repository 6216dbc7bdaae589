package services

import (
	"context"
	"testing"
)

func TestJobIDRoundTrip(t *testing.T) {
	ctx := WithJobID(context.Background(), "job-123")
	if id, ok := JobIDFromContext(ctx); !ok || id != "job-123" {
		t.Errorf("JobIDFromContext = %q, %v", id, ok)
	}
}

func TestJobIDAbsent(t *testing.T) {
	if _, ok := JobIDFromContext(context.Background()); ok {
		t.Error("expected no job id on bare context")
	}
	// Empty ids are not stored.
	ctx := WithJobID(context.Background(), "")
	if _, ok := JobIDFromContext(ctx); ok {
		t.Error("empty job id should not be stored")
	}
}
