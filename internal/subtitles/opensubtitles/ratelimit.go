package opensubtitles

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// SleepWithContext blocks for the given duration, returning early if the
// context is cancelled.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsRetriable reports whether err represents a transient condition that
// warrants another attempt (rate limits, server errors, timeouts,
// connection failures). Client errors other than 429 are permanent.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	if status := StatusCode(err); status != 0 {
		return status == 429 || status >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	message := strings.ToLower(err.Error())
	transientTokens := []string{
		"timeout",
		"deadline exceeded",
		"client.timeout exceeded",
		"connection reset",
		"connection refused",
		"temporary failure",
		"awaiting headers",
	}
	for _, token := range transientTokens {
		if strings.Contains(message, token) {
			return true
		}
	}
	return false
}
