package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors classifying every failure the pipeline can surface.
// WatchSetup aborts startup; everything else is terminal for a single file.
var (
	ErrWatchSetup     = errors.New("watch setup error")
	ErrInspection     = errors.New("inspection error")
	ErrTransientFetch = errors.New("transient fetch error")
	ErrPermanentFetch = errors.New("permanent fetch error")
	ErrFetchExhausted = errors.New("fetch attempts exhausted")
	ErrMux            = errors.New("mux error")
	ErrCancelled      = errors.New("cancelled")
	ErrShutdown       = errors.New("shutdown")
	ErrConfiguration  = errors.New("configuration error")
	ErrValidation     = errors.New("validation error")
)

// Wrap builds an error message that includes pipeline context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransientFetch
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether a fetch error warrants another attempt. An
// exhausted fetch wraps its last transient cause but is itself terminal.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientFetch) && !errors.Is(err, ErrFetchExhausted)
}

// Kind returns the short taxonomy label for a classified error, or "error"
// when the error carries no known marker.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrWatchSetup):
		return "watch_setup"
	case errors.Is(err, ErrInspection):
		return "inspection"
	case errors.Is(err, ErrFetchExhausted):
		return "fetch_exhausted"
	case errors.Is(err, ErrTransientFetch):
		return "transient_fetch"
	case errors.Is(err, ErrPermanentFetch):
		return "permanent_fetch"
	case errors.Is(err, ErrMux):
		return "mux"
	case errors.Is(err, ErrShutdown):
		return "shutdown"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrValidation):
		return "validation"
	default:
		return "error"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
