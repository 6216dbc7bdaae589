package pipeline

import (
	"testing"
	"time"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	base := time.Second
	maxDelay := 30 * time.Second

	cases := []struct {
		attempt int
		nominal time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{10, 30 * time.Second},
	}
	for _, tc := range cases {
		got := Backoff(tc.attempt, base, maxDelay)
		if got < tc.nominal {
			t.Errorf("Backoff(%d) = %v, want >= %v", tc.attempt, got, tc.nominal)
		}
		// Jitter adds at most a quarter of the nominal delay.
		if got > tc.nominal+tc.nominal/4 {
			t.Errorf("Backoff(%d) = %v, want <= %v", tc.attempt, got, tc.nominal+tc.nominal/4)
		}
	}
}

func TestBackoffDefaults(t *testing.T) {
	if got := Backoff(0, 0, 0); got < time.Second {
		t.Errorf("Backoff with zero inputs = %v, want >= 1s", got)
	}
}
