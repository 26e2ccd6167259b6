package engine

import (
	"testing"
	"time"
)

// TestBackoffDelay_Growth verifies the delay doubles per consecutive error.
func TestBackoffDelay_Growth(t *testing.T) {
	base := 2 * time.Second
	max := 5 * time.Minute

	tests := []struct {
		errors int
		want   time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
		{3, 16 * time.Second},
		{5, 64 * time.Second},
	}
	for _, tt := range tests {
		if got := backoffDelay(base, max, tt.errors); got != tt.want {
			t.Errorf("backoffDelay(errors=%d) = %v, want %v", tt.errors, got, tt.want)
		}
	}
}

// TestBackoffDelay_Clamp verifies the delay never exceeds the cap.
func TestBackoffDelay_Clamp(t *testing.T) {
	base := 2 * time.Second
	max := 5 * time.Minute

	for _, errors := range []int{10, 30, 64, 1000} {
		if got := backoffDelay(base, max, errors); got != max {
			t.Errorf("backoffDelay(errors=%d) = %v, want cap %v", errors, got, max)
		}
	}
}

// TestBackoffDelay_Defaults verifies a non-positive base falls back sanely.
func TestBackoffDelay_Defaults(t *testing.T) {
	if got := backoffDelay(0, time.Minute, 1); got != 2*time.Second {
		t.Errorf("backoffDelay with zero base = %v, want 2s", got)
	}
	if got := backoffDelay(-time.Second, time.Minute, 3); got != 8*time.Second {
		t.Errorf("backoffDelay with negative base = %v, want 8s", got)
	}
}
