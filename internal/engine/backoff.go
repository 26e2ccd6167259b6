package engine

import "time"

// backoffDelay computes the pass-level retry delay: base doubled per
// consecutive error, clamped to [base, max].
func backoffDelay(base, max time.Duration, consecutiveErrors int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	if consecutiveErrors <= 0 {
		return base
	}

	delay := base
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	return delay
}
