// Package backoff computes retry delays for failed DueWork occurrences
// and pipeline steps, per the formulas in spec §4.2. Generalized from
// the teacher's scheduler.retryDelay, shared by both the queue's
// occurrence-level retries and the pipeline engine's step-level retries
// so the two stay numerically consistent.
package backoff

import (
	"math/rand"
	"time"

	"github.com/edgeworks-labs/orbiter/internal/domain"
)

const (
	base = 1 * time.Second
	cap_ = 300 * time.Second
)

// Compute returns the delay before attempt+1 given the strategy and the
// attempt number that just failed (1-indexed).
func Compute(strategy domain.Backoff, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	switch strategy {
	case domain.BackoffExponentialJitter:
		return exponentialJitter(attempt)
	case domain.BackoffLinear:
		return base * time.Duration(attempt)
	case domain.BackoffFixed:
		return base
	default:
		return exponentialJitter(attempt)
	}
}

// exponentialJitter implements delay = min(cap, base*2^(attempt-1)) *
// U(0.5, 1.0), per spec §4.2.
func exponentialJitter(attempt int) time.Duration {
	pow := 1 << uint(min(attempt-1, 32))
	delay := base * time.Duration(pow)
	if delay > cap_ {
		delay = cap_
	}
	jitter := 0.5 + rand.Float64()*0.5
	return time.Duration(float64(delay) * jitter)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
