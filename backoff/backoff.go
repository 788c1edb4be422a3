// Package backoff computes how long a failed job waits before it becomes
// claimable again.
//
// Strategies are stateless and safe for concurrent use. The retry number
// passed to Delay is the job's retry_count after it was incremented, so
// the first retry sees 1.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy maps a retry number to a delay.
type Strategy interface {
	Delay(retry int) time.Duration
}

// Func adapts a plain function to Strategy.
type Func func(retry int) time.Duration

// Delay calls f.
func (f Func) Delay(retry int) time.Duration { return f(retry) }

// Constant waits d before every retry. Constant(0) makes a failed job
// immediately claimable, which is what tests usually want.
func Constant(d time.Duration) Strategy {
	return Func(func(int) time.Duration { return d })
}

// Linear waits step times the retry number, never more than limit. A zero
// limit disables the cap.
func Linear(step, limit time.Duration) Strategy {
	return Func(func(retry int) time.Duration {
		return capped(float64(step)*float64(max(retry, 1)), limit)
	})
}

// Exponential waits base doubled for every retry after the first, never
// more than limit. A zero limit disables the cap.
func Exponential(base, limit time.Duration) Strategy {
	return Func(func(retry int) time.Duration {
		return capped(float64(base)*math.Pow(2, float64(max(retry, 1)-1)), limit)
	})
}

// Jitter randomizes another strategy. With full set the delay is drawn
// from [0, d); otherwise from [d/2, d). Retries of jobs that failed
// together then spread out instead of being claimed in one burst.
func Jitter(s Strategy, full bool) Strategy {
	return Func(func(retry int) time.Duration {
		d := s.Delay(retry)
		if d <= 0 {
			return 0
		}
		if full {
			return time.Duration(rand.Int64N(int64(d))) //nolint:gosec // jitter, not crypto
		}
		half := d / 2
		return half + time.Duration(rand.Int64N(int64(d-half))) //nolint:gosec // jitter, not crypto
	})
}

// DefaultStrategy is exponential from 1s capped at 1m, with full jitter.
func DefaultStrategy() Strategy {
	return Jitter(Exponential(time.Second, time.Minute), true)
}

func capped(d float64, limit time.Duration) time.Duration {
	if limit > 0 && d > float64(limit) {
		return limit
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}
