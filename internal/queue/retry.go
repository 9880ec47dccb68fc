package queue

import (
	"math"
	"time"
)

// RetryPolicy describes how failed attempts are rescheduled.
type RetryPolicy struct {
	Limit      int
	Base       time.Duration
	Multiplier float64
	MaxDelay   time.Duration
}

// DefaultMaxDelay caps backoff growth when a policy does not set its own.
const DefaultMaxDelay = 5 * time.Minute

// Decision is the outcome of the retry transition for one failed attempt.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Decide is the pure transition function (attempt, error) to retry-or-fail.
// attempt is 1-indexed: the first failed execution is attempt 1. The delay
// for attempt n is Base * Multiplier^(n-1), capped at MaxDelay.
func Decide(p RetryPolicy, attempt int, err error) Decision {
	if err == nil || !Retryable(err) {
		return Decision{}
	}
	if attempt > p.Limit {
		return Decision{}
	}

	mult := p.Multiplier
	if mult <= 0 {
		mult = 2
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}

	d := time.Duration(float64(p.Base) * math.Pow(mult, float64(attempt-1)))
	if d > maxDelay {
		d = maxDelay
	}
	return Decision{Retry: true, Delay: d}
}
