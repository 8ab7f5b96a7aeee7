package mqtt

import (
	"fmt"
	"math/rand"
	"time"
)

// Backoff computes the reconnect delay window for one connect attempt. The
// floor is the configured minimum plus a random jitter from [Lower, Upper],
// both ends inclusive; the ceiling is the configured maximum.
type Backoff struct {
	min   time.Duration
	max   time.Duration
	lower time.Duration
	upper time.Duration

	// intN returns a value in [0, n). Replaced in tests.
	intN func(n int64) int64
}

// NewBackoff validates the delays and returns a calculator.
func NewBackoff(min, lower, upper, max time.Duration) (*Backoff, error) {
	switch {
	case min < 0:
		return nil, fmt.Errorf("%w: reconnect delay min %s is negative", ErrInvalidConfig, min)
	case lower < 0:
		return nil, fmt.Errorf("%w: reconnect jitter lower bound %s is negative", ErrInvalidConfig, lower)
	case upper < lower:
		return nil, fmt.Errorf("%w: reconnect jitter upper bound %s is below lower bound %s", ErrInvalidConfig, upper, lower)
	case max < min:
		return nil, fmt.Errorf("%w: reconnect delay max %s is below min %s", ErrInvalidConfig, max, min)
	}
	return &Backoff{min: min, max: max, lower: lower, upper: upper, intN: rand.Int63n}, nil
}

// MinDelay returns a freshly jittered reconnect floor.
func (b *Backoff) MinDelay() time.Duration {
	jitter := b.lower
	if span := int64(b.upper - b.lower); span > 0 {
		jitter += time.Duration(b.intN(span + 1))
	}
	return b.min + jitter
}

// MaxDelay returns the configured reconnect ceiling.
func (b *Backoff) MaxDelay() time.Duration {
	return b.max
}

// NextDelay returns the wait before reconnect attempt number attempt (0 based).
// Without exponential growth it is always min; otherwise min doubles per
// attempt and is capped at max.
func NextDelay(attempt int, min, max time.Duration, exponential bool) time.Duration {
	if !exponential || attempt <= 0 || min <= 0 || max <= min {
		return min
	}
	d := min
	for i := 0; i < attempt; i++ {
		if d >= max/2 {
			return max
		}
		d *= 2
	}
	if d > max {
		return max
	}
	return d
}
