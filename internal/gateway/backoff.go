package gateway

import (
	"math"
	"time"
)

// BackoffStrategy returns the pause before the retry that follows attempt
// (0-indexed).
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ConstantBackoff waits the same delay before every retry.
type ConstantBackoff struct {
	Delay time.Duration
}

// NextDelay returns the constant delay
func (cb ConstantBackoff) NextDelay(int) time.Duration {
	return cb.Delay
}

// ExponentialBackoff multiplies the delay after every attempt, up to MaxDelay.
type ExponentialBackoff struct {
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
}

// NextDelay returns the exponentially increasing delay
func (eb ExponentialBackoff) NextDelay(attempt int) time.Duration {
	mult := eb.Multiplier
	if mult <= 0 {
		mult = 2
	}
	delay := float64(eb.BaseDelay) * math.Pow(mult, float64(attempt))
	if eb.MaxDelay > 0 && delay > float64(eb.MaxDelay) {
		delay = float64(eb.MaxDelay)
	}
	return time.Duration(delay)
}

// BackoffFromConfig builds a strategy by name. Unknown names fall back to
// a constant delay.
func BackoffFromConfig(kind string, base, max time.Duration) BackoffStrategy {
	switch kind {
	case "exponential":
		return ExponentialBackoff{BaseDelay: base, Multiplier: 2, MaxDelay: max}
	default:
		return ConstantBackoff{Delay: base}
	}
}
