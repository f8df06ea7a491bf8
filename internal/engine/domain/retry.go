package domain

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryPolicy controls how often and how fast a failed step body is retried
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Jitter spreads each delay uniformly over [1-Jitter, 1+Jitter] of its value.
	Jitter float64
}

// DefaultRetryPolicy returns exponential backoff from 1s capped at 30s with ±20% jitter
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
		Jitter:     DefaultJitter,
	}
}

// Check verifies the policy values are usable
func (p RetryPolicy) Check() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 {
		return fmt.Errorf("retry delays must not be negative")
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		return fmt.Errorf("jitter must be between 0 and 1")
	}
	return nil
}

// MaxAttempts is the total number of times a step body may run in one execution
func (p RetryPolicy) MaxAttempts() int {
	return p.MaxRetries + 1
}

// Delay returns the wait before retrying after the given failed attempt (1-based)
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return p.delay(attempt, rand.Float64)
}

func (p RetryPolicy) delay(attempt int, random func() float64) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}

	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
		// overflow guard
		if delay <= 0 {
			delay = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	if p.Jitter > 0 {
		factor := 1 - p.Jitter + 2*p.Jitter*random()
		delay = time.Duration(float64(delay) * factor)
	}

	return delay
}
