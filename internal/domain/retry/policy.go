// Package retry defines the bounded backoff strategy for outbound calls.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy defines a retry strategy.
type Policy struct {
	MaxAttempts  int           `json:"max_attempts"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	JitterFactor float64       `json:"jitter_factor"` // 0.0-1.0
}

// TriggerPolicy is the remote-trigger contract: up to 3 attempts,
// exponential backoff starting at 2s, capped at 10s.
func TriggerPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     10 * time.Second,
		JitterFactor: 0.1,
	}
}

// CalculateDelay calculates the exponential backoff delay before a given
// attempt (1-based; attempt 1 has no delay).
func (p Policy) CalculateDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delay := time.Duration(float64(p.InitialDelay) * math.Pow(2, float64(attempt-2)))
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	if p.JitterFactor > 0 {
		jitter := float64(delay) * p.JitterFactor * (rand.Float64()*2 - 1) // -jitter to +jitter
		delay = time.Duration(float64(delay) + jitter)
		if delay < 0 {
			delay = 0
		}
	}

	return delay
}

// RetryableFunc is one attempt of the operation. The returned bool reports
// whether the error is worth retrying; permanent failures stop immediately.
type RetryableFunc func(ctx context.Context, attempt int) (retryable bool, err error)

// Execute runs the function with bounded retries according to the policy.
// It surfaces the last error after the attempts are exhausted.
func (p Policy) Execute(ctx context.Context, fn RetryableFunc) error {
	var lastErr error

	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if delay := p.CalculateDelay(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		retryable, err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
	}

	return lastErr
}
