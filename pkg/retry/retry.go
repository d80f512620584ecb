// Package retry provides bounded-attempt retry with a pluggable backoff
// policy, used wherever transient external failures are tolerated.
package retry

import (
	"context"
	"time"
)

// Policy configures retry behavior.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Delay returns the wait before the given retry attempt (1-based).
	Delay func(attempt int) time.Duration
}

// FixedDelay returns a policy with a constant wait between attempts.
func FixedDelay(maxAttempts int, delay time.Duration) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		Delay:       func(int) time.Duration { return delay },
	}
}

// Do runs fn up to p.MaxAttempts times, waiting p.Delay between attempts.
// The last error propagates after the final failure. Context cancellation
// aborts the wait and returns ctx.Err().
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == p.MaxAttempts {
			break
		}

		var delay time.Duration
		if p.Delay != nil {
			delay = p.Delay(attempt)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
