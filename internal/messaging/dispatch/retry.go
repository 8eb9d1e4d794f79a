// Package dispatch delivers pipeline outcomes to the external collaborators:
// the chatbot relay and the advertising platform's conversion endpoint. Both
// sinks share the same bounded retry policy.
package dispatch

import (
	"context"
	"time"
)

// Policy bounds how often and how patiently a dispatch is retried.
type Policy struct {
	// Attempts is the total number of tries, the first included.
	Attempts int
	// BackoffBase grows linearly with the attempt number: after the first
	// failure the wait is BackoffBase, after the second 2*BackoffBase.
	BackoffBase time.Duration
}

// DefaultPolicy matches the operational defaults for both sinks.
var DefaultPolicy = Policy{Attempts: 3, BackoffBase: time.Second}

// Do runs fn until it succeeds, the attempts are exhausted, or the context
// ends. The returned error is the last attempt's error.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		wait := time.Duration(attempt) * p.BackoffBase
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}
