// Package retry holds the one retry policy every generation stage goes
// through. Stages must not reimplement backoff at the call site.
package retry

import (
	"context"
	"fmt"
	"log"
	"time"

	"courseforge/internal/gemini"
)

// Policy controls how Do retries a failing call.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay is the wait after the first failure; each further failure
	// doubles it.
	BaseDelay time.Duration
}

// Default matches the pipeline's standard budget: 3 attempts, 1s base delay.
var Default = Policy{MaxAttempts: 3, BaseDelay: time.Second}

// Do invokes fn until it succeeds or the policy is exhausted. A
// ValidationError fails immediately without a second call; every other
// error backs off BaseDelay*2^n and retries. After exhaustion the last
// underlying error is returned wrapped, so its message survives to the
// caller.
func Do[T any](ctx context.Context, pol Policy, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if pol.MaxAttempts < 1 {
		pol.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < pol.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := pol.BaseDelay << (attempt - 1)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if !gemini.Retryable(err) {
			return zero, err
		}
		lastErr = err
		log.Printf("WARN: %s attempt %d/%d failed: %v", op, attempt+1, pol.MaxAttempts, err)
	}

	return zero, fmt.Errorf("%s failed after %d attempts: %w", op, pol.MaxAttempts, lastErr)
}
