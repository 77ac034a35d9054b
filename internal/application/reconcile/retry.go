package reconcile

import (
	"context"
	"time"
)

// Attempt is the outcome of a retried operation.
type Attempt struct {
	Attempts int
	Err      error
}

// Retry calls op once plus up to maxRetries more times while it fails, sleeping
// delay between calls. Cancelling ctx stops further attempts.
func Retry(ctx context.Context, maxRetries int, delay time.Duration, op func(ctx context.Context, attempt int) error) Attempt {
	if maxRetries < 0 {
		maxRetries = 0
	}
	var result Attempt
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		result.Attempts = attempt
		result.Err = op(ctx, attempt)
		if result.Err == nil || ctx.Err() != nil || attempt > maxRetries {
			return result
		}
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result
		case <-timer.C:
		}
	}
	return result
}
