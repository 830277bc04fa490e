package report

import (
	"context"
	"fmt"
	"time"
)

const sendRetryLimit = 3

// withRetry runs send up to limit times, sleeping 2^attempt seconds between
// attempts. The last error is returned when all attempts fail; a cancelled
// context stops the loop early.
func withRetry(ctx context.Context, limit int, sleep func(context.Context, time.Duration) error, send func(context.Context) error) error {
	if limit <= 0 {
		limit = sendRetryLimit
	}

	var lastErr error
	for attempt := 1; attempt <= limit; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = send(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt == limit {
			break
		}

		backoff := time.Duration(1<<uint(attempt)) * time.Second
		if err := sleep(ctx, backoff); err != nil {
			return err
		}
	}

	return fmt.Errorf("after %d attempts: %w", limit, lastErr)
}

// sleepCtx waits for the duration unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
