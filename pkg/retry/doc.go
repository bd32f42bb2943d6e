// Package retry runs an operation with exponential backoff and jitter.
//
// Errors are classified with the shared error kinds: timeouts, rate limits
// and dependency failures are retried, while cancellation and caller
// mistakes stop at once.
//
//	err := retry.Retry(ctx, func(ctx context.Context) error {
//	    return notifier.Notify(ctx, "study finished")
//	})
//
// With a custom config:
//
//	cfg := retry.DefaultConfig()
//	cfg.MaxAttempts = 5
//	cfg.MaxElapsedTime = time.Minute
//	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
//	    logger.Warn("retrying", "attempt", attempt, "delay", delay, "err", err)
//	}
//	err := retry.Do(ctx, cfg, fn)
//
// Waits go through a clock.Clock, so tests can drive them with clock.NewFake.
// HTTP calls should rely on internal/platform/httpclient, which also honors
// Retry-After.
package retry
