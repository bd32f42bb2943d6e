package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"time"

	"github.com/jmhodges/clock"

	"redditstudy/internal/shared"
)

// JitterStrategy defines the jitter strategy to use
type JitterStrategy int

const (
	// JitterNone disables jitter
	JitterNone JitterStrategy = iota
	// JitterEqual picks a delay uniformly in [0, base)
	JitterEqual
	// JitterDecorrelated picks a delay in [base, 1.5*base)
	JitterDecorrelated
)

// Config defines retry configuration
type Config struct {
	// MaxAttempts is the maximum number of attempts, the first one included
	MaxAttempts int
	// InitialDelay is the delay before the second attempt
	InitialDelay time.Duration
	// MaxDelay caps a single delay (default 30s)
	MaxDelay time.Duration
	// MaxElapsedTime caps the total time spent retrying (0 = no limit)
	MaxElapsedTime time.Duration
	// Multiplier grows the delay after each attempt (default 2)
	Multiplier float64
	// Jitter picks the randomization applied to each delay
	Jitter JitterStrategy
	// Rand is the random source for jitter (optional)
	Rand *rand.Rand
	// OnRetry is called before each wait
	OnRetry func(attempt int, err error, nextDelay time.Duration)
	// NextDelay overrides backoff for a given error, e.g. to honor a server's
	// retry-after hint. Returning false stops retrying.
	NextDelay func(attempt int, err error) (time.Duration, bool)
	// Clock drives waits and elapsed time (default wall clock)
	Clock clock.Clock
}

// DefaultConfig returns three attempts with decorrelated jitter starting at 100ms.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       JitterDecorrelated,
	}
}

// Normalize validates the configuration and fills defaults.
func (c *Config) Normalize() error {
	switch {
	case c.MaxAttempts <= 0:
		return shared.Validationf("retry: MaxAttempts must be positive")
	case c.InitialDelay <= 0:
		return shared.Validationf("retry: InitialDelay must be positive")
	case c.MaxElapsedTime < 0:
		return shared.Validationf("retry: MaxElapsedTime cannot be negative")
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.InitialDelay > c.MaxDelay {
		return shared.Validationf("retry: InitialDelay %s exceeds MaxDelay %s", c.InitialDelay, c.MaxDelay)
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2.0
	}
	if c.Multiplier < 1.0 {
		return shared.Validationf("retry: Multiplier must be >= 1.0")
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	return nil
}

// RetryableFunc is a function that can be retried
type RetryableFunc func(ctx context.Context) error

// IsRetryableFunc determines if an error should trigger a retry
type IsRetryableFunc func(err error) bool

// RetriesExceededError is returned when retries are exhausted
type RetriesExceededError struct {
	LastError     error
	Attempts      int
	TotalDuration time.Duration
	Reason        string
}

func (e *RetriesExceededError) Error() string {
	return fmt.Sprintf("retry: %s after %s (%d attempts): %v", e.Reason, e.TotalDuration, e.Attempts, e.LastError)
}

func (e *RetriesExceededError) Unwrap() error {
	return e.LastError
}

// DefaultRetryable retries timeouts, rate limits, upstream failures and
// transient network errors. Cancellation and caller mistakes (validation,
// not found, conflict, unauthorized) are final.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch shared.KindOf(err) {
	case shared.KindCanceled, shared.KindValidation, shared.KindNotFound,
		shared.KindConflict, shared.KindUnauthorized:
		return false
	case shared.KindTimeout, shared.KindRateLimited, shared.KindDependencyFailure:
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsTemporary
}

// Do executes fn with exponential backoff using DefaultRetryable.
func Do(ctx context.Context, config Config, fn RetryableFunc) error {
	return DoWithRetryable(ctx, config, fn, DefaultRetryable)
}

// DoWithRetryable executes fn with exponential backoff. Non-retryable errors
// are returned as is; exhausting attempts or the time budget yields a
// *RetriesExceededError wrapping the last error.
func DoWithRetryable(ctx context.Context, config Config, fn RetryableFunc, isRetryable IsRetryableFunc) error {
	cfg := config
	if err := cfg.Normalize(); err != nil {
		return err
	}

	var lastErr error
	start := cfg.Clock.Now()

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		if !isRetryable(lastErr) {
			return lastErr
		}

		var delay time.Duration
		if cfg.NextDelay != nil {
			d, ok := cfg.NextDelay(attempt, lastErr)
			if !ok {
				return lastErr
			}
			delay = d
		}
		if delay <= 0 {
			delay = cfg.applyJitter(cfg.calculateDelay(attempt))
		}

		if cfg.MaxElapsedTime > 0 {
			elapsed := cfg.Clock.Now().Sub(start)
			if elapsed+delay > cfg.MaxElapsedTime {
				return &RetriesExceededError{
					LastError:     lastErr,
					Attempts:      attempt,
					TotalDuration: elapsed,
					Reason:        "max elapsed time exceeded",
				}
			}
		}
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); delay > remaining {
				delay = remaining
			}
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr, delay)
		}

		timer := cfg.Clock.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return &RetriesExceededError{
		LastError:     lastErr,
		Attempts:      cfg.MaxAttempts,
		TotalDuration: cfg.Clock.Now().Sub(start),
		Reason:        "max attempts exceeded",
	}
}

// calculateDelay returns InitialDelay * Multiplier^(attempt-1), capped at MaxDelay.
func (c Config) calculateDelay(attempt int) time.Duration {
	delay := c.InitialDelay
	for i := 1; i < attempt; i++ {
		if float64(delay)*c.Multiplier >= float64(c.MaxDelay) {
			return c.MaxDelay
		}
		delay = time.Duration(float64(delay) * c.Multiplier)
	}
	return min(delay, c.MaxDelay)
}

func (c Config) applyJitter(base time.Duration) time.Duration {
	if base <= 0 {
		return base
	}
	switch c.Jitter {
	case JitterEqual:
		return min(time.Duration(c.Rand.Int63n(int64(base))), c.MaxDelay)
	case JitterDecorrelated:
		spread := base / 2
		if spread <= 0 {
			return base
		}
		return min(base+time.Duration(c.Rand.Int63n(int64(spread))), c.MaxDelay)
	default:
		return base
	}
}

// Retry runs fn with DefaultConfig.
func Retry(ctx context.Context, fn RetryableFunc) error {
	return Do(ctx, DefaultConfig(), fn)
}

// RetryWithAttempts runs fn with DefaultConfig and a custom attempt count.
func RetryWithAttempts(ctx context.Context, maxAttempts int, fn RetryableFunc) error {
	cfg := DefaultConfig()
	cfg.MaxAttempts = maxAttempts
	return Do(ctx, cfg, fn)
}
