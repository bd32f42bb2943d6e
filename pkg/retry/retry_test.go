package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmhodges/clock"

	"redditstudy/internal/shared"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Jitter:       JitterNone,
	}
}

// drive keeps moving a fake clock forward until stop is closed.
func drive(fake clock.FakeClock, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
			fake.Add(100 * time.Millisecond)
			time.Sleep(time.Millisecond)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxAttempts != 3 {
		t.Errorf("expected MaxAttempts=3, got %d", cfg.MaxAttempts)
	}
	if cfg.InitialDelay != 100*time.Millisecond {
		t.Errorf("expected InitialDelay=100ms, got %v", cfg.InitialDelay)
	}
	if cfg.Jitter != JitterDecorrelated {
		t.Errorf("expected decorrelated jitter, got %v", cfg.Jitter)
	}
}

func TestDefaultRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"rate limited", shared.Wrap(shared.ErrRateLimited, "reddit"), true},
		{"dependency", shared.MarkKind(errors.New("502"), shared.KindDependencyFailure), true},
		{"validation", shared.Validationf("bad chat id"), false},
		{"not found", shared.ErrNotFound, false},
		{"unauthorized", shared.ErrUnauthorized, false},
		{"eof", fmt.Errorf("read: %w", io.ErrUnexpectedEOF), true},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"temporary dns", &net.DNSError{IsTemporary: true}, true},
		{"plain", errors.New("regular"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultRetryable(tt.err); got != tt.expected {
				t.Errorf("DefaultRetryable(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestCalculateDelay(t *testing.T) {
	cfg := Config{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
	want := []time.Duration{100, 200, 400, 800, 1000, 1000}
	for i, w := range want {
		if got := cfg.calculateDelay(i + 1); got != w*time.Millisecond {
			t.Errorf("calculateDelay(%d) = %v, want %v", i+1, got, w*time.Millisecond)
		}
	}
}

func TestApplyJitter(t *testing.T) {
	base := 100 * time.Millisecond
	cfg := Config{MaxDelay: time.Second, Rand: rand.New(rand.NewSource(1))}

	cfg.Jitter = JitterNone
	if got := cfg.applyJitter(base); got != base {
		t.Errorf("no jitter changed delay to %v", got)
	}

	for i := 0; i < 100; i++ {
		cfg.Jitter = JitterEqual
		if got := cfg.applyJitter(base); got < 0 || got >= base {
			t.Fatalf("equal jitter out of range: %v", got)
		}
		cfg.Jitter = JitterDecorrelated
		if got := cfg.applyJitter(base); got < base || got >= base*3/2 {
			t.Fatalf("decorrelated jitter out of range: %v", got)
		}
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	var attempts int32
	err := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return shared.ErrDependencyFailure
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestDo_NonRetryableStopsAtOnce(t *testing.T) {
	var attempts int32
	want := shared.Validationf("chat id missing")
	err := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected original error, got %v", err)
	}
	var exceeded *RetriesExceededError
	if errors.As(err, &exceeded) {
		t.Error("non-retryable error must not be wrapped")
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestDo_MaxAttempts(t *testing.T) {
	var attempts int32
	err := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return shared.ErrTimeout
	})

	var exceeded *RetriesExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected RetriesExceededError, got %T", err)
	}
	if exceeded.Attempts != 3 || exceeded.Reason != "max attempts exceeded" {
		t.Errorf("unexpected error details: %+v", exceeded)
	}
	if !errors.Is(err, shared.ErrTimeout) {
		t.Error("last error should be unwrapped")
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 5, InitialDelay: time.Second, Jitter: JitterNone}

	err := Do(ctx, cfg, func(ctx context.Context) error {
		time.AfterFunc(10*time.Millisecond, cancel)
		return shared.ErrDependencyFailure
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDo_ContextAlreadyDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := Do(ctx, fastConfig(3), func(ctx context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected no attempt and context.Canceled, got called=%v err=%v", called, err)
	}
}

func TestDo_InvalidConfig(t *testing.T) {
	bad := []Config{
		{MaxAttempts: 0, InitialDelay: time.Millisecond},
		{MaxAttempts: 1, InitialDelay: 0},
		{MaxAttempts: 1, InitialDelay: time.Second, MaxDelay: time.Millisecond},
		{MaxAttempts: 1, InitialDelay: time.Millisecond, Multiplier: 0.5},
		{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxElapsedTime: -1},
	}
	for i, cfg := range bad {
		err := Do(context.Background(), cfg, func(ctx context.Context) error { return nil })
		if !shared.IsValidation(err) {
			t.Errorf("config %d: expected validation error, got %v", i, err)
		}
	}
}

func TestDo_MaxElapsedTime(t *testing.T) {
	fake := clock.NewFake()
	stop := make(chan struct{})
	defer close(stop)
	go drive(fake, stop)

	cfg := Config{
		MaxAttempts:    100,
		InitialDelay:   time.Second,
		MaxDelay:       time.Second,
		MaxElapsedTime: 3 * time.Second,
		Jitter:         JitterNone,
		Clock:          fake,
	}
	var attempts int32
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return shared.ErrRateLimited
	})

	var exceeded *RetriesExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected RetriesExceededError, got %v", err)
	}
	if exceeded.Reason != "max elapsed time exceeded" {
		t.Errorf("unexpected reason %q", exceeded.Reason)
	}
	if n := atomic.LoadInt32(&attempts); n < 2 || n > 4 {
		t.Errorf("expected 2-4 attempts within the budget, got %d", n)
	}
}

func TestDo_NextDelayAndOnRetry(t *testing.T) {
	var delays []time.Duration
	cfg := fastConfig(4)
	cfg.NextDelay = func(attempt int, err error) (time.Duration, bool) {
		if attempt == 3 {
			return 0, false
		}
		return time.Duration(attempt) * time.Millisecond, true
	}
	cfg.OnRetry = func(attempt int, err error, d time.Duration) {
		delays = append(delays, d)
	}

	var attempts int32
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return shared.ErrDependencyFailure
	})
	if !errors.Is(err, shared.ErrDependencyFailure) {
		t.Fatalf("unexpected error %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected policy to stop after 3 attempts, got %d", attempts)
	}
	if len(delays) != 2 || delays[0] != time.Millisecond || delays[1] != 2*time.Millisecond {
		t.Errorf("unexpected delays %v", delays)
	}
}

func TestDoWithRetryable_Custom(t *testing.T) {
	errBusy := errors.New("database is locked")
	var attempts int32
	err := DoWithRetryable(context.Background(), fastConfig(3), func(ctx context.Context) error {
		if atomic.AddInt32(&attempts, 1) == 1 {
			return errBusy
		}
		return nil
	}, func(err error) bool { return errors.Is(err, errBusy) })
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestRetryHelpers(t *testing.T) {
	if err := Retry(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
		t.Errorf("Retry: %v", err)
	}
	var attempts int32
	err := RetryWithAttempts(context.Background(), 2, func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return shared.ErrNotFound
	})
	if !shared.IsNotFound(err) || attempts != 1 {
		t.Errorf("expected one attempt and not found, got %d and %v", attempts, err)
	}
}

func TestRetriesExceededError_Message(t *testing.T) {
	err := &RetriesExceededError{
		LastError:     errors.New("502"),
		Attempts:      3,
		TotalDuration: 1500 * time.Millisecond,
		Reason:        "max attempts exceeded",
	}
	want := "retry: max attempts exceeded after 1.5s (3 attempts): 502"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}
