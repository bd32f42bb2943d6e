package throttle

import (
	"log/slog"
	"time"

	"github.com/jmhodges/clock"
)

// Hooks are optional observability callbacks. They run on the throttle's
// event loop and must neither block nor call back into the throttle.
type Hooks struct {
	// OnStep is called right before a step is invoked.
	OnStep func(index, pass int)
	// OnWait is called once the next tick is armed, with the computed delay (0 = immediate).
	OnWait func(delay time.Duration)
	// OnPass is called after the last item of a pass has advanced.
	OnPass func(pass int)
	// OnStepTimeout is called when a step is forced forward by WithStepTimeout.
	OnStepTimeout func(index, pass int)
	// OnStepPanic is called when a step panics before advancing.
	OnStepPanic func(index, pass int, recovered any)
}

type options struct {
	passes      int
	onComplete  func(lastIndex int)
	logger      *slog.Logger
	clock       clock.Clock
	hooks       Hooks
	name        string
	stepTimeout time.Duration
}

// Option configures a Throttle.
type Option func(*options)

// WithPasses sets how many times the full source is traversed. Default 1.
func WithPasses(n int) Option {
	return func(o *options) { o.passes = n }
}

// WithOnComplete sets the completion callback. It receives the index of the
// last item of the last pass (-1 for an empty source) and runs on its own
// goroutine, so it may call Restart.
func WithOnComplete(fn func(lastIndex int)) Option {
	return func(o *options) { o.onComplete = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithHooks installs observability hooks.
func WithHooks(h Hooks) Option {
	return func(o *options) { o.hooks = h }
}

// WithName labels the throttle in logs and Status.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithStepTimeout forces the schedule forward when a step has not called
// advance within d. The step's context is cancelled at that point.
// Zero disables the timeout, which is the default.
func WithStepTimeout(d time.Duration) Option {
	return func(o *options) { o.stepTimeout = d }
}
