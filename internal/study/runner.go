package study

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmhodges/clock"

	"redditstudy/internal/shared"
	"redditstudy/internal/throttle"
)

// finalizeTimeout bounds the bookkeeping done after a study ends, which must
// run even when the study's context is already cancelled.
const finalizeTimeout = 10 * time.Second

// Result summarizes a finished Run.
type Result struct {
	Study     Study
	Sampled   int
	Snapshots int
	Failures  int
	Duration  time.Duration
}

// Runner executes studies one at a time.
type Runner struct {
	reddit   Reddit
	store    Store
	notifier Notifier
	clock    clock.Clock
	log      *slog.Logger
	newID    func() string

	mu   sync.Mutex
	cur  *run
	last Progress
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithNotifier sets where lifecycle messages go. Default drops them.
func WithNotifier(n Notifier) RunnerOption {
	return func(r *Runner) {
		if n != nil {
			r.notifier = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithClock replaces the wall clock for both phases.
func WithClock(c clock.Clock) RunnerOption {
	return func(r *Runner) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithIDGenerator overrides uuid-based study ids.
func WithIDGenerator(fn func() string) RunnerOption {
	return func(r *Runner) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// NewRunner creates a Runner.
func NewRunner(rd Reddit, store Store, opts ...RunnerOption) *Runner {
	r := &Runner{
		reddit:   rd,
		store:    store,
		notifier: NopNotifier{},
		clock:    clock.New(),
		log:      slog.Default(),
		newID:    uuid.NewString,
		last:     Progress{Phase: PhaseIdle},
	}
	for _, o := range opts {
		o(r)
	}
	r.log = r.log.With("component", "study")
	return r
}

// Progress reports the running study, or the last finished one.
func (r *Runner) Progress() Progress {
	r.mu.Lock()
	cur, last := r.cur, r.last
	r.mu.Unlock()

	if cur == nil {
		return last
	}
	return cur.snapshot()
}

// Running reports whether a study is in progress.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur != nil
}

// Run samples posts, then collects snapshots of them, and blocks until both
// phases finish or ctx is cancelled. A cancelled study is marked aborted.
func (r *Runner) Run(ctx context.Context, plan Plan) (Result, error) {
	if err := plan.Validate(); err != nil {
		return Result{}, err
	}
	rn, err := r.begin()
	if err != nil {
		return Result{}, err
	}
	defer r.end(rn)

	started := r.clock.Now().UTC()
	st := Study{
		ID:         r.newID(),
		Status:     StatusSampling,
		Subreddits: plan.Subreddits,
		SampleSize: plan.SampleSize,
		Repeat:     plan.Repeat,
		StartedAt:  started,
	}
	if err := r.store.CreateStudy(ctx, st); err != nil {
		return Result{}, shared.Wrap(err, "create study")
	}
	rn.add(func(p *Progress) {
		p.StudyID = st.ID
		p.StartedAt = &started
	})

	log := r.log.With("study_id", st.ID)
	log.Info("study started",
		"subreddits", plan.Subreddits,
		"sample_size", plan.SampleSize,
		"quota", plan.Quota(),
		"repeat", plan.Repeat,
	)
	r.notify(ctx, fmt.Sprintf("Study %s started: %d posts from %s, %d passes.",
		st.ID, plan.SampleSize, strings.Join(plan.Subreddits, ", "), plan.Repeat))

	runErr := r.phases(ctx, rn, st.ID, plan, log)
	return r.finish(ctx, rn, st, runErr, log)
}

func (r *Runner) phases(ctx context.Context, rn *run, id string, plan Plan, log *slog.Logger) error {
	smp := newSampler(id, plan, r.reddit, r.store, rn, log)
	err := runPhase(ctx, rn, PhaseSampling, throttle.Count(plan.SampleSize), smp.step, plan.SampleInterval,
		throttle.WithName("sampling"),
		throttle.WithLogger(log),
		throttle.WithClock(r.clock),
		throttle.WithStepTimeout(plan.StepTimeout),
	)
	if err != nil {
		return err
	}

	samples := smp.result()
	if len(samples) == 0 {
		return ErrNoSamples
	}
	log.Info("sampling finished", "sampled", len(samples))
	if err := r.store.SetStatus(ctx, id, StatusCollecting); err != nil {
		return shared.Wrap(err, "set status")
	}

	col := &collector{studyID: id, reddit: r.reddit, store: r.store, clock: r.clock, run: rn, log: log}
	return runPhase(ctx, rn, PhaseCollecting, throttle.Slice(samples), col.step, plan.CollectInterval,
		throttle.WithName("collecting"),
		throttle.WithPasses(plan.Repeat),
		throttle.WithLogger(log),
		throttle.WithClock(r.clock),
		throttle.WithStepTimeout(plan.StepTimeout),
		throttle.WithHooks(throttle.Hooks{OnPass: col.onPass}),
	)
}

// runPhase drives one throttle to completion. Cancelling ctx closes the
// throttle and cancels the step in flight.
func runPhase[T any](ctx context.Context, rn *run, phase Phase, src throttle.Source[T], step throttle.StepFunc[T], interval time.Duration, opts ...throttle.Option) error {
	th, err := throttle.NewWithContext(ctx, src, step, interval, opts...)
	if err != nil {
		return err
	}
	defer th.Close()

	rn.enter(phase, th.Status)
	done := th.Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) finish(ctx context.Context, rn *run, st Study, runErr error, log *slog.Logger) (Result, error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	status := StatusDone
	switch {
	case runErr == nil:
	case shared.IsCanceled(runErr) || errors.Is(runErr, context.DeadlineExceeded):
		status = StatusAborted
	default:
		status = StatusFailed
	}

	finished := r.clock.Now().UTC()
	if err := r.store.FinishStudy(fctx, st.ID, status, finished); err != nil {
		log.Error("failed to finish study", "status", status, "error", err)
		runErr = errors.Join(runErr, shared.Wrap(err, "finish study"))
	}

	p := rn.snapshot()
	st.Status = status
	st.Sampled = p.Sampled
	st.FinishedAt = &finished
	res := Result{
		Study:     st,
		Sampled:   p.Sampled,
		Snapshots: p.Snapshots,
		Failures:  p.Failures,
		Duration:  finished.Sub(st.StartedAt),
	}

	args := []any{"status", status, "sampled", res.Sampled, "snapshots", res.Snapshots, "failures", res.Failures, "duration", res.Duration}
	if runErr != nil {
		log.Warn("study ended", append(args, "error", runErr)...)
	} else {
		log.Info("study finished", args...)
	}
	r.notify(fctx, fmt.Sprintf("Study %s %s after %s: %d posts sampled, %d snapshots, %d failures.",
		st.ID, status, res.Duration.Round(time.Second), res.Sampled, res.Snapshots, res.Failures))

	if runErr != nil {
		return res, fmt.Errorf("study %s %s: %w", st.ID, status, runErr)
	}
	return res, nil
}

func (r *Runner) notify(ctx context.Context, text string) {
	if err := r.notifier.Notify(ctx, text); err != nil {
		r.log.Warn("notification failed", "error", err)
	}
}

func (r *Runner) begin() (*run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur != nil {
		return nil, ErrStudyRunning
	}
	r.cur = &run{progress: Progress{Running: true, Phase: PhaseSampling}}
	return r.cur, nil
}

func (r *Runner) end(rn *run) {
	rn.mu.Lock()
	rn.status = nil
	rn.progress.Running = false
	rn.progress.Phase = PhaseIdle
	last := rn.progress
	rn.mu.Unlock()

	r.mu.Lock()
	r.cur = nil
	r.last = last
	r.mu.Unlock()
}
