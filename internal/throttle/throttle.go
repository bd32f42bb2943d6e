package throttle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmhodges/clock"
)

// Tick describes one step invocation.
type Tick[T any] struct {
	Item   T
	Index  int
	Length int
	// Pass is the number of passes already completed in the current run.
	Pass int
}

// AdvanceFunc signals that a step has finished. Only the first call per step counts.
type AdvanceFunc func()

// StepFunc is the unit of work driven by a Throttle. It must eventually call
// advance; a step that never does stalls the schedule unless WithStepTimeout is set.
// ctx is cancelled when the throttle is closed or the step times out.
type StepFunc[T any] func(ctx context.Context, tick Tick[T], advance AdvanceFunc)

// Status is a point-in-time view of a schedule.
type Status struct {
	Name            string        `json:"name,omitempty"`
	Cursor          int           `json:"cursor"`
	Length          int           `json:"length"`
	Pass            int           `json:"pass"`
	TotalPasses     int           `json:"total_passes"`
	PassesRemaining int           `json:"passes_remaining"`
	Steps           int           `json:"steps"`
	Interval        time.Duration `json:"interval"`
	Running         bool          `json:"running"`
	InFlight        bool          `json:"in_flight"`
	Completed       bool          `json:"completed"`
	Closed          bool          `json:"closed"`
}

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdStop
	cmdRestart
	cmdStatus
)

type command struct {
	kind  cmdKind
	reply chan reply
}

type reply struct {
	err    error
	status Status
	done   <-chan struct{}
}

type eventKind int

const (
	evAdvance eventKind = iota
	evPanic
)

type event struct {
	kind      eventKind
	seq       uint64
	at        time.Time
	recovered any
}

// state is owned by the event loop goroutine.
type state struct {
	cursor          int
	pass            int
	passesRemaining int
	steps           int
	running         bool
	completed       bool

	inFlight  bool
	discard   bool // the in-flight step belongs to a run replaced by Restart
	seq       uint64
	tickStart time.Time
	cancel    context.CancelFunc

	timer     *clock.Timer
	timerC    <-chan time.Time
	deadline  *clock.Timer
	deadlineC <-chan time.Time

	done chan struct{}
}

// Throttle runs a step over every item of a Source, one at a time, keeping at
// least interval between the starts of consecutive steps. A single goroutine
// owns the schedule; advance calls, timers and lifecycle operations are
// messages into it.
type Throttle[T any] struct {
	name        string
	src         Source[T]
	step        StepFunc[T]
	interval    time.Duration
	passes      int
	onComplete  func(lastIndex int)
	stepTimeout time.Duration
	clock       clock.Clock
	logger      *slog.Logger
	hooks       Hooks

	ctx       context.Context
	cancel    context.CancelFunc
	cmds      chan command
	events    chan event
	loopDone  chan struct{}
	closeOnce sync.Once

	st        state
	final     Status
	finalDone chan struct{}
}

// New creates a throttle over src and starts it immediately.
func New[T any](src Source[T], step StepFunc[T], interval time.Duration, opts ...Option) (*Throttle[T], error) {
	return NewWithContext(context.Background(), src, step, interval, opts...)
}

// NewWithContext is New with a parent context. Cancelling ctx closes the throttle.
func NewWithContext[T any](ctx context.Context, src Source[T], step StepFunc[T], interval time.Duration, opts ...Option) (*Throttle[T], error) {
	o := options{passes: 1}
	for _, opt := range opts {
		opt(&o)
	}

	switch {
	case !src.valid():
		if src.n < 0 {
			return nil, invalidf("count must be non-negative, got %d", src.n)
		}
		return nil, invalidf("source must be built with Slice, Items or Count")
	case step == nil:
		return nil, invalidf("step is required")
	case interval < 0:
		return nil, invalidf("interval must be non-negative, got %s", interval)
	case o.passes < 1:
		return nil, invalidf("passes must be at least 1, got %d", o.passes)
	case o.stepTimeout < 0:
		return nil, invalidf("step timeout must be non-negative, got %s", o.stepTimeout)
	}

	if o.clock == nil {
		o.clock = clock.New()
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "throttle")
	if o.name != "" {
		logger = logger.With("name", o.name)
	}

	lctx, cancel := context.WithCancel(ctx)
	t := &Throttle[T]{
		name:        o.name,
		src:         src,
		step:        step,
		interval:    interval,
		passes:      o.passes,
		onComplete:  o.onComplete,
		stepTimeout: o.stepTimeout,
		clock:       o.clock,
		logger:      logger,
		hooks:       o.hooks,
		ctx:         lctx,
		cancel:      cancel,
		cmds:        make(chan command),
		events:      make(chan event),
		loopDone:    make(chan struct{}),
	}
	t.st = state{
		passesRemaining: o.passes - 1,
		done:            make(chan struct{}),
	}

	logger.Debug("throttle created", "length", src.n, "interval", interval, "passes", o.passes)
	go t.loop()
	return t, nil
}

// Start resumes a stopped schedule from where it left off. It is a no-op on a
// running schedule and returns ErrCompleted once every pass has finished.
func (t *Throttle[T]) Start() error {
	r, err := t.do(cmdStart)
	if err != nil {
		return err
	}
	return r.err
}

// Stop prevents further steps from being scheduled. A step already in flight
// is allowed to finish. Stop is idempotent.
func (t *Throttle[T]) Stop() {
	_, _ = t.do(cmdStop)
}

// Restart resets the schedule to the first item of the first pass and starts it.
func (t *Throttle[T]) Restart() error {
	r, err := t.do(cmdRestart)
	if err != nil {
		return err
	}
	return r.err
}

// Status returns a snapshot of the schedule.
func (t *Throttle[T]) Status() Status {
	r, err := t.do(cmdStatus)
	if err != nil {
		return t.final
	}
	return r.status
}

// Done returns a channel closed when the current run completes, after the
// completion callback has returned. Restart after completion starts a new run
// with a new channel. A run that is stopped or closed early never closes it.
func (t *Throttle[T]) Done() <-chan struct{} {
	r, err := t.do(cmdStatus)
	if err != nil {
		return t.finalDone
	}
	return r.done
}

// Close stops the event loop and cancels the context of an in-flight step.
// It waits for the loop to exit and is idempotent.
func (t *Throttle[T]) Close() {
	t.closeOnce.Do(t.cancel)
	<-t.loopDone
}

func (t *Throttle[T]) do(kind cmdKind) (reply, error) {
	c := command{kind: kind, reply: make(chan reply, 1)}
	select {
	case t.cmds <- c:
		return <-c.reply, nil
	case <-t.loopDone:
		return reply{}, ErrClosed
	}
}

func (t *Throttle[T]) post(ev event) {
	select {
	case t.events <- ev:
	case <-t.loopDone:
	}
}

func (t *Throttle[T]) loop() {
	defer close(t.loopDone)
	defer t.shutdown()

	t.begin()
	for {
		select {
		case <-t.ctx.Done():
			return
		case c := <-t.cmds:
			c.reply <- t.handle(c.kind)
		case ev := <-t.events:
			t.handleEvent(ev)
		case <-t.st.timerC:
			t.st.timer, t.st.timerC = nil, nil
			t.tick()
		case <-t.st.deadlineC:
			t.st.deadline, t.st.deadlineC = nil, nil
			t.timedOut()
		}
	}
}

func (t *Throttle[T]) handle(kind cmdKind) reply {
	switch kind {
	case cmdStart:
		return reply{err: t.start()}
	case cmdStop:
		t.stop()
	case cmdRestart:
		t.restart()
	}
	return reply{status: t.snapshot(), done: t.st.done}
}

func (t *Throttle[T]) handleEvent(ev event) {
	st := &t.st
	if !st.inFlight || ev.seq != st.seq {
		t.logger.Debug("ignoring advance from a finished step", "seq", ev.seq)
		return
	}
	if ev.kind == evPanic {
		t.logger.Error("step panicked", "index", st.cursor, "pass", st.pass, "panic", fmt.Sprint(ev.recovered))
		if t.hooks.OnStepPanic != nil {
			t.hooks.OnStepPanic(st.cursor, st.pass, ev.recovered)
		}
	}
	t.advanced(ev.at)
}

func (t *Throttle[T]) begin() {
	t.st.running = true
	if t.src.n == 0 {
		t.complete()
		return
	}
	t.tick()
}

func (t *Throttle[T]) start() error {
	st := &t.st
	if st.completed {
		return ErrCompleted
	}
	if st.running {
		return nil
	}
	st.running = true
	t.logger.Debug("throttle started", "cursor", st.cursor, "pass", st.pass)
	if st.inFlight {
		// the in-flight step's advance picks the loop back up
		return nil
	}
	t.schedule(t.resumeDelay())
	return nil
}

func (t *Throttle[T]) stop() {
	if !t.st.running {
		return
	}
	t.st.running = false
	t.stopTimer()
	t.logger.Debug("throttle stopped", "cursor", t.st.cursor, "pass", t.st.pass, "in_flight", t.st.inFlight)
}

func (t *Throttle[T]) restart() {
	st := &t.st
	t.stopTimer()
	if st.completed {
		st.done = make(chan struct{})
	}
	st.cursor = 0
	st.pass = 0
	st.passesRemaining = t.passes - 1
	st.steps = 0
	st.completed = false
	st.running = true
	t.logger.Debug("throttle restarted", "in_flight", st.inFlight)

	if st.inFlight {
		st.discard = true
		return
	}
	if t.src.n == 0 {
		t.complete()
		return
	}
	t.schedule(t.resumeDelay())
}

// resumeDelay keeps the spacing floor across Stop/Start and Restart.
func (t *Throttle[T]) resumeDelay() time.Duration {
	if t.st.tickStart.IsZero() {
		return 0
	}
	return nextDelay(t.interval, t.clock.Now().Sub(t.st.tickStart))
}

func (t *Throttle[T]) tick() {
	st := &t.st
	if !st.running || st.inFlight || st.completed {
		return
	}
	st.seq++
	st.inFlight = true
	st.steps++
	st.tickStart = t.clock.Now()

	tick := Tick[T]{
		Item:   t.src.at(st.cursor),
		Index:  st.cursor,
		Length: t.src.n,
		Pass:   st.pass,
	}
	ctx, cancel := context.WithCancel(t.ctx)
	st.cancel = cancel
	if t.stepTimeout > 0 {
		st.deadline = t.clock.NewTimer(t.stepTimeout)
		st.deadlineC = st.deadline.C
	}
	if t.hooks.OnStep != nil {
		t.hooks.OnStep(tick.Index, tick.Pass)
	}
	go t.invoke(ctx, tick, st.seq)
}

func (t *Throttle[T]) invoke(ctx context.Context, tick Tick[T], seq uint64) {
	var once sync.Once
	advance := func() {
		once.Do(func() {
			t.post(event{kind: evAdvance, seq: seq, at: t.clock.Now()})
		})
	}
	defer func() {
		if r := recover(); r != nil {
			reported := false
			once.Do(func() {
				reported = true
				t.post(event{kind: evPanic, seq: seq, at: t.clock.Now(), recovered: r})
			})
			if !reported {
				t.logger.Error("step panicked after advance", "index", tick.Index, "pass", tick.Pass, "panic", fmt.Sprint(r))
			}
		}
	}()
	t.step(ctx, tick, advance)
}

func (t *Throttle[T]) advanced(at time.Time) {
	st := &t.st
	st.inFlight = false
	t.endStep()
	elapsed := at.Sub(st.tickStart)

	if st.discard {
		st.discard = false
		if st.running {
			t.schedule(nextDelay(t.interval, elapsed))
		}
		return
	}

	switch {
	case st.cursor < t.src.n-1:
		st.cursor++
	case st.passesRemaining > 0:
		t.passDone()
		st.passesRemaining--
		st.pass++
		st.cursor = 0
	default:
		t.passDone()
		t.complete()
		return
	}

	if st.running {
		t.schedule(nextDelay(t.interval, elapsed))
	}
}

func (t *Throttle[T]) passDone() {
	t.logger.Debug("pass finished", "pass", t.st.pass, "passes_remaining", t.st.passesRemaining)
	if t.hooks.OnPass != nil {
		t.hooks.OnPass(t.st.pass)
	}
}

func (t *Throttle[T]) timedOut() {
	st := &t.st
	if !st.inFlight {
		return
	}
	t.logger.Warn("step did not advance in time", "index", st.cursor, "pass", st.pass, "timeout", t.stepTimeout)
	if t.hooks.OnStepTimeout != nil {
		t.hooks.OnStepTimeout(st.cursor, st.pass)
	}
	t.advanced(t.clock.Now())
}

func (t *Throttle[T]) complete() {
	st := &t.st
	st.completed = true
	st.running = false
	t.stopTimer()

	last := t.src.n - 1
	t.logger.Info("throttle completed", "steps", st.steps, "passes", t.passes, "last_index", last)

	done, cb := st.done, t.onComplete
	go func() {
		if cb != nil {
			cb(last)
		}
		close(done)
	}()
}

func (t *Throttle[T]) schedule(delay time.Duration) {
	t.stopTimer()
	if delay > 0 {
		t.st.timer = t.clock.NewTimer(delay)
		t.st.timerC = t.st.timer.C
	}
	if t.hooks.OnWait != nil {
		t.hooks.OnWait(delay)
	}
	if delay <= 0 {
		t.tick()
	}
}

func (t *Throttle[T]) stopTimer() {
	if t.st.timer != nil {
		t.st.timer.Stop()
	}
	t.st.timer, t.st.timerC = nil, nil
}

func (t *Throttle[T]) endStep() {
	st := &t.st
	if st.cancel != nil {
		st.cancel()
		st.cancel = nil
	}
	if st.deadline != nil {
		st.deadline.Stop()
	}
	st.deadline, st.deadlineC = nil, nil
}

func (t *Throttle[T]) shutdown() {
	t.stopTimer()
	t.endStep()
	t.st.running = false
	t.final = t.snapshot()
	t.final.Closed = true
	t.finalDone = t.st.done
	t.logger.Debug("throttle closed", "cursor", t.st.cursor, "completed", t.st.completed)
}

func (t *Throttle[T]) snapshot() Status {
	st := &t.st
	return Status{
		Name:            t.name,
		Cursor:          st.cursor,
		Length:          t.src.n,
		Pass:            st.pass,
		TotalPasses:     t.passes,
		PassesRemaining: st.passesRemaining,
		Steps:           st.steps,
		Interval:        t.interval,
		Running:         st.running,
		InFlight:        st.inFlight,
		Completed:       st.completed,
	}
}

// nextDelay returns how long to wait before the next tick given how long the
// current step took. An overrun yields zero; it is never paid back later.
func nextDelay(interval, elapsed time.Duration) time.Duration {
	if elapsed >= interval {
		return 0
	}
	return interval - elapsed
}
