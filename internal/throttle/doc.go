// Package throttle drives a step function over an ordered source at a bounded
// rate, one step at a time, for a fixed number of passes.
//
// The interval is a floor on the spacing between the starts of consecutive
// steps. A step that finishes early is followed by a wait for the remainder
// of the interval; a step that overruns is followed immediately by the next
// one and the overrun is never paid back.
//
// Steps signal completion by calling advance, possibly from another goroutine.
// Only the first call per step counts.
//
// Basic usage:
//
//	th, err := throttle.New(throttle.Slice(posts), func(ctx context.Context, tick throttle.Tick[Post], advance throttle.AdvanceFunc) {
//		defer advance()
//		fetch(ctx, tick.Item)
//	}, 500*time.Millisecond,
//		throttle.WithPasses(120),
//		throttle.WithOnComplete(func(last int) { logger.Info("done", "last", last) }),
//	)
//	if err != nil {
//		return err
//	}
//	defer th.Close()
//	<-th.Done()
//
// Lifecycle:
//   - New starts the schedule right away
//   - Stop halts scheduling; an in-flight step still finishes and its item counts as done
//   - Start resumes from the next unfinished item
//   - Restart rewinds to the first item of the first pass
//   - Close tears down the event loop and cancels the in-flight step's context
//
// Hooks run on the event loop and must not call back into the throttle.
// The completion callback runs on its own goroutine and may call Restart.
package throttle
