package study

import (
	"context"
	"log/slog"

	"github.com/jmhodges/clock"

	"redditstudy/internal/shared"
	"redditstudy/internal/throttle"
)

// collector re-fetches every sampled post once per pass and stores a snapshot.
type collector struct {
	studyID string
	reddit  Reddit
	store   Store
	clock   clock.Clock
	run     *run
	log     *slog.Logger
}

func (c *collector) step(ctx context.Context, tick throttle.Tick[Sample], advance throttle.AdvanceFunc) {
	defer advance()

	post, err := c.reddit.PostByName(ctx, tick.Item.Name)
	if err != nil {
		c.fail("fetch post failed", err, "name", tick.Item.Name, "pass", tick.Pass)
		return
	}

	snap := Snapshot{
		StudyID:   c.studyID,
		Pass:      tick.Pass,
		FetchedAt: c.clock.Now().UTC(),
		Post:      post,
	}
	if err := c.store.AddSnapshot(ctx, snap); err != nil {
		c.fail("store snapshot failed", err, "name", post.Name, "pass", tick.Pass)
		return
	}
	c.run.add(func(p *Progress) { p.Snapshots++ })

	c.log.Debug("post updated", "pass", tick.Pass, "index", tick.Index, "name", post.Name, "score", post.Score)
}

// onPass logs pass boundaries; it runs on the throttle's event loop.
func (c *collector) onPass(pass int) {
	c.log.Info("collection pass finished", "pass", pass)
}

func (c *collector) fail(msg string, err error, args ...any) {
	c.run.add(func(p *Progress) { p.Failures++ })
	level := slog.LevelWarn
	if shared.IsCanceled(err) {
		level = slog.LevelDebug
	}
	c.log.Log(context.Background(), level, msg, append(args, "error", err)...)
}
