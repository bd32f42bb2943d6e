package study

import (
	"context"
	"log/slog"
	"sync"

	"redditstudy/internal/adapter/external/reddit"
	"redditstudy/internal/shared"
	"redditstudy/internal/throttle"
)

// sampler picks one post per step, visiting subreddits round-robin until
// every subreddit has used up its quota. State is guarded by mu because a
// step abandoned on timeout may still be running when the next one starts.
type sampler struct {
	mu      sync.Mutex
	studyID string
	subs    []string
	quotas  []int
	next    int
	seen    map[string]bool
	samples []Sample

	reddit Reddit
	store  Store
	run    *run
	log    *slog.Logger
}

func newSampler(studyID string, plan Plan, rd Reddit, store Store, rn *run, log *slog.Logger) *sampler {
	quotas := make([]int, len(plan.Subreddits))
	for i := range quotas {
		quotas[i] = plan.Quota()
	}
	return &sampler{
		studyID: studyID,
		subs:    plan.Subreddits,
		quotas:  quotas,
		seen:    make(map[string]bool, plan.SampleSize),
		reddit:  rd,
		store:   store,
		run:     rn,
		log:     log,
	}
}

// pick returns the next subreddit with quota left and charges it. The quota
// is spent even when the fetch that follows fails.
func (s *sampler) pick() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for range s.subs {
		i := s.next
		s.next = (s.next + 1) % len(s.subs)
		if s.quotas[i] > 0 {
			s.quotas[i]--
			return s.subs[i], true
		}
	}
	return "", false
}

func (s *sampler) step(ctx context.Context, tick throttle.Tick[int], advance throttle.AdvanceFunc) {
	defer advance()

	sub, ok := s.pick()
	if !ok {
		return
	}
	posts, err := s.reddit.NewPosts(ctx, sub)
	if err != nil {
		s.fail("fetch new posts failed", err, "subreddit", sub, "step", tick.Index)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := posts[:0:0]
	for _, p := range posts {
		if !s.seen[p.Name] {
			fresh = append(fresh, p)
		}
	}
	post, ok := reddit.MostCommented(fresh)
	if !ok {
		s.log.Warn("no new post to sample", "subreddit", sub, "step", tick.Index, "fetched", len(posts))
		return
	}

	sample := Sample{
		StudyID:     s.studyID,
		Position:    len(s.samples),
		Name:        post.Name,
		Subreddit:   sub,
		Title:       post.Title,
		NumComments: post.NumComments,
	}
	if err := s.store.AddSample(ctx, sample); err != nil {
		s.fail("store sample failed", err, "name", post.Name)
		return
	}
	s.seen[post.Name] = true
	s.samples = append(s.samples, sample)
	s.run.add(func(p *Progress) { p.Sampled++ })

	s.log.Info("post sampled",
		"step", tick.Index,
		"subreddit", sub,
		"name", post.Name,
		"comments", post.NumComments,
		"title", truncate(post.Title, 50),
	)
}

// result returns the samples collected so far in sampling order.
func (s *sampler) result() []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Sample(nil), s.samples...)
}

func (s *sampler) fail(msg string, err error, args ...any) {
	s.run.add(func(p *Progress) { p.Failures++ })
	level := slog.LevelWarn
	if shared.IsCanceled(err) {
		level = slog.LevelDebug
	}
	s.log.Log(context.Background(), level, msg, append(args, "error", err)...)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
