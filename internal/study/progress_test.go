package study

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"redditstudy/internal/throttle"
)

func TestProgress_String(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		p    Progress
		want string
	}{
		{
			name: "never ran",
			p:    Progress{Phase: PhaseIdle},
			want: "No study has run yet.",
		},
		{
			name: "collecting",
			p: Progress{
				Running:   true,
				StudyID:   "s1",
				Phase:     PhaseCollecting,
				StartedAt: &started,
				Sampled:   300,
				Snapshots: 451,
				Failures:  2,
				Throttle:  &throttle.Status{Cursor: 150, Length: 300, Pass: 1, TotalPasses: 120},
			},
			want: "Study s1: collecting\n" +
				"Started: 2026-03-01T12:00:00Z\n" +
				"Sampled: 300, snapshots: 451, failures: 2\n" +
				"Pass 2/120, item 151/300",
		},
		{
			name: "finished",
			p: Progress{
				StudyID:   "s1",
				Phase:     PhaseIdle,
				Sampled:   3,
				Snapshots: 9,
			},
			want: "Study s1: finished\nSampled: 3, snapshots: 9, failures: 0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.String())
		})
	}
}

func TestSampler_PickRoundRobin(t *testing.T) {
	plan := Plan{Subreddits: []string{"aa", "bb", "cc"}, SampleSize: 5, Repeat: 1}
	s := newSampler("s1", plan, nil, nil, &run{}, nil)

	var got []string
	for {
		sub, ok := s.pick()
		if !ok {
			break
		}
		got = append(got, sub)
	}
	// quota is 5/3 = 1 each
	assert.Equal(t, []string{"aa", "bb", "cc"}, got)
}

func TestSampler_PickSkipsExhausted(t *testing.T) {
	plan := Plan{Subreddits: []string{"aa", "bb"}, SampleSize: 4, Repeat: 1}
	s := newSampler("s1", plan, nil, nil, &run{}, nil)
	s.quotas[0] = 0

	var got []string
	for sub, ok := s.pick(); ok; sub, ok = s.pick() {
		got = append(got, sub)
	}
	assert.Equal(t, []string{"bb", "bb"}, got)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "приве...", truncate("привет мир", 5))
}
