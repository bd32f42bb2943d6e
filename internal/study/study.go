package study

import (
	"context"
	"errors"
	"time"

	"redditstudy/internal/adapter/external/reddit"
)

// Status is the lifecycle state of a persisted study.
type Status string

const (
	StatusSampling   Status = "sampling"
	StatusCollecting Status = "collecting"
	StatusDone       Status = "done"
	StatusAborted    Status = "aborted"
	StatusFailed     Status = "failed"
)

// Finished reports whether the study reached a terminal state.
func (s Status) Finished() bool {
	return s == StatusDone || s == StatusAborted || s == StatusFailed
}

var (
	// ErrStudyRunning is returned by Runner.Run while another study is in progress.
	ErrStudyRunning = errors.New("study: another study is running")
	// ErrNoSamples means the sampling phase ended without a single post.
	ErrNoSamples = errors.New("study: sampling produced no posts")
)

// Study is one persisted study run.
type Study struct {
	ID         string     `json:"id"`
	Status     Status     `json:"status"`
	Subreddits []string   `json:"subreddits"`
	SampleSize int        `json:"sample_size"`
	Repeat     int        `json:"repeat"`
	Sampled    int        `json:"sampled"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Sample is a post chosen during the sampling phase.
type Sample struct {
	StudyID     string `json:"study_id"`
	Position    int    `json:"position"`
	Name        string `json:"name"`
	Subreddit   string `json:"subreddit"`
	Title       string `json:"title"`
	NumComments int    `json:"num_comments"`
}

// Snapshot is one re-fetch of a sampled post.
type Snapshot struct {
	StudyID   string
	Pass      int
	FetchedAt time.Time
	Post      reddit.Post
}

// Reddit is the subset of the Reddit API a study needs.
type Reddit interface {
	NewPosts(ctx context.Context, subreddit string) ([]reddit.Post, error)
	PostByName(ctx context.Context, name string) (reddit.Post, error)
}

// Store persists studies, their samples and snapshots.
type Store interface {
	CreateStudy(ctx context.Context, s Study) error
	SetStatus(ctx context.Context, id string, status Status) error
	FinishStudy(ctx context.Context, id string, status Status, at time.Time) error
	// AddSample stores the sample and bumps the study's sampled counter atomically.
	AddSample(ctx context.Context, s Sample) error
	AddSnapshot(ctx context.Context, s Snapshot) error
	GetStudy(ctx context.Context, id string) (Study, error)
	ListStudies(ctx context.Context, limit int) ([]Study, error)
	ListSamples(ctx context.Context, studyID string) ([]Sample, error)
	CountSnapshots(ctx context.Context, studyID string) (int, error)
}

// Notifier receives human-readable lifecycle messages.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// NopNotifier drops every message.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string) error { return nil }
