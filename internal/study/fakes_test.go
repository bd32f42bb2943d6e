package study_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"redditstudy/internal/adapter/external/reddit"
	"redditstudy/internal/shared"
	"redditstudy/internal/study"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func post(sub, name string, comments int) reddit.Post {
	return reddit.Post{
		ID:          name[3:],
		Name:        name,
		Title:       "post " + name,
		Subreddit:   sub,
		NumComments: comments,
	}
}

// fakeReddit serves fixed listings and counts every call.
type fakeReddit struct {
	mu       sync.Mutex
	listings map[string][]reddit.Post
	listErr  map[string]error
	postErr  map[string]error
	gate     chan struct{}
	newCalls []string
	fetches  map[string]int
}

func newFakeReddit(listings map[string][]reddit.Post) *fakeReddit {
	return &fakeReddit{
		listings: listings,
		listErr:  map[string]error{},
		postErr:  map[string]error{},
		fetches:  map[string]int{},
	}
}

func (f *fakeReddit) NewPosts(ctx context.Context, sub string) ([]reddit.Post, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.newCalls = append(f.newCalls, sub)
	if err := f.listErr[sub]; err != nil {
		return nil, err
	}
	return append([]reddit.Post(nil), f.listings[sub]...), nil
}

func (f *fakeReddit) PostByName(_ context.Context, name string) (reddit.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.postErr[name]; err != nil {
		return reddit.Post{}, err
	}
	for _, posts := range f.listings {
		for _, p := range posts {
			if p.Name == name {
				f.fetches[name]++
				p.Score = f.fetches[name]
				return p, nil
			}
		}
	}
	return reddit.Post{}, fmt.Errorf("%w: %s", shared.ErrNotFound, name)
}

func (f *fakeReddit) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.newCalls...)
}

// memStore is an in-memory study.Store.
type memStore struct {
	mu        sync.Mutex
	studies   map[string]study.Study
	samples   map[string][]study.Sample
	snapshots map[string][]study.Snapshot
	statuses  []study.Status
}

func newMemStore() *memStore {
	return &memStore{
		studies:   map[string]study.Study{},
		samples:   map[string][]study.Sample{},
		snapshots: map[string][]study.Snapshot{},
	}
}

func (m *memStore) CreateStudy(_ context.Context, s study.Study) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.studies[s.ID]; ok {
		return shared.ErrConflict
	}
	m.studies[s.ID] = s
	m.statuses = append(m.statuses, s.Status)
	return nil
}

func (m *memStore) SetStatus(_ context.Context, id string, status study.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.studies[id]
	if !ok {
		return shared.ErrNotFound
	}
	s.Status = status
	m.studies[id] = s
	m.statuses = append(m.statuses, status)
	return nil
}

func (m *memStore) FinishStudy(ctx context.Context, id string, status study.Status, at time.Time) error {
	if err := m.SetStatus(ctx, id, status); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.studies[id]
	s.FinishedAt = &at
	m.studies[id] = s
	return nil
}

func (m *memStore) AddSample(_ context.Context, smp study.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.studies[smp.StudyID]
	if !ok {
		return shared.ErrNotFound
	}
	s.Sampled++
	m.studies[smp.StudyID] = s
	m.samples[smp.StudyID] = append(m.samples[smp.StudyID], smp)
	return nil
}

func (m *memStore) AddSnapshot(_ context.Context, snap study.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snap.StudyID] = append(m.snapshots[snap.StudyID], snap)
	return nil
}

func (m *memStore) GetStudy(_ context.Context, id string) (study.Study, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.studies[id]
	if !ok {
		return study.Study{}, shared.ErrNotFound
	}
	return s, nil
}

func (m *memStore) ListStudies(_ context.Context, limit int) ([]study.Study, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]study.Study, 0, len(m.studies))
	for _, s := range m.studies {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) ListSamples(_ context.Context, id string) ([]study.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]study.Sample(nil), m.samples[id]...), nil
}

func (m *memStore) CountSnapshots(_ context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snapshots[id]), nil
}

func (m *memStore) snaps(id string) []study.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]study.Snapshot(nil), m.snapshots[id]...)
}

// recordingNotifier keeps every message.
type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Notify(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, text)
	return nil
}

func (n *recordingNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}
