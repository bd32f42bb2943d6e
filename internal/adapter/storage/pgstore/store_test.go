package pgstore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redditstudy/internal/adapter/external/reddit"
	"redditstudy/internal/adapter/storage/pgstore"
	"redditstudy/internal/platform/pg"
	"redditstudy/internal/shared"
	"redditstudy/internal/study"
)

// newStore подключается к TEST_DATABASE_URL; без него тесты пропускаются.
func newStore(t *testing.T) *pgstore.Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	_, err := pgstore.Migrate(dsn)
	require.NoError(t, err)

	pool, err := pg.NewPool(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pgstore.New(pool)
}

// newStudy создает исследование с уникальным id и удаляет его после теста.
func newStudy(t *testing.T, s *pgstore.Store, at time.Time) study.Study {
	t.Helper()
	st := study.Study{
		ID:         uuid.NewString(),
		Status:     study.StatusSampling,
		Subreddits: []string{"golang", "rust"},
		SampleSize: 4,
		Repeat:     2,
		StartedAt:  at,
	}
	require.NoError(t, s.CreateStudy(context.Background(), st))
	return st
}

func TestMigrate_InvalidDSN(t *testing.T) {
	_, err := pgstore.Migrate("host=localhost user=x")
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err), "got %v", err)
}

func TestStore_Lifecycle(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))

	started := time.Now().UTC().Truncate(time.Microsecond)
	st := newStudy(t, s, started)

	got, err := s.GetStudy(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, st.Subreddits, got.Subreddits)
	assert.Equal(t, started, got.StartedAt)
	assert.Nil(t, got.FinishedAt)

	require.NoError(t, s.SetStatus(ctx, st.ID, study.StatusCollecting))

	smp := study.Sample{StudyID: st.ID, Position: 0, Name: "t3_a", Subreddit: "golang", Title: "A", NumComments: 3}
	require.NoError(t, s.AddSample(ctx, smp))
	err = s.AddSample(ctx, study.Sample{StudyID: st.ID, Position: 0, Name: "t3_b", Subreddit: "rust"})
	assert.True(t, shared.IsConflict(err), "got %v", err)

	samples, err := s.ListSamples(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, []study.Sample{smp}, samples)

	post := reddit.Post{ID: "a", Name: "t3_a", Score: 12, IsSelf: true}
	for pass := 0; pass < 2; pass++ {
		require.NoError(t, s.AddSnapshot(ctx, study.Snapshot{StudyID: st.ID, Pass: pass, FetchedAt: started, Post: post}))
	}
	n, err := s.CountSnapshots(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	finished := started.Add(time.Hour)
	require.NoError(t, s.FinishStudy(ctx, st.ID, study.StatusDone, finished))

	got, err = s.GetStudy(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, study.StatusDone, got.Status)
	assert.Equal(t, 1, got.Sampled)
	require.NotNil(t, got.FinishedAt)
	assert.Equal(t, finished, *got.FinishedAt)

	list, err := s.ListStudies(ctx, 1000)
	require.NoError(t, err)
	var ids []string
	for _, l := range list {
		ids = append(ids, l.ID)
	}
	assert.Contains(t, ids, st.ID)
}

func TestStore_NotFound(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	missing := uuid.NewString()

	_, err := s.GetStudy(ctx, missing)
	assert.True(t, shared.IsNotFound(err), "got %v", err)
	assert.True(t, shared.IsNotFound(s.SetStatus(ctx, missing, study.StatusDone)))
	assert.True(t, shared.IsNotFound(s.AddSample(ctx, study.Sample{StudyID: missing, Name: "t3_a"})))
}
