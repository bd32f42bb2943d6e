package reddit_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redditstudy/internal/adapter/external/reddit"
	"redditstudy/internal/platform/httpclient"
	"redditstudy/internal/shared"
)

const newListing = `{
  "kind": "Listing",
  "data": {
    "after": null,
    "children": [
      {"kind": "t3", "data": {"id": "a1", "name": "t3_a1", "title": "first", "num_comments": 3, "score": 10, "subreddit": "funny", "media": null}},
      {"kind": "t3", "data": {"id": "b2", "name": "t3_b2", "title": "second", "num_comments": 321, "score": 4529, "subreddit": "funny",
        "media": {"oembed": {"provider_url": "https://www.youtube.com/"}}, "created_utc": 1370974958.5, "over_18": true}},
      {"kind": "t1", "data": {"id": "c3", "name": "t1_c3"}},
      {"kind": "t3", "data": {"id": "d4", "name": "t3_d4", "title": "third", "num_comments": 321, "subreddit": "funny"}}
    ]
  }
}`

func newClient(t *testing.T, h http.HandlerFunc) *reddit.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	hc := httpclient.New(httpclient.WithRetries(1, time.Millisecond), httpclient.WithUserAgent("redditstudy-test/1.0"))
	return reddit.NewClient(hc, srv.URL+"/", nil)
}

func TestNewPosts(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/r/funny/new.json", r.URL.Path)
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		assert.Equal(t, "redditstudy-test/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(newListing))
	})

	posts, err := c.NewPosts(context.Background(), "funny")
	require.NoError(t, err)
	require.Len(t, posts, 3, "non-link children are skipped")

	assert.Equal(t, "t3_a1", posts[0].Name)
	assert.Empty(t, posts[0].MediaURL())
	assert.Equal(t, "https://www.youtube.com/", posts[1].MediaURL())
	assert.True(t, posts[1].Over18)
	assert.Equal(t, time.Unix(1370974958, 500_000_000).UTC(), posts[1].CreatedAt())
}

func TestNewPosts_InvalidSubreddit(t *testing.T) {
	var calls int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) { atomic.AddInt32(&calls, 1) })

	for _, sub := range []string{"", "a", "has space", "../admin", "waytoolongsubredditname"} {
		_, err := c.NewPosts(context.Background(), sub)
		assert.True(t, shared.IsValidation(err), sub)
	}
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestNewPosts_UnexpectedKind(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"kind":"t5","data":{}}`))
	})

	_, err := c.NewPosts(context.Background(), "funny")
	assert.True(t, shared.IsDependencyFailure(err))
}

func TestNewPosts_StatusKinds(t *testing.T) {
	tests := []struct {
		status int
		check  func(error) bool
	}{
		{http.StatusNotFound, shared.IsNotFound},
		{http.StatusTooManyRequests, shared.IsRateLimited},
		{http.StatusBadGateway, shared.IsDependencyFailure},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := c.NewPosts(context.Background(), "funny")
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())
			assert.Contains(t, err.Error(), "r/funny")
		})
	}
}

func TestPostByName(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/by_id/t3_b2.json", r.URL.Path)
		_, _ = w.Write([]byte(`{"kind":"Listing","data":{"children":[{"kind":"t3","data":{"name":"t3_b2","score":4600,"ups":15406,"downs":10877}}]}}`))
	})

	post, err := c.PostByName(context.Background(), "t3_b2")
	require.NoError(t, err)
	assert.Equal(t, 4600, post.Score)
	assert.Equal(t, 15406, post.Ups)
	assert.Equal(t, 10877, post.Downs)
}

func TestPostByName_Errors(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"kind":"Listing","data":{"children":[]}}`))
	})

	_, err := c.PostByName(context.Background(), "t3_gone")
	assert.True(t, shared.IsNotFound(err))

	_, err = c.PostByName(context.Background(), "1g4ykr")
	assert.True(t, shared.IsValidation(err))
}

func TestPostByName_ContextCanceled(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.PostByName(ctx, "t3_slow")
	assert.True(t, shared.IsTimeout(err), "%v", err)
}

func TestMostCommented(t *testing.T) {
	_, ok := reddit.MostCommented(nil)
	assert.False(t, ok)

	posts := []reddit.Post{
		{Name: "t3_a", NumComments: 3},
		{Name: "t3_b", NumComments: 321},
		{Name: "t3_c", NumComments: 321},
		{Name: "t3_d", NumComments: 7},
	}
	best, ok := reddit.MostCommented(posts)
	assert.True(t, ok)
	assert.Equal(t, "t3_b", best.Name, "ties keep the earlier post")
}
