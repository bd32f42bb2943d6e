// Package reddit содержит адаптер к публичному JSON API Reddit
package reddit

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"redditstudy/internal/platform/httpclient"
	"redditstudy/internal/shared"
)

// DefaultBaseURL - адрес публичного API.
const DefaultBaseURL = "https://www.reddit.com"

var (
	subredditRe = regexp.MustCompile(`^[A-Za-z0-9_]{2,21}$`)
	fullnameRe  = regexp.MustCompile(`^t3_[a-z0-9]+$`)
)

// Client получает посты через httpclient (ретраи, Retry-After, общий лимит запросов)
type Client struct {
	http    *httpclient.Client
	baseURL string
	limit   int
	log     *slog.Logger
}

// NewClient создаёт клиент. Пустой baseURL означает DefaultBaseURL.
func NewClient(c *httpclient.Client, baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:    c,
		baseURL: strings.TrimRight(baseURL, "/"),
		limit:   25,
		log:     logger.With("component", "reddit"),
	}
}

// listing - обёртка ответа Reddit: {"kind":"Listing","data":{"children":[{"kind":"t3","data":{...}}]}}
type listing struct {
	Kind string `json:"kind"`
	Data struct {
		Children []struct {
			Kind string `json:"kind"`
			Data Post   `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

func (l listing) posts() []Post {
	out := make([]Post, 0, len(l.Data.Children))
	for _, ch := range l.Data.Children {
		if ch.Kind == "t3" {
			out = append(out, ch.Data)
		}
	}
	return out
}

// NewPosts возвращает свежие посты сабреддита (/r/<sub>/new.json)
func (c *Client) NewPosts(ctx context.Context, subreddit string) ([]Post, error) {
	if !subredditRe.MatchString(subreddit) {
		return nil, shared.Validationf("reddit: invalid subreddit name %q", subreddit)
	}
	q := url.Values{}
	q.Set("limit", fmt.Sprint(c.limit))
	q.Set("raw_json", "1")
	endpoint := fmt.Sprintf("%s/r/%s/new.json?%s", c.baseURL, subreddit, q.Encode())

	var l listing
	if err := c.http.GetJSON(ctx, endpoint, &l); err != nil {
		return nil, shared.Wrapf(err, "reddit: new posts of r/%s", subreddit)
	}
	if l.Kind != "Listing" {
		return nil, shared.MarkKind(fmt.Errorf("reddit: r/%s: unexpected response kind %q", subreddit, l.Kind), shared.KindDependencyFailure)
	}
	posts := l.posts()
	c.log.Debug("fetched new posts", "subreddit", subreddit, "count", len(posts))
	return posts, nil
}

// PostByName возвращает актуальное состояние поста по fullname (t3_xxx) через /by_id/<name>.json
func (c *Client) PostByName(ctx context.Context, name string) (Post, error) {
	if !fullnameRe.MatchString(name) {
		return Post{}, shared.Validationf("reddit: invalid post fullname %q", name)
	}
	endpoint := fmt.Sprintf("%s/by_id/%s.json?raw_json=1", c.baseURL, name)

	var l listing
	if err := c.http.GetJSON(ctx, endpoint, &l); err != nil {
		return Post{}, shared.Wrapf(err, "reddit: post %s", name)
	}
	posts := l.posts()
	if len(posts) == 0 {
		return Post{}, shared.Wrapf(shared.ErrNotFound, "reddit: post %s", name)
	}
	return posts[0], nil
}
