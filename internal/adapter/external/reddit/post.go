package reddit

import (
	"math"
	"time"
)

// Post - поля ссылки (kind t3), которые сохраняются в каждом снимке.
type Post struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Title       string  `json:"title"`
	Thumbnail   string  `json:"thumbnail"`
	Permalink   string  `json:"permalink"`
	URL         string  `json:"url"`
	Domain      string  `json:"domain"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	SubredditID string  `json:"subreddit_id"`
	Ups         int     `json:"ups"`
	Downs       int     `json:"downs"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	Created     float64 `json:"created"`
	CreatedUTC  float64 `json:"created_utc"`
	IsSelf      bool    `json:"is_self"`
	Over18      bool    `json:"over_18"`
	Media       *Media  `json:"media"`
}

// Media - встроенный контент; у ссылок без медиа поле null.
type Media struct {
	Oembed *struct {
		ProviderURL string `json:"provider_url"`
	} `json:"oembed"`
}

// MediaURL возвращает media.oembed.provider_url или пустую строку.
func (p Post) MediaURL() string {
	if p.Media == nil || p.Media.Oembed == nil {
		return ""
	}
	return p.Media.Oembed.ProviderURL
}

// CreatedAt переводит created_utc в time.Time.
func (p Post) CreatedAt() time.Time {
	sec, frac := math.Modf(p.CreatedUTC)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

// MostCommented выбирает пост с наибольшим числом комментариев;
// при равенстве побеждает более ранний в выдаче. ok=false для пустого списка.
func MostCommented(posts []Post) (best Post, ok bool) {
	for i, p := range posts {
		if i == 0 || p.NumComments > best.NumComments {
			best = p
		}
	}
	return best, len(posts) > 0
}
