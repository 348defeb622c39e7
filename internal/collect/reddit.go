package collect

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/social-listener/internal/fetcher"
	"github.com/sells-group/social-listener/internal/model"
)

// RedditSource polls the public new-post listing of each configured
// subreddit. No credentials needed; the JSON listing endpoint is open.
type RedditSource struct {
	fetcher fetcher.Fetcher
	baseURL string
	limit   int
}

// NewRedditSource creates a reddit adapter fetching up to limit posts per
// subreddit.
func NewRedditSource(f fetcher.Fetcher, limit int) *RedditSource {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	return &RedditSource{fetcher: f, baseURL: "https://www.reddit.com", limit: limit}
}

func (s *RedditSource) Platform() model.Platform { return model.PlatformReddit }

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				ID          string  `json:"id"`
				Author      string  `json:"author"`
				Title       string  `json:"title"`
				Selftext    string  `json:"selftext"`
				Permalink   string  `json:"permalink"`
				Score       int     `json:"score"`
				NumComments int     `json:"num_comments"`
				CreatedUTC  float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

func (s *RedditSource) Fetch(ctx context.Context, set model.Settings) ([]model.RawPost, error) {
	if len(set.Subreddits) == 0 {
		zap.L().Warn("no subreddits configured, skipping reddit")
		return nil, nil
	}

	var posts []model.RawPost
	var lastErr error
	for _, sub := range set.Subreddits {
		url := fmt.Sprintf("%s/r/%s/new.json?limit=%d", s.baseURL, sub, s.limit)

		var listing redditListing
		if err := s.fetcher.GetJSON(ctx, url, &listing); err != nil {
			// One unreachable subreddit should not sink the rest.
			zap.L().Warn("subreddit fetch failed",
				zap.String("subreddit", sub), zap.Error(err))
			lastErr = err
			continue
		}

		for _, child := range listing.Data.Children {
			d := child.Data
			author := d.Author
			if author == "" {
				author = "[deleted]"
			}
			content := d.Selftext
			if content == "" {
				content = d.Title
			}
			posts = append(posts, model.RawPost{
				Platform:    model.PlatformReddit,
				PostID:      d.ID,
				Author:      author,
				Title:       d.Title,
				Content:     content,
				URL:         "https://reddit.com" + d.Permalink,
				Source:      sub,
				Score:       d.Score,
				NumComments: d.NumComments,
				CollectedAt: time.Unix(int64(d.CreatedUTC), 0).UTC(),
			})
		}
	}

	if posts == nil && lastErr != nil {
		return nil, eris.Wrap(lastErr, "reddit: all subreddits failed")
	}
	return posts, nil
}
