package collect

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/social-listener/internal/fetcher"
	"github.com/sells-group/social-listener/internal/model"
)

const (
	algoliaSearchURL = "https://hn.algolia.com/api/v1/search_by_date"

	// Algolia rejects overly long query strings; ten quoted keywords is
	// plenty of recall.
	maxQueryKeywords = 10

	hnContentCap = 2000
)

// HackerNewsSource searches recent stories via the Algolia HN API.
// No authentication required.
type HackerNewsSource struct {
	fetcher fetcher.Fetcher
	baseURL string
	limit   int
}

// NewHackerNewsSource creates a Hacker News adapter fetching up to limit
// hits per run.
func NewHackerNewsSource(f fetcher.Fetcher, limit int) *HackerNewsSource {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return &HackerNewsSource{fetcher: f, baseURL: algoliaSearchURL, limit: limit}
}

func (s *HackerNewsSource) Platform() model.Platform { return model.PlatformHackerNews }

type algoliaResponse struct {
	Hits []struct {
		ObjectID    string `json:"objectID"`
		Title       string `json:"title"`
		StoryText   string `json:"story_text"`
		CommentText string `json:"comment_text"`
		Author      string `json:"author"`
		URL         string `json:"url"`
		Points      int    `json:"points"`
		NumComments int    `json:"num_comments"`
	} `json:"hits"`
}

func (s *HackerNewsSource) Fetch(ctx context.Context, set model.Settings) ([]model.RawPost, error) {
	query := buildAlgoliaQuery(set.Keywords)

	params := url.Values{}
	params.Set("query", query)
	params.Set("tags", "story")
	params.Set("hitsPerPage", fmt.Sprint(s.limit))

	var resp algoliaResponse
	if err := s.fetcher.GetJSON(ctx, s.baseURL+"?"+params.Encode(), &resp); err != nil {
		return nil, eris.Wrap(err, "hackernews: search")
	}

	var posts []model.RawPost
	for _, hit := range resp.Hits {
		content := hit.CommentText
		if content == "" {
			content = hit.StoryText
		}
		if content == "" {
			content = hit.Title
		}
		if strings.TrimSpace(hit.Title+content) == "" {
			continue
		}
		content = clip(content, hnContentCap)

		postURL := hit.URL
		if postURL == "" {
			postURL = "https://news.ycombinator.com/item?id=" + hit.ObjectID
		}

		posts = append(posts, model.RawPost{
			Platform:    model.PlatformHackerNews,
			PostID:      hit.ObjectID,
			Author:      hit.Author,
			Title:       hit.Title,
			Content:     content,
			URL:         postURL,
			Source:      "algolia",
			Score:       hit.Points,
			NumComments: hit.NumComments,
		})
	}
	return posts, nil
}

// buildAlgoliaQuery joins the first few keywords as quoted OR terms.
func buildAlgoliaQuery(keywords []string) string {
	if len(keywords) > maxQueryKeywords {
		keywords = keywords[:maxQueryKeywords]
	}
	quoted := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw != "" {
			quoted = append(quoted, `"`+kw+`"`)
		}
	}
	return strings.Join(quoted, " OR ")
}
