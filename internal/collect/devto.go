package collect

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/social-listener/internal/fetcher"
	"github.com/sells-group/social-listener/internal/model"
)

const devtoContentCap = 2000

// DevToSource fetches rising articles from the public dev.to API.
type DevToSource struct {
	fetcher fetcher.Fetcher
	baseURL string
	limit   int
}

// NewDevToSource creates a dev.to adapter fetching up to limit articles
// per run. The public endpoint caps pages at 30.
func NewDevToSource(f fetcher.Fetcher, limit int) *DevToSource {
	if limit <= 0 || limit > 30 {
		limit = 30
	}
	return &DevToSource{fetcher: f, baseURL: "https://dev.to/api/articles", limit: limit}
}

func (s *DevToSource) Platform() model.Platform { return model.PlatformDevTo }

type devtoArticle struct {
	ID                   int      `json:"id"`
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	URL                  string   `json:"url"`
	PublicReactionsCount int      `json:"public_reactions_count"`
	CommentsCount        int      `json:"comments_count"`
	TagList              []string `json:"tag_list"`
	User                 struct {
		Username string `json:"username"`
		Name     string `json:"name"`
	} `json:"user"`
}

func (s *DevToSource) Fetch(ctx context.Context, set model.Settings) ([]model.RawPost, error) {
	url := fmt.Sprintf("%s?per_page=%d&state=rising", s.baseURL, s.limit)

	var articles []devtoArticle
	if err := s.fetcher.GetJSON(ctx, url, &articles); err != nil {
		return nil, eris.Wrap(err, "devto: fetch articles")
	}

	var posts []model.RawPost
	for _, a := range articles {
		if strings.TrimSpace(a.Title+a.Description) == "" {
			continue
		}
		content := a.Description
		if content == "" {
			content = a.Title
		}
		if len(content) > devtoContentCap {
			content = content[:devtoContentCap]
		}

		author := a.User.Username
		if author == "" {
			author = a.User.Name
		}

		tags := a.TagList
		if len(tags) > 3 {
			tags = tags[:3]
		}

		posts = append(posts, model.RawPost{
			Platform:    model.PlatformDevTo,
			PostID:      strconv.Itoa(a.ID),
			Author:      author,
			Title:       a.Title,
			Content:     content,
			URL:         a.URL,
			Source:      strings.Join(tags, ", "),
			Score:       a.PublicReactionsCount,
			NumComments: a.CommentsCount,
		})
	}
	return posts, nil
}
