package collect

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/social-listener/internal/fetcher"
	"github.com/sells-group/social-listener/internal/model"
)

const mastodonContentCap = 2000

// MastodonSource reads the public timelines of the configured instances.
// Public timelines need no authentication; instances that require it are
// skipped with a warning.
type MastodonSource struct {
	fetcher fetcher.Fetcher
	scheme  string
	limit   int
}

// NewMastodonSource creates a Mastodon adapter fetching up to limit
// statuses per instance. Mastodon caps timeline pages at 40.
func NewMastodonSource(f fetcher.Fetcher, limit int) *MastodonSource {
	if limit <= 0 || limit > 40 {
		limit = 40
	}
	return &MastodonSource{fetcher: f, scheme: "https", limit: limit}
}

func (s *MastodonSource) Platform() model.Platform { return model.PlatformMastodon }

type mastodonStatus struct {
	ID              string `json:"id"`
	Content         string `json:"content"`
	URL             string `json:"url"`
	URI             string `json:"uri"`
	FavouritesCount int    `json:"favourites_count"`
	ReblogsCount    int    `json:"reblogs_count"`
	RepliesCount    int    `json:"replies_count"`
	Account         struct {
		Acct     string `json:"acct"`
		Username string `json:"username"`
	} `json:"account"`
}

func (s *MastodonSource) Fetch(ctx context.Context, set model.Settings) ([]model.RawPost, error) {
	if len(set.MastodonInstances) == 0 {
		return nil, nil
	}

	var posts []model.RawPost
	var lastErr error
	for _, instance := range set.MastodonInstances {
		url := fmt.Sprintf("%s://%s/api/v1/timelines/public?limit=%d&local=false",
			s.scheme, instance, s.limit)

		var statuses []mastodonStatus
		if err := s.fetcher.GetJSON(ctx, url, &statuses); err != nil {
			zap.L().Warn("mastodon instance fetch failed",
				zap.String("instance", instance), zap.Error(err))
			lastErr = err
			continue
		}

		for _, status := range statuses {
			text := stripHTML(status.Content)
			if text == "" {
				continue
			}
			text = clip(text, mastodonContentCap)

			author := status.Account.Acct
			if author == "" {
				author = status.Account.Username
			}
			if author != "" {
				author = author + "@" + instance
			}

			postURL := status.URL
			if postURL == "" {
				postURL = status.URI
			}

			posts = append(posts, model.RawPost{
				Platform:    model.PlatformMastodon,
				PostID:      status.ID,
				Author:      author,
				Content:     text,
				URL:         postURL,
				Source:      instance,
				Score:       status.FavouritesCount + status.ReblogsCount,
				NumComments: status.RepliesCount,
			})
		}
	}

	if posts == nil && lastErr != nil {
		return nil, eris.Wrap(lastErr, "mastodon: all instances failed")
	}
	return posts, nil
}

var (
	tagPattern   = regexp.MustCompile(`<[^>]+>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// stripHTML removes markup from Mastodon status bodies, which arrive as
// sanitized HTML.
func stripHTML(html string) string {
	text := tagPattern.ReplaceAllString(html, " ")
	return strings.TrimSpace(spacePattern.ReplaceAllString(text, " "))
}
