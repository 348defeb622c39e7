package collect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/social-listener/internal/fetcher"
	"github.com/sells-group/social-listener/internal/model"
)

func testHTTPFetcher() fetcher.Fetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{RequestsPerSec: 1000, MaxRetries: 1})
}

func TestRedditSourceFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/r/webdev/new.json", r.URL.Path)
		_, _ = w.Write([]byte(`{"data": {"children": [
			{"data": {"id": "p1", "author": "alice", "title": "Stuck on CORS",
				"selftext": "Nothing works", "permalink": "/r/webdev/comments/p1/",
				"score": 12, "num_comments": 4, "created_utc": 1764600000}},
			{"data": {"id": "p2", "author": "", "title": "Link only post",
				"selftext": "", "permalink": "/r/webdev/comments/p2/",
				"score": 1, "num_comments": 0, "created_utc": 1764600100}}
		]}}`))
	}))
	defer srv.Close()

	src := NewRedditSource(testHTTPFetcher(), 25)
	src.baseURL = srv.URL

	posts, err := src.Fetch(context.Background(), model.Settings{Subreddits: []string{"webdev"}})
	require.NoError(t, err)
	require.Len(t, posts, 2)

	assert.Equal(t, model.PlatformReddit, posts[0].Platform)
	assert.Equal(t, "p1", posts[0].PostID)
	assert.Equal(t, "https://reddit.com/r/webdev/comments/p1/", posts[0].URL)
	assert.Equal(t, "webdev", posts[0].Source)
	assert.Equal(t, 12, posts[0].Score)

	// Deleted author and empty selftext fall back.
	assert.Equal(t, "[deleted]", posts[1].Author)
	assert.Equal(t, "Link only post", posts[1].Content)
}

func TestRedditSourceNoSubreddits(t *testing.T) {
	src := NewRedditSource(testHTTPFetcher(), 25)
	posts, err := src.Fetch(context.Background(), model.Settings{})
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestHackerNewsSourceFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "story", r.URL.Query().Get("tags"))
		assert.Contains(t, r.URL.Query().Get("query"), `"stuck"`)
		_, _ = w.Write([]byte(`{"hits": [
			{"objectID": "100", "title": "Struggling with k8s", "story_text": "help",
				"author": "bob", "url": "", "points": 50, "num_comments": 20},
			{"objectID": "101", "title": "Show HN: thing", "story_text": "",
				"author": "carol", "url": "https://thing.dev", "points": 5, "num_comments": 1},
			{"objectID": "102", "title": "", "story_text": "", "author": "d", "url": "", "points": 0}
		]}`))
	}))
	defer srv.Close()

	src := NewHackerNewsSource(testHTTPFetcher(), 50)
	src.baseURL = srv.URL

	posts, err := src.Fetch(context.Background(), model.Settings{Keywords: []string{"stuck"}})
	require.NoError(t, err)
	// The empty hit is dropped.
	require.Len(t, posts, 2)

	assert.Equal(t, "https://news.ycombinator.com/item?id=100", posts[0].URL)
	assert.Equal(t, "https://thing.dev", posts[1].URL)
	assert.Equal(t, "Show HN: thing", posts[1].Content)
}

func TestMastodonSourceFetch(t *testing.T) {
	// The adapter builds https URLs from instance names, so point it at a
	// host-only test server via a custom scheme swap.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/timelines/public", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"id": "m1", "content": "<p>So <b>frustrated</b> with hosting</p>",
				"url": "https://masto.test/@u/m1",
				"favourites_count": 3, "reblogs_count": 2, "replies_count": 1,
				"account": {"acct": "user", "username": "user"}},
			{"id": "m2", "content": "<p></p>", "account": {"acct": "x"}}
		]`))
	}))
	defer srv.Close()

	src := NewMastodonSource(testHTTPFetcher(), 40)
	src.scheme = "http"
	host := srv.Listener.Addr().String()

	posts, err := src.Fetch(context.Background(), model.Settings{MastodonInstances: []string{host}})
	require.NoError(t, err)
	require.Len(t, posts, 1)

	assert.Equal(t, "So frustrated with hosting", posts[0].Content)
	assert.Equal(t, "user@"+host, posts[0].Author)
	assert.Equal(t, 5, posts[0].Score)
	assert.Equal(t, host, posts[0].Source)
}

func TestDevToSourceFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "rising", r.URL.Query().Get("state"))
		_, _ = w.Write([]byte(`[
			{"id": 42, "title": "Giving up on my side project", "description": "So hard",
				"url": "https://dev.to/u/42", "public_reactions_count": 9,
				"comments_count": 3, "tag_list": ["career", "webdev", "discuss", "extra"],
				"user": {"username": "dana"}}
		]`))
	}))
	defer srv.Close()

	src := NewDevToSource(testHTTPFetcher(), 30)
	src.baseURL = srv.URL

	posts, err := src.Fetch(context.Background(), model.Settings{})
	require.NoError(t, err)
	require.Len(t, posts, 1)

	assert.Equal(t, "42", posts[0].PostID)
	assert.Equal(t, "career, webdev, discuss", posts[0].Source)
	assert.Equal(t, "dana", posts[0].Author)
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "hello world", stripHTML("<p>hello <a href='x'>world</a></p>"))
	assert.Equal(t, "", stripHTML("<p></p>"))
	assert.Equal(t, "plain", stripHTML("plain"))
}

func TestBuildAlgoliaQuery(t *testing.T) {
	assert.Equal(t, `"a" OR "b"`, buildAlgoliaQuery([]string{"a", "b"}))

	many := make([]string, 15)
	for i := range many {
		many[i] = "kw"
	}
	q := buildAlgoliaQuery(many)
	assert.Len(t, strings.Split(q, " OR "), maxQueryKeywords)
}

func TestMatchesKeywords(t *testing.T) {
	keywords := []string{"stuck", "can't figure out"}

	assert.True(t, MatchesKeywords("I am STUCK on this", keywords))
	assert.True(t, MatchesKeywords("I just can't Figure Out webpack", keywords))
	assert.False(t, MatchesKeywords("everything is fine", keywords))
	// Empty keyword list matches everything.
	assert.True(t, MatchesKeywords("anything", nil))
}
