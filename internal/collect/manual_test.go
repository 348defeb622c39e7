package collect

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/social-listener/internal/model"
	"github.com/sells-group/social-listener/internal/store"
)

func importStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "import.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestImportText(t *testing.T) {
	st := importStore(t)
	ctx := context.Background()

	summary, err := ImportText(ctx, st, "I'm so stuck on my taxes", "", "pasted from forum")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.PostsInserted)

	posts, err := st.ListPosts(ctx, store.PostFilter{})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, model.PlatformManual, posts[0].Platform)
	assert.Equal(t, "manual", posts[0].Author)
	assert.Equal(t, "pasted from forum", posts[0].Title)

	// Same text again dedups on the content hash.
	summary, err = ImportText(ctx, st, "I'm so stuck on my taxes", "", "pasted from forum")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.PostsInserted)
	assert.Equal(t, 1, summary.Duplicates)
}

func TestImportTextEmpty(t *testing.T) {
	_, err := ImportText(context.Background(), importStore(t), "   ", "", "")
	require.Error(t, err)
}

func TestImportTextCapsContent(t *testing.T) {
	st := importStore(t)
	ctx := context.Background()

	_, err := ImportText(ctx, st, strings.Repeat("x", 6000), "", "")
	require.NoError(t, err)

	posts, err := st.ListPosts(ctx, store.PostFilter{})
	require.NoError(t, err)
	assert.Len(t, posts[0].Content, manualContentCap)
}

func TestImportCSVFlexibleHeaders(t *testing.T) {
	st := importStore(t)
	ctx := context.Background()

	csv := "Text,User,Link,Community\n" +
		"Need help with my website,alice,https://x.test/1,smallbusiness\n" +
		"Struggling with bookkeeping,bob,,freelance\n" +
		",carol,,\n"

	summary, err := ImportCSV(ctx, st, strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 3, summary.RowsParsed)
	assert.Equal(t, 2, summary.PostsInserted)
	assert.Equal(t, 1, summary.RowsSkipped)

	posts, err := st.ListPosts(ctx, store.PostFilter{})
	require.NoError(t, err)
	require.Len(t, posts, 2)
	for _, p := range posts {
		assert.Equal(t, model.PlatformManual, p.Platform)
	}
}

func TestImportCSVPlatformColumn(t *testing.T) {
	st := importStore(t)
	ctx := context.Background()

	csv := "content,platform\nsome frustrated post,Reddit\n"
	_, err := ImportCSV(ctx, st, strings.NewReader(csv))
	require.NoError(t, err)

	posts, err := st.ListPosts(ctx, store.PostFilter{})
	require.NoError(t, err)
	assert.Equal(t, model.PlatformReddit, posts[0].Platform)
}

func TestImportCSVNoContentColumn(t *testing.T) {
	_, err := ImportCSV(context.Background(), importStore(t), strings.NewReader("a,b\n1,2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content column")
}

func TestImportCSVReimportDedups(t *testing.T) {
	st := importStore(t)
	ctx := context.Background()

	csv := "content\nexactly the same post\n"
	_, err := ImportCSV(ctx, st, strings.NewReader(csv))
	require.NoError(t, err)

	summary, err := ImportCSV(ctx, st, strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.PostsInserted)
	assert.Equal(t, 1, summary.Duplicates)
}

func TestClipRuneBoundary(t *testing.T) {
	assert.Equal(t, "short", clip("short", 10))
	assert.Equal(t, "abc", clip("abcdef", 3))

	// A cut that would land mid-codepoint backs off to the rune start.
	multibyte := strings.Repeat("é", 10)
	clipped := clip(multibyte, 5)
	assert.True(t, utf8.ValidString(clipped))
	assert.Equal(t, "éé", clipped)
}
