package collect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/social-listener/internal/fetcher"
	"github.com/sells-group/social-listener/internal/model"
	"github.com/sells-group/social-listener/internal/store"
)

const (
	manualContentCap = 5000
	manualTitleCap   = 500
)

// ImportSummary tallies a manual import.
type ImportSummary struct {
	RowsParsed    int `json:"rows_parsed"`
	PostsInserted int `json:"posts_inserted"`
	Duplicates    int `json:"duplicates_skipped"`
	RowsSkipped   int `json:"rows_skipped"`
}

// ImportText stores pasted text as a single manual post. The dedup key is
// a content hash, so importing the same text twice is a no-op.
func ImportText(ctx context.Context, st store.Store, text, author, label string) (ImportSummary, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ImportSummary{}, eris.New("import: empty text")
	}
	if author == "" {
		author = "manual"
	}
	title := label
	if title == "" {
		title = "Manual import"
	}

	post := model.RawPost{
		Platform: model.PlatformManual,
		PostID:   contentHash(text),
		Author:   author,
		Title:    title,
		Content:  clip(text, manualContentCap),
		Source:   label,
	}

	_, wasNew, err := st.UpsertPost(ctx, post)
	if err != nil {
		return ImportSummary{}, err
	}
	summary := ImportSummary{RowsParsed: 1}
	if wasNew {
		summary.PostsInserted = 1
	} else {
		summary.Duplicates = 1
	}
	return summary, nil
}

// ImportCSV parses CSV data and stores each row as a post. Headers are
// matched flexibly; only a content-like column is required.
func ImportCSV(ctx context.Context, st store.Store, r io.Reader) (ImportSummary, error) {
	table, err := fetcher.ReadCSV(r)
	if err != nil {
		return ImportSummary{}, err
	}
	return importTable(ctx, st, table)
}

// ImportXLSX parses the first sheet of an XLSX file and stores each row
// as a post, with the same header mapping as CSV.
func ImportXLSX(ctx context.Context, st store.Store, r io.Reader) (ImportSummary, error) {
	table, err := fetcher.ReadXLSX(r)
	if err != nil {
		return ImportSummary{}, err
	}
	return importTable(ctx, st, table)
}

func importTable(ctx context.Context, st store.Store, table *fetcher.Table) (ImportSummary, error) {
	contentCol := table.Column("content", "text", "body", "post", "message")
	if contentCol < 0 {
		return ImportSummary{}, eris.New("import: no content column (tried content/text/body/post/message)")
	}
	titleCol := table.Column("title", "subject", "headline")
	authorCol := table.Column("author", "user", "username", "name")
	urlCol := table.Column("url", "link", "href")
	platformCol := table.Column("platform", "network")
	sourceCol := table.Column("subreddit", "source", "group", "channel", "community")

	var summary ImportSummary
	for _, row := range table.Rows {
		summary.RowsParsed++

		content := fetcher.Cell(row, contentCol)
		if content == "" {
			summary.RowsSkipped++
			continue
		}

		platform := model.Platform(strings.ToLower(fetcher.Cell(row, platformCol)))
		if platform == "" {
			platform = model.PlatformManual
		}

		post := model.RawPost{
			Platform: platform,
			PostID:   contentHash(content),
			Author:   fetcher.Cell(row, authorCol),
			Title:    clip(fetcher.Cell(row, titleCol), manualTitleCap),
			Content:  clip(content, manualContentCap),
			URL:      fetcher.Cell(row, urlCol),
			Source:   fetcher.Cell(row, sourceCol),
		}

		_, wasNew, err := st.UpsertPost(ctx, post)
		if err != nil {
			zap.L().Error("import row failed", zap.Int("row", summary.RowsParsed), zap.Error(err))
			summary.RowsSkipped++
			continue
		}
		if wasNew {
			summary.PostsInserted++
		} else {
			summary.Duplicates++
		}
	}

	zap.L().Info("import complete",
		zap.Int("rows", summary.RowsParsed),
		zap.Int("inserted", summary.PostsInserted),
		zap.Int("duplicates", summary.Duplicates),
	)
	return summary, nil
}

// contentHash derives a stable dedup id for posts that have no native one.
func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:16])
}

// clip truncates s to at most n bytes without splitting a rune.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
