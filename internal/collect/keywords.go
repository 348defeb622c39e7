package collect

import (
	"strings"

	"golang.org/x/text/cases"
)

var fold = cases.Fold()

// MatchesKeywords reports whether text contains any of the keywords,
// compared with Unicode case folding. An empty keyword list matches
// everything.
func MatchesKeywords(text string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	folded := fold.String(text)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(folded, fold.String(kw)) {
			return true
		}
	}
	return false
}
