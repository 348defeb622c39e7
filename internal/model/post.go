package model

import "time"

// Platform identifies the social network a post came from.
type Platform string

const (
	PlatformReddit     Platform = "reddit"
	PlatformHackerNews Platform = "hackernews"
	PlatformMastodon   Platform = "mastodon"
	PlatformDevTo      Platform = "devto"
	PlatformManual     Platform = "manual"
)

// RawPost is a collected post, normalized from whatever shape the source
// adapter produced. (Platform, PostID) is the dedup key: collecting the same
// native post twice updates Score, NumComments and CollectedAt in place.
type RawPost struct {
	ID          string    `json:"id"`
	Platform    Platform  `json:"platform"`
	PostID      string    `json:"post_id"`
	Author      string    `json:"author"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	URL         string    `json:"url"`
	Source      string    `json:"source,omitempty"` // subreddit, instance, tag list...
	Score       int       `json:"score"`
	NumComments int       `json:"num_comments"`
	CollectedAt time.Time `json:"collected_at"`
}

// Text returns the content used for keyword matching, sentiment scoring and
// classification: title and body joined, falling back to whichever is set.
func (p RawPost) Text() string {
	switch {
	case p.Title != "" && p.Content != "":
		return p.Title + "\n" + p.Content
	case p.Content != "":
		return p.Content
	default:
		return p.Title
	}
}

// Verdict is the structured output of the frustration classifier.
type Verdict struct {
	IsFrustrated     bool    `json:"is_frustrated"`
	Confidence       float64 `json:"confidence"`
	Reason           string  `json:"reason"`
	SuggestedService string  `json:"suggested_service"`
}

// Qualifies reports whether the verdict clears the lead promotion bar.
func (v Verdict) Qualifies(confidenceThreshold float64) bool {
	return v.IsFrustrated && v.Confidence >= confidenceThreshold
}

// AnalyzedPost holds the stored verdict for a RawPost. At most one exists
// per RawPost; re-analysis overwrites.
type AnalyzedPost struct {
	ID             string    `json:"id"`
	RawPostID      string    `json:"raw_post_id"`
	Verdict        Verdict   `json:"verdict"`
	SentimentScore float64   `json:"sentiment_score"`
	AnalyzedAt     time.Time `json:"analyzed_at"`
}

// Stats is the aggregate dashboard summary.
type Stats struct {
	TotalPosts    int     `json:"total_posts"`
	TotalAnalyzed int     `json:"total_analyzed"`
	TotalLeads    int     `json:"total_leads"`
	TotalOutreach int     `json:"total_outreach"`
	ResponseRate  float64 `json:"response_rate"`
}
