package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// LeadStatus tracks a lead through the outreach lifecycle.
type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusContacted LeadStatus = "contacted"
	LeadStatusReplied   LeadStatus = "replied"
	LeadStatusConverted LeadStatus = "converted"
	LeadStatusSkipped   LeadStatus = "skipped"
)

// leadTransitions lists the allowed forward moves. Skipped is an escape
// hatch from new/contacted; converted and skipped are terminal.
var leadTransitions = map[LeadStatus][]LeadStatus{
	LeadStatusNew:       {LeadStatusContacted, LeadStatusSkipped},
	LeadStatusContacted: {LeadStatusReplied, LeadStatusSkipped},
	LeadStatusReplied:   {LeadStatusConverted},
}

// ValidLeadStatus reports whether s is a known lead status.
func ValidLeadStatus(s LeadStatus) bool {
	switch s {
	case LeadStatusNew, LeadStatusContacted, LeadStatusReplied, LeadStatusConverted, LeadStatusSkipped:
		return true
	}
	return false
}

// CanTransition reports whether a lead may move from one status to another.
func CanTransition(from, to LeadStatus) bool {
	for _, next := range leadTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns a descriptive error when the move is not allowed.
func CheckTransition(from, to LeadStatus) error {
	if !ValidLeadStatus(to) {
		return eris.Errorf("unknown lead status %q", to)
	}
	if !CanTransition(from, to) {
		return eris.Errorf("lead status cannot move from %s to %s", from, to)
	}
	return nil
}

// Lead is a qualifying verdict promoted to an actionable record. It carries
// a denormalized snapshot of the originating post taken at promotion time,
// so later changes to the RawPost never alter a surfaced lead.
type Lead struct {
	ID               string     `json:"id"`
	AnalyzedPostID   string     `json:"analyzed_post_id"`
	RawPostID        string     `json:"raw_post_id"`
	Confidence       float64    `json:"confidence"`
	Reason           string     `json:"reason"`
	SuggestedService string     `json:"suggested_service"`
	SentimentScore   float64    `json:"sentiment_score"`
	Platform         Platform   `json:"platform"`
	Author           string     `json:"author"`
	PostTitle        string     `json:"post_title"`
	PostContent      string     `json:"post_content"`
	PostURL          string     `json:"post_url"`
	Status           LeadStatus `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// NewLead builds the denormalized lead record for a qualifying verdict.
// The returned lead has no ID; the store assigns one on insert.
func NewLead(analyzed AnalyzedPost, raw RawPost) Lead {
	return Lead{
		AnalyzedPostID:   analyzed.ID,
		RawPostID:        raw.ID,
		Confidence:       analyzed.Verdict.Confidence,
		Reason:           analyzed.Verdict.Reason,
		SuggestedService: analyzed.Verdict.SuggestedService,
		SentimentScore:   analyzed.SentimentScore,
		Platform:         raw.Platform,
		Author:           raw.Author,
		PostTitle:        raw.Title,
		PostContent:      raw.Content,
		PostURL:          raw.URL,
		Status:           LeadStatusNew,
	}
}
