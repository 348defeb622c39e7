package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to LeadStatus
		ok       bool
	}{
		{LeadStatusNew, LeadStatusContacted, true},
		{LeadStatusNew, LeadStatusSkipped, true},
		{LeadStatusContacted, LeadStatusReplied, true},
		{LeadStatusContacted, LeadStatusSkipped, true},
		{LeadStatusReplied, LeadStatusConverted, true},
		// No backward moves, no escapes from terminal states.
		{LeadStatusContacted, LeadStatusNew, false},
		{LeadStatusConverted, LeadStatusNew, false},
		{LeadStatusConverted, LeadStatusSkipped, false},
		{LeadStatusSkipped, LeadStatusContacted, false},
		{LeadStatusReplied, LeadStatusSkipped, false},
		{LeadStatusNew, LeadStatusConverted, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestCheckTransition_UnknownStatus(t *testing.T) {
	err := CheckTransition(LeadStatusNew, LeadStatus("bogus"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown lead status")
}

func TestNewLead_Snapshot(t *testing.T) {
	raw := RawPost{
		ID:       "raw-1",
		Platform: PlatformReddit,
		Author:   "someone",
		Title:    "Stuck migrating my shop",
		Content:  "I cannot get checkout working and I'm about to give up.",
		URL:      "https://reddit.com/r/webdev/1",
	}
	analyzed := AnalyzedPost{
		ID:        "an-1",
		RawPostID: "raw-1",
		Verdict: Verdict{
			IsFrustrated:     true,
			Confidence:       0.91,
			Reason:           "actionable checkout frustration",
			SuggestedService: "web development",
		},
		SentimentScore: -0.62,
	}

	lead := NewLead(analyzed, raw)

	assert.Equal(t, "an-1", lead.AnalyzedPostID)
	assert.Equal(t, "raw-1", lead.RawPostID)
	assert.Equal(t, LeadStatusNew, lead.Status)
	assert.Equal(t, raw.Title, lead.PostTitle)
	assert.Equal(t, raw.Content, lead.PostContent)
	assert.Equal(t, raw.URL, lead.PostURL)
	assert.InDelta(t, 0.91, lead.Confidence, 1e-9)
	assert.InDelta(t, -0.62, lead.SentimentScore, 1e-9)
}

func TestVerdictQualifies(t *testing.T) {
	assert.True(t, Verdict{IsFrustrated: true, Confidence: 0.85}.Qualifies(0.8))
	assert.False(t, Verdict{IsFrustrated: true, Confidence: 0.79}.Qualifies(0.8))
	assert.False(t, Verdict{IsFrustrated: false, Confidence: 0.99}.Qualifies(0.8))
	assert.True(t, Verdict{IsFrustrated: true, Confidence: 0.8}.Qualifies(0.8))
}

func TestRawPostText(t *testing.T) {
	assert.Equal(t, "a\nb", RawPost{Title: "a", Content: "b"}.Text())
	assert.Equal(t, "b", RawPost{Content: "b"}.Text())
	assert.Equal(t, "a", RawPost{Title: "a"}.Text())
}

func TestCheckOutreachTransition(t *testing.T) {
	require.NoError(t, CheckOutreachTransition(OutreachStatusPending, OutreachStatusSent))
	require.NoError(t, CheckOutreachTransition(OutreachStatusSent, OutreachStatusReplied))
	require.NoError(t, CheckOutreachTransition(OutreachStatusPending, OutreachStatusFailed))
	require.Error(t, CheckOutreachTransition(OutreachStatusReplied, OutreachStatusPending))
	require.Error(t, CheckOutreachTransition(OutreachStatusFailed, OutreachStatusSent))
	require.Error(t, CheckOutreachTransition(OutreachStatusPending, OutreachStatusReplied))
}
