// Package store persists posts, verdicts, leads and outreach records.
// Uniqueness rules live here, at the storage layer: the raw_posts dedup key,
// the one-analysis-per-post constraint and the one-lead-per-verdict
// constraint are all enforced by unique indexes, so concurrent writers
// resolve deterministically no matter what the callers do.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/social-listener/internal/model"
)

// ErrOutreachNotPending is returned by UpsertOutreach when the (lead,
// channel) record has already left pending: redrafting would erase the
// send history.
var ErrOutreachNotPending = eris.New("outreach is no longer pending")

// PostFilter specifies criteria for listing raw posts.
type PostFilter struct {
	Platform model.Platform `json:"platform,omitempty"`
	Limit    int            `json:"limit,omitempty"`
	Offset   int            `json:"offset,omitempty"`
}

// LeadFilter specifies criteria for listing leads.
type LeadFilter struct {
	Status model.LeadStatus `json:"status,omitempty"`
	Limit  int              `json:"limit,omitempty"`
	Offset int              `json:"offset,omitempty"`
}

// OutreachFilter specifies criteria for listing outreach records.
type OutreachFilter struct {
	Status model.OutreachStatus `json:"status,omitempty"`
	LeadID string               `json:"lead_id,omitempty"`
	Limit  int                  `json:"limit,omitempty"`
	Offset int                  `json:"offset,omitempty"`
}

// Store defines the persistence interface for the listening pipeline.
type Store interface {
	// Settings. GetSettings seeds missing defaults so a fresh database
	// behaves identically to a tuned one.
	GetSettings(ctx context.Context) (map[string]string, error)
	UpdateSetting(ctx context.Context, key, value string) error

	// Raw posts. UpsertPost inserts a collected post or, when the
	// (platform, post_id) dedup key already exists, refreshes the mutable
	// engagement fields and reports wasNew=false.
	UpsertPost(ctx context.Context, post model.RawPost) (id string, wasNew bool, err error)
	GetPost(ctx context.Context, id string) (*model.RawPost, error)
	ListPosts(ctx context.Context, filter PostFilter) ([]model.RawPost, error)
	ListUnanalyzed(ctx context.Context, limit int) ([]model.RawPost, error)
	DeletePost(ctx context.Context, id string) error

	// Analyses. One row per raw post; re-analysis overwrites.
	UpsertAnalysis(ctx context.Context, rawPostID string, verdict model.Verdict, sentimentScore float64) (*model.AnalyzedPost, error)

	// Leads. PromoteLead is idempotent on lead.AnalyzedPostID: a conflict
	// returns the existing lead id with created=false, never an error.
	PromoteLead(ctx context.Context, lead model.Lead) (id string, created bool, err error)
	GetLead(ctx context.Context, id string) (*model.Lead, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error)
	UpdateLeadStatus(ctx context.Context, id string, status model.LeadStatus) error

	// Outreach. Rows are keyed (lead, channel); committing a new draft for
	// the same pair replaces the pending one. A record that already left
	// pending keeps its send history: the upsert fails with
	// ErrOutreachNotPending.
	UpsertOutreach(ctx context.Context, rec model.Outreach) (*model.Outreach, error)
	GetOutreach(ctx context.Context, leadID string, channel model.OutreachChannel) (*model.Outreach, error)
	ListOutreach(ctx context.Context, filter OutreachFilter) ([]model.Outreach, error)
	UpdateOutreachStatus(ctx context.Context, id string, status model.OutreachStatus, response string) error

	// Stats
	Stats(ctx context.Context) (*model.Stats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 50
