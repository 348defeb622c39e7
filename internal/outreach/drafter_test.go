package outreach

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/social-listener/internal/model"
	"github.com/sells-group/social-listener/internal/store"
	"github.com/sells-group/social-listener/pkg/anthropic"
)

type fakeAI struct {
	lastReq anthropic.MessageRequest
	respond func(req anthropic.MessageRequest) (*anthropic.MessageResponse, error)
}

func (f *fakeAI) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.lastReq = req
	return f.respond(req)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}
}

func newOutreachStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func sampleLead(t *testing.T, st store.Store) model.Lead {
	t.Helper()
	ctx := context.Background()
	postID, _, err := st.UpsertPost(ctx, model.RawPost{
		Platform:    model.PlatformReddit,
		PostID:      "r1",
		Author:      "someone",
		Title:       "Site keeps going down",
		Content:     "My shop site crashes under any load and I have no idea why",
		CollectedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	analyzed, err := st.UpsertAnalysis(ctx, postID, model.Verdict{
		IsFrustrated:     true,
		Confidence:       0.9,
		Reason:           "hosting trouble with no in-house expertise",
		SuggestedService: "web development",
	}, -0.4)
	require.NoError(t, err)

	post, err := st.GetPost(ctx, postID)
	require.NoError(t, err)

	lead := model.NewLead(*analyzed, *post)
	id, created, err := st.PromoteLead(ctx, lead)
	require.NoError(t, err)
	require.True(t, created)
	lead.ID = id
	return lead
}

func testSettings() model.Settings {
	return model.Settings{
		LLMModel: "claude-haiku-4-5-20251001",
		Services: []string{"web development", "consulting"},
	}
}

func TestDraftBuildsPromptFromLead(t *testing.T) {
	st := newOutreachStore(t)
	lead := sampleLead(t, st)

	ai := &fakeAI{respond: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return textResponse(`{"subject": "Happy to help with your site", "body": "Hi! I noticed you were wrestling with site stability..."}`), nil
	}}
	d := NewDrafter(st, ai, DefaultTemplates())

	draft, err := d.Draft(context.Background(), lead, model.ChannelEmail, testSettings())
	require.NoError(t, err)
	assert.Equal(t, lead.ID, draft.LeadID)
	assert.Equal(t, model.ChannelEmail, draft.Channel)
	assert.Equal(t, model.OutreachStatusPending, draft.Status)
	assert.Equal(t, "Happy to help with your site", draft.Subject)
	assert.Contains(t, draft.Message, "site stability")

	prompt := ai.lastReq.Messages[0].Content
	assert.Contains(t, prompt, "reddit")
	assert.Contains(t, prompt, "Site keeps going down")
	assert.Contains(t, prompt, "hosting trouble")
	assert.Contains(t, prompt, "web development, consulting")
	require.NotNil(t, ai.lastReq.Temperature)
	assert.Equal(t, 0.7, *ai.lastReq.Temperature)

	// Draft alone persists nothing.
	recs, err := st.ListOutreach(context.Background(), store.OutreachFilter{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestDraftStripsFencedJSON(t *testing.T) {
	st := newOutreachStore(t)
	lead := sampleLead(t, st)

	ai := &fakeAI{respond: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return textResponse("```json\n{\"subject\": \"s\", \"body\": \"b\"}\n```"), nil
	}}
	d := NewDrafter(st, ai, DefaultTemplates())

	draft, err := d.Draft(context.Background(), lead, model.ChannelDM, testSettings())
	require.NoError(t, err)
	assert.Equal(t, "s", draft.Subject)
	assert.Equal(t, "b", draft.Message)
}

func TestDraftMalformedResponse(t *testing.T) {
	st := newOutreachStore(t)
	lead := sampleLead(t, st)

	for _, reply := range []string{
		"Sure, here's a nice email for you!",
		`{"subject": "s"}`,
		`{"body": "b"}`,
		"",
	} {
		ai := &fakeAI{respond: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
			return textResponse(reply), nil
		}}
		d := NewDrafter(st, ai, DefaultTemplates())

		_, err := d.Draft(context.Background(), lead, model.ChannelEmail, testSettings())
		require.Error(t, err, "reply %q", reply)
		var gerr *GenerationError
		require.True(t, errors.As(err, &gerr))
		assert.Equal(t, lead.ID, gerr.LeadID)
	}

	recs, err := st.ListOutreach(context.Background(), store.OutreachFilter{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestDraftRejectsUnknownChannel(t *testing.T) {
	d := NewDrafter(nil, nil, DefaultTemplates())
	_, err := d.Draft(context.Background(), model.Lead{ID: "l1"}, "carrier-pigeon", testSettings())
	assert.Error(t, err)
}

func TestCommitPersistsPendingDraft(t *testing.T) {
	st := newOutreachStore(t)
	lead := sampleLead(t, st)

	ai := &fakeAI{respond: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return textResponse(`{"subject": "s1", "body": "first version"}`), nil
	}}
	d := NewDrafter(st, ai, DefaultTemplates())

	draft, err := d.Draft(context.Background(), lead, model.ChannelEmail, testSettings())
	require.NoError(t, err)
	saved, err := d.Commit(context.Background(), draft)
	require.NoError(t, err)
	assert.Equal(t, model.OutreachStatusPending, saved.Status)

	// Redrafting the same channel replaces the pending row.
	ai.respond = func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return textResponse(`{"subject": "s2", "body": "second version"}`), nil
	}
	draft2, err := d.Draft(context.Background(), lead, model.ChannelEmail, testSettings())
	require.NoError(t, err)
	saved2, err := d.Commit(context.Background(), draft2)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, saved2.ID)
	assert.Equal(t, "second version", saved2.Message)

	recs, err := st.ListOutreach(context.Background(), store.OutreachFilter{LeadID: lead.ID})
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestLoadTemplatesDefaults(t *testing.T) {
	tpl, err := LoadTemplates("")
	require.NoError(t, err)
	assert.Contains(t, tpl.Email, "subject line")
	assert.Contains(t, tpl.DM, "direct message")
}

func TestLoadTemplatesOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("email: |\n  Custom email prompt {{.Reason}}\n"), 0o644))

	tpl, err := LoadTemplates(path)
	require.NoError(t, err)
	assert.Contains(t, tpl.Email, "Custom email prompt")
	assert.Contains(t, tpl.DM, "direct message") // untouched channel keeps default

	rendered, err := tpl.render(model.ChannelEmail, promptData{Reason: "broken deploys"})
	require.NoError(t, err)
	assert.True(t, strings.Contains(rendered, "broken deploys"))
}

func TestLoadTemplatesMissingFile(t *testing.T) {
	_, err := LoadTemplates(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestClipContent(t *testing.T) {
	assert.Equal(t, "t\nc", clipContent("t", "c"))
	assert.Equal(t, "c", clipContent("", "c"))
	assert.Equal(t, "t", clipContent("t", ""))

	long := strings.Repeat("x", postContentLimit+50)
	assert.Len(t, clipContent("", long), postContentLimit)

	// Truncation lands on a rune boundary, never mid-codepoint.
	multibyte := strings.Repeat("é", postContentLimit)
	clipped := clipContent("", multibyte)
	assert.True(t, utf8.ValidString(clipped))
	assert.LessOrEqual(t, len(clipped), postContentLimit)
}
