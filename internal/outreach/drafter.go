package outreach

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/sells-group/social-listener/internal/model"
	"github.com/sells-group/social-listener/internal/store"
	"github.com/sells-group/social-listener/pkg/anthropic"
)

// postContentLimit bounds how much of the post goes into the prompt.
const postContentLimit = 500

const draftMaxTokens = 500

// GenerationError marks a drafting attempt that produced no usable
// message. Nothing is written; the caller simply retries.
type GenerationError struct {
	LeadID string
	Err    error
}

func (e *GenerationError) Error() string {
	return "draft outreach for lead " + e.LeadID + ": " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Drafter generates outreach messages for leads.
type Drafter struct {
	store     store.Store
	ai        anthropic.Client
	templates Templates
}

// NewDrafter wires a drafter with the given prompt templates.
func NewDrafter(st store.Store, ai anthropic.Client, templates Templates) *Drafter {
	return &Drafter{store: st, ai: ai, templates: templates}
}

// Draft asks the LLM for a message on the given channel. The returned
// record is pending and NOT persisted; call Commit to keep it. A failed
// or malformed generation returns a *GenerationError and writes nothing.
func (d *Drafter) Draft(ctx context.Context, lead model.Lead, channel model.OutreachChannel, set model.Settings) (model.Outreach, error) {
	if !model.ValidChannel(channel) {
		return model.Outreach{}, eris.Errorf("unsupported outreach channel %q", channel)
	}

	prompt, err := d.templates.render(channel, promptData{
		Platform:         string(lead.Platform),
		PostContent:      clipContent(lead.PostTitle, lead.PostContent),
		Reason:           lead.Reason,
		SuggestedService: lead.SuggestedService,
		Services:         strings.Join(set.Services, ", "),
	})
	if err != nil {
		return model.Outreach{}, &GenerationError{LeadID: lead.ID, Err: err}
	}

	temp := 0.7
	resp, err := d.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       set.LLMModel,
		MaxTokens:   draftMaxTokens,
		Temperature: &temp,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return model.Outreach{}, &GenerationError{LeadID: lead.ID, Err: err}
	}
	resp.Usage.LogCost(set.LLMModel, "outreach")

	subject, body, err := parseDraft(resp.Text())
	if err != nil {
		return model.Outreach{}, &GenerationError{LeadID: lead.ID, Err: err}
	}

	return model.Outreach{
		LeadID:  lead.ID,
		Channel: channel,
		Subject: subject,
		Message: body,
		Status:  model.OutreachStatusPending,
	}, nil
}

// Commit persists a drafted message as pending. Committing again for the
// same (lead, channel) replaces the previous draft; once the record has
// left pending the store refuses with store.ErrOutreachNotPending.
func (d *Drafter) Commit(ctx context.Context, draft model.Outreach) (*model.Outreach, error) {
	return d.store.UpsertOutreach(ctx, draft)
}

// parseDraft decodes the model's subject/body JSON, stripping markdown
// fences first.
func parseDraft(raw string) (subject, body string, err error) {
	raw = stripFences(strings.TrimSpace(raw))
	if raw == "" {
		return "", "", eris.New("empty response")
	}

	var msg struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return "", "", eris.Wrap(err, "decode draft")
	}
	if strings.TrimSpace(msg.Body) == "" {
		return "", "", eris.New("draft has no body")
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return "", "", eris.New("draft has no subject")
	}
	return msg.Subject, msg.Body, nil
}

func stripFences(raw string) string {
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	if idx := strings.IndexByte(raw, '\n'); idx >= 0 {
		raw = raw[idx+1:]
	} else {
		raw = strings.TrimPrefix(raw, "```")
	}
	raw = strings.TrimSpace(raw)
	return strings.TrimSpace(strings.TrimSuffix(raw, "```"))
}

// clipContent joins the post title and body the way the classifier sees
// them and truncates for prompt size.
func clipContent(title, content string) string {
	text := title
	switch {
	case title != "" && content != "":
		text = title + "\n" + content
	case content != "":
		text = content
	}
	if len(text) > postContentLimit {
		cut := postContentLimit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		return text[:cut]
	}
	return text
}
