// Package outreach drafts personalized first-contact messages for leads
// and tracks their delivery status. Drafting is a pure LLM call; nothing
// is persisted until the caller commits the draft.
package outreach

import (
	"os"
	"strings"
	"text/template"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/social-listener/internal/model"
)

const defaultEmailTemplate = `You are writing a friendly, helpful email to someone who expressed frustration online.
They are NOT expecting this message, so it must feel natural, empathetic, and not salesy.

Context about the person:
- Platform: {{.Platform}}
- Their post: "{{.PostContent}}"
- What they're struggling with: {{.Reason}}
- Service that could help: {{.SuggestedService}}
- Your services: {{.Services}}

Write an email with:
1. A concise subject line (5-8 words)
2. A warm greeting
3. Brief acknowledgment that you noticed they were struggling (without being creepy)
4. 1-2 sentences showing you understand their problem
5. A soft offer to help (NOT a hard sell)
6. A friendly sign-off

Rules:
- Keep it under 150 words (body only)
- No corporate jargon
- Sound like a real person, not a template
- Don't mention where you saw their post, keep it vague ("I noticed you were looking for help with...")
- Include a clear but gentle call to action

Respond with ONLY valid JSON:
{
    "subject": "the email subject line",
    "body": "the full email body"
}`

const defaultDMTemplate = `You are writing a short, casual direct message to someone who expressed frustration online.
They are NOT expecting this message, so it must feel natural and low-pressure.

Context about the person:
- Platform: {{.Platform}}
- Their post: "{{.PostContent}}"
- What they're struggling with: {{.Reason}}
- Service that could help: {{.SuggestedService}}
- Your services: {{.Services}}

Rules:
- 2-4 sentences total, no greeting ceremony
- Acknowledge their problem first, offer second
- No links, no corporate jargon, no hard sell
- End with a light question that invites a reply

Respond with ONLY valid JSON:
{
    "subject": "a short one-line topic",
    "body": "the message text"
}`

// promptData feeds a channel template.
type promptData struct {
	Platform         string
	PostContent      string
	Reason           string
	SuggestedService string
	Services         string
}

// Templates holds the per-channel drafting prompts, keyed the way the
// override file spells them.
type Templates struct {
	Email string `yaml:"email"`
	DM    string `yaml:"dm"`
}

// DefaultTemplates returns the built-in prompts.
func DefaultTemplates() Templates {
	return Templates{Email: defaultEmailTemplate, DM: defaultDMTemplate}
}

// LoadTemplates reads a YAML override file. Channels missing from the file
// keep the built-in prompt. An empty path returns the defaults.
func LoadTemplates(path string) (Templates, error) {
	tpl := DefaultTemplates()
	if path == "" {
		return tpl, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Templates{}, eris.Wrapf(err, "read templates file %s", path)
	}
	var override Templates
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Templates{}, eris.Wrapf(err, "parse templates file %s", path)
	}
	if strings.TrimSpace(override.Email) != "" {
		tpl.Email = override.Email
	}
	if strings.TrimSpace(override.DM) != "" {
		tpl.DM = override.DM
	}
	return tpl, nil
}

// forChannel picks the prompt text for a channel.
func (t Templates) forChannel(c model.OutreachChannel) (string, error) {
	switch c {
	case model.ChannelEmail:
		return t.Email, nil
	case model.ChannelDM:
		return t.DM, nil
	default:
		return "", eris.Errorf("no template for channel %s", c)
	}
}

// render executes the channel template against the lead context.
func (t Templates) render(c model.OutreachChannel, data promptData) (string, error) {
	text, err := t.forChannel(c)
	if err != nil {
		return "", err
	}
	tmpl, err := template.New(string(c)).Parse(text)
	if err != nil {
		return "", eris.Wrapf(err, "parse %s template", c)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", eris.Wrapf(err, "render %s template", c)
	}
	return b.String(), nil
}
