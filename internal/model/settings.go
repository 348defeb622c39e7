package model

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Setting keys stored in the settings table.
const (
	SettingSubreddits          = "subreddits"
	SettingServices            = "services"
	SettingConfidenceThreshold = "confidence_threshold"
	SettingSentimentThreshold  = "sentiment_threshold"
	SettingLLMModel            = "llm_model"
	SettingPollInterval        = "poll_interval_minutes"
	SettingKeywords            = "frustration_keywords"
	SettingMastodonInstances   = "mastodon_instances"
	SettingSkipNeutral         = "skip_neutral"
	SettingAnalyzeBatchSize    = "analyze_batch_size"
	SettingLeadWebhookURL      = "lead_webhook_url"
)

// DefaultSettings seeds the settings table on first read. Values are stored
// as strings and parsed into a Settings snapshot per run.
var DefaultSettings = map[string]string{
	SettingSubreddits:          "freelance,webdev,forhire,smallbusiness,startups",
	SettingServices:            "web development,automation,design,consulting",
	SettingConfidenceThreshold: "0.8",
	SettingSentimentThreshold:  "-0.05",
	SettingLLMModel:            "claude-haiku-4-5-20251001",
	SettingPollInterval:        "10",
	SettingKeywords:            "frustrated,stuck,can't figure out,need help with,struggling,impossible,giving up,so hard,anyone know how,desperate",
	SettingMastodonInstances:   "mastodon.social,fosstodon.org,techhub.social",
	SettingSkipNeutral:         "true",
	SettingAnalyzeBatchSize:    "50",
	SettingLeadWebhookURL:      "",
}

// SettingsError marks an invalid or unparseable runtime setting. Requests
// that depend on settings fail fast with it before any task starts.
type SettingsError struct {
	Key string
	Err error
}

func (e *SettingsError) Error() string {
	return "invalid setting " + e.Key + ": " + e.Err.Error()
}

func (e *SettingsError) Unwrap() error { return e.Err }

// Settings is an immutable snapshot of the runtime configuration, loaded
// from the settings table at the start of each collect/analyze run and
// passed by value through the run. Edits to the table take effect on the
// next run, never mid-run.
type Settings struct {
	Subreddits          []string
	Services            []string
	ConfidenceThreshold float64
	SentimentThreshold  float64
	LLMModel            string
	PollIntervalMinutes int
	Keywords            []string
	MastodonInstances   []string
	SkipNeutral         bool
	AnalyzeBatchSize    int
	LeadWebhookURL      string
}

// ParseSettings builds a typed snapshot from the raw key/value table,
// falling back to defaults for missing keys. Malformed numeric or boolean
// values return a *SettingsError.
func ParseSettings(raw map[string]string) (Settings, error) {
	get := func(key string) string {
		if v, ok := raw[key]; ok {
			return v
		}
		return DefaultSettings[key]
	}

	s := Settings{
		Subreddits:        splitList(get(SettingSubreddits)),
		Services:          splitList(get(SettingServices)),
		LLMModel:          strings.TrimSpace(get(SettingLLMModel)),
		Keywords:          splitList(get(SettingKeywords)),
		MastodonInstances: splitList(get(SettingMastodonInstances)),
		LeadWebhookURL:    strings.TrimSpace(get(SettingLeadWebhookURL)),
	}

	var err error
	if s.ConfidenceThreshold, err = parseFloat(SettingConfidenceThreshold, get(SettingConfidenceThreshold)); err != nil {
		return Settings{}, err
	}
	if s.ConfidenceThreshold < 0 || s.ConfidenceThreshold > 1 {
		return Settings{}, &SettingsError{Key: SettingConfidenceThreshold, Err: eris.New("must be in [0,1]")}
	}
	if s.SentimentThreshold, err = parseFloat(SettingSentimentThreshold, get(SettingSentimentThreshold)); err != nil {
		return Settings{}, err
	}
	if s.PollIntervalMinutes, err = parseInt(SettingPollInterval, get(SettingPollInterval)); err != nil {
		return Settings{}, err
	}
	if s.PollIntervalMinutes <= 0 {
		return Settings{}, &SettingsError{Key: SettingPollInterval, Err: eris.New("must be positive")}
	}
	if s.AnalyzeBatchSize, err = parseInt(SettingAnalyzeBatchSize, get(SettingAnalyzeBatchSize)); err != nil {
		return Settings{}, err
	}
	if s.AnalyzeBatchSize <= 0 {
		s.AnalyzeBatchSize = 50
	}
	if s.SkipNeutral, err = parseBool(SettingSkipNeutral, get(SettingSkipNeutral)); err != nil {
		return Settings{}, err
	}
	if s.LLMModel == "" {
		return Settings{}, &SettingsError{Key: SettingLLMModel, Err: eris.New("must not be empty")}
	}

	return s, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseFloat(key, raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, &SettingsError{Key: key, Err: err}
	}
	return v, nil
}

func parseInt(key, raw string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, &SettingsError{Key: key, Err: err}
	}
	return v, nil
}

func parseBool(key, raw string) (bool, error) {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, &SettingsError{Key: key, Err: err}
	}
	return v, nil
}
