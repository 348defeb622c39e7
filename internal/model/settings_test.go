package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSettings_Defaults(t *testing.T) {
	s, err := ParseSettings(nil)
	require.NoError(t, err)

	assert.InDelta(t, 0.8, s.ConfidenceThreshold, 1e-9)
	assert.InDelta(t, -0.05, s.SentimentThreshold, 1e-9)
	assert.Equal(t, 10, s.PollIntervalMinutes)
	assert.Equal(t, 50, s.AnalyzeBatchSize)
	assert.True(t, s.SkipNeutral)
	assert.Contains(t, s.Keywords, "frustrated")
	assert.Contains(t, s.Subreddits, "freelance")
	assert.NotEmpty(t, s.LLMModel)
}

func TestParseSettings_Overrides(t *testing.T) {
	s, err := ParseSettings(map[string]string{
		SettingConfidenceThreshold: "0.65",
		SettingKeywords:            " stuck , help , ",
		SettingSkipNeutral:         "false",
		SettingLLMModel:            "claude-sonnet-4-5-20250929",
	})
	require.NoError(t, err)

	assert.InDelta(t, 0.65, s.ConfidenceThreshold, 1e-9)
	assert.Equal(t, []string{"stuck", "help"}, s.Keywords)
	assert.False(t, s.SkipNeutral)
	assert.Equal(t, "claude-sonnet-4-5-20250929", s.LLMModel)
}

func TestParseSettings_InvalidFloat(t *testing.T) {
	_, err := ParseSettings(map[string]string{SettingConfidenceThreshold: "high"})
	require.Error(t, err)

	var se *SettingsError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, SettingConfidenceThreshold, se.Key)
}

func TestParseSettings_ThresholdOutOfRange(t *testing.T) {
	_, err := ParseSettings(map[string]string{SettingConfidenceThreshold: "1.5"})
	require.Error(t, err)
}

func TestParseSettings_EmptyModel(t *testing.T) {
	_, err := ParseSettings(map[string]string{SettingLLMModel: "  "})
	require.Error(t, err)

	var se *SettingsError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, SettingLLMModel, se.Key)
}

func TestParseSettings_NonPositivePollInterval(t *testing.T) {
	for _, raw := range []string{"0", "-5"} {
		_, err := ParseSettings(map[string]string{SettingPollInterval: raw})
		require.Error(t, err, raw)

		var se *SettingsError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, SettingPollInterval, se.Key)
	}
}

func TestParseSettings_BatchSizeFloor(t *testing.T) {
	s, err := ParseSettings(map[string]string{SettingAnalyzeBatchSize: "0"})
	require.NoError(t, err)
	assert.Equal(t, 50, s.AnalyzeBatchSize)
}
