package iotd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStage(t *testing.T) {
	cases := map[string]Stage{
		"submission":  StageSubmission,
		"submissions": StageSubmission,
		"REVIEW":      StageReview,
		"reviews":     StageReview,
		" judgement ": StageJudgement,
	}
	for raw, want := range cases {
		got, err := ParseStage(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got)
	}

	_, err := ParseStage("curation")
	assert.ErrorIs(t, err, ErrUnknownStage)
}

func TestStageSpecMapping(t *testing.T) {
	cfg := Config{
		SubmissionMaxPerDay:     3,
		ReviewMaxPerDay:         4,
		JudgementMaxPerDay:      1,
		SubmissionWindowDays:    2,
		ReviewWindowDays:        5,
		JudgementWindowDays:     7,
		SubmissionMinPromotions: 3,
		ReviewMinPromotions:     2,
	}
	assert.Equal(t, 3, cfg.MaxPerDay(StageSubmission))
	assert.Equal(t, 4, cfg.MaxPerDay(StageReview))
	assert.Equal(t, 1, cfg.MaxPerDay(StageJudgement))
	assert.Equal(t, 2, cfg.WindowDays(StageSubmission))
	assert.Equal(t, 7, cfg.WindowDays(StageJudgement))
	assert.Equal(t, 0, cfg.MinPromotions(StageSubmission))
	assert.Equal(t, 3, cfg.MinPromotions(StageReview))
	assert.Equal(t, 2, cfg.MinPromotions(StageJudgement))

	assert.Equal(t, "lastVoteTimestamp", StageJudgement.Spec().TimestampField)
	assert.True(t, StageJudgement.Spec().ServerArbitrated)
	assert.False(t, StageReview.Spec().ServerArbitrated)

	prev, ok := StageJudgement.Previous()
	assert.True(t, ok)
	assert.Equal(t, StageReview, prev)
	_, ok = StageSubmission.Previous()
	assert.False(t, ok)
}

func TestConfigSetAndValidate(t *testing.T) {
	var cfg Config
	require.NoError(t, cfg.SetString(KeyMaxDismissals, "5"))
	assert.Equal(t, 5, cfg.MaxDismissals)
	assert.Error(t, cfg.SetString(KeyMaxDismissals, "five"))
	assert.Error(t, cfg.Set("IOTD_UNKNOWN", 1))

	require.NoError(t, cfg.Set(KeyDesignatedSubmittersPercentage, 101))
	assert.Error(t, cfg.Validate())
	require.NoError(t, cfg.Set(KeyDesignatedSubmittersPercentage, 50))
	require.NoError(t, cfg.Set(KeyReviewWindowDays, -1))
	assert.Error(t, cfg.Validate())

	m := Config{ReviewMaxPerDay: 9}.Map()
	assert.Len(t, m, len(ConfigKeys))
	assert.Equal(t, 9, m[KeyReviewMaxPerDay])
}
