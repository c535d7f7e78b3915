// Package iotd holds the promotion rules for the Image of the Day queues.
//
// Everything in this package is a pure function of its arguments: callers pass
// snapshots of the actor's records and the backend configuration, and get
// decisions back. Nothing here performs I/O or keeps state between calls.
package iotd

import (
	"errors"
	"fmt"
	"strings"
)

// Stage identifies one of the three promotion queues.
type Stage string

const (
	StageSubmission Stage = "SUBMISSION"
	StageReview     Stage = "REVIEW"
	StageJudgement  Stage = "JUDGEMENT"
)

// Stages lists the stages in queue order.
var Stages = []Stage{StageSubmission, StageReview, StageJudgement}

// ErrUnknownStage is returned by ParseStage for unsupported names.
var ErrUnknownStage = errors.New("unknown promotion stage")

// StageSpec describes how a stage reads its limits and its entry timestamp.
type StageSpec struct {
	MaxPerDayKey     string
	WindowDaysKey    string
	MinPromotionsKey string
	TimestampField   string
	// ServerArbitrated stages leave the quota decision to the backend.
	ServerArbitrated bool
}

var stageSpecs = map[Stage]StageSpec{
	StageSubmission: {
		MaxPerDayKey:   KeySubmissionMaxPerDay,
		WindowDaysKey:  KeySubmissionWindowDays,
		TimestampField: "submittedForIotdTpConsideration",
	},
	StageReview: {
		MaxPerDayKey:     KeyReviewMaxPerDay,
		WindowDaysKey:    KeyReviewWindowDays,
		MinPromotionsKey: KeySubmissionMinPromotions,
		TimestampField:   "lastSubmissionTimestamp",
	},
	StageJudgement: {
		MaxPerDayKey:     KeyJudgementMaxPerDay,
		WindowDaysKey:    KeyJudgementWindowDays,
		MinPromotionsKey: KeyReviewMinPromotions,
		TimestampField:   "lastVoteTimestamp",
		ServerArbitrated: true,
	},
}

// Spec returns the configuration mapping for the stage.
func (s Stage) Spec() StageSpec {
	return stageSpecs[s]
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	_, ok := stageSpecs[s]
	return ok
}

// Previous returns the stage feeding this one. Submission has none.
func (s Stage) Previous() (Stage, bool) {
	switch s {
	case StageReview:
		return StageSubmission, true
	case StageJudgement:
		return StageReview, true
	default:
		return "", false
	}
}

// Slug is the lower-case form used in URLs.
func (s Stage) Slug() string {
	return strings.ToLower(string(s))
}

// ParseStage accepts the canonical name or its URL slug, singular or plural.
func ParseStage(raw string) (Stage, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	normalized = strings.TrimSuffix(normalized, "S")
	stage := Stage(normalized)
	if !stage.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStage, raw)
	}
	return stage, nil
}
