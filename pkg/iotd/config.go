package iotd

import (
	"fmt"
	"strconv"
)

// Backend configuration keys.
const (
	KeySubmissionMaxPerDay            = "IOTD_SUBMISSION_MAX_PER_DAY"
	KeyReviewMaxPerDay                = "IOTD_REVIEW_MAX_PER_DAY"
	KeyJudgementMaxPerDay             = "IOTD_JUDGEMENT_MAX_PER_DAY"
	KeySubmissionWindowDays           = "IOTD_SUBMISSION_WINDOW_DAYS"
	KeyReviewWindowDays               = "IOTD_REVIEW_WINDOW_DAYS"
	KeyJudgementWindowDays            = "IOTD_JUDGEMENT_WINDOW_DAYS"
	KeyDesignatedSubmittersPercentage = "IOTD_DESIGNATED_SUBMITTERS_PERCENTAGE"
	KeySubmissionMinPromotions        = "IOTD_SUBMISSION_MIN_PROMOTIONS"
	KeyReviewMinPromotions            = "IOTD_REVIEW_MIN_PROMOTIONS"
	KeyMaxDismissals                  = "IOTD_MAX_DISMISSALS"
)

// ConfigKeys lists every key in a stable order.
var ConfigKeys = []string{
	KeySubmissionMaxPerDay,
	KeyReviewMaxPerDay,
	KeyJudgementMaxPerDay,
	KeySubmissionWindowDays,
	KeyReviewWindowDays,
	KeyJudgementWindowDays,
	KeyDesignatedSubmittersPercentage,
	KeySubmissionMinPromotions,
	KeyReviewMinPromotions,
	KeyMaxDismissals,
}

// Config is the backend-tunable snapshot. It is fetched once and treated as constant.
type Config struct {
	SubmissionMaxPerDay            int `json:"IOTD_SUBMISSION_MAX_PER_DAY"`
	ReviewMaxPerDay                int `json:"IOTD_REVIEW_MAX_PER_DAY"`
	JudgementMaxPerDay             int `json:"IOTD_JUDGEMENT_MAX_PER_DAY"`
	SubmissionWindowDays           int `json:"IOTD_SUBMISSION_WINDOW_DAYS"`
	ReviewWindowDays               int `json:"IOTD_REVIEW_WINDOW_DAYS"`
	JudgementWindowDays            int `json:"IOTD_JUDGEMENT_WINDOW_DAYS"`
	DesignatedSubmittersPercentage int `json:"IOTD_DESIGNATED_SUBMITTERS_PERCENTAGE"`
	SubmissionMinPromotions        int `json:"IOTD_SUBMISSION_MIN_PROMOTIONS"`
	ReviewMinPromotions            int `json:"IOTD_REVIEW_MIN_PROMOTIONS"`
	MaxDismissals                  int `json:"IOTD_MAX_DISMISSALS"`
}

// MaxPerDay returns the per-actor daily quota for the stage.
func (c Config) MaxPerDay(stage Stage) int {
	v, _ := c.Value(stage.Spec().MaxPerDayKey)
	return v
}

// WindowDays returns the expiration window length for the stage.
func (c Config) WindowDays(stage Stage) int {
	v, _ := c.Value(stage.Spec().WindowDaysKey)
	return v
}

// MinPromotions returns how many promotions at the previous stage an image
// needs before it enters this one. Submission has no threshold.
func (c Config) MinPromotions(stage Stage) int {
	key := stage.Spec().MinPromotionsKey
	if key == "" {
		return 0
	}
	v, _ := c.Value(key)
	return v
}

// Value looks a setting up by key.
func (c Config) Value(key string) (int, bool) {
	if p := c.field(key); p != nil {
		return *p, true
	}
	return 0, false
}

// Set assigns a setting by key.
func (c *Config) Set(key string, value int) error {
	p := c.field(key)
	if p == nil {
		return fmt.Errorf("unknown iotd configuration key %q", key)
	}
	*p = value
	return nil
}

// SetString parses value as an integer and assigns it.
func (c *Config) SetString(key, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s expects an integer: %w", key, err)
	}
	return c.Set(key, n)
}

// Validate checks ranges: counts and windows are non-negative, the
// designated percentage lies in [0, 100].
func (c Config) Validate() error {
	for _, key := range ConfigKeys {
		v, _ := c.Value(key)
		if v < 0 {
			return fmt.Errorf("%s must not be negative", key)
		}
	}
	if c.DesignatedSubmittersPercentage > 100 {
		return fmt.Errorf("%s must not exceed 100", KeyDesignatedSubmittersPercentage)
	}
	return nil
}

// Map returns the snapshot keyed by configuration key.
func (c Config) Map() map[string]int {
	out := make(map[string]int, len(ConfigKeys))
	for _, key := range ConfigKeys {
		out[key], _ = c.Value(key)
	}
	return out
}

func (c *Config) field(key string) *int {
	switch key {
	case KeySubmissionMaxPerDay:
		return &c.SubmissionMaxPerDay
	case KeyReviewMaxPerDay:
		return &c.ReviewMaxPerDay
	case KeyJudgementMaxPerDay:
		return &c.JudgementMaxPerDay
	case KeySubmissionWindowDays:
		return &c.SubmissionWindowDays
	case KeyReviewWindowDays:
		return &c.ReviewWindowDays
	case KeyJudgementWindowDays:
		return &c.JudgementWindowDays
	case KeyDesignatedSubmittersPercentage:
		return &c.DesignatedSubmittersPercentage
	case KeySubmissionMinPromotions:
		return &c.SubmissionMinPromotions
	case KeyReviewMinPromotions:
		return &c.ReviewMinPromotions
	case KeyMaxDismissals:
		return &c.MaxDismissals
	default:
		return nil
	}
}
