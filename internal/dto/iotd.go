package dto

import (
	"time"

	"github.com/noah-isme/iotd-api/internal/models"
	"github.com/noah-isme/iotd-api/pkg/iotd"
)

// QueueEntry is one image of a stage queue annotated for the caller.
// ExpiresAt is nil and ExpirationError set when the entry timestamp could
// not be parsed; clients render that as "unknown".
type QueueEntry struct {
	ImageID         string     `json:"image_id"`
	Title           string     `json:"title"`
	OwnerID         string     `json:"owner_id"`
	EntryTimestamp  string     `json:"entry_timestamp"`
	ExpiresAt       *time.Time `json:"expires_at"`
	ExpirationError string     `json:"expiration_error,omitempty"`
	Promotions      int        `json:"promotions"`
	Dismissals      int        `json:"dismissals"`
	Hidden          bool       `json:"hidden"`
	Promoted        bool       `json:"promoted"`
	PromotionID     string     `json:"promotion_id,omitempty"`
	MayPromote      bool       `json:"may_promote"`
	Designated      bool       `json:"designated"`
}

// QueueQuery carries GET /iotd/:stage/queue parameters.
type QueueQuery struct {
	Page          int  `form:"page" validate:"omitempty,min=1"`
	PageSize      int  `form:"page_size" validate:"omitempty,min=1,max=100"`
	IncludeHidden bool `form:"include_hidden"`
}

// QueuePage is a page of queue entries plus the caller's quota state.
type QueuePage struct {
	Stage       iotd.Stage         `json:"stage"`
	Entries     []QueueEntry       `json:"entries"`
	Eligibility iotd.Eligibility   `json:"eligibility"`
	Pagination  *models.Pagination `json:"-"`
}

// PromotionRequest is the body of POST /iotd/:stage/promotions.
type PromotionRequest struct {
	ImageID string `json:"image_id" validate:"required"`
}

// PromotionList is the caller's record snapshot for one stage.
type PromotionList struct {
	Stage      iotd.Stage               `json:"stage"`
	Records    []models.PromotionRecord `json:"records"`
	UsedToday  int                      `json:"used_today"`
	MaxPerDay  int                      `json:"max_per_day"`
	Remaining  int                      `json:"remaining"`
	MayPromote bool                     `json:"may_promote"`
}

// VisibilityRequest hides or dismisses an image. Dismissals require Confirm.
type VisibilityRequest struct {
	ImageID string `json:"image_id" validate:"required"`
	Confirm bool   `json:"confirm"`
}

// DismissalResponse reports a dismissal and whether it removed the image
// from every queue.
type DismissalResponse struct {
	Dismissal         *models.DismissedImage `json:"dismissal"`
	Dismissals        int                    `json:"dismissals"`
	RemovedFromQueues bool                   `json:"removed_from_queues"`
}
