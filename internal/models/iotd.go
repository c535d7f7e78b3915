package models

import (
	"time"

	"github.com/noah-isme/iotd-api/pkg/iotd"
)

// QueueEntry is one image waiting in a stage queue. EntryTimestamp is the
// zone-less UTC text of the stage's timestamp field and is parsed by the
// engine, never by the database driver.
type QueueEntry struct {
	ImageID        string `db:"image_id" json:"image_id"`
	Title          string `db:"title" json:"title"`
	OwnerID        string `db:"owner_id" json:"owner_id"`
	EntryTimestamp string `db:"entry_timestamp" json:"entry_timestamp"`
	Promotions     int    `db:"promotions" json:"promotions"`
	Dismissals     int    `db:"dismissals" json:"dismissals"`
	Hidden         bool   `db:"hidden" json:"hidden"`
}

// QueueFilter scopes a stage queue listing to one staff member.
type QueueFilter struct {
	Stage         iotd.Stage
	ActorID       string
	Since         time.Time
	MinPromotions int
	MaxDismissals int
	IncludeHidden bool
	Page          int
	PageSize      int
}

// PromotionRecord is a persisted Submission, Vote or Iotd row.
type PromotionRecord struct {
	ID        string     `db:"id" json:"id"`
	Stage     iotd.Stage `db:"stage" json:"stage"`
	ImageID   string     `db:"image_id" json:"image_id"`
	ActorID   string     `db:"actor_id" json:"actor_id"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// ToRecord converts the row into the engine representation.
func (p PromotionRecord) ToRecord() iotd.Record {
	return iotd.Record{ID: p.ID, ImageID: p.ImageID, ActorID: p.ActorID, CreatedAt: p.CreatedAt}
}

// ToRecords converts a slice of rows preserving order.
func ToRecords(rows []PromotionRecord) []iotd.Record {
	records := make([]iotd.Record, len(rows))
	for i, row := range rows {
		records[i] = row.ToRecord()
	}
	return records
}

// PromotionHistoryFilter selects records for export.
type PromotionHistoryFilter struct {
	Stage   iotd.Stage
	ActorID *string
	From    *time.Time
	To      *time.Time
}

// PromotionHistoryRow joins a promotion with its image title.
type PromotionHistoryRow struct {
	PromotionRecord
	Title string `db:"title" json:"title"`
}

// HiddenImage is a reversible per-actor removal from the queues.
type HiddenImage struct {
	ID        string    `db:"id" json:"id"`
	ImageID   string    `db:"image_id" json:"image_id"`
	ActorID   string    `db:"actor_id" json:"actor_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DismissedImage is an irreversible per-actor dismissal.
type DismissedImage struct {
	ID        string    `db:"id" json:"id"`
	ImageID   string    `db:"image_id" json:"image_id"`
	ActorID   string    `db:"actor_id" json:"actor_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
