package iotd

import (
	"errors"
	"time"
)

var (
	// ErrAlreadyPromoted means the actor already holds a record for the image at this stage.
	ErrAlreadyPromoted = errors.New("image already promoted at this stage")
	// ErrQuotaExceeded means the actor used up the stage quota for today.
	ErrQuotaExceeded = errors.New("daily promotion quota exhausted")
	// ErrRecordNotOwned means a retract targeted a record outside the actor's own set.
	ErrRecordNotOwned = errors.New("promotion record not owned by actor")
)

// Record is one actor's promotion of one image at one stage.
type Record struct {
	ID        string    `json:"id"`
	ImageID   string    `json:"image_id"`
	ActorID   string    `json:"actor_id"`
	CreatedAt time.Time `json:"created_at"`
}

// State of an (actor, image, stage) triple.
type State string

const (
	StateNotPromoted State = "NOT_PROMOTED"
	StatePromoted    State = "PROMOTED"
)

// MayPromote decides whether the actor may promote an image at stage.
//
// records must hold only the current actor's records for the stage counted
// against today's quota. At a server-arbitrated stage the quota is left to the
// backend and only the double-promotion rule applies.
func MayPromote(stage Stage, records []Record, maxPerDay int, isAlreadyPromoted bool) bool {
	return CheckPromote(stage, records, maxPerDay, isAlreadyPromoted) == nil
}

// CheckPromote is MayPromote reporting the reason for a refusal.
func CheckPromote(stage Stage, records []Record, maxPerDay int, isAlreadyPromoted bool) error {
	if isAlreadyPromoted {
		return ErrAlreadyPromoted
	}
	if stage.Spec().ServerArbitrated {
		return nil
	}
	if maxPerDay <= 0 || len(records) >= maxPerDay {
		return ErrQuotaExceeded
	}
	return nil
}

// IsPromoted reports whether any record references imageID.
func IsPromoted(stage Stage, records []Record, imageID string) bool {
	_, ok := FindByImage(records, imageID)
	return ok
}

// FindByImage returns the record referencing imageID.
func FindByImage(records []Record, imageID string) (Record, bool) {
	for _, r := range records {
		if r.ImageID == imageID {
			return r, true
		}
	}
	return Record{}, false
}

// StateOf returns the state machine position of imageID for the actor owning records.
func StateOf(records []Record, imageID string) State {
	if _, ok := FindByImage(records, imageID); ok {
		return StatePromoted
	}
	return StateNotPromoted
}

// CheckRetract rejects retracting a record that is not among the actor's own.
func CheckRetract(records []Record, recordID string) error {
	for _, r := range records {
		if r.ID == recordID {
			return nil
		}
	}
	return ErrRecordNotOwned
}

// RecordsToday keeps the records created on the same calendar day as now in loc.
// A nil loc means UTC.
func RecordsToday(records []Record, now time.Time, loc *time.Location) []Record {
	if loc == nil {
		loc = time.UTC
	}
	start := startOfDay(now, loc)
	end := start.AddDate(0, 0, 1)
	out := make([]Record, 0, len(records))
	for _, r := range records {
		created := r.CreatedAt.In(loc)
		if !created.Before(start) && created.Before(end) {
			out = append(out, r)
		}
	}
	return out
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// Eligibility summarises what an actor can do with one image at one stage.
type Eligibility struct {
	Stage      Stage `json:"stage"`
	State      State `json:"state"`
	MayPromote bool  `json:"may_promote"`
	UsedToday  int   `json:"used_today"`
	// Remaining is -1 when the stage quota is arbitrated by the backend.
	Remaining int `json:"remaining"`
}

// Engine binds a configuration snapshot to a clock and the quota day location.
type Engine struct {
	cfg Config
	now func() time.Time
	loc *time.Location
}

// NewEngine builds an Engine. A nil clock means time.Now, a nil loc means UTC.
func NewEngine(cfg Config, clock func() time.Time, loc *time.Location) *Engine {
	if clock == nil {
		clock = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{cfg: cfg, now: clock, loc: loc}
}

// Config returns the snapshot the engine was built with.
func (e *Engine) Config() Config {
	return e.cfg
}

// Location returns the quota day location.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Today narrows an actor's stage records to the current quota day.
func (e *Engine) Today(records []Record) []Record {
	return RecordsToday(records, e.now(), e.loc)
}

// Eligibility evaluates imageID against the actor's full record set for stage.
func (e *Engine) Eligibility(stage Stage, records []Record, imageID string) Eligibility {
	today := e.Today(records)
	maxPerDay := e.cfg.MaxPerDay(stage)
	promoted := IsPromoted(stage, records, imageID)

	result := Eligibility{
		Stage:      stage,
		State:      StateOf(records, imageID),
		MayPromote: MayPromote(stage, today, maxPerDay, promoted),
		UsedToday:  len(today),
		Remaining:  -1,
	}
	if !stage.Spec().ServerArbitrated {
		result.Remaining = remaining(maxPerDay, len(today))
	}
	return result
}

// Expiration computes when an entry leaves the stage queue.
func (e *Engine) Expiration(stage Stage, entryTimestamp string) (time.Time, error) {
	return ComputeExpiration(entryTimestamp, e.cfg.WindowDays(stage))
}

// Expired reports whether an entry's window has closed.
func (e *Engine) Expired(stage Stage, entryTimestamp string) (bool, error) {
	expiresAt, err := e.Expiration(stage, entryTimestamp)
	if err != nil {
		return false, err
	}
	return !e.now().Before(expiresAt), nil
}

func remaining(maxPerDay, used int) int {
	if maxPerDay <= used {
		return 0
	}
	return maxPerDay - used
}
