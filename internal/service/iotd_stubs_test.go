package service

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/noah-isme/iotd-api/internal/models"
	"github.com/noah-isme/iotd-api/internal/repository"
	"github.com/noah-isme/iotd-api/pkg/iotd"
)

type staticConfig struct {
	cfg iotd.Config
	err error
}

func (s staticConfig) Get(ctx context.Context) (iotd.Config, error) {
	return s.cfg, s.err
}

type promotionRepoStub struct {
	records    []models.PromotionRecord
	listErr    error
	countSince int
	countErr   error
	createErr  error
	created    []*models.PromotionRecord
	deleted    []string
}

func (p *promotionRepoStub) ListByActor(ctx context.Context, stage iotd.Stage, actorID string) ([]models.PromotionRecord, error) {
	if p.listErr != nil {
		return nil, p.listErr
	}
	var out []models.PromotionRecord
	for _, r := range p.records {
		if r.Stage != stage || r.ActorID != actorID {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (p *promotionRepoStub) CountSince(ctx context.Context, stage iotd.Stage, actorID string, since time.Time) (int, error) {
	return p.countSince, p.countErr
}

func (p *promotionRepoStub) Create(ctx context.Context, record *models.PromotionRecord) error {
	if p.createErr != nil {
		return p.createErr
	}
	record.ID = "new-record"
	p.created = append(p.created, record)
	p.records = append(p.records, *record)
	return nil
}

func (p *promotionRepoStub) Delete(ctx context.Context, id, actorID string) error {
	for i, r := range p.records {
		if r.ID == id && r.ActorID == actorID {
			p.records = append(p.records[:i], p.records[i+1:]...)
			p.deleted = append(p.deleted, id)
			return nil
		}
	}
	return sql.ErrNoRows
}

type queueRepoStub struct {
	entries    []models.QueueEntry
	total      int
	lastFilter models.QueueFilter
	missing    bool
	err        error
	exists     bool
}

func (q *queueRepoStub) List(ctx context.Context, filter models.QueueFilter) ([]models.QueueEntry, int, error) {
	q.lastFilter = filter
	if q.err != nil {
		return nil, 0, q.err
	}
	start := (filter.Page - 1) * filter.PageSize
	if start >= len(q.entries) {
		return []models.QueueEntry{}, q.total, nil
	}
	end := start + filter.PageSize
	if end > len(q.entries) {
		end = len(q.entries)
	}
	return q.entries[start:end], q.total, nil
}

func (q *queueRepoStub) Get(ctx context.Context, filter models.QueueFilter, imageID string) (*models.QueueEntry, error) {
	q.lastFilter = filter
	if q.err != nil {
		return nil, q.err
	}
	if q.missing {
		return nil, sql.ErrNoRows
	}
	for _, e := range q.entries {
		if e.ImageID == imageID {
			entry := e
			return &entry, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (q *queueRepoStub) ImageExists(ctx context.Context, imageID string) (bool, error) {
	return q.exists, q.err
}

type visibilityRepoStub struct {
	hidden     []models.HiddenImage
	dismissed  []models.DismissedImage
	dismissals int
}

func (v *visibilityRepoStub) Hide(ctx context.Context, imageID, actorID string) (*models.HiddenImage, error) {
	for _, h := range v.hidden {
		if h.ImageID == imageID && h.ActorID == actorID {
			return nil, repository.ErrDuplicate
		}
	}
	h := models.HiddenImage{ID: "hidden-" + imageID, ImageID: imageID, ActorID: actorID}
	v.hidden = append(v.hidden, h)
	return &h, nil
}

func (v *visibilityRepoStub) Unhide(ctx context.Context, id, actorID string) error {
	for i, h := range v.hidden {
		if h.ID == id && h.ActorID == actorID {
			v.hidden = append(v.hidden[:i], v.hidden[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (v *visibilityRepoStub) ListHidden(ctx context.Context, actorID string) ([]models.HiddenImage, error) {
	return v.hidden, nil
}

func (v *visibilityRepoStub) Dismiss(ctx context.Context, imageID, actorID string) (*models.DismissedImage, error) {
	for _, d := range v.dismissed {
		if d.ImageID == imageID && d.ActorID == actorID {
			return nil, repository.ErrDuplicate
		}
	}
	d := models.DismissedImage{ID: "dismissed-" + imageID, ImageID: imageID, ActorID: actorID}
	v.dismissed = append(v.dismissed, d)
	v.dismissals++
	return &d, nil
}

func (v *visibilityRepoStub) ListDismissed(ctx context.Context, actorID string) ([]models.DismissedImage, error) {
	return nil, nil
}

func (v *visibilityRepoStub) CountDismissals(ctx context.Context, imageID string) (int, error) {
	return v.dismissals, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
