package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/iotd-api/internal/models"
	"github.com/noah-isme/iotd-api/pkg/iotd"
)

// entryTimestampExpr renders a timestamptz as zone-less UTC text. The engine
// owns the interpretation of that text.
const entryTimestampExpr = `to_char(s.entry_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS.US')`

// QueueRepository reads the per-stage IOTD queues from the image catalog.
type QueueRepository struct {
	db *sqlx.DB
}

// NewQueueRepository constructs the repository.
func NewQueueRepository(db *sqlx.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// List returns a page of the stage queue as seen by filter.ActorID together
// with the total number of entries.
func (r *QueueRepository) List(ctx context.Context, filter models.QueueFilter) ([]models.QueueEntry, int, error) {
	q, err := buildQueueQuery(filter, "")
	if err != nil {
		return nil, 0, err
	}

	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	listQuery := fmt.Sprintf(`%s
SELECT s.image_id, s.title, s.owner_id, %s AS entry_timestamp, s.promotions, COALESCE(d.dismissals, 0) AS dismissals, %s AS hidden
%s
ORDER BY s.entry_at DESC, s.image_id
LIMIT %d OFFSET %d`, q.with, entryTimestampExpr, q.hiddenExpr, q.body, size, (page-1)*size)

	var entries []models.QueueEntry
	if err := r.db.SelectContext(ctx, &entries, listQuery, q.args...); err != nil {
		return nil, 0, fmt.Errorf("list %s queue: %w", filter.Stage.Slug(), err)
	}

	countQuery := fmt.Sprintf("%s\nSELECT COUNT(*)\n%s", q.with, q.body)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, q.args...); err != nil {
		return nil, 0, fmt.Errorf("count %s queue: %w", filter.Stage.Slug(), err)
	}

	return entries, total, nil
}

// Get returns one image of the stage queue regardless of its window so
// callers can tell an expired entry from a missing one. sql.ErrNoRows means
// the image is not eligible for the actor at this stage.
func (r *QueueRepository) Get(ctx context.Context, filter models.QueueFilter, imageID string) (*models.QueueEntry, error) {
	filter.Since = time.Time{}
	filter.IncludeHidden = true
	q, err := buildQueueQuery(filter, imageID)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`%s
SELECT s.image_id, s.title, s.owner_id, %s AS entry_timestamp, s.promotions, COALESCE(d.dismissals, 0) AS dismissals, %s AS hidden
%s`, q.with, entryTimestampExpr, q.hiddenExpr, q.body)

	var entry models.QueueEntry
	if err := r.db.GetContext(ctx, &entry, query, q.args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get %s queue entry: %w", filter.Stage.Slug(), err)
	}
	return &entry, nil
}

// ImageExists reports whether the catalog knows the image.
func (r *QueueRepository) ImageExists(ctx context.Context, imageID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM images WHERE id = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, imageID); err != nil {
		return false, fmt.Errorf("image exists: %w", err)
	}
	return exists, nil
}

type queueQuery struct {
	with       string
	body       string
	hiddenExpr string
	args       []interface{}
}

// buildQueueQuery assembles the CTE selecting a stage's candidates and the
// per-actor filters. $1 is always the actor.
func buildQueueQuery(filter models.QueueFilter, imageID string) (queueQuery, error) {
	args := []interface{}{filter.ActorID}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var source string
	switch filter.Stage {
	case iotd.StageSubmission:
		source = `SELECT i.id AS image_id, i.title, i.user_id AS owner_id,
       i.submitted_for_iotd_tp_consideration AS entry_at, 0 AS promotions
FROM images i
WHERE i.published AND i.submitted_for_iotd_tp_consideration IS NOT NULL`
	case iotd.StageReview, iotd.StageJudgement:
		prev, _ := filter.Stage.Previous()
		source = fmt.Sprintf(`SELECT i.id AS image_id, i.title, i.user_id AS owner_id,
       MAX(p.created_at) AS entry_at, COUNT(*) AS promotions
FROM images i
JOIN iotd_promotions p ON p.image_id = i.id AND p.stage = %s
WHERE i.published
GROUP BY i.id, i.title, i.user_id
HAVING COUNT(*) >= %s`, arg(string(prev)), arg(filter.MinPromotions))
	default:
		return queueQuery{}, fmt.Errorf("%w: %q", iotd.ErrUnknownStage, filter.Stage)
	}

	hiddenExpr := `EXISTS (SELECT 1 FROM iotd_hidden_images h WHERE h.image_id = s.image_id AND h.actor_id = $1)`
	conditions := []string{
		"s.owner_id <> $1",
		"NOT EXISTS (SELECT 1 FROM iotd_dismissed_images x WHERE x.image_id = s.image_id AND x.actor_id = $1)",
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "s.entry_at >= "+arg(filter.Since))
	}
	if filter.MaxDismissals > 0 {
		conditions = append(conditions, "COALESCE(d.dismissals, 0) < "+arg(filter.MaxDismissals))
	}
	if !filter.IncludeHidden {
		conditions = append(conditions, "NOT "+hiddenExpr)
	}
	if imageID != "" {
		conditions = append(conditions, "s.image_id = "+arg(imageID))
	}

	body := fmt.Sprintf(`FROM source s
LEFT JOIN (SELECT image_id, COUNT(*) AS dismissals FROM iotd_dismissed_images GROUP BY image_id) d ON d.image_id = s.image_id
WHERE %s`, strings.Join(conditions, "\n  AND "))

	return queueQuery{
		with:       "WITH source AS (\n" + source + "\n)",
		body:       body,
		hiddenExpr: hiddenExpr,
		args:       args,
	}, nil
}
