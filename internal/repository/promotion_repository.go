package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/iotd-api/internal/models"
	"github.com/noah-isme/iotd-api/pkg/iotd"
)

const promotionColumns = `id, stage, image_id, actor_id, created_at`

// PromotionRepository stores Submission, Vote and Iotd records in the
// iotd_promotions table, one row per (stage, image, actor).
type PromotionRepository struct {
	db *sqlx.DB
}

// NewPromotionRepository constructs the repository.
func NewPromotionRepository(db *sqlx.DB) *PromotionRepository {
	return &PromotionRepository{db: db}
}

// ListByActor returns every record the actor holds at a stage, newest first.
// Promoted and ownership checks need the whole set: an image can stay queued
// long after the actor promoted it.
func (r *PromotionRepository) ListByActor(ctx context.Context, stage iotd.Stage, actorID string) ([]models.PromotionRecord, error) {
	const query = `SELECT ` + promotionColumns + ` FROM iotd_promotions WHERE stage = $1 AND actor_id = $2 ORDER BY created_at DESC, id`

	var records []models.PromotionRecord
	if err := r.db.SelectContext(ctx, &records, query, stage, actorID); err != nil {
		return nil, fmt.Errorf("list promotions: %w", err)
	}
	return records, nil
}

// CountSince counts records for a stage created at or after since across all
// actors when actorID is empty.
func (r *PromotionRepository) CountSince(ctx context.Context, stage iotd.Stage, actorID string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM iotd_promotions WHERE stage = $1 AND created_at >= $2`
	args := []interface{}{stage, since}
	if actorID != "" {
		query += ` AND actor_id = $3`
		args = append(args, actorID)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("count promotions: %w", err)
	}
	return total, nil
}

// Create inserts a record. A second promotion of the same image by the same
// actor at the same stage returns ErrDuplicate.
func (r *PromotionRepository) Create(ctx context.Context, record *models.PromotionRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO iotd_promotions (id, stage, image_id, actor_id, created_at) VALUES (:id, :stage, :image_id, :actor_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create promotion: %w", err)
	}
	return nil
}

// Delete removes a record owned by actorID. sql.ErrNoRows is returned when
// no such record exists for that actor.
func (r *PromotionRepository) Delete(ctx context.Context, id, actorID string) error {
	const query = `DELETE FROM iotd_promotions WHERE id = $1 AND actor_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, actorID)
	if err != nil {
		return fmt.Errorf("delete promotion: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete promotion: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// History lists records joined with image titles for exports.
func (r *PromotionRepository) History(ctx context.Context, filter models.PromotionHistoryFilter) ([]models.PromotionHistoryRow, error) {
	conditions := []string{"p.stage = $1"}
	args := []interface{}{filter.Stage}
	if filter.ActorID != nil {
		args = append(args, *filter.ActorID)
		conditions = append(conditions, fmt.Sprintf("p.actor_id = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("p.created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("p.created_at < $%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT p.id, p.stage, p.image_id, p.actor_id, p.created_at, COALESCE(i.title, '') AS title
FROM iotd_promotions p LEFT JOIN images i ON i.id = p.image_id
WHERE %s ORDER BY p.created_at ASC, p.id`, strings.Join(conditions, " AND "))

	var rows []models.PromotionHistoryRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("promotion history: %w", err)
	}
	return rows, nil
}
