package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/iotd-api/internal/models"
)

// VisibilityRepository persists hidden and dismissed images.
type VisibilityRepository struct {
	db *sqlx.DB
}

// NewVisibilityRepository constructs the repository.
func NewVisibilityRepository(db *sqlx.DB) *VisibilityRepository {
	return &VisibilityRepository{db: db}
}

// Hide records that actorID no longer wants to see imageID.
func (r *VisibilityRepository) Hide(ctx context.Context, imageID, actorID string) (*models.HiddenImage, error) {
	hidden := &models.HiddenImage{ID: uuid.NewString(), ImageID: imageID, ActorID: actorID, CreatedAt: time.Now().UTC()}
	const query = `INSERT INTO iotd_hidden_images (id, image_id, actor_id, created_at) VALUES (:id, :image_id, :actor_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, hidden); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("hide image: %w", err)
	}
	return hidden, nil
}

// Unhide removes a hidden entry owned by actorID.
func (r *VisibilityRepository) Unhide(ctx context.Context, id, actorID string) error {
	const query = `DELETE FROM iotd_hidden_images WHERE id = $1 AND actor_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, actorID)
	if err != nil {
		return fmt.Errorf("unhide image: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListHidden returns the actor's hidden images, newest first.
func (r *VisibilityRepository) ListHidden(ctx context.Context, actorID string) ([]models.HiddenImage, error) {
	const query = `SELECT id, image_id, actor_id, created_at FROM iotd_hidden_images WHERE actor_id = $1 ORDER BY created_at DESC`
	var items []models.HiddenImage
	if err := r.db.SelectContext(ctx, &items, query, actorID); err != nil {
		return nil, fmt.Errorf("list hidden images: %w", err)
	}
	return items, nil
}

// Dismiss records an irreversible dismissal.
func (r *VisibilityRepository) Dismiss(ctx context.Context, imageID, actorID string) (*models.DismissedImage, error) {
	dismissed := &models.DismissedImage{ID: uuid.NewString(), ImageID: imageID, ActorID: actorID, CreatedAt: time.Now().UTC()}
	const query = `INSERT INTO iotd_dismissed_images (id, image_id, actor_id, created_at) VALUES (:id, :image_id, :actor_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, dismissed); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("dismiss image: %w", err)
	}
	return dismissed, nil
}

// ListDismissed returns the actor's dismissals, newest first.
func (r *VisibilityRepository) ListDismissed(ctx context.Context, actorID string) ([]models.DismissedImage, error) {
	const query = `SELECT id, image_id, actor_id, created_at FROM iotd_dismissed_images WHERE actor_id = $1 ORDER BY created_at DESC`
	var items []models.DismissedImage
	if err := r.db.SelectContext(ctx, &items, query, actorID); err != nil {
		return nil, fmt.Errorf("list dismissed images: %w", err)
	}
	return items, nil
}

// CountDismissals returns how many distinct actors dismissed imageID.
func (r *VisibilityRepository) CountDismissals(ctx context.Context, imageID string) (int, error) {
	const query = `SELECT COUNT(*) FROM iotd_dismissed_images WHERE image_id = $1`
	var total int
	if err := r.db.GetContext(ctx, &total, query, imageID); err != nil {
		return 0, fmt.Errorf("count dismissals: %w", err)
	}
	return total, nil
}
