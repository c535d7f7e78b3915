package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/iotd-api/internal/dto"
	"github.com/noah-isme/iotd-api/internal/models"
	"github.com/noah-isme/iotd-api/internal/repository"
	appErrors "github.com/noah-isme/iotd-api/pkg/errors"
	"github.com/noah-isme/iotd-api/pkg/iotd"
)

type visibilityRepository interface {
	Hide(ctx context.Context, imageID, actorID string) (*models.HiddenImage, error)
	Unhide(ctx context.Context, id, actorID string) error
	ListHidden(ctx context.Context, actorID string) ([]models.HiddenImage, error)
	Dismiss(ctx context.Context, imageID, actorID string) (*models.DismissedImage, error)
	ListDismissed(ctx context.Context, actorID string) ([]models.DismissedImage, error)
	CountDismissals(ctx context.Context, imageID string) (int, error)
}

type imageCatalog interface {
	ImageExists(ctx context.Context, imageID string) (bool, error)
}

// VisibilityService manages the per-actor hide and dismiss annotations.
type VisibilityService struct {
	repo      visibilityRepository
	images    imageCatalog
	config    iotdConfigProvider
	audit     auditLogger
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewVisibilityService constructs a VisibilityService.
func NewVisibilityService(repo visibilityRepository, images imageCatalog, config iotdConfigProvider, audit auditLogger, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *VisibilityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VisibilityService{
		repo:      repo,
		images:    images,
		config:    config,
		audit:     audit,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// Hide removes an image from the actor's queues until unhidden.
func (s *VisibilityService) Hide(ctx context.Context, actor *models.JWTClaims, req dto.VisibilityRequest) (*models.HiddenImage, error) {
	if err := s.precheck(ctx, iotd.ActionHide, actor, req); err != nil {
		return nil, err
	}
	hidden, err := s.repo.Hide(ctx, req.ImageID, actor.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "image already hidden")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hide image")
	}
	s.metrics.RecordVisibility("hide")
	s.emitAudit(ctx, actor, models.AuditActionHide, models.AuditResourceHiddenImage, hidden.ID, hidden)
	return hidden, nil
}

// Unhide reverses a hide owned by the actor.
func (s *VisibilityService) Unhide(ctx context.Context, actor *models.JWTClaims, id string) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if err := s.repo.Unhide(ctx, id, actor.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "hidden image not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unhide image")
	}
	s.metrics.RecordVisibility("unhide")
	s.emitAudit(ctx, actor, models.AuditActionUnhide, models.AuditResourceHiddenImage, id, nil)
	return nil
}

// ListHidden returns the actor's hidden images.
func (s *VisibilityService) ListHidden(ctx context.Context, actor *models.JWTClaims) ([]models.HiddenImage, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	items, err := s.repo.ListHidden(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list hidden images")
	}
	if items == nil {
		items = []models.HiddenImage{}
	}
	return items, nil
}

// Dismiss irreversibly removes an image from the actor's queues. Once
// IOTD_MAX_DISMISSALS actors dismissed it the image leaves every queue.
func (s *VisibilityService) Dismiss(ctx context.Context, actor *models.JWTClaims, req dto.VisibilityRequest) (*dto.DismissalResponse, error) {
	if err := s.precheck(ctx, iotd.ActionDismiss, actor, req); err != nil {
		return nil, err
	}
	dismissed, err := s.repo.Dismiss(ctx, req.ImageID, actor.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "image already dismissed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to dismiss image")
	}
	s.metrics.RecordVisibility("dismiss")
	s.emitAudit(ctx, actor, models.AuditActionDismiss, models.AuditResourceDismissal, dismissed.ID, dismissed)

	resp := &dto.DismissalResponse{Dismissal: dismissed}
	count, err := s.repo.CountDismissals(ctx, req.ImageID)
	if err != nil {
		s.logger.Warn("failed to count dismissals", zap.String("image_id", req.ImageID), zap.Error(err))
		return resp, nil
	}
	resp.Dismissals = count
	if cfg, err := s.config.Get(ctx); err == nil {
		resp.RemovedFromQueues = iotd.DismissedForAll(count, cfg.MaxDismissals)
	}
	if resp.RemovedFromQueues {
		s.logger.Info("image dismissed from every queue", zap.String("image_id", req.ImageID), zap.Int("dismissals", count))
	}
	return resp, nil
}

// ListDismissed returns the actor's dismissals.
func (s *VisibilityService) ListDismissed(ctx context.Context, actor *models.JWTClaims) ([]models.DismissedImage, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	items, err := s.repo.ListDismissed(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list dismissed images")
	}
	if items == nil {
		items = []models.DismissedImage{}
	}
	return items, nil
}

func (s *VisibilityService) precheck(ctx context.Context, action iotd.Action, actor *models.JWTClaims, req dto.VisibilityRequest) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if iotd.RequiresConfirmation(action) && !req.Confirm {
		return appErrors.ErrConfirmationRequired
	}
	exists, err := s.images.ImageExists(ctx, req.ImageID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify image")
	}
	if !exists {
		return appErrors.Clone(appErrors.ErrNotFound, "image not found")
	}
	return nil
}

func (s *VisibilityService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, resource, id string, value interface{}) {
	if s.audit == nil {
		return
	}
	var payload []byte
	if value != nil {
		payload, _ = json.Marshal(value)
	}
	log := &models.AuditLog{
		UserID:     userIDPtr(actor),
		Action:     action,
		Resource:   resource,
		ResourceID: &id,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "visibility-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record visibility audit", zap.Error(err))
	}
}
