package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/iotd-api/internal/dto"
	"github.com/noah-isme/iotd-api/internal/models"
	"github.com/noah-isme/iotd-api/internal/repository"
	appErrors "github.com/noah-isme/iotd-api/pkg/errors"
	"github.com/noah-isme/iotd-api/pkg/iotd"
)

type promotionRepository interface {
	ListByActor(ctx context.Context, stage iotd.Stage, actorID string) ([]models.PromotionRecord, error)
	CountSince(ctx context.Context, stage iotd.Stage, actorID string, since time.Time) (int, error)
	Create(ctx context.Context, record *models.PromotionRecord) error
	Delete(ctx context.Context, id, actorID string) error
}

type queueEntryReader interface {
	Get(ctx context.Context, filter models.QueueFilter, imageID string) (*models.QueueEntry, error)
}

// PromotionServiceConfig tunes runtime behaviour.
type PromotionServiceConfig struct {
	Location *time.Location
	Clock    func() time.Time
}

// PromotionService records and retracts Submissions, Votes and Iotds.
type PromotionService struct {
	config     iotdConfigProvider
	promotions promotionRepository
	queue      queueEntryReader
	audit      auditLogger
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	loc        *time.Location
	now        func() time.Time
}

// NewPromotionService constructs a PromotionService.
func NewPromotionService(config iotdConfigProvider, promotions promotionRepository, queue queueEntryReader, audit auditLogger, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg PromotionServiceConfig) *PromotionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &PromotionService{
		config:     config,
		promotions: promotions,
		queue:      queue,
		audit:      audit,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		loc:        cfg.Location,
		now:        cfg.Clock,
	}
}

// ListMine returns every record the actor holds at stage, which is the set
// clients need for retraction and promoted checks, plus today's quota state.
func (s *PromotionService) ListMine(ctx context.Context, stage iotd.Stage, actor *models.JWTClaims) (*dto.PromotionList, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.promotions.ListByActor(ctx, stage, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load promotions")
	}
	if rows == nil {
		rows = []models.PromotionRecord{}
	}

	engine := iotd.NewEngine(cfg, s.now, s.loc)
	eligibility := engine.Eligibility(stage, models.ToRecords(rows), "")
	return &dto.PromotionList{
		Stage:      stage,
		Records:    rows,
		UsedToday:  eligibility.UsedToday,
		MaxPerDay:  cfg.MaxPerDay(stage),
		Remaining:  eligibility.Remaining,
		MayPromote: eligibility.MayPromote,
	}, nil
}

// Promote records the actor's promotion of an image at stage.
//
// The engine pre-check runs first. The server then verifies what the
// client cannot see: the image is in the actor's queue and still inside its
// window, the actor is a designated submitter, and the Judgement quota.
func (s *PromotionService) Promote(ctx context.Context, stage iotd.Stage, actor *models.JWTClaims, req dto.PromotionRequest) (*models.PromotionRecord, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid promotion payload")
	}

	record, err := s.promote(ctx, stage, actor, req.ImageID)
	if err != nil {
		s.metrics.RecordPromotion(stage, OutcomeRejected, appErrors.FromError(err).Code)
		s.logger.Info("promotion rejected",
			zap.String("stage", string(stage)),
			zap.String("actor_id", actor.UserID),
			zap.String("image_id", req.ImageID),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.RecordPromotion(stage, OutcomePromoted, "")
	s.emitAudit(ctx, actor, models.AuditActionPromote, record, nil, record)
	return record, nil
}

func (s *PromotionService) promote(ctx context.Context, stage iotd.Stage, actor *models.JWTClaims, imageID string) (*models.PromotionRecord, error) {
	if !stage.Valid() {
		return nil, mapEngineError(iotd.ErrUnknownStage)
	}
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, err
	}
	engine := iotd.NewEngine(cfg, s.now, s.loc)
	now := s.now()
	filter := queueFilter(stage, actor.UserID, cfg, now)

	records, err := loadActorRecords(ctx, s.promotions, stage, actor.UserID)
	if err != nil {
		return nil, err
	}
	promoted := iotd.IsPromoted(stage, records, imageID)
	if err := iotd.CheckPromote(stage, engine.Today(records), cfg.MaxPerDay(stage), promoted); err != nil {
		return nil, mapEngineError(err)
	}

	entry, err := s.queue.Get(ctx, filter, imageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotInQueue
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load queue entry")
	}
	expired, err := engine.Expired(stage, entry.EntryTimestamp)
	if err != nil {
		return nil, mapEngineError(err)
	}
	if expired {
		return nil, appErrors.ErrEntryExpired
	}

	if !designated(stage, imageID, actor.UserID, cfg) {
		return nil, appErrors.ErrNotDesignated
	}

	if stage.Spec().ServerArbitrated {
		used, err := s.promotions.CountSince(ctx, stage, actor.UserID, dayStart(now, s.loc))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count promotions")
		}
		if limit := cfg.MaxPerDay(stage); limit <= 0 || used >= limit {
			return nil, appErrors.ErrQuotaExceeded
		}
	}

	record := &models.PromotionRecord{
		Stage:     stage,
		ImageID:   imageID,
		ActorID:   actor.UserID,
		CreatedAt: now.UTC(),
	}
	if err := s.promotions.Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.ErrAlreadyPromoted
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record promotion")
	}
	return record, nil
}

// Retract deletes one of the actor's own records at stage.
func (s *PromotionService) Retract(ctx context.Context, stage iotd.Stage, actor *models.JWTClaims, recordID string) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if recordID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "record id is required")
	}

	rows, err := s.promotions.ListByActor(ctx, stage, actor.UserID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load promotions")
	}
	records := models.ToRecords(rows)
	if err := iotd.CheckRetract(records, recordID); err != nil {
		return mapEngineError(err)
	}

	if err := s.promotions.Delete(ctx, recordID, actor.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "promotion not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to retract promotion")
	}

	var retracted *models.PromotionRecord
	for i := range rows {
		if rows[i].ID == recordID {
			retracted = &rows[i]
			break
		}
	}
	s.metrics.RecordPromotion(stage, OutcomeRetracted, "")
	s.emitAudit(ctx, actor, models.AuditActionRetract, retracted, retracted, nil)
	return nil
}

func (s *PromotionService) emitAudit(ctx context.Context, actor *models.JWTClaims, action string, record, oldValue, newValue *models.PromotionRecord) {
	if s.audit == nil || record == nil {
		return
	}
	var oldBytes, newBytes []byte
	if oldValue != nil {
		oldBytes, _ = json.Marshal(oldValue)
	}
	if newValue != nil {
		newBytes, _ = json.Marshal(newValue)
	}
	id := record.ID
	log := &models.AuditLog{
		UserID:     userIDPtr(actor),
		Action:     action,
		Resource:   models.AuditResourcePromotion,
		ResourceID: &id,
		OldValues:  oldBytes,
		NewValues:  newBytes,
		IPAddress:  "system",
		UserAgent:  "promotion-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record promotion audit", zap.Error(err))
	}
}
