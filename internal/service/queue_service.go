package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/iotd-api/internal/dto"
	"github.com/noah-isme/iotd-api/internal/models"
	appErrors "github.com/noah-isme/iotd-api/pkg/errors"
	"github.com/noah-isme/iotd-api/pkg/iotd"
)

const snapshotPageSize = 100

type iotdConfigProvider interface {
	Get(ctx context.Context) (iotd.Config, error)
}

type queueRepository interface {
	List(ctx context.Context, filter models.QueueFilter) ([]models.QueueEntry, int, error)
	Get(ctx context.Context, filter models.QueueFilter, imageID string) (*models.QueueEntry, error)
}

type promotionReader interface {
	ListByActor(ctx context.Context, stage iotd.Stage, actorID string) ([]models.PromotionRecord, error)
}

// QueueServiceConfig tunes runtime behaviour.
type QueueServiceConfig struct {
	Location *time.Location
	Clock    func() time.Time
}

// QueueService lists stage queues annotated with the caller's eligibility.
type QueueService struct {
	config     iotdConfigProvider
	queue      queueRepository
	promotions promotionReader
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	loc        *time.Location
	now        func() time.Time
}

// NewQueueService constructs a QueueService.
func NewQueueService(config iotdConfigProvider, queue queueRepository, promotions promotionReader, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg QueueServiceConfig) *QueueService {
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
	return &QueueService{
		config:     config,
		queue:      queue,
		promotions: promotions,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		loc:        cfg.Location,
		now:        cfg.Clock,
	}
}

// List returns one page of the stage queue for actor.
func (s *QueueService) List(ctx context.Context, stage iotd.Stage, actor *models.JWTClaims, query dto.QueueQuery) (*dto.QueuePage, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query parameters")
	}
	if !stage.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown stage")
	}

	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, err
	}
	engine := iotd.NewEngine(cfg, s.now, s.loc)

	page, size := models.NormalizePage(query.Page, query.PageSize)
	filter := queueFilter(stage, actor.UserID, cfg, s.now())
	filter.IncludeHidden = query.IncludeHidden
	filter.Page = page
	filter.PageSize = size

	rows, total, err := s.queue.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list queue")
	}

	records, err := loadActorRecords(ctx, s.promotions, stage, actor.UserID)
	if err != nil {
		return nil, err
	}

	entries := make([]dto.QueueEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, s.annotate(engine, stage, actor.UserID, row, records))
	}

	return &dto.QueuePage{
		Stage:       stage,
		Entries:     entries,
		Eligibility: engine.Eligibility(stage, records, ""),
		Pagination: &models.Pagination{
			Page:       page,
			PageSize:   size,
			TotalCount: total,
		},
	}, nil
}

// Snapshot walks every page of the stage queue. Used by queue_snapshot reports.
func (s *QueueService) Snapshot(ctx context.Context, stage iotd.Stage, actor *models.JWTClaims) ([]dto.QueueEntry, error) {
	var all []dto.QueueEntry
	for page := 1; ; page++ {
		result, err := s.List(ctx, stage, actor, dto.QueueQuery{Page: page, PageSize: snapshotPageSize, IncludeHidden: true})
		if err != nil {
			return nil, err
		}
		all = append(all, result.Entries...)
		if len(result.Entries) == 0 || len(all) >= result.Pagination.TotalCount {
			return all, nil
		}
	}
}

func (s *QueueService) annotate(engine *iotd.Engine, stage iotd.Stage, actorID string, row models.QueueEntry, records []iotd.Record) dto.QueueEntry {
	entry := dto.QueueEntry{
		ImageID:        row.ImageID,
		Title:          row.Title,
		OwnerID:        row.OwnerID,
		EntryTimestamp: row.EntryTimestamp,
		Promotions:     row.Promotions,
		Dismissals:     row.Dismissals,
		Hidden:         row.Hidden,
		Designated:     designated(stage, row.ImageID, actorID, engine.Config()),
	}

	if expiresAt, err := engine.Expiration(stage, row.EntryTimestamp); err != nil {
		entry.ExpirationError = appErrors.ErrInvalidTimestamp.Code
		s.metrics.RecordExpirationError(stage)
		s.logger.Warn("queue entry has invalid stage timestamp",
			zap.String("stage", string(stage)),
			zap.String("image_id", row.ImageID),
			zap.String("entry_timestamp", row.EntryTimestamp),
		)
	} else {
		entry.ExpiresAt = &expiresAt
	}

	eligibility := engine.Eligibility(stage, records, row.ImageID)
	entry.Promoted = eligibility.State == iotd.StatePromoted
	if record, ok := iotd.FindByImage(records, row.ImageID); ok {
		entry.PromotionID = record.ID
	}
	entry.MayPromote = eligibility.MayPromote && entry.Designated && entry.ExpirationError == ""
	return entry
}

// queueFilter scopes a queue query to the stage window ending at now.
func queueFilter(stage iotd.Stage, actorID string, cfg iotd.Config, now time.Time) models.QueueFilter {
	return models.QueueFilter{
		Stage:         stage,
		ActorID:       actorID,
		Since:         now.UTC().AddDate(0, 0, -cfg.WindowDays(stage)),
		MinPromotions: cfg.MinPromotions(stage),
		MaxDismissals: cfg.MaxDismissals,
	}
}

func dayStart(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func loadActorRecords(ctx context.Context, repo promotionReader, stage iotd.Stage, actorID string) ([]iotd.Record, error) {
	rows, err := repo.ListByActor(ctx, stage, actorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load promotions")
	}
	return models.ToRecords(rows), nil
}

func designated(stage iotd.Stage, imageID, actorID string, cfg iotd.Config) bool {
	if stage != iotd.StageSubmission {
		return true
	}
	return iotd.IsDesignatedSubmitter(imageID, actorID, cfg.DesignatedSubmittersPercentage)
}

// mapEngineError translates engine sentinels into API errors.
func mapEngineError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, iotd.ErrAlreadyPromoted):
		return appErrors.ErrAlreadyPromoted
	case errors.Is(err, iotd.ErrQuotaExceeded):
		return appErrors.ErrQuotaExceeded
	case errors.Is(err, iotd.ErrRecordNotOwned):
		return appErrors.ErrRecordNotOwned
	case errors.Is(err, iotd.ErrInvalidTimestamp):
		return appErrors.ErrInvalidTimestamp
	case errors.Is(err, iotd.ErrUnknownStage):
		return appErrors.Clone(appErrors.ErrValidation, "unknown stage")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
	}
}
