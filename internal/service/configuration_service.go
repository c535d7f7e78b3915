package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/iotd-api/internal/dto"
	"github.com/noah-isme/iotd-api/internal/models"
	"github.com/noah-isme/iotd-api/pkg/cache"
	appErrors "github.com/noah-isme/iotd-api/pkg/errors"
	"github.com/noah-isme/iotd-api/pkg/iotd"
)

// IotdConfigCacheKey holds the resolved BackendConfig snapshot.
const IotdConfigCacheKey = cache.KeyPrefix + "config"

type configurationRepository interface {
	ListByKeys(ctx context.Context, keys []string) ([]models.Configuration, error)
	BulkUpsert(ctx context.Context, cfgs []models.Configuration) error
	DeleteKeys(ctx context.Context, keys []string) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type configCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

var configurationDescriptions = map[string]string{
	iotd.KeySubmissionMaxPerDay:            "Submissions a submitter may make per day",
	iotd.KeyReviewMaxPerDay:                "Votes a reviewer may cast per day",
	iotd.KeyJudgementMaxPerDay:             "Images of the day a judge may elect per day",
	iotd.KeySubmissionWindowDays:           "Days an image stays in the submission queue",
	iotd.KeyReviewWindowDays:               "Days an image stays in the review queue",
	iotd.KeyJudgementWindowDays:            "Days an image stays in the judgement queue",
	iotd.KeyDesignatedSubmittersPercentage: "Share of submitters each image is shown to",
	iotd.KeySubmissionMinPromotions:        "Submissions needed before an image reaches review",
	iotd.KeyReviewMinPromotions:            "Votes needed before an image reaches judgement",
	iotd.KeyMaxDismissals:                  "Dismissals that remove an image from every queue",
}

// IotdConfigServiceConfig tunes runtime behaviour.
type IotdConfigServiceConfig struct {
	Defaults      iotd.Config
	QuotaTimezone string
	CacheTTL      time.Duration
}

// IotdConfigService resolves the BackendConfig snapshot: process defaults
// overlaid with the overrides stored in the configurations table.
type IotdConfigService struct {
	repo      configurationRepository
	audit     auditLogger
	cache     configCache
	validator *validator.Validate
	logger    *zap.Logger
	cfg       IotdConfigServiceConfig
}

// NewIotdConfigService constructs an IotdConfigService. snapshots may be nil.
func NewIotdConfigService(repo configurationRepository, audit auditLogger, snapshots configCache, validate *validator.Validate, logger *zap.Logger, cfg IotdConfigServiceConfig) *IotdConfigService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.QuotaTimezone == "" {
		cfg.QuotaTimezone = "UTC"
	}
	return &IotdConfigService{
		repo:      repo,
		audit:     audit,
		cache:     snapshots,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// Get returns the effective configuration snapshot.
func (s *IotdConfigService) Get(ctx context.Context) (iotd.Config, error) {
	if s.cache != nil {
		var cached iotd.Config
		hit, err := s.cache.Get(ctx, IotdConfigCacheKey, &cached)
		if err == nil && hit {
			return cached, nil
		}
	}

	resolved, _, err := s.resolve(ctx)
	if err != nil {
		return iotd.Config{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, IotdConfigCacheKey, resolved, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("failed to cache iotd configuration", zap.Error(err))
		}
	}
	return resolved, nil
}

// Describe lists every key with its effective value and default.
func (s *IotdConfigService) Describe(ctx context.Context) (*dto.IotdConfigResponse, error) {
	resolved, overridden, err := s.resolve(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]dto.ConfigurationItem, 0, len(iotd.ConfigKeys))
	for _, key := range iotd.ConfigKeys {
		value, _ := resolved.Value(key)
		def, _ := s.cfg.Defaults.Value(key)
		items = append(items, dto.ConfigurationItem{
			Key:         key,
			Value:       value,
			Default:     def,
			Overridden:  overridden[key],
			Description: configurationDescriptions[key],
		})
	}
	return &dto.IotdConfigResponse{
		Items:         items,
		Values:        resolved.Map(),
		QuotaTimezone: s.cfg.QuotaTimezone,
	}, nil
}

// BulkUpdate applies overrides and resets atomically per kind, then drops
// the cached snapshot.
func (s *IotdConfigService) BulkUpdate(ctx context.Context, req dto.BulkUpdateConfigurationRequest, actor *models.JWTClaims) (*dto.IotdConfigResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload")
	}
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if len(req.Items) == 0 && len(req.Reset) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "nothing to update")
	}

	current, _, err := s.resolve(ctx)
	if err != nil {
		return nil, err
	}
	previous := current

	for _, key := range req.Reset {
		def, ok := s.cfg.Defaults.Value(key)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported configuration key %s", key))
		}
		_ = current.Set(key, def)
	}

	toUpsert := make([]models.Configuration, 0, len(req.Items))
	seen := make(map[string]struct{}, len(req.Items))
	for _, item := range req.Items {
		if _, dup := seen[item.Key]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate configuration key %s", item.Key))
		}
		seen[item.Key] = struct{}{}
		if err := current.Set(item.Key, *item.Value); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported configuration key %s", item.Key))
		}
		toUpsert = append(toUpsert, models.Configuration{
			Key:         item.Key,
			Value:       strconv.Itoa(*item.Value),
			Type:        models.ConfigurationTypeInteger,
			Description: strPtr(configurationDescriptions[item.Key]),
			UpdatedBy:   userIDPtr(actor),
		})
	}
	for _, key := range req.Reset {
		if _, ok := seen[key]; ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s cannot be updated and reset at once", key))
		}
	}
	if err := current.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	if len(req.Reset) > 0 {
		if err := s.repo.DeleteKeys(ctx, req.Reset); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset configurations")
		}
	}
	if len(toUpsert) > 0 {
		if err := s.repo.BulkUpsert(ctx, toUpsert); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to bulk update configurations")
		}
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, IotdConfigCacheKey); err != nil {
			s.logger.Warn("failed to invalidate iotd configuration cache", zap.Error(err))
		}
	}

	changed := changedKeys(previous, current)
	for _, key := range changed {
		oldValue, _ := previous.Value(key)
		newValue, _ := current.Value(key)
		s.emitAudit(ctx, actor, key, oldValue, newValue)
	}
	s.logger.Info("iotd configuration updated", zap.String("actor_id", actor.UserID), zap.Strings("keys", changed))

	return s.Describe(ctx)
}

func (s *IotdConfigService) resolve(ctx context.Context) (iotd.Config, map[string]bool, error) {
	resolved := s.cfg.Defaults
	overridden := make(map[string]bool)

	rows, err := s.repo.ListByKeys(ctx, iotd.ConfigKeys)
	if err != nil {
		return iotd.Config{}, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load iotd configuration")
	}
	for _, row := range rows {
		if err := resolved.SetString(row.Key, row.Value); err != nil {
			// a corrupt row must not take the queues down; keep the default
			s.logger.Warn("ignoring invalid iotd configuration", zap.String("key", row.Key), zap.String("value", row.Value), zap.Error(err))
			continue
		}
		overridden[row.Key] = true
	}
	return resolved, overridden, nil
}

func (s *IotdConfigService) emitAudit(ctx context.Context, actor *models.JWTClaims, key string, oldValue, newValue int) {
	if s.audit == nil {
		return
	}
	oldBytes, _ := json.Marshal(map[string]interface{}{"key": key, "value": oldValue})
	newBytes, _ := json.Marshal(map[string]interface{}{"key": key, "value": newValue})
	log := &models.AuditLog{
		UserID:     userIDPtr(actor),
		Action:     models.AuditActionConfigUpdate,
		Resource:   models.AuditResourceConfiguration,
		ResourceID: &key,
		OldValues:  oldBytes,
		NewValues:  newBytes,
		IPAddress:  "system",
		UserAgent:  "iotd-config-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record configuration audit", zap.Error(err))
	}
}

func changedKeys(before, after iotd.Config) []string {
	b, a := before.Map(), after.Map()
	keys := make([]string, 0)
	for key, value := range a {
		if b[key] != value {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func userIDPtr(actor *models.JWTClaims) *string {
	if actor == nil || actor.UserID == "" {
		return nil
	}
	return &actor.UserID
}

func strPtr(value string) *string {
	if value == "" {
		return nil
	}
	result := value
	return &result
}
