package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/iotd-api/internal/dto"
	"github.com/noah-isme/iotd-api/internal/handler"
	"github.com/noah-isme/iotd-api/internal/models"
	"github.com/noah-isme/iotd-api/internal/service"
	"github.com/noah-isme/iotd-api/pkg/config"
	appErrors "github.com/noah-isme/iotd-api/pkg/errors"
	"github.com/noah-isme/iotd-api/pkg/iotd"
)

type tokenStub map[string]models.UserRole

func (t tokenStub) ValidateToken(token string) (*models.JWTClaims, error) {
	role, ok := t[token]
	if !ok {
		return nil, appErrors.ErrUnauthorized
	}
	return &models.JWTClaims{UserID: token, Role: role}, nil
}

type configServiceStub struct{ describes int }

func (s *configServiceStub) Describe(ctx context.Context) (*dto.IotdConfigResponse, error) {
	s.describes++
	return &dto.IotdConfigResponse{Values: map[string]int{}, QuotaTimezone: "UTC"}, nil
}

func (s *configServiceStub) BulkUpdate(ctx context.Context, req dto.BulkUpdateConfigurationRequest, actor *models.JWTClaims) (*dto.IotdConfigResponse, error) {
	return &dto.IotdConfigResponse{}, nil
}

type queueServiceStub struct{ stages []iotd.Stage }

func (s *queueServiceStub) List(ctx context.Context, stage iotd.Stage, actor *models.JWTClaims, query dto.QueueQuery) (*dto.QueuePage, error) {
	s.stages = append(s.stages, stage)
	return &dto.QueuePage{Stage: stage, Entries: []dto.QueueEntry{}, Pagination: &models.Pagination{Page: 1, PageSize: 20}}, nil
}

type promotionServiceStub struct{}

func (promotionServiceStub) ListMine(ctx context.Context, stage iotd.Stage, actor *models.JWTClaims) (*dto.PromotionList, error) {
	return &dto.PromotionList{Stage: stage, Records: []models.PromotionRecord{}}, nil
}

func (promotionServiceStub) Promote(ctx context.Context, stage iotd.Stage, actor *models.JWTClaims, req dto.PromotionRequest) (*models.PromotionRecord, error) {
	return &models.PromotionRecord{ID: "rec-1", Stage: stage, ImageID: req.ImageID}, nil
}

func (promotionServiceStub) Retract(ctx context.Context, stage iotd.Stage, actor *models.JWTClaims, recordID string) error {
	return nil
}

type visibilityServiceStub struct{ listed int }

func (s *visibilityServiceStub) Hide(ctx context.Context, actor *models.JWTClaims, req dto.VisibilityRequest) (*models.HiddenImage, error) {
	return &models.HiddenImage{ID: "h-1", ImageID: req.ImageID}, nil
}

func (s *visibilityServiceStub) Unhide(ctx context.Context, actor *models.JWTClaims, id string) error {
	return nil
}

func (s *visibilityServiceStub) ListHidden(ctx context.Context, actor *models.JWTClaims) ([]models.HiddenImage, error) {
	s.listed++
	return []models.HiddenImage{}, nil
}

func (s *visibilityServiceStub) Dismiss(ctx context.Context, actor *models.JWTClaims, req dto.VisibilityRequest) (*dto.DismissalResponse, error) {
	return &dto.DismissalResponse{}, nil
}

func (s *visibilityServiceStub) ListDismissed(ctx context.Context, actor *models.JWTClaims) ([]models.DismissedImage, error) {
	return []models.DismissedImage{}, nil
}

type routerFixture struct {
	engine     *gin.Engine
	config     *configServiceStub
	queue      *queueServiceStub
	visibility *visibilityServiceStub
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &routerFixture{config: &configServiceStub{}, queue: &queueServiceStub{}, visibility: &visibilityServiceStub{}}
	metrics := service.NewMetricsService()
	cfg := &config.Config{Env: config.EnvProduction, APIPrefix: "/api/v1"}
	f.engine = newRouter(cfg, zap.NewNop(), routerDeps{
		metrics:    metrics,
		auth:       tokenStub{"reviewer": models.RoleReviewer, "admin": models.RoleAdmin},
		health:     handler.NewMetricsHandler(metrics, nil),
		authH:      handler.NewAuthHandler(nil),
		config:     handler.NewConfigurationHandler(f.config),
		iotd:       handler.NewIotdHandler(f.queue, promotionServiceStub{}),
		visibility: handler.NewVisibilityHandler(f.visibility),
	})
	return f
}

func (f *routerFixture) get(path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func TestRouterResolvesStaticRoutesBesideStageParam(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.get("/api/v1/iotd/config", "reviewer")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Data dto.IotdConfigResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "UTC", body.Data.QuotaTimezone)
	assert.Equal(t, 1, f.config.describes)

	rec = f.get("/api/v1/iotd/hidden-images", "reviewer")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, f.visibility.listed)
	assert.Empty(t, f.queue.stages)
}

func TestRouterStageRoutes(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.get("/api/v1/iotd/review/queue", "reviewer")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []iotd.Stage{iotd.StageReview}, f.queue.stages)

	rec = f.get("/api/v1/iotd/judgement/queue", "reviewer")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.get("/api/v1/iotd/curation/queue", "admin")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.get("/api/v1/iotd/judgement/promotions", "admin")
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusUnauthorized, f.get("/api/v1/iotd/review/queue", "").Code)
	assert.Len(t, f.queue.stages, 1)
}
