package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/iotd-api/internal/dto"
	"github.com/noah-isme/iotd-api/internal/middleware"
	"github.com/noah-isme/iotd-api/internal/models"
	appErrors "github.com/noah-isme/iotd-api/pkg/errors"
	"github.com/noah-isme/iotd-api/pkg/iotd"
)

type queueServiceMock struct {
	stage iotd.Stage
	query dto.QueueQuery
	page  *dto.QueuePage
	err   error
}

func (m *queueServiceMock) List(ctx context.Context, stage iotd.Stage, actor *models.JWTClaims, query dto.QueueQuery) (*dto.QueuePage, error) {
	m.stage = stage
	m.query = query
	return m.page, m.err
}

type promotionServiceMock struct {
	stage      iotd.Stage
	promoteReq dto.PromotionRequest
	retracted  string
	err        error
}

func (m *promotionServiceMock) ListMine(ctx context.Context, stage iotd.Stage, actor *models.JWTClaims) (*dto.PromotionList, error) {
	m.stage = stage
	return &dto.PromotionList{Stage: stage, UsedToday: 1, MaxPerDay: 3, Remaining: 2, MayPromote: true}, m.err
}

func (m *promotionServiceMock) Promote(ctx context.Context, stage iotd.Stage, actor *models.JWTClaims, req dto.PromotionRequest) (*models.PromotionRecord, error) {
	m.stage = stage
	m.promoteReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.PromotionRecord{ID: "rec-1", Stage: stage, ImageID: req.ImageID, ActorID: actor.UserID, CreatedAt: time.Now()}, nil
}

func (m *promotionServiceMock) Retract(ctx context.Context, stage iotd.Stage, actor *models.JWTClaims, recordID string) error {
	m.stage = stage
	m.retracted = recordID
	return m.err
}

func newIotdRouter(h *IotdHandler, claims *models.JWTClaims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	group := r.Group("/iotd/:stage", asUser(claims), middleware.StageRole())
	group.GET("/queue", h.Queue)
	group.GET("/promotions", h.ListPromotions)
	group.POST("/promotions", h.Promote)
	group.DELETE("/promotions/:id", h.Retract)
	return r
}

func do(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIotdHandlerQueue(t *testing.T) {
	queue := &queueServiceMock{page: &dto.QueuePage{
		Stage:       iotd.StageReview,
		Entries:     []dto.QueueEntry{{ImageID: "img-1", ExpirationError: "INVALID_TIMESTAMP"}},
		Eligibility: iotd.Eligibility{MayPromote: true, Remaining: 2},
		Pagination:  &models.Pagination{Page: 2, PageSize: 10, TotalCount: 11},
	}}
	r := newIotdRouter(NewIotdHandler(queue, &promotionServiceMock{}), &models.JWTClaims{UserID: "reviewer-1", Role: models.RoleReviewer})

	w := do(r, http.MethodGet, "/iotd/reviews/queue?page=2&page_size=10&include_hidden=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, iotd.StageReview, queue.stage)
	assert.Equal(t, dto.QueueQuery{Page: 2, PageSize: 10, IncludeHidden: true}, queue.query)

	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 11, env.Pagination.TotalCount)
	assert.Equal(t, "REVIEW", env.Meta["stage"])
	assert.Contains(t, string(env.Data), `"expires_at":null`)
	assert.Contains(t, string(env.Data), `"expiration_error":"INVALID_TIMESTAMP"`)
}

func TestIotdHandlerQueueRejectsWrongRole(t *testing.T) {
	queue := &queueServiceMock{}
	r := newIotdRouter(NewIotdHandler(queue, &promotionServiceMock{}), &models.JWTClaims{UserID: "judge-1", Role: models.RoleJudge})

	w := do(r, http.MethodGet, "/iotd/review/queue", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, queue.stage)
}

func TestIotdHandlerPromote(t *testing.T) {
	promotions := &promotionServiceMock{}
	r := newIotdRouter(NewIotdHandler(&queueServiceMock{}, promotions), &models.JWTClaims{UserID: "judge-1", Role: models.RoleJudge})

	w := do(r, http.MethodPost, "/iotd/judgement/promotions", dto.PromotionRequest{ImageID: "img-9"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, iotd.StageJudgement, promotions.stage)
	assert.Equal(t, "img-9", promotions.promoteReq.ImageID)
	assert.Contains(t, string(decodeEnvelope(t, w).Data), `"image_id":"img-9"`)
}

func TestIotdHandlerPromotePassesServiceErrors(t *testing.T) {
	for _, target := range []*appErrors.Error{appErrors.ErrQuotaExceeded, appErrors.ErrAlreadyPromoted, appErrors.ErrEntryExpired} {
		promotions := &promotionServiceMock{err: target}
		r := newIotdRouter(NewIotdHandler(&queueServiceMock{}, promotions), &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

		w := do(r, http.MethodPost, "/iotd/submission/promotions", dto.PromotionRequest{ImageID: "img-1"})
		assert.Equal(t, target.Status, w.Code)
		assert.Equal(t, target.Code, errorCode(t, w))
	}
}

func TestIotdHandlerPromoteInvalidBody(t *testing.T) {
	r := newIotdRouter(NewIotdHandler(&queueServiceMock{}, &promotionServiceMock{}), &models.JWTClaims{UserID: "reviewer-1", Role: models.RoleReviewer})
	req := httptest.NewRequest(http.MethodPost, "/iotd/review/promotions", bytes.NewReader([]byte("{")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIotdHandlerRetract(t *testing.T) {
	promotions := &promotionServiceMock{}
	r := newIotdRouter(NewIotdHandler(&queueServiceMock{}, promotions), &models.JWTClaims{UserID: "submitter-1", Role: models.RoleSubmitter})

	w := do(r, http.MethodDelete, "/iotd/submission/promotions/rec-7", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "rec-7", promotions.retracted)

	promotions.err = appErrors.ErrRecordNotOwned
	w = do(r, http.MethodDelete, "/iotd/submission/promotions/rec-8", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "RECORD_NOT_OWNED", errorCode(t, w))
}

func TestIotdHandlerListPromotions(t *testing.T) {
	promotions := &promotionServiceMock{}
	r := newIotdRouter(NewIotdHandler(&queueServiceMock{}, promotions), &models.JWTClaims{UserID: "reviewer-1", Role: models.RoleReviewer})

	w := do(r, http.MethodGet, "/iotd/review/promotions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decodeEnvelope(t, w).Data), `"remaining":2`)
}

func TestIotdHandlerWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewIotdHandler(&queueServiceMock{}, &promotionServiceMock{})
	c, w := newGinContext(http.MethodGet, "/iotd/review/queue", nil)
	c.Params = gin.Params{{Key: "stage", Value: "review"}}
	h.Queue(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
