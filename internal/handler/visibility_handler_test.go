package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/iotd-api/internal/dto"
	"github.com/noah-isme/iotd-api/internal/models"
	appErrors "github.com/noah-isme/iotd-api/pkg/errors"
)

type visibilityServiceMock struct {
	dismissReq dto.VisibilityRequest
	unhidden   string
}

func (m *visibilityServiceMock) Hide(ctx context.Context, actor *models.JWTClaims, req dto.VisibilityRequest) (*models.HiddenImage, error) {
	return &models.HiddenImage{ID: "hid-1", ImageID: req.ImageID, ActorID: actor.UserID}, nil
}

func (m *visibilityServiceMock) Unhide(ctx context.Context, actor *models.JWTClaims, id string) error {
	m.unhidden = id
	return nil
}

func (m *visibilityServiceMock) ListHidden(ctx context.Context, actor *models.JWTClaims) ([]models.HiddenImage, error) {
	return []models.HiddenImage{{ID: "hid-1", ImageID: "img-1", ActorID: actor.UserID}}, nil
}

func (m *visibilityServiceMock) Dismiss(ctx context.Context, actor *models.JWTClaims, req dto.VisibilityRequest) (*dto.DismissalResponse, error) {
	m.dismissReq = req
	if !req.Confirm {
		return nil, appErrors.ErrConfirmationRequired
	}
	return &dto.DismissalResponse{
		Dismissal:         &models.DismissedImage{ID: "dis-1", ImageID: req.ImageID, ActorID: actor.UserID},
		Dismissals:        5,
		RemovedFromQueues: true,
	}, nil
}

func (m *visibilityServiceMock) ListDismissed(ctx context.Context, actor *models.JWTClaims) ([]models.DismissedImage, error) {
	return nil, nil
}

func newVisibilityRouter(svc *visibilityServiceMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewVisibilityHandler(svc)
	r := gin.New()
	group := r.Group("/iotd", asUser(&models.JWTClaims{UserID: "reviewer-1", Role: models.RoleReviewer}))
	group.GET("/hidden-images", h.ListHidden)
	group.POST("/hidden-images", h.Hide)
	group.DELETE("/hidden-images/:id", h.Unhide)
	group.GET("/dismissed-images", h.ListDismissed)
	group.POST("/dismissed-images", h.Dismiss)
	return r
}

func TestVisibilityHandlerHideAndUnhide(t *testing.T) {
	svc := &visibilityServiceMock{}
	r := newVisibilityRouter(svc)

	w := do(r, http.MethodPost, "/iotd/hidden-images", dto.VisibilityRequest{ImageID: "img-1"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, string(decodeEnvelope(t, w).Data), `"image_id":"img-1"`)

	w = do(r, http.MethodDelete, "/iotd/hidden-images/hid-1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "hid-1", svc.unhidden)

	w = do(r, http.MethodGet, "/iotd/hidden-images", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestVisibilityHandlerDismissNeedsConfirmation(t *testing.T) {
	svc := &visibilityServiceMock{}
	r := newVisibilityRouter(svc)

	w := do(r, http.MethodPost, "/iotd/dismissed-images", dto.VisibilityRequest{ImageID: "img-2"})
	assert.Equal(t, http.StatusPreconditionRequired, w.Code)
	assert.Equal(t, "CONFIRMATION_REQUIRED", errorCode(t, w))

	w = do(r, http.MethodPost, "/iotd/dismissed-images", dto.VisibilityRequest{ImageID: "img-2", Confirm: true})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, svc.dismissReq.Confirm)
	assert.Contains(t, string(decodeEnvelope(t, w).Data), `"removed_from_queues":true`)
}

func TestVisibilityHandlerRequiresClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewVisibilityHandler(&visibilityServiceMock{})
	c, w := newGinContext(http.MethodPost, "/iotd/hidden-images", []byte(`{"image_id":"img-1"}`))
	h.Hide(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
