package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/iotd-api/internal/dto"
	"github.com/noah-isme/iotd-api/internal/models"
	appErrors "github.com/noah-isme/iotd-api/pkg/errors"
	"github.com/noah-isme/iotd-api/pkg/response"
)

type visibilityService interface {
	Hide(ctx context.Context, actor *models.JWTClaims, req dto.VisibilityRequest) (*models.HiddenImage, error)
	Unhide(ctx context.Context, actor *models.JWTClaims, id string) error
	ListHidden(ctx context.Context, actor *models.JWTClaims) ([]models.HiddenImage, error)
	Dismiss(ctx context.Context, actor *models.JWTClaims, req dto.VisibilityRequest) (*dto.DismissalResponse, error)
	ListDismissed(ctx context.Context, actor *models.JWTClaims) ([]models.DismissedImage, error)
}

// VisibilityHandler exposes hide and dismiss endpoints.
type VisibilityHandler struct {
	service visibilityService
}

// NewVisibilityHandler constructs a VisibilityHandler.
func NewVisibilityHandler(service visibilityService) *VisibilityHandler {
	return &VisibilityHandler{service: service}
}

// ListHidden godoc
// @Summary List hidden images
// @Tags IOTD
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /iotd/hidden-images [get]
func (h *VisibilityHandler) ListHidden(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	items, err := h.service.ListHidden(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Hide godoc
// @Summary Hide an image from the caller's queues
// @Tags IOTD
// @Accept json
// @Produce json
// @Param payload body dto.VisibilityRequest true "Image"
// @Success 201 {object} response.Envelope
// @Router /iotd/hidden-images [post]
func (h *VisibilityHandler) Hide(c *gin.Context) {
	claims, req, ok := bindVisibility(c)
	if !ok {
		return
	}
	hidden, err := h.service.Hide(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, hidden)
}

// Unhide godoc
// @Summary Restore a hidden image
// @Tags IOTD
// @Param id path string true "Hidden image ID"
// @Success 204
// @Router /iotd/hidden-images/{id} [delete]
func (h *VisibilityHandler) Unhide(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Unhide(c.Request.Context(), claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListDismissed godoc
// @Summary List dismissed images
// @Tags IOTD
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /iotd/dismissed-images [get]
func (h *VisibilityHandler) ListDismissed(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	items, err := h.service.ListDismissed(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Dismiss godoc
// @Summary Dismiss an image
// @Description Irreversible. The payload must carry confirm=true.
// @Tags IOTD
// @Accept json
// @Produce json
// @Param payload body dto.VisibilityRequest true "Image and confirmation"
// @Success 201 {object} response.Envelope
// @Failure 428 {object} response.Envelope
// @Router /iotd/dismissed-images [post]
func (h *VisibilityHandler) Dismiss(c *gin.Context) {
	claims, req, ok := bindVisibility(c)
	if !ok {
		return
	}
	result, err := h.service.Dismiss(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

func bindVisibility(c *gin.Context) (*models.JWTClaims, dto.VisibilityRequest, bool) {
	var req dto.VisibilityRequest
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, req, false
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid image payload"))
		return nil, req, false
	}
	return claims, req, true
}
