package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/iotd-api/internal/dto"
	"github.com/noah-isme/iotd-api/internal/middleware"
	"github.com/noah-isme/iotd-api/internal/models"
	appErrors "github.com/noah-isme/iotd-api/pkg/errors"
	"github.com/noah-isme/iotd-api/pkg/iotd"
	"github.com/noah-isme/iotd-api/pkg/response"
)

type queueService interface {
	List(ctx context.Context, stage iotd.Stage, actor *models.JWTClaims, query dto.QueueQuery) (*dto.QueuePage, error)
}

type promotionService interface {
	ListMine(ctx context.Context, stage iotd.Stage, actor *models.JWTClaims) (*dto.PromotionList, error)
	Promote(ctx context.Context, stage iotd.Stage, actor *models.JWTClaims, req dto.PromotionRequest) (*models.PromotionRecord, error)
	Retract(ctx context.Context, stage iotd.Stage, actor *models.JWTClaims, recordID string) error
}

// IotdHandler exposes the stage queues and promotion endpoints.
type IotdHandler struct {
	queue      queueService
	promotions promotionService
}

// NewIotdHandler constructs an IotdHandler.
func NewIotdHandler(queue queueService, promotions promotionService) *IotdHandler {
	return &IotdHandler{queue: queue, promotions: promotions}
}

// Queue godoc
// @Summary List a stage queue
// @Description Images waiting in the stage queue annotated with expiration and the caller's eligibility
// @Tags IOTD
// @Produce json
// @Param stage path string true "submission, review or judgement"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Param include_hidden query bool false "Include images the caller hid"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /iotd/{stage}/queue [get]
func (h *IotdHandler) Queue(c *gin.Context) {
	stage, claims, ok := h.scope(c)
	if !ok {
		return
	}
	var query dto.QueueQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	page, err := h.queue.List(c.Request.Context(), stage, claims, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "stage", stage)
	response.JSON(c, http.StatusOK, page, page.Pagination, middleware.ExtractMeta(c))
}

// ListPromotions godoc
// @Summary List own promotions
// @Description The caller's records for the stage with today's quota usage
// @Tags IOTD
// @Produce json
// @Param stage path string true "submission, review or judgement"
// @Success 200 {object} response.Envelope
// @Router /iotd/{stage}/promotions [get]
func (h *IotdHandler) ListPromotions(c *gin.Context) {
	stage, claims, ok := h.scope(c)
	if !ok {
		return
	}
	list, err := h.promotions.ListMine(c.Request.Context(), stage, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list, nil)
}

// Promote godoc
// @Summary Promote an image
// @Description Records a Submission, Vote or Iotd for the image
// @Tags IOTD
// @Accept json
// @Produce json
// @Param stage path string true "submission, review or judgement"
// @Param payload body dto.PromotionRequest true "Promotion payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /iotd/{stage}/promotions [post]
func (h *IotdHandler) Promote(c *gin.Context) {
	stage, claims, ok := h.scope(c)
	if !ok {
		return
	}
	var req dto.PromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid promotion payload"))
		return
	}
	record, err := h.promotions.Promote(c.Request.Context(), stage, claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// Retract godoc
// @Summary Retract a promotion
// @Tags IOTD
// @Produce json
// @Param stage path string true "submission, review or judgement"
// @Param id path string true "Promotion record ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Router /iotd/{stage}/promotions/{id} [delete]
func (h *IotdHandler) Retract(c *gin.Context) {
	stage, claims, ok := h.scope(c)
	if !ok {
		return
	}
	if err := h.promotions.Retract(c.Request.Context(), stage, claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *IotdHandler) scope(c *gin.Context) (iotd.Stage, *models.JWTClaims, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", nil, false
	}
	stage, err := stageFromContext(c)
	if err != nil {
		response.Error(c, err)
		return "", nil, false
	}
	return stage, claims, true
}
