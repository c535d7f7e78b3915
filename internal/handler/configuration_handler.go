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

type configurationService interface {
	Describe(ctx context.Context) (*dto.IotdConfigResponse, error)
	BulkUpdate(ctx context.Context, req dto.BulkUpdateConfigurationRequest, actor *models.JWTClaims) (*dto.IotdConfigResponse, error)
}

// ConfigurationHandler exposes the IOTD BackendConfig endpoints.
type ConfigurationHandler struct {
	service configurationService
}

// NewConfigurationHandler builds a new handler.
func NewConfigurationHandler(service configurationService) *ConfigurationHandler {
	return &ConfigurationHandler{service: service}
}

// Get godoc
// @Summary Get IOTD configuration
// @Description Effective quota, window and threshold values with their defaults
// @Tags Configuration
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /iotd/config [get]
func (h *ConfigurationHandler) Get(c *gin.Context) {
	cfg, err := h.service.Describe(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}

// Update godoc
// @Summary Update IOTD configuration
// @Description Overrides or resets IOTD_* keys. Admin only.
// @Tags Configuration
// @Accept json
// @Produce json
// @Param payload body dto.BulkUpdateConfigurationRequest true "Overrides and resets"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /iotd/config [put]
func (h *ConfigurationHandler) Update(c *gin.Context) {
	var req dto.BulkUpdateConfigurationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid configuration payload"))
		return
	}
	cfg, err := h.service.BulkUpdate(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}
