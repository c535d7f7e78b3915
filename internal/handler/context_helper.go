package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/iotd-api/internal/middleware"
	"github.com/noah-isme/iotd-api/internal/models"
	appErrors "github.com/noah-isme/iotd-api/pkg/errors"
	"github.com/noah-isme/iotd-api/pkg/iotd"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.CurrentClaims(c)
}

// stageFromContext prefers the stage resolved by middleware.StageRole and
// falls back to parsing the path parameter.
func stageFromContext(c *gin.Context) (iotd.Stage, error) {
	if value, ok := c.Get(middleware.ContextStageKey); ok {
		if stage, ok := value.(iotd.Stage); ok {
			return stage, nil
		}
	}
	stage, err := iotd.ParseStage(c.Param("stage"))
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrNotFound, "unknown stage")
	}
	return stage, nil
}
