package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/iotd-api/internal/models"
	appErrors "github.com/noah-isme/iotd-api/pkg/errors"
	"github.com/noah-isme/iotd-api/pkg/iotd"
	"github.com/noah-isme/iotd-api/pkg/response"
)

// ContextStageKey stores the stage resolved by StageRole.
const ContextStageKey = "iotdStage"

// stageRoles maps each stage to the staff role working its queue.
var stageRoles = map[iotd.Stage]models.UserRole{
	iotd.StageSubmission: models.RoleSubmitter,
	iotd.StageReview:     models.RoleReviewer,
	iotd.StageJudgement:  models.RoleJudge,
}

// RoleForStage returns the role allowed to act on stage.
func RoleForStage(stage iotd.Stage) (models.UserRole, bool) {
	role, ok := stageRoles[stage]
	return role, ok
}

// StagesForRole lists the stages a role may act on, in queue order.
func StagesForRole(role models.UserRole) []iotd.Stage {
	stages := make([]iotd.Stage, 0, len(iotd.Stages))
	for _, stage := range iotd.Stages {
		if role == models.RoleAdmin || stageRoles[stage] == role {
			stages = append(stages, stage)
		}
	}
	return stages
}

// RequireRoles enforces role-based access control for routes.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims := CurrentClaims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// StageRole resolves the :stage path parameter and admits only the role
// assigned to that stage. Admins pass on every stage.
func StageRole() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := CurrentClaims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		stage, err := iotd.ParseStage(c.Param("stage"))
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "unknown stage"))
			c.Abort()
			return
		}
		if role, _ := RoleForStage(stage); claims.Role != models.RoleAdmin && claims.Role != role {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role may not act on this stage"))
			c.Abort()
			return
		}
		c.Set(ContextStageKey, stage)
		c.Next()
	}
}
