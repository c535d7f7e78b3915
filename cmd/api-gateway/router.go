package main

import (
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/iotd-api/internal/handler"
	"github.com/noah-isme/iotd-api/internal/middleware"
	"github.com/noah-isme/iotd-api/internal/models"
	"github.com/noah-isme/iotd-api/internal/repository"
	"github.com/noah-isme/iotd-api/internal/service"
	"github.com/noah-isme/iotd-api/pkg/config"
	"github.com/noah-isme/iotd-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/iotd-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/iotd-api/pkg/middleware/requestid"
)

type tokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

type routerDeps struct {
	metrics    *service.MetricsService
	auth       tokenValidator
	audit      *repository.AuditRepository
	health     *handler.MetricsHandler
	authH      *handler.AuthHandler
	config     *handler.ConfigurationHandler
	iotd       *handler.IotdHandler
	visibility *handler.VisibilityHandler
	reports    *handler.ReportHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", deps.health.Health)
	r.GET("/ready", deps.health.Ready)
	r.GET("/metrics", deps.health.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	prefix := "/" + strings.Trim(cfg.APIPrefix, "/")
	api := r.Group(prefix)
	api.POST("/auth/login", deps.authH.Login)

	secured := api.Group("", middleware.JWT(deps.auth))
	secured.GET("/auth/me", deps.authH.Me)
	secured.GET("/metrics/summary", middleware.RequireRoles(models.RoleAdmin), deps.health.Summary)

	staff := secured.Group("/iotd", middleware.RequireRoles(models.StaffRoles...))
	staff.GET("/config", deps.config.Get)
	staff.PUT("/config", middleware.RequireRoles(models.RoleAdmin), deps.config.Update)

	staff.GET("/hidden-images", deps.visibility.ListHidden)
	staff.POST("/hidden-images", deps.visibility.Hide)
	staff.DELETE("/hidden-images/:id", deps.visibility.Unhide)
	staff.GET("/dismissed-images", deps.visibility.ListDismissed)
	staff.POST("/dismissed-images", deps.visibility.Dismiss)

	if deps.reports != nil {
		staff.POST("/reports", deps.reports.GenerateReport)
		staff.GET("/reports/:id", deps.reports.ReportStatus)
		api.GET("/export/:token",
			middleware.Audit(deps.audit, models.AuditActionReportExport, models.AuditResourceReportJob, ""),
			deps.reports.DownloadReport)
	}

	stage := staff.Group("/:stage", middleware.StageRole())
	stage.GET("/queue", deps.iotd.Queue)
	stage.GET("/promotions", deps.iotd.ListPromotions)
	stage.POST("/promotions", deps.iotd.Promote)
	stage.DELETE("/promotions/:id", deps.iotd.Retract)

	return r
}
