package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/iotd-api/api/swagger"
	"github.com/noah-isme/iotd-api/internal/handler"
	"github.com/noah-isme/iotd-api/internal/repository"
	"github.com/noah-isme/iotd-api/internal/service"
	"github.com/noah-isme/iotd-api/pkg/cache"
	"github.com/noah-isme/iotd-api/pkg/config"
	"github.com/noah-isme/iotd-api/pkg/database"
	"github.com/noah-isme/iotd-api/pkg/jobs"
	"github.com/noah-isme/iotd-api/pkg/logger"
	"github.com/noah-isme/iotd-api/pkg/storage"
)

// @title IOTD Promotion API
// @version 1.0.0
// @description Submission, review and judgement queues for the Image of the Day
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	metricsSvc := service.NewMetricsService()
	checks := map[string]handler.ReadinessCheck{"postgres": db.PingContext}

	var cacheRepo service.CacheRepository
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, configuration cache disabled", zap.Error(err))
		} else {
			redisRepo := repository.NewCacheRepository(client, logr)
			defer redisRepo.Close() //nolint:errcheck
			cacheRepo = redisRepo
			checks["redis"] = redisRepo.Ping
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.IOTD.CacheTTL, logr, cacheRepo != nil)

	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	configRepo := repository.NewConfigurationRepository(db)
	promotionRepo := repository.NewPromotionRepository(db)
	queueRepo := repository.NewQueueRepository(db)
	visibilityRepo := repository.NewVisibilityRepository(db)

	validate := validator.New()
	loc := cfg.IOTD.Location()

	configSvc := service.NewIotdConfigService(configRepo, auditRepo, cacheSvc, validate, logr, service.IotdConfigServiceConfig{
		Defaults:      cfg.IOTD.Defaults,
		QuotaTimezone: loc.String(),
		CacheTTL:      cfg.IOTD.CacheTTL,
	})
	queueSvc := service.NewQueueService(configSvc, queueRepo, promotionRepo, metricsSvc, validate, logr, service.QueueServiceConfig{Location: loc})
	promotionSvc := service.NewPromotionService(configSvc, promotionRepo, queueRepo, auditRepo, metricsSvc, validate, logr, service.PromotionServiceConfig{Location: loc})
	visibilitySvc := service.NewVisibilityService(visibilityRepo, queueRepo, configSvc, auditRepo, metricsSvc, validate, logr)
	authSvc := service.NewAuthService(userRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	var reportHandler *handler.ReportHandler
	if cfg.Reports.Enabled {
		reportSvc, reportQueue, err := buildReports(ctx, cfg, repository.NewReportRepository(db), promotionRepo, queueSvc, auditRepo, validate, logr)
		if err != nil {
			logr.Fatal("failed to initialise reports", zap.Error(err))
		}
		defer reportQueue.Stop()
		if err := metricsSvc.WatchQueue("reports", reportQueue.Stats); err != nil {
			logr.Warn("report queue metrics unavailable", zap.Error(err))
		}
		reportHandler = handler.NewReportHandler(reportSvc, logr)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := newRouter(cfg, logr, routerDeps{
		metrics:    metricsSvc,
		auth:       authSvc,
		audit:      auditRepo,
		health:     handler.NewMetricsHandler(metricsSvc, checks),
		authH:      handler.NewAuthHandler(authSvc),
		config:     handler.NewConfigurationHandler(configSvc),
		iotd:       handler.NewIotdHandler(queueSvc, promotionSvc),
		visibility: handler.NewVisibilityHandler(visibilitySvc),
		reports:    reportHandler,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "quota_timezone", loc.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	graceful, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(graceful); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}

func buildReports(
	ctx context.Context,
	cfg *config.Config,
	reportRepo *repository.ReportRepository,
	promotionRepo *repository.PromotionRepository,
	queueSvc *service.QueueService,
	auditRepo *repository.AuditRepository,
	validate *validator.Validate,
	logr *zap.Logger,
) (*service.ReportService, *jobs.Queue, error) {
	store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		return nil, nil, err
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
	exportSvc := service.NewExportService(promotionRepo, queueSvc, store, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Reports.SignedURLTTL,
	}, logr, nil)

	worker := service.NewReportWorker(reportRepo, exportSvc, cfg.Reports.WorkerRetries, logr)
	queue := jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		RetryDelay: 2 * time.Second,
		Logger:     logr,
		OnDead: func(job jobs.Job, err error) {
			logr.Error("report job abandoned", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
		},
	})
	queue.Start(ctx)

	reportSvc := service.NewReportService(reportRepo, queue, exportSvc, auditRepo, validate, logr, service.ReportServiceConfig{
		ResultTTL:       cfg.Reports.SignedURLTTL,
		CleanupInterval: cfg.Reports.CleanupInterval,
		MaxRetries:      cfg.Reports.WorkerRetries,
	})
	reportSvc.RecoverPendingJobs(ctx)
	reportSvc.StartCleanup(ctx)
	return reportSvc, queue, nil
}
