package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/iotd-api/internal/dto"
	"github.com/noah-isme/iotd-api/internal/models"
	"github.com/noah-isme/iotd-api/internal/repository"
	appErrors "github.com/noah-isme/iotd-api/pkg/errors"
	"github.com/noah-isme/iotd-api/pkg/iotd"
	"github.com/noah-isme/iotd-api/pkg/jobs"
)

const (
	recoverBatch = 50
	cleanupBatch = 100
)

type reportJobStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	GetByID(ctx context.Context, id string) (*models.ReportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type exportGenerator interface {
	Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error)
}

// ReportService orchestrates report job lifecycle management.
type ReportService struct {
	repo      reportJobStore
	queue     jobDispatcher
	exporter  *ExportService
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ReportServiceConfig
}

// ReportServiceConfig governs queue recovery and cleanup.
type ReportServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
	MaxRetries      int
}

// ReportDownload aggregates resolved download data.
type ReportDownload struct {
	File        *os.File
	Filename    string
	Format      models.ReportFormat
	ContentType string
	ExpiresAt   time.Time
}

// NewReportService constructs the report service.
func NewReportService(repo reportJobStore, queue jobDispatcher, exporter *ExportService, audit auditLogger, validate *validator.Validate, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &ReportService{
		repo:      repo,
		queue:     queue,
		exporter:  exporter,
		audit:     audit,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// CreateJob validates request, persists job, and enqueues processing.
// Staff other than admins may only export their own promotion history.
func (s *ReportService) CreateJob(ctx context.Context, req dto.ReportRequest, actor *models.JWTClaims) (*dto.ReportJobResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	stage, err := s.validateRequest(req, actor)
	if err != nil {
		return nil, err
	}
	actorID := req.ActorID
	if actor.Role != models.RoleAdmin && req.Type == models.ReportTypePromotionHistory {
		actorID = &actor.UserID
	}
	job := &models.ReportJob{
		Type: req.Type,
		Params: models.ReportJobParams{
			Stage:   string(stage),
			ActorID: actorID,
			From:    req.From,
			To:      req.To,
			Format:  req.Format,
		},
		Status:    models.ReportStatusQueued,
		Progress:  0,
		CreatedBy: actor.UserID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
		status := models.ReportStatusFailed
		msg := "failed to enqueue job"
		now := time.Now().UTC()
		progress := 100
		_ = s.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
			Status:       &status,
			Progress:     &progress,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report job")
	}
	s.emitAudit(ctx, actor, job)
	return &dto.ReportJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// GetStatus exposes job metadata to clients, enforcing ownership for non-admins.
func (s *ReportService) GetStatus(ctx context.Context, id string, actor *models.JWTClaims) (*dto.ReportStatusResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	job, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && job.CreatedBy != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	resp := &dto.ReportStatusResponse{
		ID:        job.ID,
		Status:    job.Status,
		Progress:  job.Progress,
		ResultURL: job.ResultURL,
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp, nil
}

// ResolveDownload turns a signed export token into an open file. The token
// must still be valid and must be the one recorded on a finished job.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	jobID, relPath, expiresAt, err := s.exporter.ParseToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	switch {
	case job.ResultURL == nil || tokenFromURL(*job.ResultURL) != token:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token does not match report")
	case job.Status != models.ReportStatusFinished:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report not ready")
	}

	file, err := s.exporter.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &ReportDownload{
		File:        file,
		Filename:    filepath.Base(relPath),
		Format:      job.Params.Format,
		ContentType: s.exporter.ContentType(job.Params.Format),
		ExpiresAt:   expiresAt,
	}, nil
}

func (s *ReportService) load(ctx context.Context, id string) (*models.ReportJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.ErrNotFound
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	return job, nil
}

// RecoverPendingJobs re-dispatches jobs left QUEUED by a previous process.
func (s *ReportService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, recoverBatch)
	if err != nil {
		s.logger.Warn("listing queued report jobs failed", zap.Error(err))
		return
	}
	recovered := 0
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
			s.logger.Warn("report job not re-dispatched", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		recovered++
	}
	if recovered > 0 {
		s.logger.Info("report jobs recovered", zap.Int("count", recovered))
	}
}

// StartCleanup removes expired export files every CleanupInterval until ctx
// is cancelled.
func (s *ReportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(s.cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.purgeExpired(ctx, time.Now().Add(-s.cfg.ResultTTL))
			}
		}
	}()
}

// purgeExpired deletes the files of jobs finished before cutoff, then sweeps
// any orphaned files older than the result TTL.
func (s *ReportService) purgeExpired(ctx context.Context, cutoff time.Time) {
	for {
		expired, err := s.repo.ListFinishedBefore(ctx, cutoff, cleanupBatch)
		if err != nil {
			s.logger.Warn("listing expired report jobs failed", zap.Error(err))
			return
		}
		for _, job := range expired {
			s.removeResult(job)
		}
		if len(expired) < cleanupBatch {
			break
		}
	}
	if removed, err := s.exporter.Cleanup(s.cfg.ResultTTL); err != nil {
		s.logger.Warn("export directory sweep failed", zap.Error(err))
	} else if len(removed) > 0 {
		s.logger.Debug("orphaned exports removed", zap.Int("count", len(removed)))
	}
}

func (s *ReportService) removeResult(job models.ReportJob) {
	if job.ResultURL == nil {
		return
	}
	_, relPath, _, err := s.exporter.ParseToken(tokenFromURL(*job.ResultURL), true)
	if err != nil {
		return
	}
	if err := s.exporter.Delete(relPath); err != nil {
		s.logger.Warn("expired export not removed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (s *ReportService) validateRequest(req dto.ReportRequest, actor *models.JWTClaims) (iotd.Stage, error) {
	if err := s.validator.Struct(req); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report payload")
	}
	if !isValidReportType(req.Type) {
		return "", appErrors.Clone(appErrors.ErrValidation, "unsupported report type")
	}
	if !isValidFormat(req.Format) {
		return "", appErrors.Clone(appErrors.ErrValidation, "unsupported report format")
	}
	stage, err := iotd.ParseStage(req.Stage)
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "unknown stage")
	}
	if req.From != nil && req.To != nil && !req.From.Before(*req.To) {
		return "", appErrors.Clone(appErrors.ErrValidation, "from must be before to")
	}
	if actor.Role != models.RoleAdmin && req.ActorID != nil && *req.ActorID != actor.UserID {
		return "", appErrors.Clone(appErrors.ErrForbidden, "only admins may export other members' promotions")
	}
	return stage, nil
}

func (s *ReportService) emitAudit(ctx context.Context, actor *models.JWTClaims, job *models.ReportJob) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(job.Params)
	id := job.ID
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     userIDPtr(actor),
		Action:     models.AuditActionReportRequest,
		Resource:   models.AuditResourceReportJob,
		ResourceID: &id,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "report-service",
	}); err != nil {
		s.logger.Warn("failed to record report audit", zap.Error(err))
	}
}

func isValidReportType(t models.ReportType) bool {
	switch t {
	case models.ReportTypePromotionHistory, models.ReportTypeQueueSnapshot:
		return true
	default:
		return false
	}
}

func isValidFormat(f models.ReportFormat) bool {
	return f == models.ReportFormatCSV || f == models.ReportFormatPDF
}

func tokenFromURL(url string) string {
	return url[strings.LastIndex(url, "/")+1:]
}

// ReportWorker bridges queue jobs to ExportService.
type ReportWorker struct {
	repo       reportJobStore
	exporter   exportGenerator
	logger     *zap.Logger
	maxRetries int
}

// NewReportWorker constructs a worker.
func NewReportWorker(repo reportJobStore, exporter exportGenerator, maxRetries int, logger *zap.Logger) *ReportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &ReportWorker{
		repo:       repo,
		exporter:   exporter,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// Handle renders one export. A failed attempt puts the job back to QUEUED
// until maxRetries is reached, after which it is marked FAILED.
func (w *ReportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if record.Status.Done() {
		w.logger.Debug("report job already settled", zap.String("job_id", job.ID), zap.String("status", string(record.Status)))
		return nil
	}
	if err := w.transition(ctx, job.ID, models.ReportStatusProcessing, 10, repository.UpdateReportJobParams{}); err != nil {
		return err
	}

	result, err := w.exporter.Generate(ctx, record)
	if err != nil {
		msg := err.Error()
		params := repository.UpdateReportJobParams{ErrorMessage: &msg}
		status, progress := models.ReportStatusQueued, 0
		if job.Attempt >= w.maxRetries {
			status, progress = models.ReportStatusFailed, 100
			now := time.Now().UTC()
			params.FinishedAt = &now
		}
		if updateErr := w.transition(ctx, job.ID, status, progress, params); updateErr != nil {
			w.logger.Warn("report job status not recorded", zap.String("job_id", job.ID), zap.String("status", string(status)), zap.Error(updateErr))
		}
		return err
	}

	url := result.URL
	clear := ""
	now := time.Now().UTC()
	return w.transition(ctx, job.ID, models.ReportStatusFinished, 100, repository.UpdateReportJobParams{
		ResultURL:    &url,
		ErrorMessage: &clear,
		FinishedAt:   &now,
	})
}

func (w *ReportWorker) transition(ctx context.Context, id string, status models.ReportStatus, progress int, params repository.UpdateReportJobParams) error {
	params.Status = &status
	params.Progress = &progress
	if err := w.repo.Update(ctx, id, params); err != nil {
		return fmt.Errorf("report job %s to %s: %w", id, status, err)
	}
	return nil
}
