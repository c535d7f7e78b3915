package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/iotd-api/internal/dto"
	"github.com/noah-isme/iotd-api/internal/models"
	"github.com/noah-isme/iotd-api/pkg/export"
	"github.com/noah-isme/iotd-api/pkg/iotd"
	"github.com/noah-isme/iotd-api/pkg/storage"
)

type promotionHistoryReader interface {
	History(ctx context.Context, filter models.PromotionHistoryFilter) ([]models.PromotionHistoryRow, error)
}

type queueSnapshotter interface {
	Snapshot(ctx context.Context, stage iotd.Stage, actor *models.JWTClaims) ([]dto.QueueEntry, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService builds promotion datasets and persists rendered files.
type ExportService struct {
	history   promotionHistoryReader
	queue     queueSnapshotter
	storage   fileStorage
	exporters map[models.ReportFormat]export.Exporter
	signer    *storage.SignedURLSigner
	logger    *zap.Logger
	cfg       ExportConfig
}

// NewExportService constructs an ExportService. Missing exporters default
// to the CSV and PDF renderers.
func NewExportService(history promotionHistoryReader, queue queueSnapshotter, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, exporters map[models.ReportFormat]export.Exporter) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if exporters == nil {
		exporters = map[models.ReportFormat]export.Exporter{}
	}
	if _, ok := exporters[models.ReportFormatCSV]; !ok {
		exporters[models.ReportFormatCSV] = export.NewCSVExporter()
	}
	if _, ok := exporters[models.ReportFormatPDF]; !ok {
		exporters[models.ReportFormatPDF] = export.NewPDFExporter()
	}
	return &ExportService{
		history:   history,
		queue:     queue,
		storage:   store,
		exporters: exporters,
		signer:    signer,
		logger:    logger,
		cfg:       cfg,
	}
}

// Generate builds the dataset for a job and stores the rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	exporter, ok := s.exporters[job.Params.Format]
	if !ok {
		return nil, fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}

	payload, err := exporter.Render(dataset, title)
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(s.buildFilename(job, exporter.Extension()), payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	signedURL := strings.TrimRight(s.cfg.APIPrefix, "/")
	if signedURL == "" {
		signedURL = "/api/v1"
	}
	signedURL = fmt.Sprintf("%s/export/%s", signedURL, token)

	s.logger.Info("export generated",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.Int("rows", len(dataset.Rows)),
	)
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ContentType returns the MIME type for a stored export.
func (s *ExportService) ContentType(format models.ReportFormat) string {
	if exporter, ok := s.exporters[format]; ok {
		return exporter.ContentType()
	}
	return "application/octet-stream"
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob, ext string) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	stagePart := sanitizeFilename(strings.ToLower(job.Params.Stage))
	return fmt.Sprintf("%s_%s_%s.%s", strings.ToLower(string(job.Type)), stagePart, timestamp, ext)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, string, error) {
	stage, err := iotd.ParseStage(job.Params.Stage)
	if err != nil {
		return export.Dataset{}, "", err
	}
	switch job.Type {
	case models.ReportTypePromotionHistory:
		return s.buildHistoryDataset(ctx, stage, job.Params)
	case models.ReportTypeQueueSnapshot:
		return s.buildQueueDataset(ctx, stage, job.CreatedBy)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported report type %s", job.Type)
	}
}

func (s *ExportService) buildHistoryDataset(ctx context.Context, stage iotd.Stage, params models.ReportJobParams) (export.Dataset, string, error) {
	rows, err := s.history.History(ctx, models.PromotionHistoryFilter{
		Stage:   stage,
		ActorID: params.ActorID,
		From:    params.From,
		To:      params.To,
	})
	if err != nil {
		return export.Dataset{}, "", err
	}
	dataRows := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		dataRows = append(dataRows, map[string]string{
			"Record ID":  row.ID,
			"Stage":      string(row.Stage),
			"Image ID":   row.ImageID,
			"Title":      row.Title,
			"Actor ID":   row.ActorID,
			"Created At": row.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Record ID", "Stage", "Image ID", "Title", "Actor ID", "Created At"},
		Rows:    dataRows,
	}
	return dataset, fmt.Sprintf("%s Promotion History", stageTitle(stage)), nil
}

func (s *ExportService) buildQueueDataset(ctx context.Context, stage iotd.Stage, actorID string) (export.Dataset, string, error) {
	if s.queue == nil {
		return export.Dataset{}, "", fmt.Errorf("queue snapshots are not available")
	}
	entries, err := s.queue.Snapshot(ctx, stage, &models.JWTClaims{UserID: actorID})
	if err != nil {
		return export.Dataset{}, "", err
	}
	dataRows := make([]map[string]string, 0, len(entries))
	for _, entry := range entries {
		expires := "unknown"
		if entry.ExpiresAt != nil {
			expires = entry.ExpiresAt.UTC().Format(time.RFC3339)
		}
		dataRows = append(dataRows, map[string]string{
			"Image ID":   entry.ImageID,
			"Title":      entry.Title,
			"Entered At": entry.EntryTimestamp,
			"Expires At": expires,
			"Promotions": strconv.Itoa(entry.Promotions),
			"Dismissals": strconv.Itoa(entry.Dismissals),
			"Promoted":   strconv.FormatBool(entry.Promoted),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Image ID", "Title", "Entered At", "Expires At", "Promotions", "Dismissals", "Promoted"},
		Rows:    dataRows,
	}
	return dataset, fmt.Sprintf("%s Queue Snapshot", stageTitle(stage)), nil
}

func stageTitle(stage iotd.Stage) string {
	slug := stage.Slug()
	if slug == "" {
		return string(stage)
	}
	return strings.ToUpper(slug[:1]) + slug[1:]
}
