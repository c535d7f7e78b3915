package dto

import (
	"time"

	"github.com/noah-isme/iotd-api/internal/models"
)

// ReportRequest captures POST /iotd/reports payload.
type ReportRequest struct {
	Type    models.ReportType   `json:"type" validate:"required,oneof=promotion_history queue_snapshot"`
	Stage   string              `json:"stage" validate:"required"`
	ActorID *string             `json:"actor_id,omitempty"`
	From    *time.Time          `json:"from,omitempty"`
	To      *time.Time          `json:"to,omitempty"`
	Format  models.ReportFormat `json:"format" validate:"required,oneof=csv pdf"`
}

// ReportJobResponse is returned after enqueueing a report.
type ReportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ReportStatusResponse exposes job progress metadata.
type ReportStatusResponse struct {
	ID        string              `json:"id"`
	Status    models.ReportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"result_url,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
