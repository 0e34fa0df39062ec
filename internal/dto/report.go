package dto

import (
	"time"

	"github.com/noah-isme/camp-checkin-api/internal/models"
)

// ReportRequest captures the POST /reports payload.
type ReportRequest struct {
	Type          models.ReportType     `json:"type" validate:"required"`
	Format        models.ReportFormat   `json:"format"`
	Church        string                `json:"church,omitempty"`
	Sector        string                `json:"sector,omitempty"`
	PaymentStatus *models.PaymentStatus `json:"payment_status,omitempty"`
	Confirmed     *bool                 `json:"confirmed,omitempty"`
	IncludeTest   bool                  `json:"include_test,omitempty"`
}

// ReportJobResponse is returned after enqueueing a report.
type ReportJobResponse struct {
	ID       string              `json:"id"`
	Type     models.ReportType   `json:"type"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ReportStatusResponse exposes job progress metadata.
type ReportStatusResponse struct {
	ID         string              `json:"id"`
	Type       models.ReportType   `json:"type"`
	Status     models.ReportStatus `json:"status"`
	Progress   int                 `json:"progress"`
	ResultURL  *string             `json:"result_url,omitempty"`
	Error      *string             `json:"error,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
}
