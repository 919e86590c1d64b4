package dto

import (
	"time"

	"github.com/noah-isme/library-api/internal/models"
)

// ExportFormat names a rendered document type.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportLoansRequest asks for a loan listing document.
type ExportLoansRequest struct {
	Scope  models.LoanScope `json:"scope" validate:"omitempty,oneof=all open overdue"`
	Format ExportFormat     `json:"format" validate:"required,oneof=csv pdf"`
}

// ExportResult describes a stored export and how to fetch it.
type ExportResult struct {
	ID          string       `json:"id"`
	Format      ExportFormat `json:"format"`
	Rows        int          `json:"rows"`
	Token       string       `json:"token"`
	DownloadURL string       `json:"download_url"`
	ExpiresAt   time.Time    `json:"expires_at"`
}
