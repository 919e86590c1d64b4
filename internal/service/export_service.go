package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/library-api/internal/dto"
	"github.com/noah-isme/library-api/internal/models"
	appErrors "github.com/noah-isme/library-api/pkg/errors"
	"github.com/noah-isme/library-api/pkg/export"
	"github.com/noah-isme/library-api/pkg/storage"
)

type loanLister interface {
	List(ctx context.Context, scope models.LoanScope) ([]models.LoanDetail, error)
}

type fileStorage interface {
	Save(name string, data []byte) error
	Open(name string) (*os.File, error)
	Delete(name string) error
	CleanupOlderThan(cutoff time.Time) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
}

// ExportDownload is a resolved download ready to stream.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	ExpiresAt   time.Time
}

// ExportService renders loan listings to disk and hands out signed download tokens.
type ExportService struct {
	loans     loanLister
	storage   fileStorage
	renderers map[dto.ExportFormat]export.Renderer
	signer    *storage.SignedURLSigner
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ExportConfig
	now       func() time.Time
}

// NewExportService constructs an ExportService with CSV and PDF renderers.
func NewExportService(loans loanLister, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, validate *validator.Validate, logger *zap.Logger) *ExportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	return &ExportService{
		loans:   loans,
		storage: files,
		renderers: map[dto.ExportFormat]export.Renderer{
			dto.ExportFormatCSV: export.NewCSVExporter(),
			dto.ExportFormatPDF: export.NewPDFExporter(),
		},
		signer:    signer,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// ExportLoans renders the listing for a scope and stores it.
func (s *ExportService) ExportLoans(ctx context.Context, req dto.ExportLoansRequest) (*dto.ExportResult, error) {
	req.Format = dto.ExportFormat(strings.ToLower(string(req.Format)))
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid export payload")
	}
	if req.Scope == "" {
		req.Scope = models.LoanScopeAll
	}
	renderer, ok := s.renderers[req.Format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %s", req.Format))
	}

	loans, err := s.loans.List(ctx, req.Scope)
	if err != nil {
		return nil, err
	}
	dataset := s.buildDataset(req.Scope, loans)
	payload, err := renderer.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	id := uuid.NewString()
	filename := fmt.Sprintf("loans_%s_%s_%s.%s", req.Scope, dataset.GeneratedAt.Format("20060102_150405"), id[:8], renderer.Extension())
	if err := s.storage.Save(filename, payload); err != nil {
		return nil, appErrors.Persistence(err, "failed to store export")
	}
	token, expiresAt, err := s.signer.Generate(id, filename)
	if err != nil {
		_ = s.storage.Delete(filename)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export")
	}

	s.logger.Info("loan export stored",
		zap.String("export_id", id),
		zap.String("scope", string(req.Scope)),
		zap.String("format", string(req.Format)),
		zap.Int("rows", len(dataset.Rows)),
	)
	return &dto.ExportResult{
		ID:          id,
		Format:      req.Format,
		Rows:        len(dataset.Rows),
		Token:       token,
		DownloadURL: fmt.Sprintf("%s/exports/download?token=%s", strings.TrimRight(s.cfg.APIPrefix, "/"), token),
		ExpiresAt:   expiresAt,
	}, nil
}

// Download resolves a signed token to its stored file. The caller closes the file.
func (s *ExportService) Download(token string) (*ExportDownload, error) {
	claims, err := s.signer.Parse(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, kindError(err, appErrors.ErrForbidden, "download link expired")
		}
		return nil, kindError(err, appErrors.ErrUnauthorized, "invalid download token")
	}
	file, err := s.storage.Open(claims.File)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, kindError(err, appErrors.ErrNotFound, "export not found")
		}
		return nil, appErrors.Persistence(err, "failed to open export")
	}
	return &ExportDownload{
		File:        file,
		Filename:    filepath.Base(claims.File),
		ContentType: s.contentType(claims.File),
		ExpiresAt:   claims.ExpiresAt,
	}, nil
}

// Cleanup removes exports older than the download link lifetime.
func (s *ExportService) Cleanup() ([]string, error) {
	removed, err := s.storage.CleanupOlderThan(s.now().Add(-s.signer.TTL()))
	if err != nil {
		return removed, appErrors.Persistence(err, "failed to clean up exports")
	}
	if len(removed) > 0 {
		s.logger.Info("expired exports removed", zap.Int("count", len(removed)))
	}
	return removed, nil
}

func (s *ExportService) contentType(name string) string {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	for _, r := range s.renderers {
		if r.Extension() == ext {
			return r.ContentType()
		}
	}
	return "application/octet-stream"
}

func (s *ExportService) buildDataset(scope models.LoanScope, loans []models.LoanDetail) export.Dataset {
	rows := make([][]string, 0, len(loans))
	for _, l := range loans {
		returned := ""
		if l.ReturnedAt != nil {
			returned = formatExportDate(*l.ReturnedAt)
		}
		rows = append(rows, []string{
			strconv.FormatInt(l.ID, 10),
			l.ISBN,
			l.BookTitle,
			l.StudentCode,
			l.StudentName,
			formatExportDate(l.OpenedAt),
			formatExportDate(l.DueAt),
			returned,
			string(l.Status),
			strconv.FormatInt(l.DaysLate, 10),
			l.Penalty.StringFixed(2),
		})
	}
	return export.Dataset{
		Title:       fmt.Sprintf("Loans (%s)", scope),
		Columns:     []string{"Loan", "ISBN", "Title", "Student", "Name", "Opened", "Due", "Returned", "Status", "Days Late", "Penalty"},
		Rows:        rows,
		GeneratedAt: s.now().UTC(),
	}
}

func formatExportDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
