package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/library-api/internal/dto"
	"github.com/noah-isme/library-api/internal/service"
	appErrors "github.com/noah-isme/library-api/pkg/errors"
	"github.com/noah-isme/library-api/pkg/response"
)

type exportService interface {
	ExportLoans(ctx context.Context, req dto.ExportLoansRequest) (*dto.ExportResult, error)
	Download(token string) (*service.ExportDownload, error)
}

// ExportHandler builds loan exports and serves them through signed links.
type ExportHandler struct {
	exports exportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports exportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Loans godoc
// @Summary Export the loan ledger
// @Tags Exports
// @Accept json
// @Produce json
// @Param payload body dto.ExportLoansRequest true "Export payload"
// @Success 201 {object} response.Envelope
// @Router /exports/loans [post]
func (h *ExportHandler) Loans(c *gin.Context) {
	var req dto.ExportLoansRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.exports.ExportLoans(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download godoc
// @Summary Download an export via signed token
// @Tags Exports
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /exports/download [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	result, err := h.exports.Download(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close()

	var size int64 = -1
	if info, err := result.File.Stat(); err == nil {
		size = info.Size()
	}
	c.DataFromReader(http.StatusOK, size, result.ContentType, result.File, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=\"%s\"", result.Filename),
		"Cache-Control":       "no-store",
	})
}
