package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/library-api/internal/middleware"
	"github.com/noah-isme/library-api/internal/models"
	"github.com/noah-isme/library-api/pkg/response"
)

type statisticsService interface {
	Aggregate(ctx context.Context, asOf time.Time) (*models.Statistics, bool, error)
}

// ReportHandler exposes dashboard statistics.
type ReportHandler struct {
	reports statisticsService
}

// NewReportHandler constructs ReportHandler.
func NewReportHandler(reports statisticsService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Statistics godoc
// @Summary Aggregate library statistics
// @Description Cached unless asOf is given
// @Tags Reports
// @Produce json
// @Param asOf query string false "RFC3339 timestamp or YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /reports/statistics [get]
func (h *ReportHandler) Statistics(c *gin.Context) {
	asOf, err := asOfQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	stats, hit, err := h.reports.Aggregate(c.Request.Context(), asOf)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, stats, nil, middleware.ExtractMeta(c))
}
