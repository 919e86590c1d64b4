package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/library-api/internal/dto"
	"github.com/noah-isme/library-api/internal/models"
	appErrors "github.com/noah-isme/library-api/pkg/errors"
	"github.com/noah-isme/library-api/pkg/response"
)

type loanService interface {
	OpenLoan(ctx context.Context, req models.OpenLoanRequest) (*models.LoanDetail, error)
	ReturnLoan(ctx context.Context, id int64, req models.ReturnLoanRequest) (*models.LoanDetail, error)
	RefreshOverdueStatuses(ctx context.Context, asOf time.Time) (int64, error)
	Get(ctx context.Context, id int64) (*models.LoanDetail, error)
	List(ctx context.Context, scope models.LoanScope) ([]models.LoanDetail, error)
	ByStudent(ctx context.Context, code string) ([]models.LoanDetail, error)
	ByBook(ctx context.Context, isbn string) ([]models.LoanDetail, error)
	Remind(ctx context.Context, id int64) (*models.LoanDetail, error)
}

// LoanHandler exposes the loan ledger.
type LoanHandler struct {
	loans loanService
	now   func() time.Time
}

// NewLoanHandler constructs LoanHandler.
func NewLoanHandler(loans loanService) *LoanHandler {
	return &LoanHandler{loans: loans, now: time.Now}
}

// List godoc
// @Summary List loans
// @Tags Loans
// @Produce json
// @Param scope query string false "all, open or overdue" default(all)
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /loans [get]
func (h *LoanHandler) List(c *gin.Context) {
	loans, err := h.loans.List(c.Request.Context(), models.LoanScope(c.Query("scope")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, loans, nil)
}

// Open godoc
// @Summary Lend a copy to a student
// @Tags Loans
// @Accept json
// @Produce json
// @Param payload body models.OpenLoanRequest true "Loan payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /loans [post]
func (h *LoanHandler) Open(c *gin.Context) {
	var req models.OpenLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	loan, err := h.loans.OpenLoan(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, loan)
}

// Get godoc
// @Summary Get loan
// @Tags Loans
// @Produce json
// @Param id path int true "Loan ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /loans/{id} [get]
func (h *LoanHandler) Get(c *gin.Context) {
	id, err := loanIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	loan, err := h.loans.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, loan, nil)
}

// Return godoc
// @Summary Return a loan
// @Description An empty body returns the loan now
// @Tags Loans
// @Accept json
// @Produce json
// @Param id path int true "Loan ID"
// @Param payload body models.ReturnLoanRequest false "Return payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /loans/{id}/return [post]
func (h *LoanHandler) Return(c *gin.Context) {
	id, err := loanIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req models.ReturnLoanRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	loan, err := h.loans.ReturnLoan(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, loan, nil)
}

// Remind godoc
// @Summary Log a reminder for a loan still out
// @Tags Loans
// @Produce json
// @Param id path int true "Loan ID"
// @Success 202 {object} response.Envelope
// @Router /loans/{id}/remind [post]
func (h *LoanHandler) Remind(c *gin.Context) {
	id, err := loanIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	loan, err := h.loans.Remind(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, loan, nil)
}

// RefreshOverdue godoc
// @Summary Reclassify overdue loans now
// @Tags Loans
// @Accept json
// @Produce json
// @Param payload body dto.RefreshOverdueRequest false "Sweep clock"
// @Success 200 {object} response.Envelope
// @Router /loans/overdue/refresh [post]
func (h *LoanHandler) RefreshOverdue(c *gin.Context) {
	var req dto.RefreshOverdueRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	asOf := h.now().UTC()
	if req.AsOf != nil {
		asOf = req.AsOf.UTC()
	}
	n, err := h.loans.RefreshOverdueStatuses(c.Request.Context(), asOf)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.RefreshOverdueResult{Reclassified: n, AsOf: asOf}, nil)
}
