package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/library-api/internal/models"
	"github.com/noah-isme/library-api/internal/service"
	appErrors "github.com/noah-isme/library-api/pkg/errors"
	"github.com/noah-isme/library-api/pkg/response"
)

// BookHandler exposes catalog endpoints.
type BookHandler struct {
	catalog *service.CatalogService
	loans   loanService
}

// NewBookHandler constructs BookHandler.
func NewBookHandler(catalog *service.CatalogService, loans loanService) *BookHandler {
	return &BookHandler{catalog: catalog, loans: loans}
}

// List godoc
// @Summary Search books
// @Tags Books
// @Produce json
// @Param search query string false "Title, author or ISBN"
// @Param categoryId query int false "Filter by category"
// @Param available query bool false "Only titles with a free copy"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /books [get]
func (h *BookHandler) List(c *gin.Context) {
	var filter models.BookFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	if raw := c.Query("categoryId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "categoryId must be an integer"))
			return
		}
		filter.CategoryID = &id
	}
	if available := boolQuery(c, "available"); available != nil {
		filter.AvailableOnly = *available
	}
	filter.Page, filter.PageSize = pageParams(c)

	books, pagination, err := h.catalog.ListBooks(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, books, pagination)
}

// Get godoc
// @Summary Get book by ISBN
// @Tags Books
// @Produce json
// @Param isbn path string true "ISBN"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /books/{isbn} [get]
func (h *BookHandler) Get(c *gin.Context) {
	book, err := h.catalog.GetBook(c.Request.Context(), c.Param("isbn"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, book, nil)
}

// Create godoc
// @Summary Add book to the catalog
// @Tags Books
// @Accept json
// @Produce json
// @Param payload body models.CreateBookRequest true "Book payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /books [post]
func (h *BookHandler) Create(c *gin.Context) {
	var req models.CreateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	book, err := h.catalog.AddBook(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, book)
}

// Update godoc
// @Summary Update book
// @Description Changing total_copies shifts available_copies by the same amount
// @Tags Books
// @Accept json
// @Produce json
// @Param isbn path string true "ISBN"
// @Param payload body models.UpdateBookRequest true "Book payload"
// @Success 200 {object} response.Envelope
// @Router /books/{isbn} [put]
func (h *BookHandler) Update(c *gin.Context) {
	var req models.UpdateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	book, err := h.catalog.UpdateBook(c.Request.Context(), c.Param("isbn"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, book, nil)
}

// Delete godoc
// @Summary Delete book
// @Tags Books
// @Param isbn path string true "ISBN"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /books/{isbn} [delete]
func (h *BookHandler) Delete(c *gin.Context) {
	if err := h.catalog.DeleteBook(c.Request.Context(), c.Param("isbn")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Loans godoc
// @Summary Loan history of a book
// @Tags Books
// @Produce json
// @Param isbn path string true "ISBN"
// @Success 200 {object} response.Envelope
// @Router /books/{isbn}/loans [get]
func (h *BookHandler) Loans(c *gin.Context) {
	loans, err := h.loans.ByBook(c.Request.Context(), c.Param("isbn"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, loans, nil)
}
