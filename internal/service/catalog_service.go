package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/library-api/internal/models"
	"github.com/noah-isme/library-api/internal/repository"
	appErrors "github.com/noah-isme/library-api/pkg/errors"
)

type bookRepository interface {
	Create(ctx context.Context, book *models.Book) error
	FindByISBN(ctx context.Context, isbn string) (*models.Book, error)
	List(ctx context.Context, filter models.BookFilter) ([]models.Book, int, error)
	Update(ctx context.Context, book *models.Book) error
	AdjustAvailability(ctx context.Context, isbn string, delta int) error
	HasLoans(ctx context.Context, isbn string) (bool, error)
	Delete(ctx context.Context, isbn string) error
}

type categoryRepository interface {
	List(ctx context.Context) ([]models.Category, error)
	FindByID(ctx context.Context, id int64) (*models.Category, error)
	Create(ctx context.Context, category *models.Category) error
	Update(ctx context.Context, category *models.Category) error
	CountBooks(ctx context.Context, id int64) (int, error)
	Delete(ctx context.Context, id int64) error
}

// CatalogService manages books, categories and copy availability.
type CatalogService struct {
	books      bookRepository
	categories categoryRepository
	cache      *CacheService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewCatalogService constructs the catalog service.
func NewCatalogService(books bookRepository, categories categoryRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{books: books, categories: categories, cache: cache, validator: validate, logger: logger}
}

// AddBook registers a title. Available copies start at the total unless given.
func (s *CatalogService) AddBook(ctx context.Context, req models.CreateBookRequest) (*models.Book, error) {
	req.ISBN = strings.TrimSpace(req.ISBN)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid book payload")
	}
	available := req.TotalCopies
	if req.AvailableCopies != nil {
		available = *req.AvailableCopies
	}
	if available < 0 || available > req.TotalCopies {
		return nil, appErrors.Clone(appErrors.ErrValidation, "available copies must be between 0 and total copies")
	}
	if err := s.ensureCategory(ctx, req.CategoryID); err != nil {
		return nil, err
	}

	book := &models.Book{
		ISBN:            req.ISBN,
		Title:           req.Title,
		Author:          req.Author,
		CategoryID:      req.CategoryID,
		PublicationYear: req.PublicationYear,
		TotalCopies:     req.TotalCopies,
		AvailableCopies: available,
	}
	if err := s.books.Create(ctx, book); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, kindError(err, appErrors.ErrDuplicateKey, fmt.Sprintf("book %s already exists", book.ISBN))
		case errors.Is(err, repository.ErrForeignKey):
			return nil, kindError(err, appErrors.ErrNotFound, "category not found")
		case errors.Is(err, repository.ErrAvailabilityBounds):
			return nil, validationError(err, "available copies must be between 0 and total copies")
		}
		return nil, appErrors.Persistence(err, "failed to add book")
	}
	s.invalidateStats(ctx)
	s.logger.Info("book added", zap.String("isbn", book.ISBN), zap.Int("total_copies", book.TotalCopies))
	return s.GetBook(ctx, book.ISBN)
}

// UpdateBook edits catalog details. Changing the total moves availability by the same delta.
func (s *CatalogService) UpdateBook(ctx context.Context, isbn string, req models.UpdateBookRequest) (*models.Book, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid book payload")
	}
	if err := s.ensureCategory(ctx, req.CategoryID); err != nil {
		return nil, err
	}
	book := &models.Book{
		ISBN:            isbn,
		Title:           req.Title,
		Author:          req.Author,
		CategoryID:      req.CategoryID,
		PublicationYear: req.PublicationYear,
		TotalCopies:     req.TotalCopies,
	}
	if err := s.books.Update(ctx, book); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "book not found")
		case errors.Is(err, repository.ErrAvailabilityBounds):
			return nil, validationError(err, "total copies cannot drop below the copies currently lent")
		case errors.Is(err, repository.ErrForeignKey):
			return nil, kindError(err, appErrors.ErrNotFound, "category not found")
		}
		return nil, appErrors.Persistence(err, "failed to update book")
	}
	s.invalidateStats(ctx)
	return s.GetBook(ctx, isbn)
}

// AdjustAvailability moves the available count by delta, never outside [0, total].
func (s *CatalogService) AdjustAvailability(ctx context.Context, isbn string, delta int) error {
	if err := s.books.AdjustAvailability(ctx, isbn, delta); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return appErrors.Clone(appErrors.ErrNotFound, "book not found")
		case errors.Is(err, repository.ErrAvailabilityBounds):
			return kindError(err, appErrors.ErrBookUnavailable, "availability would leave its bounds")
		}
		return appErrors.Persistence(err, "failed to adjust availability")
	}
	s.invalidateStats(ctx)
	return nil
}

// IsAvailable reports whether a copy of the book can be lent right now.
func (s *CatalogService) IsAvailable(ctx context.Context, isbn string) (bool, error) {
	book, err := s.GetBook(ctx, isbn)
	if err != nil {
		return false, err
	}
	return book.IsAvailable(), nil
}

// GetBook returns a book by ISBN.
func (s *CatalogService) GetBook(ctx context.Context, isbn string) (*models.Book, error) {
	book, err := s.books.FindByISBN(ctx, isbn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return nil, appErrors.Persistence(err, "failed to load book")
	}
	return book, nil
}

// ListBooks searches the catalog.
func (s *CatalogService) ListBooks(ctx context.Context, filter models.BookFilter) ([]models.Book, *models.Pagination, error) {
	filter.Page, filter.PageSize = pageOrDefault(filter.Page, filter.PageSize)
	books, total, err := s.books.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Persistence(err, "failed to list books")
	}
	return books, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// DeleteBook removes a title that was never lent.
func (s *CatalogService) DeleteBook(ctx context.Context, isbn string) error {
	if _, err := s.GetBook(ctx, isbn); err != nil {
		return err
	}
	hasLoans, err := s.books.HasLoans(ctx, isbn)
	if err != nil {
		return appErrors.Persistence(err, "failed to check book loans")
	}
	if hasLoans {
		return appErrors.Clone(appErrors.ErrHasDependents, "book has loan history")
	}
	if err := s.books.Delete(ctx, isbn); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return appErrors.Clone(appErrors.ErrNotFound, "book not found")
		case errors.Is(err, repository.ErrForeignKey):
			return kindError(err, appErrors.ErrHasDependents, "book has loan history")
		}
		return appErrors.Persistence(err, "failed to delete book")
	}
	s.invalidateStats(ctx)
	s.logger.Info("book deleted", zap.String("isbn", isbn))
	return nil
}

// ListCategories returns all categories ordered by name.
func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to list categories")
	}
	return categories, nil
}

// GetCategory returns a category by id.
func (s *CatalogService) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	category, err := s.categories.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "category not found")
		}
		return nil, appErrors.Persistence(err, "failed to load category")
	}
	return category, nil
}

// CreateCategory adds a category with a unique name.
func (s *CatalogService) CreateCategory(ctx context.Context, req models.CategoryRequest) (*models.Category, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid category payload")
	}
	category := &models.Category{Name: strings.TrimSpace(req.Name), Description: req.Description}
	if err := s.categories.Create(ctx, category); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, kindError(err, appErrors.ErrDuplicateKey, fmt.Sprintf("category %q already exists", category.Name))
		}
		return nil, appErrors.Persistence(err, "failed to create category")
	}
	return category, nil
}

// UpdateCategory renames a category.
func (s *CatalogService) UpdateCategory(ctx context.Context, id int64, req models.CategoryRequest) (*models.Category, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid category payload")
	}
	category := &models.Category{ID: id, Name: strings.TrimSpace(req.Name), Description: req.Description}
	if err := s.categories.Update(ctx, category); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "category not found")
		case errors.Is(err, repository.ErrDuplicate):
			return nil, kindError(err, appErrors.ErrDuplicateKey, fmt.Sprintf("category %q already exists", category.Name))
		}
		return nil, appErrors.Persistence(err, "failed to update category")
	}
	return s.GetCategory(ctx, id)
}

// DeleteCategory removes a category no book refers to.
func (s *CatalogService) DeleteCategory(ctx context.Context, id int64) error {
	if _, err := s.GetCategory(ctx, id); err != nil {
		return err
	}
	count, err := s.categories.CountBooks(ctx, id)
	if err != nil {
		return appErrors.Persistence(err, "failed to count category books")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrHasDependents, fmt.Sprintf("category is used by %d book(s)", count))
	}
	if err := s.categories.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return appErrors.Clone(appErrors.ErrNotFound, "category not found")
		case errors.Is(err, repository.ErrForeignKey):
			return kindError(err, appErrors.ErrHasDependents, "category is used by books")
		}
		return appErrors.Persistence(err, "failed to delete category")
	}
	return nil
}

func (s *CatalogService) ensureCategory(ctx context.Context, id *int64) error {
	if id == nil {
		return nil
	}
	_, err := s.GetCategory(ctx, *id)
	return err
}

func (s *CatalogService) invalidateStats(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, statisticsCacheKey)
}
