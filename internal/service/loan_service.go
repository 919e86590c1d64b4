package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/library-api/internal/models"
	"github.com/noah-isme/library-api/internal/repository"
	appErrors "github.com/noah-isme/library-api/pkg/errors"
)

type loanRepository interface {
	RunInTx(ctx context.Context, fn func(context.Context, repository.LedgerTx) error) error
	FindByID(ctx context.Context, id int64) (*models.LoanDetail, error)
	List(ctx context.Context, filter models.LoanFilter) ([]models.LoanDetail, error)
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
}

// LoanPolicy holds the lending rules applied on open and return.
type LoanPolicy struct {
	MaxConcurrent       int
	DefaultDurationDays int
	MaxDurationDays     int
	PenaltyPerDay       decimal.Decimal
}

func (p LoanPolicy) withDefaults() LoanPolicy {
	if p.MaxConcurrent <= 0 {
		p.MaxConcurrent = 3
	}
	if p.DefaultDurationDays <= 0 {
		p.DefaultDurationDays = 14
	}
	if p.MaxDurationDays <= 0 {
		p.MaxDurationDays = 90
	}
	if p.PenaltyPerDay.IsNegative() {
		p.PenaltyPerDay = decimal.Zero
	}
	return p
}

// LoanService is the loan ledger. Opens and returns pair the loan write with the
// availability change in one transaction.
type LoanService struct {
	repo      loanRepository
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	policy    LoanPolicy
	now       func() time.Time
}

// NewLoanService constructs the ledger.
func NewLoanService(repo loanRepository, policy LoanPolicy, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *LoanService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoanService{
		repo:      repo,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		policy:    policy.withDefaults(),
		now:       time.Now,
	}
}

// Policy returns the effective lending rules.
func (s *LoanService) Policy() LoanPolicy {
	return s.policy
}

// OpenLoan lends one copy of isbn to the student.
func (s *LoanService) OpenLoan(ctx context.Context, req models.OpenLoanRequest) (*models.LoanDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid loan payload")
	}
	duration := req.DurationDays
	if duration == 0 {
		duration = s.policy.DefaultDurationDays
	}
	if duration < 1 || duration > s.policy.MaxDurationDays {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duration must be between 1 and %d days", s.policy.MaxDurationDays))
	}
	openedAt := s.now().UTC()
	if req.LoanDate != nil {
		openedAt = req.LoanDate.UTC()
	}

	var detail models.LoanDetail
	err := s.repo.RunInTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		student, err := tx.LockStudent(ctx, req.StudentCode)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "student not found")
			}
			return appErrors.Persistence(err, "failed to lock student")
		}
		open, err := tx.CountOpenLoans(ctx, student.Code)
		if err != nil {
			return appErrors.Persistence(err, "failed to count open loans")
		}
		if !student.CanBorrow(open, s.policy.MaxConcurrent) {
			if !student.Active {
				return appErrors.Clone(appErrors.ErrStudentIneligible, "student is inactive")
			}
			return appErrors.Clone(appErrors.ErrStudentIneligible, fmt.Sprintf("student already holds %d of %d loans", open, s.policy.MaxConcurrent))
		}

		book, err := tx.LockBook(ctx, req.ISBN)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "book not found")
			}
			return appErrors.Persistence(err, "failed to lock book")
		}
		if !book.IsAvailable() {
			return appErrors.Clone(appErrors.ErrBookUnavailable, fmt.Sprintf("no copy of %s is available", book.ISBN))
		}

		loan := models.Loan{
			ISBN:        book.ISBN,
			StudentCode: student.Code,
			OpenedAt:    openedAt,
			DueAt:       models.DueDate(openedAt, duration),
			Penalty:     decimal.Zero,
			Status:      models.LoanStatusOpen,
		}
		if err := tx.InsertLoan(ctx, &loan); err != nil {
			return appErrors.Persistence(err, "failed to record loan")
		}
		if err := tx.AdjustAvailability(ctx, book.ISBN, -1); err != nil {
			if errors.Is(err, repository.ErrAvailabilityBounds) {
				return kindError(err, appErrors.ErrBookUnavailable, fmt.Sprintf("no copy of %s is available", book.ISBN))
			}
			return appErrors.Persistence(err, "failed to update availability")
		}

		detail = models.LoanDetail{Loan: loan, BookTitle: book.Title, StudentName: student.FullName()}
		return nil
	})
	if err != nil {
		return nil, s.rejected(passThrough(err, "failed to open loan"))
	}

	s.afterLedgerWrite(ctx)
	s.metrics.LoanOpened()
	s.logger.Info("loan opened",
		zap.Int64("loan_id", detail.ID),
		zap.String("isbn", detail.ISBN),
		zap.String("student_code", detail.StudentCode),
		zap.Time("due_at", detail.DueAt),
	)
	detail.Derive(s.now().UTC())
	return &detail, nil
}

// ReturnLoan closes a loan, charging the penalty for every whole day late.
func (s *LoanService) ReturnLoan(ctx context.Context, id int64, req models.ReturnLoanRequest) (*models.LoanDetail, error) {
	returnedAt := s.now().UTC()
	if req.ReturnDate != nil {
		returnedAt = req.ReturnDate.UTC()
	}

	var closed models.Loan
	err := s.repo.RunInTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		loan, err := tx.LockLoan(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "loan not found")
			}
			return appErrors.Persistence(err, "failed to lock loan")
		}
		if loan.IsReturned() {
			return appErrors.Clone(appErrors.ErrAlreadyReturned, fmt.Sprintf("loan %d is already returned", id))
		}
		if returnedAt.Before(loan.OpenedAt) {
			return appErrors.Clone(appErrors.ErrValidation, "return date precedes the loan date")
		}

		loan.ReturnedAt = &returnedAt
		loan.Penalty = models.Penalty(loan.DaysLate(returnedAt), s.policy.PenaltyPerDay)
		loan.Status = models.LoanStatusReturned
		if err := tx.CloseLoan(ctx, loan); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrAlreadyReturned, fmt.Sprintf("loan %d is already returned", id))
			}
			return appErrors.Persistence(err, "failed to close loan")
		}
		if err := tx.AdjustAvailability(ctx, loan.ISBN, 1); err != nil {
			return appErrors.Persistence(err, "failed to restore availability")
		}
		closed = *loan
		return nil
	})
	if err != nil {
		return nil, s.rejected(passThrough(err, "failed to return loan"))
	}

	s.afterLedgerWrite(ctx)
	s.metrics.LoanReturned(closed.Penalty)
	s.logger.Info("loan returned",
		zap.Int64("loan_id", closed.ID),
		zap.String("isbn", closed.ISBN),
		zap.String("student_code", closed.StudentCode),
		zap.String("penalty", closed.Penalty.StringFixed(2)),
	)

	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		s.logger.Warn("returned loan reload failed", zap.Int64("loan_id", id), zap.Error(err))
		detail = &models.LoanDetail{Loan: closed}
	}
	detail.Derive(s.now().UTC())
	return detail, nil
}

// RefreshOverdueStatuses stores OVERDUE on open loans due before asOf. Repeated runs are no-ops.
func (s *LoanService) RefreshOverdueStatuses(ctx context.Context, asOf time.Time) (int64, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	n, err := s.repo.MarkOverdue(ctx, asOf.UTC())
	if err != nil {
		return 0, appErrors.Persistence(err, "failed to refresh overdue loans")
	}
	s.afterLedgerWrite(ctx)
	s.metrics.OverdueReclassified(n)
	s.logger.Info("overdue sweep finished", zap.Int64("reclassified", n), zap.Time("as_of", asOf.UTC()))
	return n, nil
}

// Get returns one loan with its live lateness.
func (s *LoanService) Get(ctx context.Context, id int64) (*models.LoanDetail, error) {
	loan, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "loan not found")
		}
		return nil, appErrors.Persistence(err, "failed to load loan")
	}
	loan.Derive(s.now().UTC())
	return loan, nil
}

// List returns the ledger projection for scope; an empty scope means all.
func (s *LoanService) List(ctx context.Context, scope models.LoanScope) ([]models.LoanDetail, error) {
	if scope == "" {
		scope = models.LoanScopeAll
	}
	if !scope.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown loan scope %q", scope))
	}
	return s.list(ctx, models.LoanFilter{Scope: scope})
}

// ByStudent returns every loan of a student, newest first.
func (s *LoanService) ByStudent(ctx context.Context, code string) ([]models.LoanDetail, error) {
	return s.list(ctx, models.LoanFilter{Scope: models.LoanScopeAll, StudentCode: code})
}

// ByBook returns every loan of a book, newest first.
func (s *LoanService) ByBook(ctx context.Context, isbn string) ([]models.LoanDetail, error) {
	return s.list(ctx, models.LoanFilter{Scope: models.LoanScopeAll, ISBN: isbn})
}

// Remind logs a reminder for a loan still out. Nothing is delivered.
func (s *LoanService) Remind(ctx context.Context, id int64) (*models.LoanDetail, error) {
	loan, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if loan.IsReturned() {
		return nil, appErrors.Clone(appErrors.ErrAlreadyReturned, fmt.Sprintf("loan %d is already returned", id))
	}
	s.logger.Info("loan reminder",
		zap.Int64("loan_id", loan.ID),
		zap.String("student_code", loan.StudentCode),
		zap.String("student_name", loan.StudentName),
		zap.String("isbn", loan.ISBN),
		zap.String("book_title", loan.BookTitle),
		zap.Time("due_at", loan.DueAt),
		zap.Int64("days_late", loan.DaysLate),
		zap.String("penalty_so_far", models.Penalty(loan.DaysLate, s.policy.PenaltyPerDay).StringFixed(2)),
	)
	return loan, nil
}

func (s *LoanService) list(ctx context.Context, filter models.LoanFilter) ([]models.LoanDetail, error) {
	asOf := s.now().UTC()
	filter.AsOf = asOf
	loans, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to list loans")
	}
	for i := range loans {
		loans[i].Derive(asOf)
	}
	return loans, nil
}

func (s *LoanService) afterLedgerWrite(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, statisticsCacheKey)
}

func (s *LoanService) rejected(err error) error {
	for _, kind := range []*appErrors.Error{appErrors.ErrStudentIneligible, appErrors.ErrBookUnavailable, appErrors.ErrAlreadyReturned} {
		if errors.Is(err, kind) {
			s.metrics.LoanRejected(kind.Code)
			break
		}
	}
	return err
}
