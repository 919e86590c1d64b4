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

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByCode(ctx context.Context, code string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	CountOpenLoans(ctx context.Context, code string) (int, error)
	Deactivate(ctx context.Context, code string) (bool, error)
	HasLoans(ctx context.Context, code string) (bool, error)
	Delete(ctx context.Context, code string) error
}

// StudentService handles roster use-cases.
type StudentService struct {
	repo          studentRepository
	cache         *CacheService
	validator     *validator.Validate
	logger        *zap.Logger
	maxConcurrent int
}

// NewStudentService constructs the student service. maxConcurrent bounds open loans per student.
func NewStudentService(repo studentRepository, cache *CacheService, maxConcurrent int, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	return &StudentService{repo: repo, cache: cache, validator: validate, logger: logger, maxConcurrent: maxConcurrent}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	filter.Page, filter.PageSize = pageOrDefault(filter.Page, filter.PageSize)
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Persistence(err, "failed to list students")
	}
	return students, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns a student by code.
func (s *StudentService) Get(ctx context.Context, code string) (*models.Student, error) {
	student, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Persistence(err, "failed to load student")
	}
	return student, nil
}

// Register adds an active student.
func (s *StudentService) Register(ctx context.Context, req models.CreateStudentRequest) (*models.Student, error) {
	req.Code = strings.TrimSpace(req.Code)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid student payload")
	}
	student := &models.Student{
		Code:      req.Code,
		Surname:   strings.TrimSpace(req.Surname),
		GivenName: strings.TrimSpace(req.GivenName),
		Email:     strings.TrimSpace(req.Email),
		Phone:     req.Phone,
		Track:     req.Track,
		Active:    true,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, kindError(err, appErrors.ErrDuplicateKey, fmt.Sprintf("student %s already exists", student.Code))
		}
		return nil, appErrors.Persistence(err, "failed to register student")
	}
	s.invalidateStats(ctx)
	s.logger.Info("student registered", zap.String("student_code", student.Code))
	return student, nil
}

// Update edits contact details. Setting active=false applies the deactivation guard first.
func (s *StudentService) Update(ctx context.Context, code string, req models.UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid student payload")
	}
	student, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	if req.Active != nil {
		if !*req.Active && student.Active {
			if _, err := s.Deactivate(ctx, code); err != nil {
				return nil, err
			}
		}
		student.Active = *req.Active
	}
	student.Surname = strings.TrimSpace(req.Surname)
	student.GivenName = strings.TrimSpace(req.GivenName)
	student.Email = strings.TrimSpace(req.Email)
	student.Phone = req.Phone
	student.Track = req.Track

	if err := s.repo.Update(ctx, student); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Persistence(err, "failed to update student")
	}
	s.invalidateStats(ctx)
	return student, nil
}

// CountOpenLoans returns the student's OPEN and OVERDUE loans.
func (s *StudentService) CountOpenLoans(ctx context.Context, code string) (int, error) {
	count, err := s.repo.CountOpenLoans(ctx, code)
	if err != nil {
		return 0, appErrors.Persistence(err, "failed to count open loans")
	}
	return count, nil
}

// Eligibility reports whether the student may open another loan.
func (s *StudentService) Eligibility(ctx context.Context, code string) (*models.Eligibility, error) {
	student, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	open, err := s.CountOpenLoans(ctx, code)
	if err != nil {
		return nil, err
	}
	return &models.Eligibility{
		StudentCode: student.Code,
		Active:      student.Active,
		OpenLoans:   open,
		MaxLoans:    s.maxConcurrent,
		Eligible:    student.CanBorrow(open, s.maxConcurrent),
	}, nil
}

// Deactivate soft-deletes a student holding no open loans.
func (s *StudentService) Deactivate(ctx context.Context, code string) (*models.Student, error) {
	if _, err := s.Get(ctx, code); err != nil {
		return nil, err
	}
	ok, err := s.repo.Deactivate(ctx, code)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to deactivate student")
	}
	if !ok {
		open, countErr := s.CountOpenLoans(ctx, code)
		if countErr != nil {
			return nil, countErr
		}
		return nil, appErrors.Clone(appErrors.ErrHasOpenLoans, fmt.Sprintf("student %s has %d open loan(s)", code, open))
	}
	s.invalidateStats(ctx)
	s.logger.Info("student deactivated", zap.String("student_code", code))
	return s.Get(ctx, code)
}

// Delete hard-deletes a student without any loan history.
func (s *StudentService) Delete(ctx context.Context, code string) error {
	if _, err := s.Get(ctx, code); err != nil {
		return err
	}
	hasLoans, err := s.repo.HasLoans(ctx, code)
	if err != nil {
		return appErrors.Persistence(err, "failed to check student loans")
	}
	if hasLoans {
		return appErrors.Clone(appErrors.ErrHasDependents, "student has loan history")
	}
	if err := s.repo.Delete(ctx, code); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		case errors.Is(err, repository.ErrForeignKey):
			return kindError(err, appErrors.ErrHasDependents, "student has loan history")
		}
		return appErrors.Persistence(err, "failed to delete student")
	}
	s.invalidateStats(ctx)
	s.logger.Info("student deleted", zap.String("student_code", code))
	return nil
}

func (s *StudentService) invalidateStats(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, statisticsCacheKey)
}
