package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Constraint outcomes reported by PostgreSQL, mapped so services can classify them.
var (
	ErrDuplicate          = errors.New("duplicate key")
	ErrForeignKey         = errors.New("foreign key violation")
	ErrAvailabilityBounds = errors.New("available copies out of bounds")
	ErrCheckViolation     = errors.New("check constraint violation")
)

const (
	pqUniqueViolation     = pq.ErrorCode("23505")
	pqForeignKeyViolation = pq.ErrorCode("23503")
	pqCheckViolation      = pq.ErrorCode("23514")

	availabilityConstraint = "books_available_copies_check"
)

// classify wraps err with the matching sentinel while keeping the driver error in the chain.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return fmt.Errorf("%s: %w: %w", op, ErrDuplicate, err)
		case pqForeignKeyViolation:
			return fmt.Errorf("%s: %w: %w", op, ErrForeignKey, err)
		case pqCheckViolation:
			if pqErr.Constraint == availabilityConstraint {
				return fmt.Errorf("%s: %w: %w", op, ErrAvailabilityBounds, err)
			}
			return fmt.Errorf("%s: %w: %w", op, ErrCheckViolation, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
