package repository

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unique", &pq.Error{Code: "23505"}, ErrDuplicate},
		{"foreign key", &pq.Error{Code: "23503"}, ErrForeignKey},
		{"availability", &pq.Error{Code: "23514", Constraint: "books_available_copies_check"}, ErrAvailabilityBounds},
		{"other check", &pq.Error{Code: "23514", Constraint: "loans_status_check"}, ErrCheckViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("insert", tt.err)
			assert.ErrorIs(t, err, tt.want)
			var pqErr *pq.Error
			assert.True(t, errors.As(err, &pqErr))
		})
	}
}

func TestClassifyPassesThrough(t *testing.T) {
	assert.Nil(t, classify("noop", nil))

	err := classify("get", sql.ErrConnDone)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NotErrorIs(t, err, ErrDuplicate)
}
