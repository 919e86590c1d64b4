package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportRepositoryLoanTotals(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewReportRepository(db)
	asOf := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`COUNT\(\*\) FILTER \(WHERE status <> 'RETURNED' AND due_at < \$1\) AS overdue_loans`).
		WithArgs(asOf).
		WillReturnRows(sqlmock.NewRows([]string{"open_loans", "overdue_loans", "returned_loans", "total_penalties"}).
			AddRow(int64(4), int64(2), int64(9), "18.00"))

	totals, err := repo.LoanTotals(context.Background(), asOf)
	require.NoError(t, err)
	assert.Equal(t, int64(4), totals.Open)
	assert.Equal(t, int64(2), totals.Overdue)
	assert.Equal(t, int64(9), totals.Returned)
	assert.Equal(t, "18.00", totals.TotalPenalties.StringFixed(2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryCatalogTotals(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewReportRepository(db)

	mock.ExpectQuery("FROM books").
		WillReturnRows(sqlmock.NewRows([]string{"titles", "total_copies", "available_copies"}).AddRow(int64(3), int64(10), int64(7)))

	totals, err := repo.CatalogTotals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), totals.LentCopies)
}

func TestReportRepositoryRosterTotals(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewReportRepository(db)

	mock.ExpectQuery(`FILTER \(WHERE active\)`).
		WillReturnRows(sqlmock.NewRows([]string{"students", "active_students"}).AddRow(int64(5), int64(4)))

	totals, err := repo.RosterTotals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), totals.ActiveStudents)
}
