package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/library-api/internal/models"
)

var loanDetailColumns = []string{"id", "isbn", "student_code", "opened_at", "due_at", "returned_at", "penalty", "status", "created_at", "book_title", "student_name"}

func TestLoanRepositoryOpenInTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLoanRepository(db)
	opened := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE code = $1 FOR UPDATE")).
		WithArgs("S-001").
		WillReturnRows(sqlmock.NewRows([]string{"code", "surname", "given_name", "email", "phone", "track", "registered_at", "active", "updated_at"}).
			AddRow("S-001", "Lovelace", "Ada", "ada@example.com", "", "CS", opened, true, opened))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM loans WHERE student_code = $1 AND status IN ($2, $3)")).
		WithArgs("S-001", "OPEN", "OVERDUE").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("INSERT INTO loans").
		WithArgs("978-0441013593", "S-001", opened, opened.AddDate(0, 0, 14), sqlmock.AnyArg(), "OPEN").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(41), opened))
	mock.ExpectExec("UPDATE books SET available_copies").
		WithArgs("978-0441013593", -1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	loan := &models.Loan{ISBN: "978-0441013593", StudentCode: "S-001", OpenedAt: opened, DueAt: opened.AddDate(0, 0, 14), Penalty: decimal.Zero, Status: models.LoanStatusOpen}
	err := repo.RunInTx(context.Background(), func(ctx context.Context, tx LedgerTx) error {
		student, err := tx.LockStudent(ctx, "S-001")
		if err != nil {
			return err
		}
		count, err := tx.CountOpenLoans(ctx, student.Code)
		if err != nil {
			return err
		}
		assert.Equal(t, 0, count)
		if err := tx.InsertLoan(ctx, loan); err != nil {
			return err
		}
		return tx.AdjustAvailability(ctx, loan.ISBN, -1)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(41), loan.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoanRepositoryRollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLoanRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE books SET available_copies").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.RunInTx(context.Background(), func(ctx context.Context, tx LedgerTx) error {
		return tx.AdjustAvailability(ctx, "978-0441013593", 1)
	})
	assert.ErrorContains(t, err, "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoanRepositoryRollsBackOnPanic(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLoanRepository(db)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = repo.RunInTx(context.Background(), func(context.Context, LedgerTx) error {
			panic("boom")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoanRepositoryCloseLoanTwice(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLoanRepository(db)
	returned := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE loans SET returned_at = $2, penalty = $3, status = $4 WHERE id = $1 AND status <> $4")).
		WithArgs(int64(5), returned, sqlmock.AnyArg(), "RETURNED").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.RunInTx(context.Background(), func(ctx context.Context, tx LedgerTx) error {
		return tx.CloseLoan(ctx, &models.Loan{ID: 5, ReturnedAt: &returned, Penalty: decimal.Zero, Status: models.LoanStatusReturned})
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoanRepositoryListOverdue(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLoanRepository(db)
	asOf := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	opened := asOf.AddDate(0, 0, -20)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND l.status IN ($1, $2) AND l.due_at < $3 AND l.student_code = $4 ORDER BY l.due_at ASC, l.id ASC")).
		WithArgs("OPEN", "OVERDUE", asOf, "S-001").
		WillReturnRows(sqlmock.NewRows(loanDetailColumns).
			AddRow(int64(3), "978-0441013593", "S-001", opened, opened.AddDate(0, 0, 14), nil, "0.00", "OVERDUE", opened, "Dune", "Ada Lovelace"))

	loans, err := repo.List(context.Background(), models.LoanFilter{Scope: models.LoanScopeOverdue, StudentCode: "S-001", AsOf: asOf})
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Equal(t, "Dune", loans[0].BookTitle)
	assert.Nil(t, loans[0].ReturnedAt)
	assert.True(t, loans[0].Penalty.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoanRepositoryListAllNewestFirst(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLoanRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND l.isbn = $1 ORDER BY l.opened_at DESC, l.id DESC")).
		WithArgs("978-0441013593").
		WillReturnRows(sqlmock.NewRows(loanDetailColumns))

	loans, err := repo.List(context.Background(), models.LoanFilter{Scope: models.LoanScopeAll, ISBN: "978-0441013593"})
	require.NoError(t, err)
	assert.Empty(t, loans)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoanRepositoryMarkOverdue(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLoanRepository(db)
	asOf := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE loans SET status = $1 WHERE status = $2 AND due_at < $3")).
		WithArgs("OVERDUE", "OPEN", asOf).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE loans SET status = $1 WHERE status = $2 AND due_at < $3")).
		WithArgs("OVERDUE", "OPEN", asOf).
		WillReturnResult(sqlmock.NewResult(0, 0))

	first, err := repo.MarkOverdue(context.Background(), asOf)
	require.NoError(t, err)
	second, err := repo.MarkOverdue(context.Background(), asOf)
	require.NoError(t, err)

	assert.Equal(t, int64(2), first)
	assert.Equal(t, int64(0), second)
	assert.NoError(t, mock.ExpectationsWereMet())
}
