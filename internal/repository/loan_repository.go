package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/library-api/internal/models"
)

// LedgerTx is the set of row-level operations available inside a ledger transaction.
type LedgerTx interface {
	LockStudent(ctx context.Context, code string) (*models.Student, error)
	CountOpenLoans(ctx context.Context, code string) (int, error)
	LockBook(ctx context.Context, isbn string) (*models.Book, error)
	InsertLoan(ctx context.Context, loan *models.Loan) error
	LockLoan(ctx context.Context, id int64) (*models.Loan, error)
	CloseLoan(ctx context.Context, loan *models.Loan) error
	AdjustAvailability(ctx context.Context, isbn string, delta int) error
}

// LoanRepository manages persistence for the loan ledger.
type LoanRepository struct {
	db *sqlx.DB
}

// NewLoanRepository constructs a LoanRepository.
func NewLoanRepository(db *sqlx.DB) *LoanRepository {
	return &LoanRepository{db: db}
}

const loanColumns = `id, isbn, student_code, opened_at, due_at, returned_at, penalty, status, created_at`

const loanDetailSelect = `SELECT l.id, l.isbn, l.student_code, l.opened_at, l.due_at, l.returned_at, l.penalty, l.status, l.created_at,
        b.title AS book_title, TRIM(s.given_name || ' ' || s.surname) AS student_name
        FROM loans l
        JOIN books b ON b.isbn = l.isbn
        JOIN students s ON s.code = l.student_code`

// RunInTx executes fn in one transaction; any error rolls back every write made through the LedgerTx.
func (r *LoanRepository) RunInTx(ctx context.Context, fn func(context.Context, LedgerTx) error) error {
	return runInTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return fn(ctx, &ledgerTx{tx: tx})
	})
}

// FindByID fetches a loan with display names. A miss returns sql.ErrNoRows.
func (r *LoanRepository) FindByID(ctx context.Context, id int64) (*models.LoanDetail, error) {
	var loan models.LoanDetail
	if err := r.db.GetContext(ctx, &loan, loanDetailSelect+" WHERE l.id = $1", id); err != nil {
		return nil, err
	}
	return &loan, nil
}

// List returns a ledger projection. The all scope is newest first; open and
// overdue scopes are soonest due first.
func (r *LoanRepository) List(ctx context.Context, filter models.LoanFilter) ([]models.LoanDetail, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	next := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	order := "l.opened_at DESC, l.id DESC"
	switch filter.Scope {
	case models.LoanScopeOpen:
		conditions = append(conditions, fmt.Sprintf("l.status IN (%s, %s)", next(openLoanStatuses[0]), next(openLoanStatuses[1])))
		order = "l.due_at ASC, l.id ASC"
	case models.LoanScopeOverdue:
		asOf := filter.AsOf
		if asOf.IsZero() {
			asOf = time.Now().UTC()
		}
		conditions = append(conditions,
			fmt.Sprintf("l.status IN (%s, %s)", next(openLoanStatuses[0]), next(openLoanStatuses[1])),
			fmt.Sprintf("l.due_at < %s", next(asOf)))
		order = "l.due_at ASC, l.id ASC"
	}
	if filter.ISBN != "" {
		conditions = append(conditions, "l.isbn = "+next(filter.ISBN))
	}
	if filter.StudentCode != "" {
		conditions = append(conditions, "l.student_code = "+next(filter.StudentCode))
	}

	query := fmt.Sprintf("%s WHERE %s ORDER BY %s", loanDetailSelect, strings.Join(conditions, " AND "), order)
	loans := make([]models.LoanDetail, 0)
	if err := r.db.SelectContext(ctx, &loans, query, args...); err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	return loans, nil
}

// MarkOverdue moves OPEN loans due before asOf to OVERDUE and returns how many changed.
// Already OVERDUE and RETURNED rows are untouched, so repeated runs are no-ops.
func (r *LoanRepository) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	const query = `UPDATE loans SET status = $1 WHERE status = $2 AND due_at < $3`
	res, err := r.db.ExecContext(ctx, query, models.LoanStatusOverdue, models.LoanStatusOpen, asOf)
	if err != nil {
		return 0, fmt.Errorf("mark overdue loans: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark overdue rows: %w", err)
	}
	return n, nil
}

type ledgerTx struct {
	tx *sqlx.Tx
}

func (t *ledgerTx) LockStudent(ctx context.Context, code string) (*models.Student, error) {
	var student models.Student
	if err := t.tx.GetContext(ctx, &student, studentSelect+" WHERE code = $1 FOR UPDATE", code); err != nil {
		return nil, err
	}
	return &student, nil
}

func (t *ledgerTx) CountOpenLoans(ctx context.Context, code string) (int, error) {
	return countOpenLoans(ctx, t.tx, code)
}

func (t *ledgerTx) LockBook(ctx context.Context, isbn string) (*models.Book, error) {
	const query = `SELECT isbn, title, author, category_id, publication_year, total_copies, available_copies, added_at, updated_at
        FROM books WHERE isbn = $1 FOR UPDATE`
	var book models.Book
	if err := t.tx.GetContext(ctx, &book, query, isbn); err != nil {
		return nil, err
	}
	return &book, nil
}

func (t *ledgerTx) InsertLoan(ctx context.Context, loan *models.Loan) error {
	const query = `INSERT INTO loans (isbn, student_code, opened_at, due_at, penalty, status)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`
	row := t.tx.QueryRowxContext(ctx, query, loan.ISBN, loan.StudentCode, loan.OpenedAt, loan.DueAt, loan.Penalty, loan.Status)
	if err := row.Scan(&loan.ID, &loan.CreatedAt); err != nil {
		return classify("insert loan", err)
	}
	return nil
}

func (t *ledgerTx) LockLoan(ctx context.Context, id int64) (*models.Loan, error) {
	var loan models.Loan
	if err := t.tx.GetContext(ctx, &loan, "SELECT "+loanColumns+" FROM loans WHERE id = $1 FOR UPDATE", id); err != nil {
		return nil, err
	}
	return &loan, nil
}

func (t *ledgerTx) CloseLoan(ctx context.Context, loan *models.Loan) error {
	const query = `UPDATE loans SET returned_at = $2, penalty = $3, status = $4 WHERE id = $1 AND status <> $4`
	res, err := t.tx.ExecContext(ctx, query, loan.ID, loan.ReturnedAt, loan.Penalty, models.LoanStatusReturned)
	if err != nil {
		return classify("close loan", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (t *ledgerTx) AdjustAvailability(ctx context.Context, isbn string, delta int) error {
	return adjustAvailability(ctx, t.tx, isbn, delta)
}
