package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LoanStatus is the stored lifecycle state of a loan.
type LoanStatus string

const (
	LoanStatusOpen     LoanStatus = "OPEN"
	LoanStatusOverdue  LoanStatus = "OVERDUE"
	LoanStatusReturned LoanStatus = "RETURNED"
)

const day = 24 * time.Hour

// Loan records one copy of a book lent to one student.
type Loan struct {
	ID          int64           `db:"id" json:"id"`
	ISBN        string          `db:"isbn" json:"isbn"`
	StudentCode string          `db:"student_code" json:"student_code"`
	OpenedAt    time.Time       `db:"opened_at" json:"opened_at"`
	DueAt       time.Time       `db:"due_at" json:"due_at"`
	ReturnedAt  *time.Time      `db:"returned_at" json:"returned_at,omitempty"`
	Penalty     decimal.Decimal `db:"penalty" json:"penalty"`
	Status      LoanStatus      `db:"status" json:"status"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// IsReturned reports whether the loan reached its terminal state.
func (l Loan) IsReturned() bool {
	return l.Status == LoanStatusReturned
}

// DaysLate counts whole days past due, up to the return or asOf when still out.
// Partial days are dropped and the result is never negative.
func (l Loan) DaysLate(asOf time.Time) int64 {
	end := asOf
	if l.ReturnedAt != nil {
		end = *l.ReturnedAt
	}
	late := end.Sub(l.DueAt)
	if late <= 0 {
		return 0
	}
	return int64(late / day)
}

// IsOverdue is derived from dates only; returned loans are never overdue.
func (l Loan) IsOverdue(asOf time.Time) bool {
	return l.ReturnedAt == nil && l.DaysLate(asOf) > 0
}

// DueDate adds durationDays calendar days to openedAt.
func DueDate(openedAt time.Time, durationDays int) time.Time {
	return openedAt.AddDate(0, 0, durationDays)
}

// Penalty charges perDay for every whole day late, rounded to cents.
func Penalty(daysLate int64, perDay decimal.Decimal) decimal.Decimal {
	if daysLate <= 0 {
		return decimal.Zero
	}
	return perDay.Mul(decimal.NewFromInt(daysLate)).Round(2)
}

// LoanDetail is a loan joined with display names and live lateness.
type LoanDetail struct {
	Loan
	BookTitle   string `db:"book_title" json:"book_title"`
	StudentName string `db:"student_name" json:"student_name"`
	DaysLate    int64  `db:"-" json:"days_late"`
	Overdue     bool   `db:"-" json:"overdue"`
}

// Derive fills the live lateness fields as of asOf.
func (d *LoanDetail) Derive(asOf time.Time) {
	d.DaysLate = d.Loan.DaysLate(asOf)
	d.Overdue = d.Loan.IsOverdue(asOf)
}

// LoanScope selects a ledger projection.
type LoanScope string

const (
	LoanScopeAll     LoanScope = "all"
	LoanScopeOpen    LoanScope = "open"
	LoanScopeOverdue LoanScope = "overdue"
)

// Valid reports whether s is a known scope.
func (s LoanScope) Valid() bool {
	switch s {
	case LoanScopeAll, LoanScopeOpen, LoanScopeOverdue:
		return true
	}
	return false
}

// LoanFilter selects loans for listing. AsOf is the clock used by the overdue scope.
type LoanFilter struct {
	Scope       LoanScope
	ISBN        string
	StudentCode string
	AsOf        time.Time
}

// OpenLoanRequest lends a copy. LoanDate defaults to now and DurationDays to the configured default.
type OpenLoanRequest struct {
	ISBN         string     `json:"isbn" validate:"required"`
	StudentCode  string     `json:"student_code" validate:"required"`
	LoanDate     *time.Time `json:"loan_date"`
	DurationDays int        `json:"duration_days" validate:"omitempty,min=1"`
}

// ReturnLoanRequest closes a loan. ReturnDate defaults to now.
type ReturnLoanRequest struct {
	ReturnDate *time.Time `json:"return_date"`
}
