package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var day0 = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func TestLoanDaysLate(t *testing.T) {
	loan := Loan{OpenedAt: day0, DueAt: DueDate(day0, 14), Status: LoanStatusOpen}

	tests := []struct {
		name string
		asOf time.Time
		want int64
	}{
		{"before due", day0.AddDate(0, 0, 3), 0},
		{"exactly due", day0.AddDate(0, 0, 14), 0},
		{"one minute late", day0.AddDate(0, 0, 14).Add(time.Minute), 0},
		{"just under a day", day0.AddDate(0, 0, 15).Add(-time.Second), 0},
		{"one day", day0.AddDate(0, 0, 15), 1},
		{"three and a half days", day0.AddDate(0, 0, 17).Add(12 * time.Hour), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, loan.DaysLate(tt.asOf))
		})
	}
}

func TestReturnedLoanUsesReturnDate(t *testing.T) {
	returned := day0.AddDate(0, 0, 17)
	loan := Loan{DueAt: DueDate(day0, 14), ReturnedAt: &returned, Status: LoanStatusReturned}

	assert.Equal(t, int64(3), loan.DaysLate(day0.AddDate(0, 1, 0)))
	assert.False(t, loan.IsOverdue(day0.AddDate(0, 1, 0)))
}

func TestIsOverdueNeedsAWholeDay(t *testing.T) {
	loan := Loan{DueAt: DueDate(day0, 14), Status: LoanStatusOpen}

	assert.False(t, loan.IsOverdue(day0.AddDate(0, 0, 14).Add(time.Hour)))
	assert.True(t, loan.IsOverdue(day0.AddDate(0, 0, 16)))
}

func TestPenalty(t *testing.T) {
	rate := decimal.RequireFromString("2.00")

	assert.True(t, Penalty(3, rate).Equal(decimal.RequireFromString("6.00")))
	assert.True(t, Penalty(0, rate).IsZero())
	assert.True(t, Penalty(-2, rate).IsZero())
	assert.Equal(t, "1.17", Penalty(1, decimal.RequireFromString("1.165")).StringFixed(2))
}

func TestLoanDetailDerive(t *testing.T) {
	d := LoanDetail{Loan: Loan{DueAt: DueDate(day0, 14), Status: LoanStatusOpen}}
	d.Derive(day0.AddDate(0, 0, 20))

	assert.Equal(t, int64(6), d.DaysLate)
	assert.True(t, d.Overdue)
}

func TestStudentCanBorrow(t *testing.T) {
	s := Student{Active: true}
	assert.True(t, s.CanBorrow(2, 3))
	assert.False(t, s.CanBorrow(3, 3))

	s.Active = false
	assert.False(t, s.CanBorrow(0, 3))
}
