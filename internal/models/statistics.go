package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LoanTotals buckets loans by live state.
type LoanTotals struct {
	Open           int64           `db:"open_loans" json:"open"`
	Overdue        int64           `db:"overdue_loans" json:"overdue"`
	Returned       int64           `db:"returned_loans" json:"returned"`
	TotalPenalties decimal.Decimal `db:"total_penalties" json:"total_penalties"`
}

// CatalogTotals summarises the shelves.
type CatalogTotals struct {
	Titles          int64 `db:"titles" json:"titles"`
	TotalCopies     int64 `db:"total_copies" json:"total_copies"`
	AvailableCopies int64 `db:"available_copies" json:"available_copies"`
	LentCopies      int64 `db:"-" json:"lent_copies"`
}

// RosterTotals summarises registered borrowers.
type RosterTotals struct {
	Students       int64 `db:"students" json:"students"`
	ActiveStudents int64 `db:"active_students" json:"active_students"`
}

// Statistics is the aggregate snapshot shown on the dashboard.
type Statistics struct {
	Loans   LoanTotals    `json:"loans"`
	Catalog CatalogTotals `json:"catalog"`
	Roster  RosterTotals  `json:"roster"`
	AsOf    time.Time     `json:"as_of"`
}
