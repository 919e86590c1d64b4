package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/library-api/internal/models"
)

// ReportRepository runs the aggregate scans behind the statistics dashboard.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs a ReportRepository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// LoanTotals buckets loans as of asOf. Overdue is derived from due_at, not the stored status.
func (r *ReportRepository) LoanTotals(ctx context.Context, asOf time.Time) (models.LoanTotals, error) {
	const query = `SELECT
        COUNT(*) FILTER (WHERE status <> 'RETURNED' AND due_at >= $1) AS open_loans,
        COUNT(*) FILTER (WHERE status <> 'RETURNED' AND due_at < $1) AS overdue_loans,
        COUNT(*) FILTER (WHERE status = 'RETURNED') AS returned_loans,
        COALESCE(SUM(penalty), 0) AS total_penalties
        FROM loans`
	var totals models.LoanTotals
	if err := r.db.GetContext(ctx, &totals, query, asOf); err != nil {
		return models.LoanTotals{}, fmt.Errorf("aggregate loans: %w", err)
	}
	return totals, nil
}

// CatalogTotals sums titles and copies.
func (r *ReportRepository) CatalogTotals(ctx context.Context) (models.CatalogTotals, error) {
	const query = `SELECT COUNT(*) AS titles,
        COALESCE(SUM(total_copies), 0) AS total_copies,
        COALESCE(SUM(available_copies), 0) AS available_copies
        FROM books`
	var totals models.CatalogTotals
	if err := r.db.GetContext(ctx, &totals, query); err != nil {
		return models.CatalogTotals{}, fmt.Errorf("aggregate catalog: %w", err)
	}
	totals.LentCopies = totals.TotalCopies - totals.AvailableCopies
	return totals, nil
}

// RosterTotals counts registered and active students.
func (r *ReportRepository) RosterTotals(ctx context.Context) (models.RosterTotals, error) {
	const query = `SELECT COUNT(*) AS students, COUNT(*) FILTER (WHERE active) AS active_students FROM students`
	var totals models.RosterTotals
	if err := r.db.GetContext(ctx, &totals, query); err != nil {
		return models.RosterTotals{}, fmt.Errorf("aggregate roster: %w", err)
	}
	return totals, nil
}
