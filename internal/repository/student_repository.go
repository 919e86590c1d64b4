package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/library-api/internal/models"
)

// StudentRepository manages persistence for registered borrowers.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

var studentColumns = []interface{}{"code", "surname", "given_name", "email", "phone", "track", "registered_at", "active", "updated_at"}

const studentSelect = `SELECT code, surname, given_name, email, phone, track, registered_at, active, updated_at FROM students`

// openLoanStatuses are the statuses that occupy a borrowing slot.
var openLoanStatuses = []string{string(models.LoanStatusOpen), string(models.LoanStatusOverdue)}

// List searches by name, code, email or track, ordered by surname then given name.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	page, size := pageBounds(filter.Page, filter.PageSize)

	ds := goqu.Dialect(dialectPostgres).From("students")
	var where []goqu.Expression
	if strings.TrimSpace(filter.Search) != "" {
		pattern := containsPattern(filter.Search)
		where = append(where, goqu.Or(
			goqu.C("surname").ILike(pattern),
			goqu.C("given_name").ILike(pattern),
			goqu.C("code").ILike(pattern),
			goqu.C("email").ILike(pattern),
			goqu.C("track").ILike(pattern),
		))
	}
	if filter.Active != nil {
		where = append(where, goqu.C("active").Eq(*filter.Active))
	}
	if filter.Track != "" {
		where = append(where, goqu.C("track").Eq(filter.Track))
	}
	ds = ds.Where(where...).Prepared(true)

	countSQL, countArgs, err := ds.Select(goqu.COUNT(goqu.Star())).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build student count: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, countSQL, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}

	listSQL, args, err := ds.Select(studentColumns...).
		Order(goqu.C("surname").Asc(), goqu.C("given_name").Asc(), goqu.C("code").Asc()).
		Limit(uint(size)).
		Offset(uint((page - 1) * size)).
		ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build student list: %w", err)
	}

	students := make([]models.Student, 0)
	if err := r.db.SelectContext(ctx, &students, listSQL, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}
	return students, total, nil
}

// FindByCode fetches a student. A miss returns sql.ErrNoRows.
func (r *StudentRepository) FindByCode(ctx context.Context, code string) (*models.Student, error) {
	var student models.Student
	if err := r.db.GetContext(ctx, &student, studentSelect+" WHERE code = $1", code); err != nil {
		return nil, err
	}
	return &student, nil
}

// Create registers a student.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	now := time.Now().UTC()
	if student.RegisteredAt.IsZero() {
		student.RegisteredAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (code, surname, given_name, email, phone, track, registered_at, active, updated_at)
        VALUES (:code, :surname, :given_name, :email, :phone, :track, :registered_at, :active, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return classify("create student", err)
	}
	return nil
}

// Update modifies contact details and the active flag.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET surname = :surname, given_name = :given_name, email = :email, phone = :phone,
        track = :track, active = :active, updated_at = :updated_at WHERE code = :code`
	res, err := r.db.NamedExecContext(ctx, query, student)
	if err != nil {
		return classify("update student", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountOpenLoans counts the student's OPEN and OVERDUE loans.
func (r *StudentRepository) CountOpenLoans(ctx context.Context, code string) (int, error) {
	return countOpenLoans(ctx, r.db, code)
}

// Deactivate clears the active flag only while the student holds no open loans.
// It reports false when the guard blocked the update.
func (r *StudentRepository) Deactivate(ctx context.Context, code string) (bool, error) {
	const query = `UPDATE students SET active = FALSE, updated_at = $2
        WHERE code = $1 AND NOT EXISTS (SELECT 1 FROM loans WHERE student_code = $1 AND status IN ($3, $4))`
	res, err := r.db.ExecContext(ctx, query, code, time.Now().UTC(), openLoanStatuses[0], openLoanStatuses[1])
	if err != nil {
		return false, fmt.Errorf("deactivate student: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deactivate student rows: %w", err)
	}
	return n == 1, nil
}

// HasLoans reports whether any loan, returned or not, references the student.
func (r *StudentRepository) HasLoans(ctx context.Context, code string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM loans WHERE student_code = $1)`, code); err != nil {
		return false, fmt.Errorf("check student loans: %w", err)
	}
	return exists, nil
}

// Delete hard-deletes a student.
func (r *StudentRepository) Delete(ctx context.Context, code string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE code = $1`, code)
	if err != nil {
		return classify("delete student", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func countOpenLoans(ctx context.Context, q sqlx.QueryerContext, code string) (int, error) {
	var count int
	const query = `SELECT COUNT(*) FROM loans WHERE student_code = $1 AND status IN ($2, $3)`
	if err := sqlx.GetContext(ctx, q, &count, query, code, openLoanStatuses[0], openLoanStatuses[1]); err != nil {
		return 0, fmt.Errorf("count open loans: %w", err)
	}
	return count, nil
}
