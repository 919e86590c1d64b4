package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/library-api/internal/models"
)

const dialectPostgres = "postgres"

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(search string) string {
	return "%" + likeEscaper.Replace(strings.TrimSpace(search)) + "%"
}

func pageBounds(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}

// BookRepository manages persistence for catalog titles.
type BookRepository struct {
	db *sqlx.DB
}

// NewBookRepository constructs a BookRepository.
func NewBookRepository(db *sqlx.DB) *BookRepository {
	return &BookRepository{db: db}
}

const bookSelect = `SELECT b.isbn, b.title, b.author, b.category_id, c.name AS category_name, b.publication_year,
        b.total_copies, b.available_copies, b.added_at, b.updated_at
        FROM books b LEFT JOIN categories c ON c.id = b.category_id`

// Create inserts a new book.
func (r *BookRepository) Create(ctx context.Context, book *models.Book) error {
	now := time.Now().UTC()
	if book.AddedAt.IsZero() {
		book.AddedAt = now
	}
	book.UpdatedAt = now
	const query = `INSERT INTO books (isbn, title, author, category_id, publication_year, total_copies, available_copies, added_at, updated_at)
        VALUES (:isbn, :title, :author, :category_id, :publication_year, :total_copies, :available_copies, :added_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, book); err != nil {
		return classify("create book", err)
	}
	return nil
}

// FindByISBN fetches a single book. A miss returns sql.ErrNoRows.
func (r *BookRepository) FindByISBN(ctx context.Context, isbn string) (*models.Book, error) {
	var book models.Book
	if err := r.db.GetContext(ctx, &book, bookSelect+" WHERE b.isbn = $1", isbn); err != nil {
		return nil, err
	}
	return &book, nil
}

// List searches the catalog by title, author or ISBN, ordered by title.
func (r *BookRepository) List(ctx context.Context, filter models.BookFilter) ([]models.Book, int, error) {
	page, size := pageBounds(filter.Page, filter.PageSize)

	ds := goqu.Dialect(dialectPostgres).
		From(goqu.T("books").As("b")).
		LeftJoin(goqu.T("categories").As("c"), goqu.On(goqu.I("c.id").Eq(goqu.I("b.category_id"))))

	var where []goqu.Expression
	if strings.TrimSpace(filter.Search) != "" {
		pattern := containsPattern(filter.Search)
		where = append(where, goqu.Or(
			goqu.I("b.title").ILike(pattern),
			goqu.I("b.author").ILike(pattern),
			goqu.I("b.isbn").ILike(pattern),
		))
	}
	if filter.CategoryID != nil {
		where = append(where, goqu.I("b.category_id").Eq(*filter.CategoryID))
	}
	if filter.AvailableOnly {
		where = append(where, goqu.I("b.available_copies").Gt(0))
	}
	ds = ds.Where(where...).Prepared(true)

	countSQL, countArgs, err := ds.Select(goqu.COUNT(goqu.Star())).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build book count: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, countSQL, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count books: %w", err)
	}

	listSQL, args, err := ds.Select(
		goqu.I("b.isbn"), goqu.I("b.title"), goqu.I("b.author"), goqu.I("b.category_id"),
		goqu.I("c.name").As("category_name"), goqu.I("b.publication_year"),
		goqu.I("b.total_copies"), goqu.I("b.available_copies"), goqu.I("b.added_at"), goqu.I("b.updated_at"),
	).
		Order(goqu.I("b.title").Asc(), goqu.I("b.isbn").Asc()).
		Limit(uint(size)).
		Offset(uint((page - 1) * size)).
		ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build book list: %w", err)
	}

	books := make([]models.Book, 0)
	if err := r.db.SelectContext(ctx, &books, listSQL, args...); err != nil {
		return nil, 0, fmt.Errorf("list books: %w", err)
	}
	return books, total, nil
}

// Update edits catalog fields. Changing total copies moves available copies by the
// same delta in one statement; sql.ErrNoRows marks a missing book and
// ErrAvailabilityBounds a total below the copies currently lent.
func (r *BookRepository) Update(ctx context.Context, book *models.Book) error {
	const query = `UPDATE books SET title = $2, author = $3, category_id = $4, publication_year = $5,
        available_copies = available_copies + ($6 - total_copies), total_copies = $6, updated_at = $7
        WHERE isbn = $1 AND available_copies + ($6 - total_copies) >= 0
        RETURNING available_copies, added_at, updated_at`
	row := r.db.QueryRowxContext(ctx, query, book.ISBN, book.Title, book.Author, book.CategoryID, book.PublicationYear, book.TotalCopies, time.Now().UTC())
	if err := row.Scan(&book.AvailableCopies, &book.AddedAt, &book.UpdatedAt); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return classify("update book", err)
		}
		exists, existsErr := bookExists(ctx, r.db, book.ISBN)
		if existsErr != nil {
			return existsErr
		}
		if exists {
			return ErrAvailabilityBounds
		}
		return sql.ErrNoRows
	}
	return nil
}

// AdjustAvailability applies delta outside a ledger transaction.
func (r *BookRepository) AdjustAvailability(ctx context.Context, isbn string, delta int) error {
	return adjustAvailability(ctx, r.db, isbn, delta)
}

// HasLoans reports whether any loan, returned or not, references the book.
func (r *BookRepository) HasLoans(ctx context.Context, isbn string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM loans WHERE isbn = $1)`, isbn); err != nil {
		return false, fmt.Errorf("check book loans: %w", err)
	}
	return exists, nil
}

// Delete removes a book. Loans keep it alive through the foreign key.
func (r *BookRepository) Delete(ctx context.Context, isbn string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM books WHERE isbn = $1`, isbn)
	if err != nil {
		return classify("delete book", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// adjustAvailability adds delta to available_copies only when the result stays
// within [0, total_copies].
func adjustAvailability(ctx context.Context, q sqlx.ExtContext, isbn string, delta int) error {
	const query = `UPDATE books SET available_copies = available_copies + $2, updated_at = NOW()
        WHERE isbn = $1 AND available_copies + $2 BETWEEN 0 AND total_copies`
	res, err := q.ExecContext(ctx, query, isbn, delta)
	if err != nil {
		return classify("adjust availability", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("adjust availability rows: %w", err)
	}
	if n == 1 {
		return nil
	}

	exists, err := bookExists(ctx, q, isbn)
	if err != nil {
		return err
	}
	if !exists {
		return sql.ErrNoRows
	}
	return ErrAvailabilityBounds
}

func bookExists(ctx context.Context, q sqlx.QueryerContext, isbn string) (bool, error) {
	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists, `SELECT EXISTS (SELECT 1 FROM books WHERE isbn = $1)`, isbn); err != nil {
		return false, fmt.Errorf("check book exists: %w", err)
	}
	return exists, nil
}
