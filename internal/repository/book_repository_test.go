package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/library-api/internal/models"
)

var bookRowColumns = []string{"isbn", "title", "author", "category_id", "category_name", "publication_year", "total_copies", "available_copies", "added_at", "updated_at"}

func TestBookRepositoryCreateDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookRepository(db)

	mock.ExpectExec("INSERT INTO books").WillReturnError(&pq.Error{Code: "23505", Constraint: "books_pkey"})

	err := repo.Create(context.Background(), &models.Book{ISBN: "978-0441013593", Title: "Dune", Author: "Frank Herbert", TotalCopies: 2, AvailableCopies: 2})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookRepositoryFindByISBN(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM books b LEFT JOIN categories c ON c.id = b.category_id WHERE b.isbn = $1")).
		WithArgs("978-0441013593").
		WillReturnRows(sqlmock.NewRows(bookRowColumns).AddRow("978-0441013593", "Dune", "Frank Herbert", int64(3), "Science Fiction", int64(1965), int64(4), int64(1), now, now))

	book, err := repo.FindByISBN(context.Background(), "978-0441013593")
	require.NoError(t, err)
	assert.Equal(t, "Science Fiction", *book.CategoryName)
	assert.Equal(t, 3, book.LentCopies())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookRepositoryFindByISBNMiss(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookRepository(db)

	mock.ExpectQuery("FROM books b").WithArgs("missing").WillReturnRows(sqlmock.NewRows(bookRowColumns))

	_, err := repo.FindByISBN(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestBookRepositoryListSearch(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookRepository(db)
	now := time.Now()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "books" AS "b" LEFT JOIN "categories" AS "c".*ILIKE`).
		WithArgs("%dune%", "%dune%", "%dune%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT "b"."isbn".*ORDER BY "b"."title" ASC, "b"."isbn" ASC`).
		WillReturnRows(sqlmock.NewRows(bookRowColumns).AddRow("978-0441013593", "Dune", "Frank Herbert", nil, nil, nil, int64(2), int64(2), now, now))

	books, total, err := repo.List(context.Background(), models.BookFilter{Search: "dune"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, books, 1)
	assert.Nil(t, books[0].CategoryID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContainsPatternEscapesWildcards(t *testing.T) {
	assert.Equal(t, `%50\%\_off%`, containsPattern(" 50%_off "))
}

func TestBookRepositoryUpdateBelowLentCopies(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookRepository(db)

	mock.ExpectQuery("UPDATE books SET title").
		WillReturnRows(sqlmock.NewRows([]string{"available_copies", "added_at", "updated_at"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM books WHERE isbn = $1)")).
		WithArgs("978-0441013593").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := repo.Update(context.Background(), &models.Book{ISBN: "978-0441013593", Title: "Dune", Author: "Frank Herbert", TotalCopies: 0})
	assert.ErrorIs(t, err, ErrAvailabilityBounds)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookRepositoryUpdateShiftsAvailability(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("available_copies = available_copies + ($6 - total_copies), total_copies = $6")).
		WillReturnRows(sqlmock.NewRows([]string{"available_copies", "added_at", "updated_at"}).AddRow(int64(5), now, now))

	book := &models.Book{ISBN: "978-0441013593", Title: "Dune", Author: "Frank Herbert", TotalCopies: 6}
	require.NoError(t, repo.Update(context.Background(), book))
	assert.Equal(t, 5, book.AvailableCopies)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustAvailability(t *testing.T) {
	t.Run("applied", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(regexp.QuoteMeta("available_copies + $2 BETWEEN 0 AND total_copies")).
			WithArgs("978-0441013593", -1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, NewBookRepository(db).AdjustAvailability(context.Background(), "978-0441013593", -1))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing book", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec("UPDATE books SET available_copies").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT EXISTS").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		err := NewBookRepository(db).AdjustAvailability(context.Background(), "missing", -1)
		assert.ErrorIs(t, err, sql.ErrNoRows)
	})

	t.Run("out of bounds", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec("UPDATE books SET available_copies").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT EXISTS").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		err := NewBookRepository(db).AdjustAvailability(context.Background(), "978-0441013593", 1)
		assert.ErrorIs(t, err, ErrAvailabilityBounds)
	})
}

func TestBookRepositoryDeleteRestricted(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookRepository(db)

	mock.ExpectExec("DELETE FROM books").WithArgs("978-0441013593").
		WillReturnError(&pq.Error{Code: "23503", Constraint: "loans_isbn_fkey"})

	err := repo.Delete(context.Background(), "978-0441013593")
	assert.ErrorIs(t, err, ErrForeignKey)
}
