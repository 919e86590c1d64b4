package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/library-api/internal/models"
)

// CategoryRepository manages persistence for book categories.
type CategoryRepository struct {
	db *sqlx.DB
}

// NewCategoryRepository constructs a CategoryRepository.
func NewCategoryRepository(db *sqlx.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

const categorySelect = `SELECT c.id, c.name, c.description, c.created_at, c.updated_at, COUNT(b.isbn) AS book_count
        FROM categories c LEFT JOIN books b ON b.category_id = c.id`

// List returns every category with its book count, ordered by name.
func (r *CategoryRepository) List(ctx context.Context) ([]models.Category, error) {
	categories := make([]models.Category, 0)
	if err := r.db.SelectContext(ctx, &categories, categorySelect+" GROUP BY c.id ORDER BY c.name"); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

// FindByID fetches a category. A miss returns sql.ErrNoRows.
func (r *CategoryRepository) FindByID(ctx context.Context, id int64) (*models.Category, error) {
	var category models.Category
	if err := r.db.GetContext(ctx, &category, categorySelect+" WHERE c.id = $1 GROUP BY c.id", id); err != nil {
		return nil, err
	}
	return &category, nil
}

// Create inserts a category and fills the generated id.
func (r *CategoryRepository) Create(ctx context.Context, category *models.Category) error {
	now := time.Now().UTC()
	category.CreatedAt, category.UpdatedAt = now, now
	const query = `INSERT INTO categories (name, description, created_at, updated_at) VALUES ($1, $2, $3, $4) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query, category.Name, category.Description, now, now).Scan(&category.ID); err != nil {
		return classify("create category", err)
	}
	return nil
}

// Update renames a category.
func (r *CategoryRepository) Update(ctx context.Context, category *models.Category) error {
	category.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `UPDATE categories SET name = $2, description = $3, updated_at = $4 WHERE id = $1`,
		category.ID, category.Name, category.Description, category.UpdatedAt)
	if err != nil {
		return classify("update category", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountBooks returns how many books reference the category.
func (r *CategoryRepository) CountBooks(ctx context.Context, id int64) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM books WHERE category_id = $1`, id); err != nil {
		return 0, fmt.Errorf("count category books: %w", err)
	}
	return count, nil
}

// Delete removes a category.
func (r *CategoryRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return classify("delete category", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
