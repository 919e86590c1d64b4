package models

import "time"

// Book is a catalog title. Copies are fungible and only counted.
type Book struct {
	ISBN            string    `db:"isbn" json:"isbn"`
	Title           string    `db:"title" json:"title"`
	Author          string    `db:"author" json:"author"`
	CategoryID      *int64    `db:"category_id" json:"category_id,omitempty"`
	CategoryName    *string   `db:"category_name" json:"category_name,omitempty"`
	PublicationYear *int      `db:"publication_year" json:"publication_year,omitempty"`
	TotalCopies     int       `db:"total_copies" json:"total_copies"`
	AvailableCopies int       `db:"available_copies" json:"available_copies"`
	AddedAt         time.Time `db:"added_at" json:"added_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// IsAvailable reports whether at least one copy can be lent.
func (b Book) IsAvailable() bool {
	return b.AvailableCopies > 0
}

// LentCopies is the number of copies currently out on loan.
func (b Book) LentCopies() int {
	return b.TotalCopies - b.AvailableCopies
}

// BookFilter narrows catalog searches.
type BookFilter struct {
	Search        string
	CategoryID    *int64
	AvailableOnly bool
	Page          int
	PageSize      int
}

// CreateBookRequest adds a title to the catalog. AvailableCopies defaults to TotalCopies.
type CreateBookRequest struct {
	ISBN            string `json:"isbn" validate:"required,max=20"`
	Title           string `json:"title" validate:"required,max=255"`
	Author          string `json:"author" validate:"required,max=255"`
	CategoryID      *int64 `json:"category_id" validate:"omitempty,gt=0"`
	PublicationYear *int   `json:"publication_year" validate:"omitempty,min=0,max=9999"`
	TotalCopies     int    `json:"total_copies" validate:"min=0"`
	AvailableCopies *int   `json:"available_copies" validate:"omitempty,min=0"`
}

// UpdateBookRequest edits catalog details. A change of TotalCopies shifts availability by the same amount.
type UpdateBookRequest struct {
	Title           string `json:"title" validate:"required,max=255"`
	Author          string `json:"author" validate:"required,max=255"`
	CategoryID      *int64 `json:"category_id" validate:"omitempty,gt=0"`
	PublicationYear *int   `json:"publication_year" validate:"omitempty,min=0,max=9999"`
	TotalCopies     int    `json:"total_copies" validate:"min=0"`
}
