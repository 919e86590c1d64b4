package models

import (
	"strings"
	"time"
)

// Student is a registered borrower identified by enrollment code.
type Student struct {
	Code         string    `db:"code" json:"code"`
	Surname      string    `db:"surname" json:"surname"`
	GivenName    string    `db:"given_name" json:"given_name"`
	Email        string    `db:"email" json:"email"`
	Phone        string    `db:"phone" json:"phone"`
	Track        string    `db:"track" json:"track"`
	RegisteredAt time.Time `db:"registered_at" json:"registered_at"`
	Active       bool      `db:"active" json:"active"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// FullName renders "Given Surname".
func (s Student) FullName() string {
	return strings.TrimSpace(s.GivenName + " " + s.Surname)
}

// CanBorrow holds when the student is active and below the concurrent loan limit.
func (s Student) CanBorrow(openLoans, maxConcurrent int) bool {
	return s.Active && openLoans < maxConcurrent
}

// StudentFilter narrows roster searches.
type StudentFilter struct {
	Search   string
	Active   *bool
	Track    string
	Page     int
	PageSize int
}

// CreateStudentRequest registers a borrower.
type CreateStudentRequest struct {
	Code      string `json:"code" validate:"required,max=32"`
	Surname   string `json:"surname" validate:"required,max=120"`
	GivenName string `json:"given_name" validate:"required,max=120"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"max=32"`
	Track     string `json:"track" validate:"max=64"`
}

// UpdateStudentRequest edits a borrower. Active=false goes through the deactivation guard.
type UpdateStudentRequest struct {
	Surname   string `json:"surname" validate:"required,max=120"`
	GivenName string `json:"given_name" validate:"required,max=120"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"max=32"`
	Track     string `json:"track" validate:"max=64"`
	Active    *bool  `json:"active"`
}

// Eligibility explains whether a student may open another loan.
type Eligibility struct {
	StudentCode string `json:"student_code"`
	Active      bool   `json:"active"`
	OpenLoans   int    `json:"open_loans"`
	MaxLoans    int    `json:"max_loans"`
	Eligible    bool   `json:"eligible"`
}
