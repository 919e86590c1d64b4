package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/library-api/internal/models"
	"github.com/noah-isme/library-api/internal/repository"
)

// memStore is an in-memory transactional store. A transaction holds the store
// lock for its whole duration, which serializes ledger writes like row locks do.
type memStore struct {
	mu       sync.Mutex
	books    map[string]models.Book
	students map[string]models.Student
	loans    map[int64]models.Loan
	nextID   int64

	failAdjust error
}

func newMemStore() *memStore {
	return &memStore{
		books:    make(map[string]models.Book),
		students: make(map[string]models.Student),
		loans:    make(map[int64]models.Loan),
	}
}

func (m *memStore) addBook(isbn, title string, copies int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[isbn] = models.Book{ISBN: isbn, Title: title, Author: "Author", TotalCopies: copies, AvailableCopies: copies}
}

func (m *memStore) addStudent(code, given, surname string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[code] = models.Student{Code: code, GivenName: given, Surname: surname, Email: code + "@school.test", Active: active}
}

func (m *memStore) book(isbn string) models.Book {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.books[isbn]
}

func (m *memStore) loanCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.loans)
}

type memSnapshot struct {
	books    map[string]models.Book
	students map[string]models.Student
	loans    map[int64]models.Loan
	nextID   int64
}

func (m *memStore) snapshot() memSnapshot {
	s := memSnapshot{
		books:    make(map[string]models.Book, len(m.books)),
		students: make(map[string]models.Student, len(m.students)),
		loans:    make(map[int64]models.Loan, len(m.loans)),
		nextID:   m.nextID,
	}
	for k, v := range m.books {
		s.books[k] = v
	}
	for k, v := range m.students {
		s.students[k] = v
	}
	for k, v := range m.loans {
		s.loans[k] = v
	}
	return s
}

func (m *memStore) restore(s memSnapshot) {
	m.books, m.students, m.loans, m.nextID = s.books, s.students, s.loans, s.nextID
}

func (m *memStore) openLoans(code string) int {
	count := 0
	for _, l := range m.loans {
		if l.StudentCode == code && l.Status != models.LoanStatusReturned {
			count++
		}
	}
	return count
}

func (m *memStore) detail(l models.Loan) models.LoanDetail {
	return models.LoanDetail{Loan: l, BookTitle: m.books[l.ISBN].Title, StudentName: m.students[l.StudentCode].FullName()}
}

func (m *memStore) adjust(isbn string, delta int) error {
	if m.failAdjust != nil {
		return m.failAdjust
	}
	b, ok := m.books[isbn]
	if !ok {
		return sql.ErrNoRows
	}
	next := b.AvailableCopies + delta
	if next < 0 || next > b.TotalCopies {
		return repository.ErrAvailabilityBounds
	}
	b.AvailableCopies = next
	m.books[isbn] = b
	return nil
}

// memLoans is the loanRepository view.
type memLoans struct{ *memStore }

func (m memLoans) RunInTx(ctx context.Context, fn func(context.Context, repository.LedgerTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshot()
	if err := fn(ctx, memTx{m.memStore}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m memLoans) FindByID(ctx context.Context, id int64) (*models.LoanDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loans[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	d := m.detail(l)
	return &d, nil
}

func (m memLoans) List(ctx context.Context, filter models.LoanFilter) ([]models.LoanDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.LoanDetail, 0)
	for _, l := range m.loans {
		if filter.ISBN != "" && l.ISBN != filter.ISBN {
			continue
		}
		if filter.StudentCode != "" && l.StudentCode != filter.StudentCode {
			continue
		}
		switch filter.Scope {
		case models.LoanScopeOpen:
			if l.IsReturned() {
				continue
			}
		case models.LoanScopeOverdue:
			if l.IsReturned() || !l.DueAt.Before(filter.AsOf) {
				continue
			}
		}
		out = append(out, m.detail(l))
	}
	sort.Slice(out, func(i, j int) bool {
		if filter.Scope == models.LoanScopeAll {
			return out[i].OpenedAt.After(out[j].OpenedAt)
		}
		return out[i].DueAt.Before(out[j].DueAt)
	})
	return out, nil
}

func (m memLoans) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, l := range m.loans {
		if l.Status == models.LoanStatusOpen && l.DueAt.Before(asOf) {
			l.Status = models.LoanStatusOverdue
			m.loans[id] = l
			n++
		}
	}
	return n, nil
}

type memTx struct{ *memStore }

func (t memTx) LockStudent(ctx context.Context, code string) (*models.Student, error) {
	s, ok := t.students[code]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (t memTx) CountOpenLoans(ctx context.Context, code string) (int, error) {
	return t.openLoans(code), nil
}

func (t memTx) LockBook(ctx context.Context, isbn string) (*models.Book, error) {
	b, ok := t.books[isbn]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &b, nil
}

func (t memTx) InsertLoan(ctx context.Context, loan *models.Loan) error {
	t.nextID++
	loan.ID = t.nextID
	loan.CreatedAt = loan.OpenedAt
	t.loans[loan.ID] = *loan
	return nil
}

func (t memTx) LockLoan(ctx context.Context, id int64) (*models.Loan, error) {
	l, ok := t.loans[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &l, nil
}

func (t memTx) CloseLoan(ctx context.Context, loan *models.Loan) error {
	stored, ok := t.loans[loan.ID]
	if !ok || stored.IsReturned() {
		return sql.ErrNoRows
	}
	t.loans[loan.ID] = *loan
	return nil
}

func (t memTx) AdjustAvailability(ctx context.Context, isbn string, delta int) error {
	return t.adjust(isbn, delta)
}

// memStudents is the studentRepository view.
type memStudents struct{ *memStore }

func (m memStudents) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Student, 0)
	for _, s := range m.students {
		if filter.Active != nil && s.Active != *filter.Active {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(s.FullName()+" "+s.Code), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, len(out), nil
}

func (m memStudents) FindByCode(ctx context.Context, code string) (*models.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[code]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (m memStudents) Create(ctx context.Context, student *models.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[student.Code]; ok {
		return fmt.Errorf("create student: %w", repository.ErrDuplicate)
	}
	m.students[student.Code] = *student
	return nil
}

func (m memStudents) Update(ctx context.Context, student *models.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[student.Code]; !ok {
		return sql.ErrNoRows
	}
	m.students[student.Code] = *student
	return nil
}

func (m memStudents) CountOpenLoans(ctx context.Context, code string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openLoans(code), nil
}

func (m memStudents) Deactivate(ctx context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[code]
	if !ok || m.openLoans(code) > 0 {
		return false, nil
	}
	s.Active = false
	m.students[code] = s
	return true, nil
}

func (m memStudents) HasLoans(ctx context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.loans {
		if l.StudentCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (m memStudents) Delete(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[code]; !ok {
		return sql.ErrNoRows
	}
	delete(m.students, code)
	return nil
}

// memBooks is the bookRepository view.
type memBooks struct{ *memStore }

func (m memBooks) Create(ctx context.Context, book *models.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[book.ISBN]; ok {
		return fmt.Errorf("create book: %w", repository.ErrDuplicate)
	}
	m.books[book.ISBN] = *book
	return nil
}

func (m memBooks) FindByISBN(ctx context.Context, isbn string) (*models.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[isbn]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &b, nil
}

func (m memBooks) List(ctx context.Context, filter models.BookFilter) ([]models.Book, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Book, 0)
	for _, b := range m.books {
		if filter.AvailableOnly && !b.IsAvailable() {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, len(out), nil
}

func (m memBooks) Update(ctx context.Context, book *models.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.books[book.ISBN]
	if !ok {
		return sql.ErrNoRows
	}
	available := stored.AvailableCopies + (book.TotalCopies - stored.TotalCopies)
	if available < 0 {
		return repository.ErrAvailabilityBounds
	}
	book.AvailableCopies = available
	m.books[book.ISBN] = *book
	return nil
}

func (m memBooks) AdjustAvailability(ctx context.Context, isbn string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adjust(isbn, delta)
}

func (m memBooks) HasLoans(ctx context.Context, isbn string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.loans {
		if l.ISBN == isbn {
			return true, nil
		}
	}
	return false, nil
}

func (m memBooks) Delete(ctx context.Context, isbn string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[isbn]; !ok {
		return sql.ErrNoRows
	}
	delete(m.books, isbn)
	return nil
}

var testPenaltyRate = decimal.RequireFromString("2.00")
