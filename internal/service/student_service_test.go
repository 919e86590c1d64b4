package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/library-api/internal/models"
	appErrors "github.com/noah-isme/library-api/pkg/errors"
)

func TestRegisterStudent(t *testing.T) {
	store := newMemStore()
	svc := NewStudentService(memStudents{store}, nil, 3, nil, nil)
	ctx := context.Background()
	req := models.CreateStudentRequest{Code: " S1 ", Surname: "Lima", GivenName: "Ana", Email: "ana@school.test"}

	student, err := svc.Register(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "S1", student.Code)
	assert.True(t, student.Active)

	_, err = svc.Register(ctx, req)
	assert.True(t, errors.Is(err, appErrors.ErrDuplicateKey))

	req.Code, req.Email = "S2", "not-an-email"
	_, err = svc.Register(ctx, req)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestDeactivateGuardsOpenLoans(t *testing.T) {
	store := newMemStore()
	store.addBook("978-1", "Dune", 1)
	store.addStudent("S1", "Ana", "Lima", true)
	ledger := newLedger(t, store, 3)
	students := NewStudentService(memStudents{store}, nil, 3, nil, nil)
	ctx := context.Background()

	loan, err := ledger.OpenLoan(ctx, models.OpenLoanRequest{ISBN: "978-1", StudentCode: "S1"})
	require.NoError(t, err)

	_, err = students.Deactivate(ctx, "S1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrHasOpenLoans))

	_, err = ledger.ReturnLoan(ctx, loan.ID, models.ReturnLoanRequest{})
	require.NoError(t, err)

	student, err := students.Deactivate(ctx, "S1")
	require.NoError(t, err)
	assert.False(t, student.Active)
}

func TestUpdateWithActiveFalseUsesGuard(t *testing.T) {
	store := newMemStore()
	store.addBook("978-1", "Dune", 1)
	store.addStudent("S1", "Ana", "Lima", true)
	ledger := newLedger(t, store, 3)
	students := NewStudentService(memStudents{store}, nil, 3, nil, nil)
	ctx := context.Background()

	_, err := ledger.OpenLoan(ctx, models.OpenLoanRequest{ISBN: "978-1", StudentCode: "S1"})
	require.NoError(t, err)

	inactive := false
	_, err = students.Update(ctx, "S1", models.UpdateStudentRequest{Surname: "Lima", GivenName: "Ana", Email: "ana@school.test", Active: &inactive})
	assert.True(t, errors.Is(err, appErrors.ErrHasOpenLoans))

	updated, err := students.Update(ctx, "S1", models.UpdateStudentRequest{Surname: "Lima Souza", GivenName: "Ana", Email: "ana@school.test"})
	require.NoError(t, err)
	assert.Equal(t, "Lima Souza", updated.Surname)
	assert.True(t, updated.Active)
}

func TestEligibility(t *testing.T) {
	store := newMemStore()
	store.addBook("978-1", "Dune", 5)
	store.addStudent("S1", "Ana", "Lima", true)
	ledger := newLedger(t, store, 1)
	students := NewStudentService(memStudents{store}, nil, 1, nil, nil)
	ctx := context.Background()

	before, err := students.Eligibility(ctx, "S1")
	require.NoError(t, err)
	assert.True(t, before.Eligible)

	_, err = ledger.OpenLoan(ctx, models.OpenLoanRequest{ISBN: "978-1", StudentCode: "S1"})
	require.NoError(t, err)

	after, err := students.Eligibility(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, models.Eligibility{StudentCode: "S1", Active: true, OpenLoans: 1, MaxLoans: 1, Eligible: false}, *after)

	_, err = students.Eligibility(ctx, "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestDeleteStudentWithHistory(t *testing.T) {
	store := newMemStore()
	store.addBook("978-1", "Dune", 1)
	store.addStudent("S1", "Ana", "Lima", true)
	store.addStudent("S2", "Bo", "Reyes", true)
	ledger := newLedger(t, store, 3)
	students := NewStudentService(memStudents{store}, nil, 3, nil, nil)
	ctx := context.Background()

	loan, err := ledger.OpenLoan(ctx, models.OpenLoanRequest{ISBN: "978-1", StudentCode: "S1"})
	require.NoError(t, err)
	_, err = ledger.ReturnLoan(ctx, loan.ID, models.ReturnLoanRequest{})
	require.NoError(t, err)

	err = students.Delete(ctx, "S1")
	assert.True(t, errors.Is(err, appErrors.ErrHasDependents))

	require.NoError(t, students.Delete(ctx, "S2"))
	_, err = students.Get(ctx, "S2")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
