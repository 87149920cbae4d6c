package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/library-api/internal/dto"
	"github.com/noah-isme/library-api/internal/models"
	"github.com/noah-isme/library-api/internal/repository"
	appErrors "github.com/noah-isme/library-api/pkg/errors"
)

type mockStudentRepo struct {
	students    map[string]models.Student
	deactivated []string
	lastFilter  models.StudentFilter
	err         error
	writeErr    error
}

func (m *mockStudentRepo) List(_ context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	m.lastFilter = filter
	if m.err != nil {
		return nil, 0, m.err
	}
	out := make([]models.Student, 0, len(m.students))
	for _, s := range m.students {
		out = append(out, s)
	}
	return out, len(out), nil
}

func (m *mockStudentRepo) FindByID(_ context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) ExistsByRollNumber(_ context.Context, roll, excludeID string) (bool, error) {
	for id, s := range m.students {
		if s.RollNumber == roll && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStudentRepo) Create(_ context.Context, student *models.Student) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	if m.students == nil {
		m.students = make(map[string]models.Student)
	}
	if student.ID == "" {
		student.ID = "generated"
	}
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) UpdateProfile(_ context.Context, student *models.Student) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) Deactivate(_ context.Context, id, _ string) error {
	m.deactivated = append(m.deactivated, id)
	s := m.students[id]
	s.Status = models.StudentInactive
	m.students[id] = s
	return nil
}

type stubLedger struct {
	filter models.TransactionFilter
	rows   []models.BookTransaction
}

func (l *stubLedger) List(_ context.Context, filter models.TransactionFilter) ([]models.BookTransaction, int, error) {
	l.filter = filter
	return l.rows, len(l.rows), nil
}

func TestStudentServiceCreateAppliesDefaults(t *testing.T) {
	repo := &mockStudentRepo{}
	svc := NewStudentService(repo, &stubLedger{}, nil, nil, 0)

	student, err := svc.Create(context.Background(), dto.StudentRequest{Name: "Asha", RollNumber: "R-01"}, operator)
	require.NoError(t, err)
	assert.Equal(t, models.StudentActive, student.Status)
	assert.Equal(t, 3, student.MaxBooksAllowed)
	assert.True(t, student.FineAmount.IsZero())
	assert.Equal(t, 0, student.BooksIssued)

	_, err = svc.Create(context.Background(), dto.StudentRequest{Name: "Other", RollNumber: "R-01"}, operator)
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	_, err = svc.Create(context.Background(), dto.StudentRequest{Name: "", RollNumber: "R-02"}, operator)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestStudentServiceUpdateKeepsCounters(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]models.Student{
		"s1": {ID: "s1", Name: "Asha", RollNumber: "R-01", Status: models.StudentActive, BooksIssued: 2, MaxBooksAllowed: 3, TotalBooksRead: 9},
		"s2": {ID: "s2", Name: "Ben", RollNumber: "R-02", Status: models.StudentActive},
	}}
	svc := NewStudentService(repo, &stubLedger{}, nil, nil, 3)
	limit := 5

	updated, err := svc.Update(context.Background(), "s1", dto.StudentRequest{Name: "Asha K", RollNumber: "R-01", Status: models.StudentGraduated, MaxBooksAllowed: &limit}, operator)
	require.NoError(t, err)
	assert.Equal(t, "Asha K", updated.Name)
	assert.Equal(t, models.StudentGraduated, updated.Status)
	assert.Equal(t, 5, updated.MaxBooksAllowed)
	assert.Equal(t, 2, updated.BooksIssued)
	assert.Equal(t, 9, updated.TotalBooksRead)

	_, err = svc.Update(context.Background(), "s1", dto.StudentRequest{Name: "Asha", RollNumber: "R-02"}, operator)
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	_, err = svc.Update(context.Background(), "missing", dto.StudentRequest{Name: "X", RollNumber: "R-9"}, operator)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestStudentServiceDeleteIsSoft(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]models.Student{"s1": {ID: "s1", Status: models.StudentActive}}}
	svc := NewStudentService(repo, &stubLedger{}, nil, nil, 3)

	require.NoError(t, svc.Delete(context.Background(), "s1", operator))
	assert.Equal(t, []string{"s1"}, repo.deactivated)
	assert.Equal(t, models.StudentInactive, repo.students["s1"].Status)

	assert.ErrorIs(t, svc.Delete(context.Background(), "nope", operator), appErrors.ErrNotFound)
}

func TestStudentServiceListAndHistory(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]models.Student{"s1": {ID: "s1"}}}
	ledger := &stubLedger{rows: []models.BookTransaction{{ID: "t1", StudentID: "s1"}}}
	svc := NewStudentService(repo, ledger, nil, nil, 3)

	status := models.StudentActive
	_, page, err := svc.List(context.Background(), models.StudentFilter{Status: &status, Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, &status, repo.lastFilter.Status)

	bogus := models.StudentStatus("expelled")
	_, _, err = svc.List(context.Background(), models.StudentFilter{Status: &bogus})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	txs, _, err := svc.Transactions(context.Background(), "s1", 1, 20)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
	assert.Equal(t, "s1", ledger.filter.StudentID)

	_, _, err = svc.Transactions(context.Background(), "ghost", 1, 20)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestStudentServiceRollNumberRaceIsConflict(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]models.Student{
		"s1": {ID: "s1", Name: "Asha", RollNumber: "R-01", Status: models.StudentActive, MaxBooksAllowed: 3},
	}}
	svc := NewStudentService(repo, &stubLedger{}, nil, nil, 3)

	repo.writeErr = fmt.Errorf("create student: %w", repository.ErrDuplicateKey)
	_, err := svc.Create(context.Background(), dto.StudentRequest{Name: "Ravi", RollNumber: "R-02"}, "desk@library.test")
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	repo.writeErr = fmt.Errorf("update student: %w", repository.ErrDuplicateKey)
	_, err = svc.Update(context.Background(), "s1", dto.StudentRequest{Name: "Asha", RollNumber: "R-03"}, "desk@library.test")
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	repo.writeErr = errors.New("connection reset")
	_, err = svc.Create(context.Background(), dto.StudentRequest{Name: "Ravi", RollNumber: "R-04"}, "desk@library.test")
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}
