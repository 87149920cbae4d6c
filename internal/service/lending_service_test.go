package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/library-api/internal/dto"
	"github.com/noah-isme/library-api/internal/models"
	"github.com/noah-isme/library-api/internal/repository"
	appErrors "github.com/noah-isme/library-api/pkg/errors"
)

// memLibrary is an in-memory database where WithinTx commits only on success.
type memLibrary struct {
	books    map[string]models.Book
	students map[string]models.Student
	loans    map[string]models.BookTransaction
	seq      int
	failOn   string
	commits  int
}

func newMemLibrary() *memLibrary {
	return &memLibrary{books: map[string]models.Book{}, students: map[string]models.Student{}, loans: map[string]models.BookTransaction{}}
}

func (m *memLibrary) WithinTx(ctx context.Context, fn func(repository.LendingTx) error) error {
	work := &memTx{lib: m, books: map[string]models.Book{}, students: map[string]models.Student{}, loans: map[string]models.BookTransaction{}}
	for k, v := range m.books {
		work.books[k] = v
	}
	for k, v := range m.students {
		work.students[k] = v
	}
	for k, v := range m.loans {
		work.loans[k] = v
	}
	if err := fn(work); err != nil {
		return err
	}
	m.books, m.students, m.loans = work.books, work.students, work.loans
	m.commits++
	return nil
}

type memTx struct {
	lib      *memLibrary
	books    map[string]models.Book
	students map[string]models.Student
	loans    map[string]models.BookTransaction
}

func (t *memTx) fail(op string) error {
	if t.lib.failOn == op {
		return errors.New(op + " failed")
	}
	return nil
}

func (t *memTx) LockBook(_ context.Context, id string) (*models.Book, error) {
	b, ok := t.books[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &b, nil
}

func (t *memTx) LockStudent(_ context.Context, id string) (*models.Student, error) {
	s, ok := t.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (t *memTx) LockTransaction(_ context.Context, id string) (*models.BookTransaction, error) {
	l, ok := t.loans[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &l, nil
}

func (t *memTx) CreateTransaction(_ context.Context, tx *models.BookTransaction) error {
	if err := t.fail("create"); err != nil {
		return err
	}
	t.lib.seq++
	tx.ID = fmt.Sprintf("tx-%02d", t.lib.seq)
	t.loans[tx.ID] = *tx
	return nil
}

func (t *memTx) UpdateBookCounters(_ context.Context, b *models.Book) error {
	if err := t.fail("book"); err != nil {
		return err
	}
	t.books[b.ID] = *b
	return nil
}

func (t *memTx) UpdateStudentCounters(_ context.Context, s *models.Student) error {
	if err := t.fail("student"); err != nil {
		return err
	}
	t.students[s.ID] = *s
	return nil
}

func (t *memTx) CloseTransaction(_ context.Context, tx *models.BookTransaction) error {
	t.loans[tx.ID] = *tx
	return nil
}

func (m *memLibrary) List(_ context.Context, filter models.TransactionFilter) ([]models.BookTransaction, int, error) {
	var out []models.BookTransaction
	for _, l := range m.loans {
		if filter.Status != nil && l.Status != *filter.Status {
			continue
		}
		if filter.StudentID != "" && l.StudentID != filter.StudentID {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *memLibrary) FindByID(_ context.Context, id string) (*models.BookTransaction, error) {
	l, ok := m.loans[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &l, nil
}

func (m *memLibrary) ListOverdue(_ context.Context, now time.Time) ([]models.BookTransaction, error) {
	var out []models.BookTransaction
	for _, l := range m.loans {
		if l.Status == models.TransactionOverdue || (l.Status == models.TransactionIssued && l.DueDate.Before(now)) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memLibrary) MarkOverdue(_ context.Context, now time.Time) ([]string, error) {
	var ids []string
	for id, l := range m.loans {
		if l.Status == models.TransactionIssued && l.DueDate.Before(now) {
			l.Status = models.TransactionOverdue
			m.loans[id] = l
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memLibrary) Totals(_ context.Context, now time.Time) (*repository.LedgerTotals, error) {
	totals := &repository.LedgerTotals{ByStatus: map[models.TransactionStatus]int{}, FinesAssessed: decimal.Zero}
	for _, l := range m.loans {
		totals.ByStatus[l.Status]++
		if l.Status == models.TransactionReturned {
			totals.FinesAssessed = totals.FinesAssessed.Add(l.Fine)
		}
		if (l.Status == models.TransactionIssued || l.Status == models.TransactionOverdue) && l.DueDate.Before(now) {
			late := now.Sub(l.DueDate)
			days := int(late / (24 * time.Hour))
			if late%(24*time.Hour) != 0 {
				days++
			}
			totals.LateDays += days
		}
	}
	return totals, nil
}

const operator = "desk@library.test"

func day(d int) time.Time {
	return time.Date(2024, 1, d, 9, 0, 0, 0, time.UTC)
}

func newLendingFixture(t *testing.T) (*LendingService, *memLibrary, *time.Time) {
	t.Helper()
	lib := newMemLibrary()
	lib.books["b1"] = models.Book{ID: "b1", Title: "Dune", Author: "Herbert", TotalCopies: 3, AvailableCopies: 3}
	lib.students["s1"] = models.Student{ID: "s1", Name: "Asha", RollNumber: "R-01", Status: models.StudentActive, MaxBooksAllowed: 2, FineAmount: decimal.Zero}
	svc := NewLendingService(lib, lib, nil, NewMetricsService(), nil, nil, LendingConfig{FinePerDay: decimal.NewFromInt(2)})
	clock := day(1)
	svc.now = func() time.Time { return clock }
	return svc, lib, &clock
}

func TestLendingServiceIssueThenLateReturn(t *testing.T) {
	svc, lib, clock := newLendingFixture(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, "b1", dto.IssueBookRequest{StudentID: "s1", LoanDays: 7}, operator)
	require.NoError(t, err)
	assert.Empty(t, issued.Warnings)
	assert.Equal(t, day(8), issued.Transaction.DueDate)
	assert.Equal(t, models.TransactionIssued, issued.Transaction.Status)
	assert.Equal(t, "Asha", issued.Transaction.StudentName)
	assert.Equal(t, operator, issued.Transaction.IssuedBy)

	book := lib.books["b1"]
	assert.Equal(t, []int{2, 1, 3}, []int{book.AvailableCopies, book.IssuedCopies, book.TotalCopies})
	assert.Equal(t, 1, lib.students["s1"].BooksIssued)

	*clock = day(10)
	quote, err := svc.QuoteFine(ctx, issued.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, quote.DaysLate)
	assert.Equal(t, "4", quote.SuggestedFine.String())

	returned, err := svc.Return(ctx, issued.Transaction.ID, dto.ReturnBookRequest{}, operator)
	require.NoError(t, err)
	assert.Equal(t, 2, returned.DaysLate)
	assert.Equal(t, "4", returned.Transaction.Fine.String())
	assert.False(t, returned.FineOverridden)
	assert.Equal(t, models.TransactionReturned, returned.Transaction.Status)
	require.NotNil(t, returned.Transaction.ReturnDate)
	assert.Equal(t, day(10), *returned.Transaction.ReturnDate)

	book = lib.books["b1"]
	assert.Equal(t, []int{3, 0, 3}, []int{book.AvailableCopies, book.IssuedCopies, book.TotalCopies})
	student := lib.students["s1"]
	assert.Equal(t, 0, student.BooksIssued)
	assert.Equal(t, 1, student.TotalBooksRead)
	assert.Equal(t, "4", student.FineAmount.String())

	snap := svc.metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.BooksIssued)
	assert.Equal(t, uint64(1), snap.BooksReturned)
}

func TestLendingServiceReturnWithOverrideFine(t *testing.T) {
	svc, lib, clock := newLendingFixture(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, "b1", dto.IssueBookRequest{StudentID: "s1", LoanDays: 3}, operator)
	require.NoError(t, err)

	*clock = day(20)
	waived := decimal.Zero
	reason := "waived by head librarian"
	returned, err := svc.Return(ctx, issued.Transaction.ID, dto.ReturnBookRequest{Fine: &waived, FineReason: &reason}, operator)
	require.NoError(t, err)
	assert.True(t, returned.FineOverridden)
	assert.True(t, returned.Transaction.Fine.IsZero())
	assert.Equal(t, "32", returned.ComputedFine.String())
	assert.Equal(t, reason, *returned.Transaction.FineReason)
	assert.True(t, lib.students["s1"].FineAmount.IsZero())

	negative := decimal.NewFromInt(-1)
	_, err = svc.Return(ctx, issued.Transaction.ID, dto.ReturnBookRequest{Fine: &negative}, operator)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestLendingServiceReturnRejectsFineTheLedgerCannotStore(t *testing.T) {
	svc, lib, clock := newLendingFixture(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, "b1", dto.IssueBookRequest{StudentID: "s1", LoanDays: 7}, operator)
	require.NoError(t, err)
	*clock = day(10)

	for _, raw := range []string{"1.005", "100000000000", "10000000000"} {
		fine := decimal.RequireFromString(raw)
		_, err := svc.Return(ctx, issued.Transaction.ID, dto.ReturnBookRequest{Fine: &fine}, operator)
		assert.ErrorIs(t, err, appErrors.ErrValidation, raw)
	}
	assert.Equal(t, models.TransactionIssued, lib.loans[issued.Transaction.ID].Status)
	assert.Equal(t, 2, lib.books["b1"].AvailableCopies)
	assert.True(t, lib.students["s1"].FineAmount.IsZero())

	exact := decimal.RequireFromString("1.50")
	returned, err := svc.Return(ctx, issued.Transaction.ID, dto.ReturnBookRequest{Fine: &exact}, operator)
	require.NoError(t, err)
	assert.True(t, returned.Transaction.Fine.Equal(exact))
	assert.True(t, lib.students["s1"].FineAmount.Equal(exact))
}

func TestLendingServiceReturnRejectsClosedLoan(t *testing.T) {
	svc, lib, _ := newLendingFixture(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, "b1", dto.IssueBookRequest{StudentID: "s1", LoanDays: 7}, operator)
	require.NoError(t, err)
	_, err = svc.Return(ctx, issued.Transaction.ID, dto.ReturnBookRequest{}, operator)
	require.NoError(t, err)

	_, err = svc.Return(ctx, issued.Transaction.ID, dto.ReturnBookRequest{}, operator)
	assert.ErrorIs(t, err, appErrors.ErrLoanClosed)
	assert.Equal(t, 3, lib.books["b1"].AvailableCopies)

	_, err = svc.Return(ctx, "missing", dto.ReturnBookRequest{}, operator)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestLendingServiceReturnMissingStudentRollsBack(t *testing.T) {
	svc, lib, _ := newLendingFixture(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, "b1", dto.IssueBookRequest{StudentID: "s1", LoanDays: 7}, operator)
	require.NoError(t, err)
	delete(lib.students, "s1")

	_, err = svc.Return(ctx, issued.Transaction.ID, dto.ReturnBookRequest{}, operator)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Equal(t, models.TransactionIssued, lib.loans[issued.Transaction.ID].Status)
	assert.Equal(t, 2, lib.books["b1"].AvailableCopies)
}

func TestLendingServiceIssueRejections(t *testing.T) {
	svc, lib, _ := newLendingFixture(t)
	ctx := context.Background()

	_, err := svc.Issue(ctx, "b1", dto.IssueBookRequest{StudentID: "s1", LoanDays: 5}, operator)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Issue(ctx, "nope", dto.IssueBookRequest{StudentID: "s1", LoanDays: 7}, operator)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.Issue(ctx, "b1", dto.IssueBookRequest{StudentID: "ghost", LoanDays: 7}, operator)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	banned := lib.students["s1"]
	banned.Status = models.StudentBanned
	lib.students["s1"] = banned
	_, err = svc.Issue(ctx, "b1", dto.IssueBookRequest{StudentID: "s1", LoanDays: 7}, operator)
	assert.ErrorIs(t, err, appErrors.ErrPreconditionFailed)

	lib.students["s2"] = models.Student{ID: "s2", Name: "Ben", Status: models.StudentActive, MaxBooksAllowed: 5}
	lib.books["b2"] = models.Book{ID: "b2", Title: "Emma", TotalCopies: 1, AvailableCopies: 0, IssuedCopies: 1}
	_, err = svc.Issue(ctx, "b2", dto.IssueBookRequest{StudentID: "s2", LoanDays: 7}, operator)
	assert.ErrorIs(t, err, appErrors.ErrNoCopiesAvailable)
	assert.Empty(t, lib.loans)
	assert.Zero(t, lib.commits)
}

func TestLendingServiceIssueWarnsAtBorrowCap(t *testing.T) {
	svc, lib, _ := newLendingFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := svc.Issue(ctx, "b1", dto.IssueBookRequest{StudentID: "s1", LoanDays: 7}, operator)
		require.NoError(t, err)
		assert.Empty(t, res.Warnings)
	}
	res, err := svc.Issue(ctx, "b1", dto.IssueBookRequest{StudentID: "s1", LoanDays: 7}, operator)
	require.NoError(t, err)
	assert.Equal(t, []string{"BORROW_LIMIT_REACHED"}, res.Warnings)
	assert.Equal(t, 3, lib.students["s1"].BooksIssued)
	assert.Equal(t, 0, lib.books["b1"].AvailableCopies)
}

func TestLendingServiceDoubleIssueCreatesTwoLoans(t *testing.T) {
	svc, lib, _ := newLendingFixture(t)
	ctx := context.Background()
	req := dto.IssueBookRequest{StudentID: "s1", LoanDays: 7}

	first, err := svc.Issue(ctx, "b1", req, operator)
	require.NoError(t, err)
	second, err := svc.Issue(ctx, "b1", req, operator)
	require.NoError(t, err)

	assert.NotEqual(t, first.Transaction.ID, second.Transaction.ID)
	assert.Len(t, lib.loans, 2)
	assert.Equal(t, 1, lib.books["b1"].AvailableCopies)
	assert.Equal(t, 2, lib.books["b1"].IssuedCopies)
}

func TestLendingServiceIssueRollsBackOnWriteFailure(t *testing.T) {
	svc, lib, _ := newLendingFixture(t)
	lib.failOn = "student"

	_, err := svc.Issue(context.Background(), "b1", dto.IssueBookRequest{StudentID: "s1", LoanDays: 7}, operator)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	assert.Empty(t, lib.loans)
	assert.Equal(t, 3, lib.books["b1"].AvailableCopies)
}

func TestLendingServiceSweepAndOverdue(t *testing.T) {
	svc, lib, clock := newLendingFixture(t)
	ctx := context.Background()

	short, err := svc.Issue(ctx, "b1", dto.IssueBookRequest{StudentID: "s1", LoanDays: 3}, operator)
	require.NoError(t, err)
	long, err := svc.Issue(ctx, "b1", dto.IssueBookRequest{StudentID: "s1", LoanDays: 30}, operator)
	require.NoError(t, err)

	*clock = day(7)
	listed, _, err := svc.List(ctx, models.TransactionFilter{})
	require.NoError(t, err)
	for _, l := range listed {
		assert.Equal(t, models.TransactionIssued, l.Status)
	}

	overdue, err := svc.Overdue(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, 3, overdue[0].DaysOverdue)
	assert.Equal(t, "6", overdue[0].AccruedFine.String())

	res, err := svc.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Marked)
	assert.Equal(t, []string{short.Transaction.ID}, res.TransactionIDs)
	assert.Equal(t, models.TransactionOverdue, lib.loans[short.Transaction.ID].Status)
	assert.Equal(t, models.TransactionIssued, lib.loans[long.Transaction.ID].Status)

	again, err := svc.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Marked)

	returned, err := svc.Return(ctx, short.Transaction.ID, dto.ReturnBookRequest{}, operator)
	require.NoError(t, err)
	assert.Equal(t, "6", returned.Transaction.Fine.String())
}

func TestLendingServiceSummaryUsesCache(t *testing.T) {
	svc, _, clock := newLendingFixture(t)
	cache := newMemoryCache()
	svc.cache = NewCacheService(cache, svc.metrics, time.Minute, nil, true)
	ctx := context.Background()

	_, err := svc.Issue(ctx, "b1", dto.IssueBookRequest{StudentID: "s1", LoanDays: 3}, operator)
	require.NoError(t, err)
	*clock = day(6)

	summary, cached, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 1, summary.OpenLoans)
	assert.Equal(t, "4", summary.AccruingFines.String())

	_, cached, err = svc.Summary(ctx)
	require.NoError(t, err)
	assert.True(t, cached)

	_, err = svc.SweepOverdue(ctx)
	require.NoError(t, err)
	summary, cached, err = svc.Summary(ctx)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 1, summary.OverdueLoans)
}

func TestLendingServiceListRejectsUnknownStatus(t *testing.T) {
	svc, _, _ := newLendingFixture(t)
	bogus := models.TransactionStatus("borrowed")
	_, _, err := svc.List(context.Background(), models.TransactionFilter{Status: &bogus})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
