package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/library-api/internal/dto"
	"github.com/noah-isme/library-api/internal/lending"
	"github.com/noah-isme/library-api/internal/models"
	"github.com/noah-isme/library-api/internal/repository"
	appErrors "github.com/noah-isme/library-api/pkg/errors"
)

type lendingStore interface {
	WithinTx(ctx context.Context, fn func(repository.LendingTx) error) error
}

type ledgerRepository interface {
	List(ctx context.Context, filter models.TransactionFilter) ([]models.BookTransaction, int, error)
	FindByID(ctx context.Context, id string) (*models.BookTransaction, error)
	ListOverdue(ctx context.Context, now time.Time) ([]models.BookTransaction, error)
	MarkOverdue(ctx context.Context, now time.Time) ([]string, error)
	Totals(ctx context.Context, now time.Time) (*repository.LedgerTotals, error)
}

// LendingConfig carries circulation policy.
type LendingConfig struct {
	FinePerDay      decimal.Decimal
	SummaryCacheTTL time.Duration
}

// LendingService runs issue, return and the overdue sweep, and answers ledger queries.
type LendingService struct {
	store     lendingStore
	ledger    ledgerRepository
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       LendingConfig
	now       func() time.Time
}

// NewLendingService constructs a LendingService. cache and metrics may be nil.
func NewLendingService(store lendingStore, ledger ledgerRepository, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg LendingConfig) *LendingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FinePerDay.IsNegative() || cfg.FinePerDay.IsZero() {
		cfg.FinePerDay = lending.DefaultFinePerDay
	}
	return &LendingService{
		store:     store,
		ledger:    ledger,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Issue lends one copy of bookID to the requested student in a single database transaction.
func (s *LendingService) Issue(ctx context.Context, bookID string, req dto.IssueBookRequest, actor string) (*dto.IssueResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid issue payload")
	}
	if !lending.ValidLoanDuration(req.LoanDays) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "loanDays must be one of 3, 7, 14, 21 or 30")
	}

	now := s.now()
	var result dto.IssueResult
	err := s.store.WithinTx(ctx, func(tx repository.LendingTx) error {
		book, err := tx.LockBook(ctx, bookID)
		if err != nil {
			return notFoundOr(err, "book not found", "failed to load book")
		}
		student, err := tx.LockStudent(ctx, req.StudentID)
		if err != nil {
			return notFoundOr(err, "student not found", "failed to load student")
		}
		if !lending.CanBorrow(student.Status) {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "student is not active")
		}

		warnings, err := lending.ApplyIssue(book, student)
		if err != nil {
			return appErrors.Clone(appErrors.ErrNoCopiesAvailable, "no copies of this book are available")
		}

		loan := &models.BookTransaction{
			BookID:      book.ID,
			StudentID:   student.ID,
			StudentName: student.Name,
			BookTitle:   book.Title,
			BookAuthor:  book.Author,
			IssueDate:   now,
			DueDate:     lending.DueDate(now, req.LoanDays),
			Status:      models.TransactionIssued,
			Fine:        decimal.Zero,
			Remarks:     req.Remarks,
			IssuedBy:    actor,
		}
		if err := tx.CreateTransaction(ctx, loan); err != nil {
			return internalError(err, "failed to record transaction")
		}
		book.UpdatedBy = &actor
		if err := tx.UpdateBookCounters(ctx, book); err != nil {
			return internalError(err, "failed to update book")
		}
		student.UpdatedBy = &actor
		if err := tx.UpdateStudentCounters(ctx, student); err != nil {
			return internalError(err, "failed to update student")
		}

		result = dto.IssueResult{Transaction: *loan, Book: *book, Student: *student}
		for _, w := range warnings {
			result.Warnings = append(result.Warnings, string(w))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, cacheKeyLendingAll)
	s.metrics.RecordIssue(len(result.Warnings) > 0)
	s.logger.Info("book issued",
		zap.String("transaction_id", result.Transaction.ID),
		zap.String("book_id", bookID),
		zap.String("student_id", req.StudentID),
		zap.Time("due_date", result.Transaction.DueDate),
		zap.Strings("warnings", result.Warnings),
		zap.String("actor", actor),
	)
	return &result, nil
}

// Return closes an issued or overdue loan. The student is always resolved by
// the loan's student_id; a missing student aborts the whole return.
func (s *LendingService) Return(ctx context.Context, transactionID string, req dto.ReturnBookRequest, actor string) (*dto.ReturnResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid return payload")
	}
	if req.Fine != nil && !lending.ValidFine(*req.Fine) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "fine must be between 0 and 9999999999.99 with at most 2 decimal places")
	}

	now := s.now()
	var result dto.ReturnResult
	err := s.store.WithinTx(ctx, func(tx repository.LendingTx) error {
		loan, err := tx.LockTransaction(ctx, transactionID)
		if err != nil {
			return notFoundOr(err, "transaction not found", "failed to load transaction")
		}
		if !lending.CanReturn(loan.Status) {
			return appErrors.Clone(appErrors.ErrLoanClosed, "transaction has already been closed")
		}
		book, err := tx.LockBook(ctx, loan.BookID)
		if err != nil {
			return notFoundOr(err, "book not found", "failed to load book")
		}
		student, err := tx.LockStudent(ctx, loan.StudentID)
		if err != nil {
			return notFoundOr(err, "student not found", "failed to load student")
		}

		computed := lending.Fine(loan.DueDate, now, s.cfg.FinePerDay)
		fine := computed
		if req.Fine != nil {
			fine = *req.Fine
		}
		lending.ApplyReturn(book, student, fine)

		loan.Status = models.TransactionReturned
		loan.ReturnDate = &now
		loan.Fine = fine
		loan.FineReason = req.FineReason
		if req.Remarks != nil {
			loan.Remarks = req.Remarks
		}
		loan.ReturnedBy = &actor
		if err := tx.CloseTransaction(ctx, loan); err != nil {
			return internalError(err, "failed to close transaction")
		}
		book.UpdatedBy = &actor
		if err := tx.UpdateBookCounters(ctx, book); err != nil {
			return internalError(err, "failed to update book")
		}
		student.UpdatedBy = &actor
		if err := tx.UpdateStudentCounters(ctx, student); err != nil {
			return internalError(err, "failed to update student")
		}

		result = dto.ReturnResult{
			Transaction:    *loan,
			Book:           *book,
			Student:        *student,
			DaysLate:       lending.DaysLate(loan.DueDate, now),
			ComputedFine:   computed,
			FineOverridden: req.Fine != nil,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, cacheKeyLendingAll)
	s.metrics.RecordReturn(result.Transaction.Fine)
	s.logger.Info("book returned",
		zap.String("transaction_id", transactionID),
		zap.Int("days_late", result.DaysLate),
		zap.String("fine", result.Transaction.Fine.String()),
		zap.Bool("fine_overridden", result.FineOverridden),
		zap.String("actor", actor),
	)
	return &result, nil
}

// QuoteFine returns the fine a return would compute right now. Closed loans report the stored fine.
func (s *LendingService) QuoteFine(ctx context.Context, transactionID string) (*dto.FineQuote, error) {
	loan, err := s.ledger.FindByID(ctx, transactionID)
	if err != nil {
		return nil, notFoundOr(err, "transaction not found", "failed to load transaction")
	}
	now := s.now()
	quote := &dto.FineQuote{
		TransactionID: loan.ID,
		DueDate:       loan.DueDate,
		AsOf:          now,
		FinePerDay:    s.cfg.FinePerDay,
	}
	if !lending.CanReturn(loan.Status) {
		quote.Closed = true
		quote.SuggestedFine = loan.Fine
		if loan.ReturnDate != nil {
			quote.AsOf = *loan.ReturnDate
			quote.DaysLate = lending.DaysLate(loan.DueDate, *loan.ReturnDate)
		}
		return quote, nil
	}
	quote.DaysLate = lending.DaysLate(loan.DueDate, now)
	quote.SuggestedFine = lending.Fine(loan.DueDate, now, s.cfg.FinePerDay)
	return quote, nil
}

// List returns a page of the ledger. It never changes loan status.
func (s *LendingService) List(ctx context.Context, filter models.TransactionFilter) ([]models.BookTransaction, *models.Pagination, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown transaction status")
	}
	txs, total, err := s.ledger.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list transactions")
	}
	return txs, paginationFor(filter.Page, filter.PageSize, total), nil
}

func (s *LendingService) Get(ctx context.Context, id string) (*models.BookTransaction, error) {
	loan, err := s.ledger.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "transaction not found", "failed to load transaction")
	}
	return loan, nil
}

// Overdue lists open loans past due with the fine they have accrued so far.
func (s *LendingService) Overdue(ctx context.Context) ([]dto.OverdueItem, error) {
	now := s.now()
	txs, err := s.ledger.ListOverdue(ctx, now)
	if err != nil {
		return nil, internalError(err, "failed to list overdue transactions")
	}
	items := make([]dto.OverdueItem, 0, len(txs))
	for _, tx := range txs {
		items = append(items, dto.OverdueItem{
			BookTransaction: tx,
			DaysOverdue:     lending.DaysLate(tx.DueDate, now),
			AccruedFine:     lending.Fine(tx.DueDate, now, s.cfg.FinePerDay),
		})
	}
	return items, nil
}

// Summary aggregates the ledger, serving from cache when available.
func (s *LendingService) Summary(ctx context.Context) (*models.LendingSummary, bool, error) {
	var cached models.LendingSummary
	if s.cache.Get(ctx, cacheKeySummary, &cached) {
		return &cached, true, nil
	}

	now := s.now()
	totals, err := s.ledger.Totals(ctx, now)
	if err != nil {
		return nil, false, internalError(err, "failed to summarise ledger")
	}
	summary := &models.LendingSummary{
		ByStatus:      totals.ByStatus,
		OpenLoans:     totals.ByStatus[models.TransactionIssued] + totals.ByStatus[models.TransactionOverdue],
		OverdueLoans:  totals.ByStatus[models.TransactionOverdue],
		FinesAssessed: totals.FinesAssessed,
		AccruingFines: s.cfg.FinePerDay.Mul(decimal.NewFromInt(int64(totals.LateDays))),
		GeneratedAt:   now,
	}
	s.cache.Set(ctx, cacheKeySummary, summary, s.cfg.SummaryCacheTTL)
	return summary, false, nil
}

// SweepOverdue flips every issued loan past due to overdue in one statement.
func (s *LendingService) SweepOverdue(ctx context.Context) (*dto.SweepResult, error) {
	start := time.Now()
	now := s.now()
	ids, err := s.ledger.MarkOverdue(ctx, now)
	if err != nil {
		return nil, internalError(err, "failed to mark overdue transactions")
	}
	if ids == nil {
		ids = []string{}
	}
	s.metrics.RecordSweep(len(ids), time.Since(start))
	if len(ids) > 0 {
		s.cache.Invalidate(ctx, cacheKeyLendingAll)
	}
	s.logger.Info("overdue sweep finished", zap.Int("marked", len(ids)), zap.Time("as_of", now))
	return &dto.SweepResult{Marked: len(ids), TransactionIDs: ids, RanAt: now}, nil
}

func notFoundOr(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return internalError(err, internal)
}

func internalError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func paginationFor(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
