package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/library-api/internal/models"
)

const transactionColumns = `id, book_id, student_id, student_name, book_title, book_author, issue_date, due_date, return_date, status, fine, fine_reason, remarks, issued_by, returned_by, created_at, updated_at`

// TransactionRepository reads the lending ledger and runs the overdue sweep.
// Issue and return writes go through LendingRepository.
type TransactionRepository struct {
	db *sqlx.DB
}

func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// List returns ledger rows newest first.
func (r *TransactionRepository) List(ctx context.Context, filter models.TransactionFilter) ([]models.BookTransaction, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.BookID != "" {
		conditions = append(conditions, fmt.Sprintf("book_id = $%d", len(args)+1))
		args = append(args, filter.BookID)
	}
	where := strings.Join(conditions, " AND ")
	_, size, offset := paginate(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s FROM book_transactions WHERE %s ORDER BY issue_date DESC LIMIT %d OFFSET %d", transactionColumns, where, size, offset)
	var txs []models.BookTransaction
	if err := r.db.SelectContext(ctx, &txs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM book_transactions WHERE "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}
	return txs, total, nil
}

// ListAll streams the full ledger for exports, optionally narrowed by status.
func (r *TransactionRepository) ListAll(ctx context.Context, status *models.TransactionStatus) ([]models.BookTransaction, error) {
	query := "SELECT " + transactionColumns + " FROM book_transactions"
	args := []interface{}{}
	if status != nil {
		query += " WHERE status = $1"
		args = append(args, *status)
	}
	var txs []models.BookTransaction
	if err := r.db.SelectContext(ctx, &txs, query+" ORDER BY issue_date ASC", args...); err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	return txs, nil
}

func (r *TransactionRepository) FindByID(ctx context.Context, id string) (*models.BookTransaction, error) {
	var tx models.BookTransaction
	if err := r.db.GetContext(ctx, &tx, "SELECT "+transactionColumns+" FROM book_transactions WHERE id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	return &tx, nil
}

// ListOverdue returns open loans past due at now, whether or not the sweep has flagged them yet.
func (r *TransactionRepository) ListOverdue(ctx context.Context, now time.Time) ([]models.BookTransaction, error) {
	const query = `SELECT ` + transactionColumns + ` FROM book_transactions
        WHERE status = $1 OR (status = $2 AND due_date < $3)
        ORDER BY due_date ASC`
	var txs []models.BookTransaction
	if err := r.db.SelectContext(ctx, &txs, query, models.TransactionOverdue, models.TransactionIssued, now); err != nil {
		return nil, fmt.Errorf("list overdue transactions: %w", err)
	}
	return txs, nil
}

// MarkOverdue flips every issued loan due before now in one statement and returns the ids touched.
func (r *TransactionRepository) MarkOverdue(ctx context.Context, now time.Time) ([]string, error) {
	const query = `UPDATE book_transactions SET status = $1, updated_at = $3
        WHERE status = $2 AND due_date < $3
        RETURNING id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, models.TransactionOverdue, models.TransactionIssued, now); err != nil {
		return nil, fmt.Errorf("mark overdue: %w", err)
	}
	return ids, nil
}

type statusCount struct {
	Status models.TransactionStatus `db:"status"`
	Count  int                      `db:"count"`
}

// LedgerTotals is the raw aggregate behind the lending summary.
type LedgerTotals struct {
	ByStatus      map[models.TransactionStatus]int
	FinesAssessed decimal.Decimal
	// LateDays sums started days late across open loans past due.
	LateDays int
}

func (r *TransactionRepository) Totals(ctx context.Context, now time.Time) (*LedgerTotals, error) {
	var counts []statusCount
	if err := r.db.SelectContext(ctx, &counts, `SELECT status, COUNT(*) AS count FROM book_transactions GROUP BY status`); err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	totals := &LedgerTotals{ByStatus: make(map[models.TransactionStatus]int, len(counts))}
	for _, c := range counts {
		totals.ByStatus[c.Status] = c.Count
	}

	if err := r.db.GetContext(ctx, &totals.FinesAssessed, `SELECT COALESCE(SUM(fine), 0) FROM book_transactions WHERE status = $1`, models.TransactionReturned); err != nil {
		return nil, fmt.Errorf("sum fines: %w", err)
	}

	const lateQuery = `SELECT COALESCE(SUM(CEIL(EXTRACT(EPOCH FROM ($3 - due_date)) / 86400)), 0)::INT
        FROM book_transactions WHERE status IN ($1, $2) AND due_date < $3`
	if err := r.db.GetContext(ctx, &totals.LateDays, lateQuery, models.TransactionIssued, models.TransactionOverdue, now); err != nil {
		return nil, fmt.Errorf("sum late days: %w", err)
	}
	return totals, nil
}
