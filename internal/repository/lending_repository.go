package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/library-api/internal/models"
)

// LendingTx is the unit of work for issue and return. Rows are locked with
// SELECT ... FOR UPDATE; callers lock the book before the student.
type LendingTx interface {
	LockBook(ctx context.Context, id string) (*models.Book, error)
	LockStudent(ctx context.Context, id string) (*models.Student, error)
	LockTransaction(ctx context.Context, id string) (*models.BookTransaction, error)
	CreateTransaction(ctx context.Context, tx *models.BookTransaction) error
	UpdateBookCounters(ctx context.Context, book *models.Book) error
	UpdateStudentCounters(ctx context.Context, student *models.Student) error
	CloseTransaction(ctx context.Context, tx *models.BookTransaction) error
}

// LendingRepository opens database transactions for the lending workflow.
type LendingRepository struct {
	db *sqlx.DB
}

func NewLendingRepository(db *sqlx.DB) *LendingRepository {
	return &LendingRepository{db: db}
}

// WithinTx runs fn in one database transaction, committing only when fn returns nil.
func (r *LendingRepository) WithinTx(ctx context.Context, fn func(LendingTx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin lending tx: %w", err)
	}
	if err := fn(&lendingTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit lending tx: %w", err)
	}
	return nil
}

type lendingTx struct {
	tx *sqlx.Tx
}

func (t *lendingTx) LockBook(ctx context.Context, id string) (*models.Book, error) {
	var book models.Book
	if err := t.tx.GetContext(ctx, &book, "SELECT "+bookColumns+" FROM books WHERE id = $1 FOR UPDATE", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock book: %w", err)
	}
	return &book, nil
}

func (t *lendingTx) LockStudent(ctx context.Context, id string) (*models.Student, error) {
	var student models.Student
	if err := t.tx.GetContext(ctx, &student, "SELECT "+studentColumns+" FROM students WHERE id = $1 FOR UPDATE", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock student: %w", err)
	}
	return &student, nil
}

func (t *lendingTx) LockTransaction(ctx context.Context, id string) (*models.BookTransaction, error) {
	var bt models.BookTransaction
	if err := t.tx.GetContext(ctx, &bt, "SELECT "+transactionColumns+" FROM book_transactions WHERE id = $1 FOR UPDATE", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock transaction: %w", err)
	}
	return &bt, nil
}

func (t *lendingTx) CreateTransaction(ctx context.Context, bt *models.BookTransaction) error {
	if bt.ID == "" {
		bt.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	bt.CreatedAt, bt.UpdatedAt = now, now
	const query = `INSERT INTO book_transactions (id, book_id, student_id, student_name, book_title, book_author, issue_date, due_date, return_date, status, fine, fine_reason, remarks, issued_by, returned_by, created_at, updated_at)
        VALUES (:id, :book_id, :student_id, :student_name, :book_title, :book_author, :issue_date, :due_date, :return_date, :status, :fine, :fine_reason, :remarks, :issued_by, :returned_by, :created_at, :updated_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, bt); err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (t *lendingTx) UpdateBookCounters(ctx context.Context, book *models.Book) error {
	book.UpdatedAt = time.Now().UTC()
	const query = `UPDATE books SET available_copies = :available_copies, issued_copies = :issued_copies, updated_by = :updated_by, updated_at = :updated_at WHERE id = :id`
	if _, err := t.tx.NamedExecContext(ctx, query, book); err != nil {
		return fmt.Errorf("update book counters: %w", err)
	}
	return nil
}

func (t *lendingTx) UpdateStudentCounters(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET books_issued = :books_issued, total_books_read = :total_books_read, fine_amount = :fine_amount, updated_by = :updated_by, updated_at = :updated_at WHERE id = :id`
	if _, err := t.tx.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student counters: %w", err)
	}
	return nil
}

func (t *lendingTx) CloseTransaction(ctx context.Context, bt *models.BookTransaction) error {
	bt.UpdatedAt = time.Now().UTC()
	const query = `UPDATE book_transactions SET status = :status, return_date = :return_date, fine = :fine, fine_reason = :fine_reason, remarks = :remarks, returned_by = :returned_by, updated_at = :updated_at WHERE id = :id`
	if _, err := t.tx.NamedExecContext(ctx, query, bt); err != nil {
		return fmt.Errorf("close transaction: %w", err)
	}
	return nil
}
