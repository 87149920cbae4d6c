package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/library-api/internal/models"
)

const bookColumns = `id, title, author, total_copies, available_copies, issued_copies, updated_by, created_at, updated_at`

// BookRepository manages the catalog table.
type BookRepository struct {
	db *sqlx.DB
}

// NewBookRepository constructs a BookRepository.
func NewBookRepository(db *sqlx.DB) *BookRepository {
	return &BookRepository{db: db}
}

// List returns books matching the filter plus the total row count.
func (r *BookRepository) List(ctx context.Context, filter models.BookFilter) ([]models.Book, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(title) LIKE $%d OR LOWER(author) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.Available != nil {
		if *filter.Available {
			conditions = append(conditions, "available_copies > 0")
		} else {
			conditions = append(conditions, "available_copies <= 0")
		}
	}
	where := strings.Join(conditions, " AND ")

	column, order := orderBy(filter.SortBy, filter.SortOrder, map[string]string{
		"title":      "title",
		"author":     "author",
		"created_at": "created_at",
	}, "created_at")
	_, size, offset := paginate(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s FROM books WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d", bookColumns, where, column, order, size, offset)
	var books []models.Book
	if err := r.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list books: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM books WHERE "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count books: %w", err)
	}
	return books, total, nil
}

// FindByID returns sql.ErrNoRows unwrapped when the book does not exist.
func (r *BookRepository) FindByID(ctx context.Context, id string) (*models.Book, error) {
	var book models.Book
	if err := r.db.GetContext(ctx, &book, "SELECT "+bookColumns+" FROM books WHERE id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find book: %w", err)
	}
	return &book, nil
}

// Create inserts a book with every copy on the shelf.
func (r *BookRepository) Create(ctx context.Context, book *models.Book) error {
	if book.ID == "" {
		book.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	book.CreatedAt, book.UpdatedAt = now, now
	book.AvailableCopies = book.TotalCopies
	book.IssuedCopies = 0

	const query = `INSERT INTO books (id, title, author, total_copies, available_copies, issued_copies, updated_by, created_at, updated_at)
        VALUES (:id, :title, :author, :total_copies, :available_copies, :issued_copies, :updated_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, book); err != nil {
		return fmt.Errorf("create book: %w", err)
	}
	return nil
}

// UpdateDetails edits title, author and total. The change in total is applied to
// available_copies in the same statement; sql.ErrNoRows means either the book is
// missing or the new total would leave fewer copies than are on loan.
func (r *BookRepository) UpdateDetails(ctx context.Context, book *models.Book) (*models.Book, error) {
	const query = `UPDATE books SET title = $2, author = $3,
        available_copies = available_copies + ($4 - total_copies),
        total_copies = $4, updated_by = $5, updated_at = $6
        WHERE id = $1 AND available_copies + ($4 - total_copies) >= 0
        RETURNING ` + bookColumns
	var updated models.Book
	err := r.db.GetContext(ctx, &updated, query, book.ID, book.Title, book.Author, book.TotalCopies, book.UpdatedBy, time.Now().UTC())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("update book: %w", err)
	}
	return &updated, nil
}
