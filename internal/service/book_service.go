package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/library-api/internal/dto"
	"github.com/noah-isme/library-api/internal/models"
	appErrors "github.com/noah-isme/library-api/pkg/errors"
)

type bookRepository interface {
	List(ctx context.Context, filter models.BookFilter) ([]models.Book, int, error)
	FindByID(ctx context.Context, id string) (*models.Book, error)
	Create(ctx context.Context, book *models.Book) error
	UpdateDetails(ctx context.Context, book *models.Book) (*models.Book, error)
}

// BookService manages the catalog. Copy counters move only through lending;
// here an admin can only change the total, which shifts availability with it.
type BookService struct {
	repo      bookRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	cacheTTL  time.Duration
}

// NewBookService constructs the book service. cache may be nil.
func NewBookService(repo bookRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger, cacheTTL time.Duration) *BookService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookService{repo: repo, cache: cache, validator: validate, logger: logger, cacheTTL: cacheTTL}
}

func (s *BookService) List(ctx context.Context, filter models.BookFilter) ([]models.Book, *models.Pagination, error) {
	books, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list books")
	}
	return books, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a book, using the cache when enabled. The second value reports a cache hit.
func (s *BookService) Get(ctx context.Context, id string) (*models.Book, bool, error) {
	var cached models.Book
	if s.cache.Get(ctx, bookCacheKey(id), &cached) {
		return &cached, true, nil
	}
	book, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, false, notFoundOr(err, "book not found", "failed to load book")
	}
	s.cache.Set(ctx, bookCacheKey(id), book, s.cacheTTL)
	return book, false, nil
}

// Create adds a title with every copy on the shelf.
func (s *BookService) Create(ctx context.Context, req dto.BookRequest, actor string) (*models.Book, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid book payload")
	}
	book := &models.Book{
		Title:       req.Title,
		Author:      req.Author,
		TotalCopies: req.TotalCopies,
		UpdatedBy:   &actor,
	}
	if err := s.repo.Create(ctx, book); err != nil {
		return nil, internalError(err, "failed to create book")
	}
	s.logger.Info("book created", zap.String("book_id", book.ID), zap.Int("copies", book.TotalCopies), zap.String("actor", actor))
	return book, nil
}

// Update edits title, author and total copies. Shrinking the total below the
// number of copies on loan is a conflict.
func (s *BookService) Update(ctx context.Context, id string, req dto.BookRequest, actor string) (*models.Book, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid book payload")
	}
	updated, err := s.repo.UpdateDetails(ctx, &models.Book{
		ID:          id,
		Title:       req.Title,
		Author:      req.Author,
		TotalCopies: req.TotalCopies,
		UpdatedBy:   &actor,
	})
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, internalError(err, "failed to update book")
		}
		// No row: either the book is missing or the guard rejected the new total.
		if _, findErr := s.repo.FindByID(ctx, id); findErr != nil {
			return nil, notFoundOr(findErr, "book not found", "failed to load book")
		}
		return nil, appErrors.Clone(appErrors.ErrConflict, "total copies cannot drop below copies on loan")
	}
	s.cache.Invalidate(ctx, bookCacheKey(id))
	return updated, nil
}

// Book entries live under the lending prefix so issue and return drop them too.
func bookCacheKey(id string) string {
	return cacheKeyLendingPrefix + "book:" + id
}
