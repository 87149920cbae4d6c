package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/library-api/internal/dto"
	"github.com/noah-isme/library-api/internal/models"
	"github.com/noah-isme/library-api/internal/repository"
	appErrors "github.com/noah-isme/library-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ExistsByRollNumber(ctx context.Context, rollNumber, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	UpdateProfile(ctx context.Context, student *models.Student) error
	Deactivate(ctx context.Context, id, updatedBy string) error
}

type studentLedger interface {
	List(ctx context.Context, filter models.TransactionFilter) ([]models.BookTransaction, int, error)
}

// StudentService handles borrower roster use-cases.
type StudentService struct {
	repo            studentRepository
	ledger          studentLedger
	validator       *validator.Validate
	logger          *zap.Logger
	defaultMaxBooks int
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, ledger studentLedger, validate *validator.Validate, logger *zap.Logger, defaultMaxBooks int) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultMaxBooks <= 0 {
		defaultMaxBooks = 3
	}
	return &StudentService{repo: repo, ledger: ledger, validator: validate, logger: logger, defaultMaxBooks: defaultMaxBooks}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown student status")
	}
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list students")
	}
	return students, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a single student.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "student not found", "failed to load student")
	}
	return student, nil
}

// Transactions returns the borrower's lending history, newest first.
func (s *StudentService) Transactions(ctx context.Context, id string, page, size int) ([]models.BookTransaction, *models.Pagination, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, nil, err
	}
	filter := models.TransactionFilter{StudentID: id, Page: page, PageSize: size}
	txs, total, err := s.ledger.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list student transactions")
	}
	return txs, paginationFor(page, size, total), nil
}

// Create registers a new borrower with empty counters.
func (s *StudentService) Create(ctx context.Context, req dto.StudentRequest, actor string) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	if err := s.ensureUniqueRoll(ctx, req.RollNumber, ""); err != nil {
		return nil, err
	}

	student := &models.Student{
		Name:            req.Name,
		RollNumber:      req.RollNumber,
		Status:          models.StudentActive,
		MaxBooksAllowed: s.defaultMaxBooks,
		FineAmount:      decimal.Zero,
		UpdatedBy:       &actor,
	}
	if req.Status != "" {
		student.Status = req.Status
	}
	if req.MaxBooksAllowed != nil {
		student.MaxBooksAllowed = *req.MaxBooksAllowed
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, studentWriteError(err, "failed to create student")
	}
	s.logger.Info("student created", zap.String("student_id", student.ID), zap.String("actor", actor))
	return student, nil
}

// Update edits profile fields, status and borrow cap. Counters and fines are untouched.
func (s *StudentService) Update(ctx context.Context, id string, req dto.StudentRequest, actor string) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUniqueRoll(ctx, req.RollNumber, id); err != nil {
		return nil, err
	}

	student.Name = req.Name
	student.RollNumber = req.RollNumber
	if req.Status != "" {
		student.Status = req.Status
	}
	if req.MaxBooksAllowed != nil {
		student.MaxBooksAllowed = *req.MaxBooksAllowed
	}
	student.UpdatedBy = &actor
	if err := s.repo.UpdateProfile(ctx, student); err != nil {
		return nil, studentWriteError(err, "failed to update student")
	}
	return student, nil
}

// Delete deactivates the student. Loan history is kept.
func (s *StudentService) Delete(ctx context.Context, id, actor string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id, actor); err != nil {
		return internalError(err, "failed to deactivate student")
	}
	s.logger.Info("student deactivated", zap.String("student_id", id), zap.String("actor", actor))
	return nil
}

// studentWriteError maps a unique-constraint race on roll_number to a conflict.
func studentWriteError(err error, message string) error {
	if errors.Is(err, repository.ErrDuplicateKey) {
		return appErrors.Clone(appErrors.ErrConflict, "roll number already used")
	}
	return internalError(err, message)
}

func (s *StudentService) ensureUniqueRoll(ctx context.Context, roll, excludeID string) error {
	exists, err := s.repo.ExistsByRollNumber(ctx, roll, excludeID)
	if err != nil {
		return internalError(err, "failed to validate roll number")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "roll number already used")
	}
	return nil
}
