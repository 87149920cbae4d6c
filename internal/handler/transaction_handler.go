package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/library-api/internal/dto"
	"github.com/noah-isme/library-api/internal/middleware"
	"github.com/noah-isme/library-api/internal/models"
	"github.com/noah-isme/library-api/pkg/response"
)

type lendingService interface {
	Issue(ctx context.Context, bookID string, req dto.IssueBookRequest, actor string) (*dto.IssueResult, error)
	Return(ctx context.Context, transactionID string, req dto.ReturnBookRequest, actor string) (*dto.ReturnResult, error)
	QuoteFine(ctx context.Context, transactionID string) (*dto.FineQuote, error)
	List(ctx context.Context, filter models.TransactionFilter) ([]models.BookTransaction, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.BookTransaction, error)
	Overdue(ctx context.Context) ([]dto.OverdueItem, error)
	Summary(ctx context.Context) (*models.LendingSummary, bool, error)
	SweepOverdue(ctx context.Context) (*dto.SweepResult, error)
}

// TransactionHandler exposes the circulation desk: issue, return, ledger queries and the sweep.
type TransactionHandler struct {
	lending lendingService
}

func NewTransactionHandler(lending lendingService) *TransactionHandler {
	return &TransactionHandler{lending: lending}
}

// Issue godoc
// @Summary Issue a book
// @Description Lends one copy to a student. Borrowing past the student's cap succeeds with a BORROW_LIMIT_REACHED warning.
// @Tags Lending
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Book ID"
// @Param payload body dto.IssueBookRequest true "Issue payload"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /books/{id}/issue [post]
func (h *TransactionHandler) Issue(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.IssueBookRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.lending.Issue(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.WithWarnings(c, http.StatusCreated, result, result.Warnings)
}

// Return godoc
// @Summary Return a book
// @Description Omit fine to charge the computed late fine; a provided fine is stored as given.
// @Tags Lending
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Param payload body dto.ReturnBookRequest false "Return payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /transactions/{id}/return [post]
func (h *TransactionHandler) Return(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.ReturnBookRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	result, err := h.lending.Return(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Fine godoc
// @Summary Suggested fine for a loan
// @Tags Lending
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Success 200 {object} response.Envelope
// @Router /transactions/{id}/fine [get]
func (h *TransactionHandler) Fine(c *gin.Context) {
	quote, err := h.lending.QuoteFine(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, quote, nil)
}

// List godoc
// @Summary List the lending ledger
// @Tags Lending
// @Produce json
// @Security BearerAuth
// @Param status query string false "issued, returned, overdue or lost"
// @Param studentId query string false "Student ID"
// @Param bookId query string false "Book ID"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /transactions [get]
func (h *TransactionHandler) List(c *gin.Context) {
	filter := models.TransactionFilter{
		StudentID: c.Query("studentId"),
		BookID:    c.Query("bookId"),
	}
	if status := c.Query("status"); status != "" {
		s := models.TransactionStatus(status)
		filter.Status = &s
	}
	filter.Page, filter.PageSize = pageParams(c)

	txs, pagination, err := h.lending.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, txs, pagination)
}

// Get godoc
// @Summary Get a ledger entry
// @Tags Lending
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Success 200 {object} response.Envelope
// @Router /transactions/{id} [get]
func (h *TransactionHandler) Get(c *gin.Context) {
	tx, err := h.lending.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tx, nil)
}

// Overdue godoc
// @Summary Open loans past due
// @Tags Lending
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /transactions/overdue [get]
func (h *TransactionHandler) Overdue(c *gin.Context) {
	items, err := h.lending.Overdue(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Sweep godoc
// @Summary Mark overdue loans now
// @Tags Lending
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /transactions/sweep [post]
func (h *TransactionHandler) Sweep(c *gin.Context) {
	result, err := h.lending.SweepOverdue(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Summary godoc
// @Summary Lending dashboard totals
// @Tags Lending
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /lending/summary [get]
func (h *TransactionHandler) Summary(c *gin.Context) {
	summary, hit, err := h.lending.Summary(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, summary, nil, middleware.ExtractMeta(c))
}
