package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/library-api/internal/models"
)

// IssueBookRequest is the issue form submitted for one book.
type IssueBookRequest struct {
	StudentID string  `json:"studentId" validate:"required"`
	LoanDays  int     `json:"loanDays" validate:"required"`
	Remarks   *string `json:"remarks,omitempty" validate:"omitempty,max=500"`
}

// ReturnBookRequest closes a loan. A nil Fine means the computed late fine applies.
type ReturnBookRequest struct {
	Fine       *decimal.Decimal `json:"fine,omitempty" swaggertype:"number"`
	FineReason *string          `json:"fineReason,omitempty" validate:"omitempty,max=250"`
	Remarks    *string          `json:"remarks,omitempty" validate:"omitempty,max=500"`
}

// IssueResult carries the new loan with the counters as committed.
type IssueResult struct {
	Transaction models.BookTransaction `json:"transaction"`
	Book        models.Book            `json:"book"`
	Student     models.Student         `json:"student"`
	Warnings    []string               `json:"warnings,omitempty"`
}

// ReturnResult carries the closed loan with the counters as committed.
type ReturnResult struct {
	Transaction    models.BookTransaction `json:"transaction"`
	Book           models.Book            `json:"book"`
	Student        models.Student         `json:"student"`
	DaysLate       int                    `json:"daysLate"`
	ComputedFine   decimal.Decimal        `json:"computedFine" swaggertype:"number"`
	FineOverridden bool                   `json:"fineOverridden"`
}

// FineQuote pre-fills the return form.
type FineQuote struct {
	TransactionID string          `json:"transactionId"`
	DueDate       time.Time       `json:"dueDate"`
	AsOf          time.Time       `json:"asOf"`
	DaysLate      int             `json:"daysLate"`
	FinePerDay    decimal.Decimal `json:"finePerDay" swaggertype:"number"`
	SuggestedFine decimal.Decimal `json:"suggestedFine" swaggertype:"number"`
	Closed        bool            `json:"closed"`
}

// OverdueItem is an open loan past due with what it would owe today.
type OverdueItem struct {
	models.BookTransaction
	DaysOverdue int             `json:"daysOverdue"`
	AccruedFine decimal.Decimal `json:"accruedFine" swaggertype:"number"`
}

// SweepResult reports one overdue sweep.
type SweepResult struct {
	Marked         int       `json:"marked"`
	TransactionIDs []string  `json:"transactionIds"`
	RanAt          time.Time `json:"ranAt"`
}
