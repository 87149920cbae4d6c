package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus is the loan lifecycle state.
type TransactionStatus string

const (
	TransactionIssued   TransactionStatus = "issued"
	TransactionReturned TransactionStatus = "returned"
	TransactionOverdue  TransactionStatus = "overdue"
	// TransactionLost is accepted by the schema and filters but never assigned.
	TransactionLost TransactionStatus = "lost"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionIssued, TransactionReturned, TransactionOverdue, TransactionLost:
		return true
	}
	return false
}

// BookTransaction is one loan in the ledger. StudentName, BookTitle and
// BookAuthor are copied at issue time and never refreshed.
type BookTransaction struct {
	ID          string            `db:"id" json:"id"`
	BookID      string            `db:"book_id" json:"bookId"`
	StudentID   string            `db:"student_id" json:"studentId"`
	StudentName string            `db:"student_name" json:"studentName"`
	BookTitle   string            `db:"book_title" json:"bookTitle"`
	BookAuthor  string            `db:"book_author" json:"bookAuthor"`
	IssueDate   time.Time         `db:"issue_date" json:"issueDate"`
	DueDate     time.Time         `db:"due_date" json:"dueDate"`
	ReturnDate  *time.Time        `db:"return_date" json:"returnDate,omitempty"`
	Status      TransactionStatus `db:"status" json:"status"`
	Fine        decimal.Decimal   `db:"fine" json:"fine"`
	FineReason  *string           `db:"fine_reason" json:"fineReason,omitempty"`
	Remarks     *string           `db:"remarks" json:"remarks,omitempty"`
	IssuedBy    string            `db:"issued_by" json:"issuedBy"`
	ReturnedBy  *string           `db:"returned_by" json:"returnedBy,omitempty"`
	CreatedAt   time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updatedAt"`
}

// TransactionFilter narrows ledger listings.
type TransactionFilter struct {
	Status    *TransactionStatus
	StudentID string
	BookID    string
	Page      int
	PageSize  int
}

// LendingSummary aggregates the ledger for the dashboard.
type LendingSummary struct {
	ByStatus     map[TransactionStatus]int `json:"byStatus"`
	OpenLoans    int                       `json:"openLoans"`
	OverdueLoans int                       `json:"overdueLoans"`

	// FinesAssessed sums fines fixed on returned loans.
	FinesAssessed decimal.Decimal `json:"finesAssessed"`
	// AccruingFines is what open overdue loans would owe if returned now.
	AccruingFines decimal.Decimal `json:"accruingFines"`
	GeneratedAt   time.Time       `json:"generatedAt"`
}
