package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StudentStatus gates borrowing; only active students may be issued books.
type StudentStatus string

const (
	StudentActive    StudentStatus = "active"
	StudentInactive  StudentStatus = "inactive"
	StudentBanned    StudentStatus = "banned"
	StudentGraduated StudentStatus = "graduated"
)

// Valid reports whether s is a known status.
func (s StudentStatus) Valid() bool {
	switch s {
	case StudentActive, StudentInactive, StudentBanned, StudentGraduated:
		return true
	}
	return false
}

// Student is a borrower. FineAmount only ever grows.
type Student struct {
	ID              string          `db:"id" json:"id"`
	Name            string          `db:"name" json:"name"`
	RollNumber      string          `db:"roll_number" json:"rollNumber"`
	Status          StudentStatus   `db:"status" json:"status"`
	BooksIssued     int             `db:"books_issued" json:"booksIssued"`
	MaxBooksAllowed int             `db:"max_books_allowed" json:"maxBooksAllowed"`
	FineAmount      decimal.Decimal `db:"fine_amount" json:"fineAmount"`
	TotalBooksRead  int             `db:"total_books_read" json:"totalBooksRead"`
	UpdatedBy       *string         `db:"updated_by" json:"updatedBy,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updatedAt"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	Status    *StudentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
