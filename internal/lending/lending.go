// Package lending holds the circulation rules shared by the issue, return and
// overdue paths. Nothing here touches storage or the clock.
package lending

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/library-api/internal/models"
)

const day = 24 * time.Hour

var ErrNoCopiesAvailable = errors.New("no copies available")

// Warning is a non-blocking condition reported alongside a successful issue.
type Warning string

const WarningBorrowLimitReached Warning = "BORROW_LIMIT_REACHED"

// DefaultFinePerDay applies when no policy is configured.
var DefaultFinePerDay = decimal.NewFromInt(2)

// FineScale is the number of decimal places stored for money columns.
const FineScale = 2

// MaxFine is the first amount that no longer fits a NUMERIC(12,2) column.
var MaxFine = decimal.New(1, 10)

// LoanDurations lists the loan lengths, in days, offered at the desk.
var LoanDurations = []int{3, 7, 14, 21, 30}

func ValidLoanDuration(days int) bool {
	for _, d := range LoanDurations {
		if d == days {
			return true
		}
	}
	return false
}

func DueDate(issue time.Time, days int) time.Time {
	return issue.Add(time.Duration(days) * day)
}

// DaysLate counts started days past due; any fraction of a day counts as one.
func DaysLate(due, now time.Time) int {
	late := now.Sub(due)
	if late <= 0 {
		return 0
	}
	days := int(late / day)
	if late%day != 0 {
		days++
	}
	return days
}

func Fine(due, now time.Time, perDay decimal.Decimal) decimal.Decimal {
	return perDay.Mul(decimal.NewFromInt(int64(DaysLate(due, now))))
}

// ApplyIssue moves one copy from the shelf to the student. Reaching the
// borrow cap is reported, not enforced.
func ApplyIssue(book *models.Book, student *models.Student) ([]Warning, error) {
	if book.AvailableCopies <= 0 {
		return nil, ErrNoCopiesAvailable
	}

	var warnings []Warning
	if student.BooksIssued >= student.MaxBooksAllowed {
		warnings = append(warnings, WarningBorrowLimitReached)
	}

	book.AvailableCopies--
	book.IssuedCopies++
	student.BooksIssued++
	return warnings, nil
}

// ApplyReturn puts the copy back and charges fine to the student.
// Counters are clamped so a drifted row never goes negative and never shows
// more copies on the shelf than the book owns.
func ApplyReturn(book *models.Book, student *models.Student, fine decimal.Decimal) {
	book.AvailableCopies++
	if book.AvailableCopies > book.TotalCopies {
		book.AvailableCopies = book.TotalCopies
	}
	book.IssuedCopies = floor(book.IssuedCopies - 1)
	student.BooksIssued = floor(student.BooksIssued - 1)
	student.TotalBooksRead++
	student.FineAmount = student.FineAmount.Add(fine)
}

// ValidFine reports whether an operator-entered fine is non-negative, has at
// most FineScale decimal places and fits the ledger column.
func ValidFine(fine decimal.Decimal) bool {
	if fine.IsNegative() || fine.GreaterThanOrEqual(MaxFine) {
		return false
	}
	return fine.Equal(fine.Round(FineScale))
}

func CanReturn(status models.TransactionStatus) bool {
	return status == models.TransactionIssued || status == models.TransactionOverdue
}

// IsOverdue reports whether the sweep should flip tx.
func IsOverdue(tx models.BookTransaction, now time.Time) bool {
	return tx.Status == models.TransactionIssued && tx.DueDate.Before(now)
}

// CanBorrow reports whether a student in status may be issued books.
func CanBorrow(status models.StudentStatus) bool {
	return status == models.StudentActive
}

func floor(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
