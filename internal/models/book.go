package models

import "time"

// Book is a catalog title with copy counters.
// available + issued == total is maintained by issue and return only.
type Book struct {
	ID              string    `db:"id" json:"id"`
	Title           string    `db:"title" json:"title"`
	Author          string    `db:"author" json:"author"`
	TotalCopies     int       `db:"total_copies" json:"totalCopies"`
	AvailableCopies int       `db:"available_copies" json:"availableCopies"`
	IssuedCopies    int       `db:"issued_copies" json:"issuedCopies"`
	UpdatedBy       *string   `db:"updated_by" json:"updatedBy,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`
}

// BookFilter narrows catalog listings.
type BookFilter struct {
	Search    string
	Available *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
