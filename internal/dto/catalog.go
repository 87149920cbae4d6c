package dto

import "github.com/noah-isme/library-api/internal/models"

// BookRequest creates or edits a catalog title.
type BookRequest struct {
	Title       string `json:"title" validate:"required,max=255"`
	Author      string `json:"author" validate:"required,max=255"`
	TotalCopies int    `json:"totalCopies" validate:"gte=0,lte=10000"`
}

// StudentRequest creates or edits a borrower. Status defaults to active on create.
type StudentRequest struct {
	Name            string               `json:"name" validate:"required,max=255"`
	RollNumber      string               `json:"rollNumber" validate:"required,max=64"`
	Status          models.StudentStatus `json:"status,omitempty" validate:"omitempty,oneof=active inactive banned graduated"`
	MaxBooksAllowed *int                 `json:"maxBooksAllowed,omitempty" validate:"omitempty,gte=0,lte=50"`
}
