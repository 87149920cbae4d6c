package dto

import (
	"time"

	"github.com/noah-isme/library-api/internal/models"
)

// ExportRequest asks for a rendered ledger.
type ExportRequest struct {
	Format string                    `json:"format" validate:"required,oneof=csv pdf"`
	Status *models.TransactionStatus `json:"status,omitempty"`
}

// ExportResponse points at the signed download.
type ExportResponse struct {
	ID        string    `json:"id"`
	Format    string    `json:"format"`
	Rows      int       `json:"rows"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}
