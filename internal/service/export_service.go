package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/library-api/internal/dto"
	"github.com/noah-isme/library-api/internal/models"
	appErrors "github.com/noah-isme/library-api/pkg/errors"
	"github.com/noah-isme/library-api/pkg/export"
	"github.com/noah-isme/library-api/pkg/storage"
)

const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type exportLedger interface {
	ListAll(ctx context.Context, status *models.TransactionStatus) ([]models.BookTransaction, error)
}

type fileStorage interface {
	Save(name string, data []byte) (string, error)
	Open(name string) (*os.File, error)
	Purge(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title, subtitle string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportService renders the ledger to CSV or PDF and hands out signed download links.
type ExportService struct {
	ledger    exportLedger
	storage   fileStorage
	csv       csvRenderer
	pdf       pdfRenderer
	signer    *storage.Signer
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ExportConfig
	now       func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to pkg/export.
func NewExportService(ledger exportLedger, files fileStorage, signer *storage.Signer, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		ledger:    ledger,
		storage:   files,
		csv:       csv,
		pdf:       pdf,
		signer:    signer,
		validator: validator.New(),
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ExportTransactions renders the ledger, optionally narrowed to one status.
func (s *ExportService) ExportTransactions(ctx context.Context, req dto.ExportRequest, actor string) (*dto.ExportResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}
	if req.Status != nil && !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown transaction status")
	}

	txs, err := s.ledger.ListAll(ctx, req.Status)
	if err != nil {
		return nil, internalError(err, "failed to load ledger")
	}
	dataset := ledgerDataset(txs)
	now := s.now()

	var payload []byte
	switch req.Format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, "Lending Ledger", exportSubtitle(req.Status, now))
	}
	if err != nil {
		return nil, internalError(err, "failed to render export")
	}

	id := uuid.NewString()
	name, err := s.storage.Save(exportFilename(req, now, id), payload)
	if err != nil {
		return nil, internalError(err, "failed to store export")
	}
	token, expiresAt, err := s.signer.Sign(id, name)
	if err != nil {
		return nil, internalError(err, "failed to sign export link")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Info("ledger exported",
		zap.String("export_id", id),
		zap.String("format", req.Format),
		zap.Int("rows", len(dataset.Rows)),
		zap.String("actor", actor),
	)
	return &dto.ExportResponse{
		ID:        id,
		Format:    req.Format,
		Rows:      len(dataset.Rows),
		URL:       fmt.Sprintf("%s/exports/%s", prefix, token),
		ExpiresAt: expiresAt,
	}, nil
}

// Resolve validates a download token and opens the file it points at.
// The caller closes the returned file.
func (s *ExportService) Resolve(token string) (*os.File, string, error) {
	_, name, err := s.signer.Verify(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, "", appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "invalid download link")
	}
	file, err := s.storage.Open(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export no longer available")
		}
		return nil, "", internalError(err, "failed to open export")
	}
	return file, name, nil
}

// Cleanup removes files older than ttl (the configured result TTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.Purge(ttl)
}

var ledgerHeaders = []string{"ID", "Book", "Author", "Student", "Issued", "Due", "Returned", "Status", "Fine", "Issued By"}

func ledgerDataset(txs []models.BookTransaction) export.Dataset {
	rows := make([]map[string]string, 0, len(txs))
	for _, tx := range txs {
		returned := ""
		if tx.ReturnDate != nil {
			returned = tx.ReturnDate.Format("2006-01-02")
		}
		rows = append(rows, map[string]string{
			"ID":        tx.ID,
			"Book":      tx.BookTitle,
			"Author":    tx.BookAuthor,
			"Student":   tx.StudentName,
			"Issued":    tx.IssueDate.Format("2006-01-02"),
			"Due":       tx.DueDate.Format("2006-01-02"),
			"Returned":  returned,
			"Status":    string(tx.Status),
			"Fine":      tx.Fine.StringFixed(2),
			"Issued By": tx.IssuedBy,
		})
	}
	return export.Dataset{Headers: ledgerHeaders, Rows: rows}
}

func exportSubtitle(status *models.TransactionStatus, now time.Time) string {
	scope := "all loans"
	if status != nil {
		scope = string(*status) + " loans"
	}
	return fmt.Sprintf("%s, generated %s UTC", scope, now.Format("2006-01-02 15:04"))
}

func exportFilename(req dto.ExportRequest, now time.Time, id string) string {
	scope := "all"
	if req.Status != nil {
		scope = string(*req.Status)
	}
	return fmt.Sprintf("ledger_%s_%s_%s.%s", scope, now.Format("20060102_150405"), id[:8], req.Format)
}
