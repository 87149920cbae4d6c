package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/library-api/internal/handler"
	"github.com/noah-isme/library-api/internal/models"
	"github.com/noah-isme/library-api/internal/repository"
	"github.com/noah-isme/library-api/internal/service"
	"github.com/noah-isme/library-api/pkg/config"
)

const testSecret = "router-secret"

type sweepOnlyLedger struct {
	swept int
}

func (l *sweepOnlyLedger) List(context.Context, models.TransactionFilter) ([]models.BookTransaction, int, error) {
	return nil, 0, nil
}

func (l *sweepOnlyLedger) FindByID(context.Context, string) (*models.BookTransaction, error) {
	return nil, nil
}

func (l *sweepOnlyLedger) ListOverdue(context.Context, time.Time) ([]models.BookTransaction, error) {
	return nil, nil
}

func (l *sweepOnlyLedger) MarkOverdue(context.Context, time.Time) ([]string, error) {
	l.swept++
	return []string{"t1"}, nil
}

func (l *sweepOnlyLedger) Totals(context.Context, time.Time) (*repository.LedgerTotals, error) {
	return &repository.LedgerTotals{ByStatus: map[models.TransactionStatus]int{}}, nil
}

type auditSink struct {
	actions []string
}

func (a *auditSink) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	a.actions = append(a.actions, log.Action)
	return nil
}

func token(t *testing.T, role models.UserRole) string {
	t.Helper()
	now := time.Now()
	claims := &models.JWTClaims{
		UserID: "u-" + strings.ToLower(string(role)),
		Role:   role,
		Email:  strings.ToLower(string(role)) + "@library.test",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "library-api",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func newTestRouter(t *testing.T) (*gin.Engine, *sweepOnlyLedger, *auditSink) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{Env: "test", APIPrefix: "/api/v1"}
	metrics := service.NewMetricsService()
	auth := service.NewAuthService(nil, nil, nil, service.AuthConfig{AccessTokenSecret: testSecret, Issuer: "library-api"})
	ledger := &sweepOnlyLedger{}
	lending := service.NewLendingService(nil, ledger, nil, metrics, nil, nil, service.LendingConfig{})
	audit := &auditSink{}

	r := NewRouter(Deps{Config: cfg, Logger: zap.NewNop(), Auth: auth, Metrics: metrics, Audit: audit}, Handlers{
		Auth:         handler.NewAuthHandler(auth),
		Books:        handler.NewBookHandler(service.NewBookService(nil, nil, nil, nil, 0)),
		Students:     handler.NewStudentHandler(service.NewStudentService(nil, nil, nil, nil, 0)),
		Transactions: handler.NewTransactionHandler(lending),
		Exports:      handler.NewExportHandler(service.NewExportService(nil, nil, nil, service.ExportConfig{}, nil, nil, nil)),
		Metrics:      handler.NewMetricsHandler(metrics),
	})
	return r, ledger, audit
}

func serve(r http.Handler, method, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRouterPublicEndpoints(t *testing.T) {
	r, _, _ := newTestRouter(t)

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/ready", "").Code)

	rec := serve(r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouterRequiresAuthentication(t *testing.T) {
	r, _, _ := newTestRouter(t)

	for _, path := range []string{"/api/v1/books", "/api/v1/students", "/api/v1/transactions", "/api/v1/lending/summary"} {
		assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, path, "").Code, path)
	}
}

func TestRouterSweepIsAdminOnly(t *testing.T) {
	r, ledger, audit := newTestRouter(t)

	rec := serve(r, http.MethodPost, "/api/v1/transactions/sweep", token(t, models.RoleLibrarian))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, ledger.swept)

	rec = serve(r, http.MethodPost, "/api/v1/transactions/sweep", token(t, models.RoleAdmin))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ledger.swept)
	assert.Equal(t, []string{models.AuditActionOverdueSweep}, audit.actions)
}
