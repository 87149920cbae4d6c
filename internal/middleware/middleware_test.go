package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/library-api/internal/models"
	appErrors "github.com/noah-isme/library-api/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeValidator struct {
	claims map[string]*models.JWTClaims
}

func (f fakeValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if c, ok := f.claims[token]; ok {
		return c, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

type recordingAudit struct {
	logs []*models.AuditLog
	err  error
}

func (r *recordingAudit) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	r.logs = append(r.logs, log)
	return r.err
}

type recordingObserver struct {
	path   string
	status int
}

func (r *recordingObserver) ObserveHTTPRequest(_ string, path string, status int, _ time.Duration) {
	r.path, r.status = path, status
}

func newAuthRouter() *gin.Engine {
	validator := fakeValidator{claims: map[string]*models.JWTClaims{
		"admin-token":     {UserID: "u-admin", Role: models.RoleAdmin, Email: "admin@library.test"},
		"librarian-token": {UserID: "u-lib", Role: models.RoleLibrarian, Email: "desk@library.test"},
	}}
	r := gin.New()
	api := r.Group("/", JWT(validator))
	api.POST("/books/:id/issue", Staff(), func(c *gin.Context) { c.Status(http.StatusCreated) })
	api.POST("/transactions/sweep", AdminOnly(), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func doRequest(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAndRoles(t *testing.T) {
	r := newAuthRouter()

	assert.Equal(t, http.StatusUnauthorized, doRequest(r, http.MethodPost, "/books/b1/issue", "").Code)
	assert.Equal(t, http.StatusUnauthorized, doRequest(r, http.MethodPost, "/books/b1/issue", "forged").Code)
	assert.Equal(t, http.StatusCreated, doRequest(r, http.MethodPost, "/books/b1/issue", "librarian-token").Code)
	assert.Equal(t, http.StatusForbidden, doRequest(r, http.MethodPost, "/transactions/sweep", "librarian-token").Code)
	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodPost, "/transactions/sweep", "admin-token").Code)

	req := httptest.NewRequest(http.MethodPost, "/books/b1/issue", nil)
	req.Header.Set("Authorization", "Token admin-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuditRecordsSuccessfulWrites(t *testing.T) {
	repo := &recordingAudit{err: errors.New("db down")}
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(ContextUserKey, &models.JWTClaims{UserID: "u-lib", Role: models.RoleLibrarian})
	})
	r.POST("/transactions/:id/return", Audit(repo, nil, models.AuditActionBookReturn, "book_transactions"), func(c *gin.Context) {
		if c.Param("id") == "closed" {
			c.Status(http.StatusConflict)
			return
		}
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodPost, "/transactions/t1/return", "").Code)
	assert.Equal(t, http.StatusConflict, doRequest(r, http.MethodPost, "/transactions/closed/return", "").Code)

	require.Len(t, repo.logs, 1)
	entry := repo.logs[0]
	assert.Equal(t, models.AuditActionBookReturn, entry.Action)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "u-lib", *entry.UserID)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, "t1", *entry.ResourceID)
	assert.Contains(t, string(entry.NewValues), `"status":200`)
}

func TestMetricsAndResponseMeta(t *testing.T) {
	observer := &recordingObserver{}
	var meta map[string]interface{}
	r := gin.New()
	r.Use(Metrics(observer), WithResponseMeta())
	r.GET("/lending/summary", func(c *gin.Context) {
		SetCacheHit(c, true)
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})

	doRequest(r, http.MethodGet, "/lending/summary", "")
	assert.Equal(t, "/lending/summary", observer.path)
	assert.Equal(t, http.StatusOK, observer.status)
	assert.Equal(t, true, meta["cache_hit"])
	assert.Contains(t, meta, "processing_time_ms")
	assert.NotContains(t, meta, "started_at")

	doRequest(r, http.MethodGet, "/nowhere", "")
	assert.Equal(t, "unmatched", observer.path)
}
