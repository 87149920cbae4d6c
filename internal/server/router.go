// Package server assembles the gin engine for the library API.
package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/library-api/api/swagger"
	"github.com/noah-isme/library-api/internal/handler"
	"github.com/noah-isme/library-api/internal/middleware"
	"github.com/noah-isme/library-api/internal/models"
	"github.com/noah-isme/library-api/internal/service"
	"github.com/noah-isme/library-api/pkg/config"
	"github.com/noah-isme/library-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/library-api/pkg/middleware/cors"
	"github.com/noah-isme/library-api/pkg/middleware/ratelimit"
	reqidmiddleware "github.com/noah-isme/library-api/pkg/middleware/requestid"
)

// Handlers groups every HTTP handler mounted by NewRouter.
type Handlers struct {
	Auth         *handler.AuthHandler
	Books        *handler.BookHandler
	Students     *handler.StudentHandler
	Transactions *handler.TransactionHandler
	Exports      *handler.ExportHandler
	Metrics      *handler.MetricsHandler
}

// Deps carries the cross-cutting services the middleware chain needs.
type Deps struct {
	Config  *config.Config
	Logger  *zap.Logger
	Auth    *service.AuthService
	Metrics *service.MetricsService
	Audit   middleware.AuditWriter
	Limiter *ratelimit.Limiter
}

// NewRouter builds the engine with the middleware chain and every route under the API prefix.
func NewRouter(deps Deps, h Handlers) *gin.Engine {
	cfg := deps.Config
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics))
	r.Use(deps.Limiter.Middleware())

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", h.Metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	prefix := "/" + strings.Trim(cfg.APIPrefix, "/")
	api := r.Group(prefix, middleware.WithResponseMeta())

	api.POST("/auth/login", h.Auth.Login)
	// Signed token in the path authorizes the download.
	api.GET("/exports/:token", h.Exports.Download)

	secured := api.Group("", middleware.JWT(deps.Auth), middleware.Staff())
	secured.GET("/auth/me", h.Auth.Me)
	secured.GET("/metrics/summary", h.Metrics.Snapshot)

	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(deps.Audit, deps.Logger, action, resource)
	}

	books := secured.Group("/books")
	books.GET("", h.Books.List)
	books.POST("", audit(models.AuditActionCreate, "books"), h.Books.Create)
	books.GET("/:id", h.Books.Get)
	books.PUT("/:id", audit(models.AuditActionUpdate, "books"), h.Books.Update)
	books.POST("/:id/issue", audit(models.AuditActionBookIssue, "book_transactions"), h.Transactions.Issue)

	students := secured.Group("/students")
	students.GET("", h.Students.List)
	students.POST("", audit(models.AuditActionCreate, "students"), h.Students.Create)
	students.GET("/:id", h.Students.Get)
	students.PUT("/:id", audit(models.AuditActionUpdate, "students"), h.Students.Update)
	students.DELETE("/:id", middleware.AdminOnly(), audit(models.AuditActionDelete, "students"), h.Students.Delete)
	students.GET("/:id/transactions", h.Students.Transactions)

	txs := secured.Group("/transactions")
	txs.GET("", h.Transactions.List)
	txs.GET("/overdue", h.Transactions.Overdue)
	txs.POST("/sweep", middleware.AdminOnly(), audit(models.AuditActionOverdueSweep, "book_transactions"), h.Transactions.Sweep)
	txs.GET("/:id", h.Transactions.Get)
	txs.GET("/:id/fine", h.Transactions.Fine)
	txs.POST("/:id/return", audit(models.AuditActionBookReturn, "book_transactions"), h.Transactions.Return)

	secured.GET("/lending/summary", h.Transactions.Summary)
	secured.POST("/exports/transactions", h.Exports.Create)

	return r
}
