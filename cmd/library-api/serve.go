package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/noah-isme/library-api/internal/handler"
	"github.com/noah-isme/library-api/internal/repository"
	"github.com/noah-isme/library-api/internal/server"
	"github.com/noah-isme/library-api/internal/service"
	"github.com/noah-isme/library-api/pkg/cache"
	"github.com/noah-isme/library-api/pkg/database"
	"github.com/noah-isme/library-api/pkg/jobs"
	"github.com/noah-isme/library-api/pkg/middleware/ratelimit"
	"github.com/noah-isme/library-api/pkg/storage"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the overdue sweep scheduler",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Bool("migrate", false, "apply pending migrations before serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := logr.Sugar()

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	if migrate, _ := cmd.Flags().GetBool("migrate"); migrate {
		if err := database.Migrate(ctx, db, logr); err != nil {
			return err
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	validate := validator.New()
	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Lending.SummaryCacheTTL, logr, redisClient != nil)

	bookRepo := repository.NewBookRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	userRepo := repository.NewUserRepository(db)
	txRepo := repository.NewTransactionRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	bookSvc := service.NewBookService(bookRepo, cacheSvc, validate, logr, cfg.Lending.SummaryCacheTTL)
	studentSvc := service.NewStudentService(studentRepo, txRepo, validate, logr, cfg.Lending.DefaultMaxBooks)
	lendingSvc := service.NewLendingService(repository.NewLendingRepository(db), txRepo, cacheSvc, metrics, validate, logr, service.LendingConfig{
		FinePerDay:      cfg.Lending.FinePerDay,
		SummaryCacheTTL: cfg.Lending.SummaryCacheTTL,
	})

	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return err
	}
	exportSvc := service.NewExportService(txRepo, files, storage.NewSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL), service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
	}, logr, nil, nil)

	queue := jobs.NewQueue("maintenance", jobs.Config{Workers: 1, MaxRetries: 3, RetryDelay: 30 * time.Second, Logger: logr})
	queue.Start(ctx)
	defer queue.Stop()

	sweepEvery := cfg.Lending.SweepInterval
	if !cfg.Lending.SweepEnabled {
		sweepEvery = 0
	}
	service.NewScheduler(queue, lendingSvc, exportSvc, service.SchedulerConfig{
		SweepInterval:   sweepEvery,
		CleanupInterval: cfg.Exports.CleanupInterval,
	}, logr).Start(ctx)

	limiter := ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	go limiter.Run(ctx)

	router := server.NewRouter(server.Deps{
		Config:  cfg,
		Logger:  logr,
		Auth:    authSvc,
		Metrics: metrics,
		Audit:   userRepo,
		Limiter: limiter,
	}, server.Handlers{
		Auth:         handler.NewAuthHandler(authSvc),
		Books:        handler.NewBookHandler(bookSvc),
		Students:     handler.NewStudentHandler(studentSvc),
		Transactions: handler.NewTransactionHandler(lendingSvc),
		Exports:      handler.NewExportHandler(exportSvc),
		Metrics:      handler.NewMetricsHandler(metrics),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "sweep_interval", sweepEvery.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
