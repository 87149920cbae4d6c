package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/library-api/internal/repository"
	"github.com/noah-isme/library-api/internal/service"
	"github.com/noah-isme/library-api/pkg/cache"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Mark every issued loan past its due date as overdue, once",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		// Redis is optional here; a stale summary only lives until its TTL.
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, summary cache not invalidated", "error", err)
			client = nil
		}
		cacheRepo := repository.NewCacheRepository(client, logr)
		defer cacheRepo.Close() //nolint:errcheck
		cacheSvc := service.NewCacheService(cacheRepo, nil, cfg.Lending.SummaryCacheTTL, logr, client != nil)

		lending := service.NewLendingService(
			repository.NewLendingRepository(db),
			repository.NewTransactionRepository(db),
			cacheSvc, nil, nil, logr,
			service.LendingConfig{FinePerDay: cfg.Lending.FinePerDay, SummaryCacheTTL: cfg.Lending.SummaryCacheTTL},
		)
		res, err := lending.SweepOverdue(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "marked %d loan(s) overdue as of %s\n", res.Marked, res.RanAt.Format("2006-01-02 15:04:05"))
		for _, id := range res.TransactionIDs {
			fmt.Fprintln(cmd.OutOrStdout(), "  "+id)
		}
		return nil
	},
}
