package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/library-api/internal/dto"
	"github.com/noah-isme/library-api/pkg/jobs"
)

// Job types handled by the maintenance queue.
const (
	JobOverdueSweep  = "overdue_sweep"
	JobExportCleanup = "export_cleanup"
)

type jobQueue interface {
	Register(jobType string, h jobs.Handler)
	Enqueue(job jobs.Job) error
}

type overdueSweeper interface {
	SweepOverdue(ctx context.Context) (*dto.SweepResult, error)
}

type exportCleaner interface {
	Cleanup(ttl time.Duration) ([]string, error)
}

// SchedulerConfig sets the tick interval per job type. A non-positive interval disables that job.
type SchedulerConfig struct {
	SweepInterval   time.Duration
	CleanupInterval time.Duration
}

// Scheduler enqueues periodic maintenance jobs. The queue runs them and owns retries.
type Scheduler struct {
	queue   jobQueue
	sweeper overdueSweeper
	cleaner exportCleaner
	cfg     SchedulerConfig
	logger  *zap.Logger
}

// NewScheduler registers the job handlers on queue. cleaner may be nil.
func NewScheduler(queue jobQueue, sweeper overdueSweeper, cleaner exportCleaner, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{queue: queue, sweeper: sweeper, cleaner: cleaner, cfg: cfg, logger: logger}
	queue.Register(JobOverdueSweep, s.handleSweep)
	if cleaner != nil {
		queue.Register(JobExportCleanup, s.handleCleanup)
	}
	return s
}

// Start launches one ticker goroutine per enabled job. The first sweep is
// enqueued immediately so a restart does not wait a full interval.
func (s *Scheduler) Start(ctx context.Context) {
	if s.cfg.SweepInterval > 0 {
		s.enqueue(JobOverdueSweep)
		go s.loop(ctx, JobOverdueSweep, s.cfg.SweepInterval)
	}
	if s.cleaner != nil && s.cfg.CleanupInterval > 0 {
		go s.loop(ctx, JobExportCleanup, s.cfg.CleanupInterval)
	}
}

func (s *Scheduler) loop(ctx context.Context, jobType string, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.enqueue(jobType)
		}
	}
}

func (s *Scheduler) enqueue(jobType string) {
	if err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: jobType}); err != nil {
		s.logger.Warn("failed to enqueue job", zap.String("type", jobType), zap.Error(err))
	}
}

func (s *Scheduler) handleSweep(ctx context.Context, job jobs.Job) error {
	res, err := s.sweeper.SweepOverdue(ctx)
	if err != nil {
		return fmt.Errorf("overdue sweep: %w", err)
	}
	s.logger.Debug("scheduled sweep done", zap.String("job_id", job.ID), zap.Int("marked", res.Marked))
	return nil
}

func (s *Scheduler) handleCleanup(_ context.Context, job jobs.Job) error {
	purged, err := s.cleaner.Cleanup(0)
	if err != nil {
		return fmt.Errorf("export cleanup: %w", err)
	}
	if len(purged) > 0 {
		s.logger.Info("expired exports removed", zap.String("job_id", job.ID), zap.Int("files", len(purged)))
	}
	return nil
}
