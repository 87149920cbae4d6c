package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/library-api/internal/dto"
	"github.com/noah-isme/library-api/pkg/jobs"
)

type countingSweeper struct {
	calls   int32
	failFor int32
}

func (s *countingSweeper) SweepOverdue(context.Context) (*dto.SweepResult, error) {
	n := atomic.AddInt32(&s.calls, 1)
	if n <= atomic.LoadInt32(&s.failFor) {
		return nil, errors.New("database unavailable")
	}
	return &dto.SweepResult{Marked: 1}, nil
}

type countingCleaner struct {
	mu    sync.Mutex
	calls int
}

func (c *countingCleaner) Cleanup(time.Duration) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return []string{"old.csv"}, nil
}

func (c *countingCleaner) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestSchedulerRunsSweepThroughQueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := jobs.NewQueue("maintenance", jobs.Config{Workers: 1, MaxRetries: 2, RetryDelay: 10 * time.Millisecond})
	sweeper := &countingSweeper{failFor: 1}
	cleaner := &countingCleaner{}
	scheduler := NewScheduler(queue, sweeper, cleaner, SchedulerConfig{SweepInterval: time.Hour, CleanupInterval: 20 * time.Millisecond}, nil)

	queue.Start(ctx)
	defer queue.Stop()
	scheduler.Start(ctx)

	// The immediate sweep fails once and is retried by the queue.
	require.Eventually(t, func() bool { return atomic.LoadInt32(&sweeper.calls) >= 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return cleaner.count() >= 1 }, time.Second, 5*time.Millisecond)
}

func TestSchedulerDisabledIntervals(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := jobs.NewQueue("maintenance", jobs.Config{Workers: 1})
	sweeper := &countingSweeper{}
	scheduler := NewScheduler(queue, sweeper, nil, SchedulerConfig{}, nil)
	queue.Start(ctx)
	defer queue.Stop()
	scheduler.Start(ctx)

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&sweeper.calls))
	assert.ErrorIs(t, queue.Enqueue(jobs.Job{Type: JobExportCleanup}), jobs.ErrUnknownJobType)
}
