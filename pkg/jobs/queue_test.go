package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRetriesUntilSuccess(t *testing.T) {
	q := NewQueue("test", Config{Workers: 1, MaxRetries: 3, RetryDelay: 5 * time.Millisecond})
	var calls int32
	done := make(chan struct{})
	q.Register("sweep", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("db unavailable")
		}
		close(done)
		return nil
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "1", Type: "sweep"}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never succeeded")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestQueueRejectsUnknownTypeAndUnstarted(t *testing.T) {
	q := NewQueue("test", Config{})
	q.Register("sweep", func(context.Context, Job) error { return nil })

	assert.ErrorIs(t, q.Enqueue(Job{Type: "sweep"}), ErrNotStarted)

	q.Start(context.Background())
	defer q.Stop()
	assert.ErrorIs(t, q.Enqueue(Job{Type: "unknown"}), ErrUnknownJobType)
}

func TestQueueGivesUpAfterMaxRetries(t *testing.T) {
	q := NewQueue("test", Config{Workers: 2, MaxRetries: 1, RetryDelay: time.Millisecond})
	var calls int32
	q.Register("fail", func(context.Context, Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("nope")
	})
	q.Start(context.Background())
	require.NoError(t, q.Enqueue(Job{ID: "x", Type: "fail"}))

	time.Sleep(100 * time.Millisecond)
	q.Stop()
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
