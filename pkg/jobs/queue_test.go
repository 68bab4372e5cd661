package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRunsJobs(t *testing.T) {
	var mu sync.Mutex
	seen := []string{}
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, job.ID)
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	for _, id := range []string{"a", "b", "c"} {
		queued, err := q.Enqueue(Job{ID: id})
		require.NoError(t, err)
		assert.True(t, queued)
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, time.Second, 10*time.Millisecond)
}

func TestQueueRejectsWhenNotStarted(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Job) error { return nil }, QueueConfig{})

	_, err := q.Enqueue(Job{ID: "a"})
	assert.True(t, errors.Is(err, ErrQueueStopped))
}

func TestQueueCoalescesPendingKeysAndReportsFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	q := NewQueue("busy", func(ctx context.Context, job Job) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 2})
	q.Start(context.Background())
	defer func() {
		close(release)
		q.Stop()
	}()

	_, err := q.Enqueue(Job{ID: "running"})
	require.NoError(t, err)
	<-started

	queued, err := q.Enqueue(Job{ID: "1", Key: "room:r1"})
	require.NoError(t, err)
	assert.True(t, queued)

	queued, err = q.Enqueue(Job{ID: "2", Key: "room:r1"})
	require.NoError(t, err)
	assert.False(t, queued)

	_, err = q.Enqueue(Job{ID: "3", Key: "room:r2"})
	require.NoError(t, err)
	assert.Equal(t, 2, q.Depth())

	_, err = q.Enqueue(Job{ID: "4", Key: "room:r3"})
	assert.True(t, errors.Is(err, ErrQueueFull))
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var calls int32
	q := NewQueue("retry", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	_, err := q.Enqueue(Job{ID: "flaky", Key: "course:c1"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 3
	}, time.Second, 5*time.Millisecond)
}
