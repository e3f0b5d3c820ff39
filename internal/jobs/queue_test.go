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

func TestQueue_Enqueue_DeduplicatesSameKey(t *testing.T) {
	q := NewQueue(2, nil)

	jobA, createdA := q.Enqueue(EnqueueRequest{
		Source:    "process",
		DedupeKey: "abc123",
		Payload:   ExplainerPayload{RecordID: "abc123", Topic: "sun"},
	})
	jobB, createdB := q.Enqueue(EnqueueRequest{
		Source:    "poll",
		DedupeKey: "abc123",
	})

	require.True(t, createdA)
	require.False(t, createdB)
	require.NotNil(t, jobA)
	require.NotNil(t, jobB)
	assert.Equal(t, jobA.ID, jobB.ID)
	assert.Equal(t, "sun", jobB.Payload.Topic)
}

func TestQueue_Enqueue_AllowsRetryAfterFailure(t *testing.T) {
	q := NewQueue(1, nil)

	var attempts atomic.Int32
	q.Start(func(_ context.Context, _ *Job) error {
		if attempts.Add(1) == 1 {
			return assert.AnError
		}
		return nil
	})
	defer q.Stop()

	first, created := q.Enqueue(EnqueueRequest{
		Source:    "process",
		DedupeKey: "retry-key",
	})
	require.True(t, created)
	require.NotNil(t, first)

	require.Eventually(t, func() bool {
		got, ok := q.Get(first.ID)
		return ok && got != nil && got.Status == StatusFailed
	}, time.Second, 10*time.Millisecond)

	got, _ := q.Get(first.ID)
	assert.Equal(t, assert.AnError.Error(), got.Error)
	assert.Equal(t, 1, got.Attempts)

	second, created := q.Enqueue(EnqueueRequest{
		Source:    "process",
		DedupeKey: "retry-key",
	})
	require.True(t, created)
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)

	require.Eventually(t, func() bool {
		got, ok := q.Get(second.ID)
		return ok && got != nil && got.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)
}

func TestQueue_Enqueue_AllowsRetryAfterSuccess(t *testing.T) {
	q := NewQueue(1, nil)
	q.Start(func(_ context.Context, _ *Job) error { return nil })
	defer q.Stop()

	first, created := q.Enqueue(EnqueueRequest{
		Source:    "process",
		DedupeKey: "done-key",
	})
	require.True(t, created)
	require.NotNil(t, first)

	require.Eventually(t, func() bool {
		got, ok := q.Get(first.ID)
		return ok && got != nil && got.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)

	second, created := q.Enqueue(EnqueueRequest{
		Source:    "process",
		DedupeKey: "done-key",
	})
	require.True(t, created)
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestQueue_Lookup_FindsFinishedJobByKey(t *testing.T) {
	q := NewQueue(1, nil)
	q.Start(func(_ context.Context, _ *Job) error { return nil })
	defer q.Stop()

	job, _ := q.Enqueue(EnqueueRequest{DedupeKey: "lookup-key"})
	require.Eventually(t, func() bool {
		got, ok := q.Lookup("lookup-key")
		return ok && got.ID == job.ID && got.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)

	_, ok := q.Lookup("missing")
	assert.False(t, ok)
}

func TestQueue_PrunesOldestTerminalJobs(t *testing.T) {
	q := NewQueue(1, nil, WithMaxJobs(2))
	q.Start(func(_ context.Context, _ *Job) error { return nil })
	defer q.Stop()

	for _, key := range []string{"a", "b", "c"} {
		job, _ := q.Enqueue(EnqueueRequest{DedupeKey: key})
		require.Eventually(t, func() bool {
			got, ok := q.Get(job.ID)
			return ok && got.Status == StatusSuccess
		}, time.Second, 10*time.Millisecond)
	}

	assert.Len(t, q.List(), 2)
	_, ok := q.Get("job-1")
	assert.False(t, ok)
}

func TestQueue_Stop_CancelsRunningExecutor(t *testing.T) {
	q := NewQueue(1, nil)
	started := make(chan struct{})
	var cancelled atomic.Bool
	q.Start(func(ctx context.Context, _ *Job) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(errors.Is(ctx.Err(), context.Canceled))
		return ctx.Err()
	})

	q.Enqueue(EnqueueRequest{DedupeKey: "slow"})
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("executor did not start")
	}

	q.Stop()
	assert.True(t, cancelled.Load())
}
