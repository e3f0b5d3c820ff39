package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

func newMemoryStore() *memoryStore {
	return &memoryStore{jobs: make(map[string]*Job)}
}

func (m *memoryStore) LoadJobs(_ context.Context) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		ret = append(ret, cloneJob(j))
	}
	return ret, nil
}

func (m *memoryStore) UpsertJob(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

func (m *memoryStore) DeleteJob(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, jobID)
	return nil
}

func (m *memoryStore) get(id string) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	return cloneJob(j), ok
}

func TestQueue_RecoversPendingAndRunningJobsFromStore(t *testing.T) {
	store := newMemoryStore()
	now := time.Now()
	store.jobs["job-1"] = &Job{
		ID:        "job-1",
		Source:    "process",
		DedupeKey: "rec1",
		Status:    StatusPending,
		Payload:   ExplainerPayload{RecordID: "rec1", Topic: "moon"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	store.jobs["job-2"] = &Job{
		ID:        "job-2",
		Source:    "process",
		DedupeKey: "rec2",
		Status:    StatusRunning,
		Payload:   ExplainerPayload{RecordID: "rec2", Topic: "stars"},
		CreatedAt: now,
		UpdatedAt: now,
	}

	q := NewQueue(1, store)

	jobs := q.List()
	require.Len(t, jobs, 2)
	byID := map[string]*Job{}
	for _, j := range jobs {
		byID[j.ID] = j
	}
	require.Contains(t, byID, "job-2")
	assert.Equal(t, StatusPending, byID["job-2"].Status)

	q.Start(func(_ context.Context, _ *Job) error { return nil })
	defer q.Stop()

	require.Eventually(t, func() bool {
		got, ok := q.Get("job-1")
		return ok && got.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		got, ok := q.Get("job-2")
		return ok && got.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		got, ok := store.get("job-2")
		return ok && got.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)
}

func TestQueue_ContinuesIDSequenceAfterRecovery(t *testing.T) {
	store := newMemoryStore()
	now := time.Now()
	store.jobs["job-7"] = &Job{ID: "job-7", DedupeKey: "old", Status: StatusSuccess, CreatedAt: now, UpdatedAt: now}

	q := NewQueue(1, store)
	job, created := q.Enqueue(EnqueueRequest{DedupeKey: "new"})
	require.True(t, created)
	assert.Equal(t, "job-8", job.ID)

	persisted, ok := store.get("job-8")
	require.True(t, ok)
	assert.Equal(t, StatusPending, persisted.Status)
}

func TestQueue_StopMidRunLeavesJobPendingForNextProcess(t *testing.T) {
	store := newMemoryStore()
	q := NewQueue(1, store)
	entered := make(chan struct{})
	q.Start(func(ctx context.Context, _ *Job) error {
		close(entered)
		<-ctx.Done()
		return ctx.Err()
	})

	job, created := q.Enqueue(EnqueueRequest{
		Source:    "process",
		DedupeKey: "rec1",
		Payload:   ExplainerPayload{RecordID: "rec1", Topic: "moon"},
	})
	require.True(t, created)

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("executor did not start")
	}
	q.Stop()

	persisted, ok := store.get(job.ID)
	require.True(t, ok)
	assert.Equal(t, StatusPending, persisted.Status)
	assert.Empty(t, persisted.Error)

	inMemory, ok := q.Lookup("rec1")
	require.True(t, ok, "dedupe key stays reserved for the interrupted job")
	assert.Equal(t, job.ID, inMemory.ID)

	q2 := NewQueue(1, store)
	var ran string
	var mu sync.Mutex
	q2.Start(func(_ context.Context, j *Job) error {
		mu.Lock()
		ran = j.Payload.RecordID
		mu.Unlock()
		return nil
	})
	defer q2.Stop()

	require.Eventually(t, func() bool {
		got, ok := store.get(job.ID)
		return ok && got.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, "rec1", ran)
	mu.Unlock()
}
