package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_Worker_TransitionsStatus(t *testing.T) {
	q := NewQueue(1, nil)
	seen := make(chan ExplainerPayload, 1)
	q.Start(func(_ context.Context, job *Job) error {
		seen <- job.Payload
		return nil
	})
	defer q.Stop()

	job, _ := q.Enqueue(EnqueueRequest{
		Source:    "process",
		DedupeKey: "k1",
		Payload:   ExplainerPayload{RecordID: "k1", Topic: "rain", Language: "hi"},
	})

	require.Eventually(t, func() bool {
		got, ok := q.Get(job.ID)
		if !ok || got == nil {
			return false
		}
		return got.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)

	payload := <-seen
	assert.Equal(t, "rain", payload.Topic)
	assert.Equal(t, "hi", payload.Language)
}
