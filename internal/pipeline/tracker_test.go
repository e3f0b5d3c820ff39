package pipeline

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/MimeLyc/kidz-gpt/internal/cache"
	"github.com/MimeLyc/kidz-gpt/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDeferred(t *testing.T, h *harness) (*Coordinator, *jobs.Queue) {
	t.Helper()
	q := jobs.NewQueue(1, nil)
	c := h.coordinator(WithDeferredExplainer(q))
	q.Start(c.RunExplainerJob)
	t.Cleanup(q.Stop)
	return c, q
}

func TestDeferred_PendingThenReady(t *testing.T) {
	h := newHarness()
	c, _ := newDeferred(t, h)
	ctx := context.Background()
	require.True(t, c.Deferred())

	rec, err := c.Process(ctx, Query{Text: "Why is the sun bright?", DeclaredLanguage: "en"})
	require.NoError(t, err)
	assert.Equal(t, cache.ExplainerPending, rec.ExplainerStatus)
	assert.Nil(t, rec.Explainer)
	assert.NotEmpty(t, rec.AnimationScenes)

	require.Eventually(t, func() bool {
		state, err := c.Poll(ctx, rec.JobID)
		return err == nil && state.Status == cache.ExplainerReady
	}, 2*time.Second, 10*time.Millisecond)

	state, err := c.Poll(ctx, rec.JobID)
	require.NoError(t, err)
	assert.Equal(t, rec.JobID, state.JobID)
	require.NotNil(t, state.Explainer)
	assert.Len(t, state.Explainer.Points, 3)
	assert.Nil(t, state.Error)

	// The rest of the record is untouched by the patch.
	full, ok, err := h.cache.Get(ctx, rec.JobID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec.Scenes, full.Scenes)
	assert.Equal(t, rec.AnimationScenes, full.AnimationScenes)
}

func TestDeferred_PendingThenFallback(t *testing.T) {
	h := newHarness()
	h.explainer.err = errors.New("model offline")
	c, _ := newDeferred(t, h)
	ctx := context.Background()

	rec, err := c.Process(ctx, Query{Text: "How do fish breathe?", DeclaredLanguage: "en"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		state, err := c.Poll(ctx, rec.JobID)
		return err == nil && state.Status == cache.ExplainerFallback
	}, 2*time.Second, 10*time.Millisecond)

	state, err := c.Poll(ctx, rec.JobID)
	require.NoError(t, err)
	require.NotNil(t, state.Error)
	assert.Contains(t, *state.Error, "model offline")
	require.NotNil(t, state.Explainer)
	assert.Len(t, state.Explainer.Points, 3)
}

func TestDeferred_TerminalStatusIsNotOverwritten(t *testing.T) {
	h := newHarness()
	c := h.coordinator()
	ctx := context.Background()

	rec, err := c.Process(ctx, Query{Text: "Why is the sun bright?", DeclaredLanguage: "en"})
	require.NoError(t, err)
	require.Equal(t, cache.ExplainerReady, rec.ExplainerStatus)

	h.explainer.err = errors.New("should not run")
	require.NoError(t, c.RunExplainerJob(ctx, &jobs.Job{
		ID:      "job-1",
		Payload: jobs.ExplainerPayload{RecordID: rec.JobID, Topic: "sun", Language: "en"},
	}))

	state, err := c.Poll(ctx, rec.JobID)
	require.NoError(t, err)
	assert.Equal(t, cache.ExplainerReady, state.Status)
	assert.Equal(t, int32(1), h.explainer.calls.Load())
}

func TestRunExplainerJob_MissingRecord(t *testing.T) {
	h := newHarness()
	c := h.coordinator()

	err := c.RunExplainerJob(context.Background(), &jobs.Job{ID: "job-1", Payload: jobs.ExplainerPayload{RecordID: "nope"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestPoll_UnknownJob(t *testing.T) {
	c := NewCoordinator(nil, nil, nil, Collaborators{})

	_, err := c.Poll(context.Background(), "does-not-exist")
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrUnknownJob))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(err))

	_, err = c.Poll(context.Background(), "")
	assert.True(t, IsErrorType(err, ErrValidation))
}

func TestPoll_BackfillsLegacyRecord(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	require.NoError(t, h.cache.Save(ctx, "legacy", &cache.Record{
		Explainer: &cache.Explainer{Title: "Old", Points: []string{"a", "b", "c"}},
	}))
	c := h.coordinator()

	state, err := c.Poll(ctx, "legacy")
	require.NoError(t, err)
	assert.Equal(t, "legacy", state.JobID)
	assert.Equal(t, cache.ExplainerReady, state.Status)
}

func TestDeferred_RequeueFromCacheKeepsGrade(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	question := Query{Text: "Why is grass green?", DeclaredLanguage: "en", GradeHint: "3"}

	// Queues are left unstarted so jobs stay pending for inspection.
	first := jobs.NewQueue(1, nil)
	t.Cleanup(first.Stop)
	rec, err := h.coordinator(WithDeferredExplainer(first)).Process(ctx, question)
	require.NoError(t, err)
	assert.Equal(t, "3", rec.Grade)
	job, ok := first.Lookup(rec.JobID)
	require.True(t, ok)
	assert.Equal(t, "3", job.Payload.Grade)

	// A restarted process with an empty queue finds the pending record in the cache.
	second := jobs.NewQueue(1, nil)
	t.Cleanup(second.Stop)
	again, err := h.coordinator(WithDeferredExplainer(second)).Process(ctx, Query{Text: question.Text, DeclaredLanguage: "en"})
	require.NoError(t, err)
	assert.Equal(t, cache.ExplainerPending, again.ExplainerStatus)

	requeued, ok := second.Lookup(rec.JobID)
	require.True(t, ok)
	assert.Equal(t, "cache", requeued.Source)
	assert.Equal(t, "3", requeued.Payload.Grade)
}

func TestDeferred_ShutdownMidExplainLeavesRecordPending(t *testing.T) {
	h := newHarness()
	h.explainer.hang.Store(true)
	h.explainer.entered = make(chan struct{}, 1)
	ctx := context.Background()
	question := Query{Text: "Where does rain come from?", DeclaredLanguage: "en"}

	first := jobs.NewQueue(1, nil)
	c := h.coordinator(WithDeferredExplainer(first))
	first.Start(c.RunExplainerJob)

	rec, err := c.Process(ctx, question)
	require.NoError(t, err)
	require.Equal(t, cache.ExplainerPending, rec.ExplainerStatus)

	select {
	case <-h.explainer.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("explainer did not start")
	}
	first.Stop()

	state, err := c.Poll(ctx, rec.JobID)
	require.NoError(t, err)
	assert.Equal(t, cache.ExplainerPending, state.Status, "no fallback is written on shutdown")
	assert.Nil(t, state.Explainer)
	assert.Nil(t, state.Error)

	job, ok := first.Lookup(rec.JobID)
	require.True(t, ok)
	assert.Equal(t, jobs.StatusPending, job.Status)

	// The next process picks the pending record up again and finishes it.
	h.explainer.hang.Store(false)
	second := jobs.NewQueue(1, nil)
	c2 := h.coordinator(WithDeferredExplainer(second))
	second.Start(c2.RunExplainerJob)
	t.Cleanup(second.Stop)

	again, err := c2.Process(ctx, question)
	require.NoError(t, err)
	assert.Equal(t, rec.JobID, again.JobID)

	require.Eventually(t, func() bool {
		state, err := c2.Poll(ctx, rec.JobID)
		return err == nil && state.Status == cache.ExplainerReady
	}, 2*time.Second, 10*time.Millisecond)
}
