package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MimeLyc/kidz-gpt/internal/cache"
	"github.com/MimeLyc/kidz-gpt/internal/jobs"
	"github.com/MimeLyc/kidz-gpt/pkg/log"
)

// ExplainerState is the polling view of one record's explainer.
type ExplainerState struct {
	JobID     string                `json:"job_id"`
	Status    cache.ExplainerStatus `json:"status"`
	Explainer *cache.Explainer      `json:"explainer"`
	Error     *string               `json:"error"`
}

// Poll returns the explainer state currently cached for jobID. It never
// waits for generation.
func (c *Coordinator) Poll(ctx context.Context, jobID string) (*ExplainerState, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, NewError(ErrValidation, "job_id is required")
	}
	rec, ok, err := c.cache.Get(ctx, jobID)
	if err != nil {
		return nil, WrapError(err, ErrUnknown, "read cache").WithContext("job_id", jobID)
	}
	if !ok {
		return nil, NewError(ErrUnknownJob, "unknown job_id").WithContext("job_id", jobID)
	}
	return &ExplainerState{
		JobID:     rec.JobID,
		Status:    rec.ExplainerStatus,
		Explainer: rec.Explainer,
		Error:     rec.ExplainerError,
	}, nil
}

func (c *Coordinator) enqueueExplainer(rec *cache.Record, source string) {
	job, created := c.queue.Enqueue(jobs.EnqueueRequest{
		Source:    source,
		DedupeKey: rec.JobID,
		Payload: jobs.ExplainerPayload{
			RecordID: rec.JobID,
			Topic:    rec.Intent.Topic,
			Question: rec.Text,
			Language: rec.Language,
			Grade:    rec.Grade,
		},
	})
	if created {
		log.Debug("queued explainer %s for %s", job.ID, rec.JobID)
	}
}

// RunExplainerJob is the jobs.Executor for deferred explainers. It patches
// only the explainer fields of the cached record and never moves a terminal
// status back.
func (c *Coordinator) RunExplainerJob(ctx context.Context, job *jobs.Job) error {
	if job == nil {
		return fmt.Errorf("nil job")
	}
	p := job.Payload
	if p.RecordID == "" {
		return fmt.Errorf("job %s has no record id", job.ID)
	}

	current, ok, err := c.cache.Get(ctx, p.RecordID)
	if err != nil {
		return fmt.Errorf("read record %s: %w", p.RecordID, err)
	}
	if !ok {
		return fmt.Errorf("record %s: %w", p.RecordID, cache.ErrNotFound)
	}
	if current.ExplainerStatus.Terminal() {
		return nil
	}

	explainer, status, errMsg := c.explain(ctx, ExplainTask{
		Topic:    p.Topic,
		Question: p.Question,
		Language: p.Language,
		Grade:    p.Grade,
	})
	if err := ctx.Err(); err != nil {
		// Whatever explain produced under a cancelled context is a fallback;
		// leave the record pending so the job runs again.
		return fmt.Errorf("explainer for %s interrupted: %w", p.RecordID, err)
	}

	_, err = c.cache.Update(ctx, p.RecordID, func(rec *cache.Record) error {
		if rec.ExplainerStatus.Terminal() {
			return nil
		}
		rec.Explainer = explainer
		rec.ExplainerStatus = status
		rec.ExplainerError = errMsg
		return nil
	})
	if errors.Is(err, cache.ErrNotFound) {
		return fmt.Errorf("record %s disappeared before the explainer finished: %w", p.RecordID, err)
	}
	if err != nil {
		return fmt.Errorf("update record %s: %w", p.RecordID, err)
	}
	log.Info("explainer for %s is %s", p.RecordID, status)
	return nil
}
