package main

import (
	"context"
	"time"

	"github.com/MimeLyc/kidz-gpt/internal/cache"
	"github.com/MimeLyc/kidz-gpt/pkg/file"
	"github.com/MimeLyc/kidz-gpt/pkg/icron"
	"github.com/MimeLyc/kidz-gpt/pkg/log"
	"github.com/robfig/cron/v3"
)

// audioSlack keeps audio a little longer than the records that reference it;
// scene audio is written shortly before its record is saved.
const audioSlack = time.Hour

type sweepTarget interface {
	Sweep(ctx context.Context, ttl time.Duration) (int, error)
}

// sweeper expires cached records and orphaned scene audio on a cron schedule.
type sweeper struct {
	records  sweepTarget
	ttl      time.Duration
	expr     string
	audioDir string
	job      *icron.Job
	now      func() time.Time
}

func newSweeper(engine *cron.Cron, records sweepTarget, ttl time.Duration, expr, audioDir string) *sweeper {
	s := &sweeper{
		records:  records,
		ttl:      ttl,
		expr:     expr,
		audioDir: audioDir,
		now:      time.Now,
	}
	s.job = icron.NewJob(engine, func() { s.run(context.Background()) })
	return s
}

var _ sweepTarget = (*cache.Cache)(nil)

func (s *sweeper) Schedule(context.Context) error {
	if s.ttl <= 0 {
		log.Info("CACHE_TTL is 0, cached answers never expire")
		return nil
	}
	return s.Reschedule(s.expr)
}

// Reschedule swaps the sweep expression. It is a no-op while records never
// expire.
func (s *sweeper) Reschedule(expr string) error {
	if s.ttl <= 0 {
		return nil
	}
	if err := s.job.Schedule(expr); err != nil {
		return err
	}
	if info, err := icron.GetTriggerInfo(expr, s.now()); err == nil {
		log.Info("Cache sweep scheduled with %q, next run in %s", expr, info.TimeUntilNext.Round(time.Second))
	}
	return nil
}

func (s *sweeper) run(ctx context.Context) {
	removed, err := s.records.Sweep(ctx, s.ttl)
	if err != nil {
		log.Error("Cache sweep failed: %v", err)
		return
	}
	if s.audioDir == "" {
		log.Info("Cache sweep removed %d records", removed)
		return
	}
	files, err := file.RemoveOlderThan(s.audioDir, s.now().Add(-s.ttl-audioSlack))
	if err != nil {
		log.Error("Audio sweep failed: %v", err)
	}
	log.Info("Cache sweep removed %d records and %d audio files", removed, files)
}
