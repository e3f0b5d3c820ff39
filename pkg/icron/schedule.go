package icron

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

type TriggerInfo struct {
	Next       time.Time
	Last       time.Time
	Expression string

	TimeSinceLast time.Duration
	TimeUntilNext time.Duration
}

// GetTriggerInfo reports the neighbouring fire times of a standard
// five-field expression or descriptor such as "@hourly".
func GetTriggerInfo(cronExpr string, refTime time.Time) (*TriggerInfo, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	nextTime := schedule.Next(refTime)

	var prevTime time.Time
	searchStart := refTime.Add(-time.Minute)

	for i := range 366 * 24 {
		checkTime := searchStart.Add(-time.Duration(i) * time.Hour)
		candidateNext := schedule.Next(checkTime)

		if candidateNext.Before(refTime) ||
			candidateNext.Equal(refTime) {
			prevTime = candidateNext
			break
		}
	}

	info := &TriggerInfo{
		Expression: cronExpr,
		Next:       nextTime,
		Last:       prevTime,
	}

	if !prevTime.IsZero() {
		info.TimeSinceLast = refTime.Sub(prevTime)
	}

	info.TimeUntilNext = nextTime.Sub(refTime)

	return info, nil
}

// Job is a single cron entry whose expression can be swapped while the
// engine runs.
type Job struct {
	mu     sync.Mutex
	engine *cron.Cron
	id     cron.EntryID
	expr   string
	fn     func()
}

func NewJob(engine *cron.Cron, fn func()) *Job {
	return &Job{engine: engine, fn: fn}
}

// Schedule registers fn under expr, replacing any previous entry. On a parse
// error the previous entry keeps running.
func (j *Job) Schedule(expr string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.id != 0 && expr == j.expr {
		return nil
	}
	id, err := j.engine.AddFunc(expr, j.fn)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	if j.id != 0 {
		j.engine.Remove(j.id)
	}
	j.id = id
	j.expr = expr
	return nil
}

func (j *Job) Expression() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.expr
}
