package jobs

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Terminal reports whether the job will not run again.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

type EnqueueRequest struct {
	Source    string
	DedupeKey string
	Payload   ExplainerPayload
}

// ExplainerPayload is everything a worker needs to generate one explainer
// and patch it into the cached record.
type ExplainerPayload struct {
	RecordID string `json:"record_id"`
	Topic    string `json:"topic"`
	Question string `json:"question"`
	Language string `json:"language"`
	Grade    string `json:"grade,omitempty"`
}

type Job struct {
	ID        string           `json:"id"`
	Source    string           `json:"source"`
	DedupeKey string           `json:"dedupe_key"`
	Payload   ExplainerPayload `json:"payload"`
	Status    Status           `json:"status"`
	Attempts  int              `json:"attempts"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}
