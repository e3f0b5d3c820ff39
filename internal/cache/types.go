package cache

import "time"

type ExplainerStatus string

const (
	ExplainerPending  ExplainerStatus = "pending"
	ExplainerReady    ExplainerStatus = "ready"
	ExplainerFallback ExplainerStatus = "fallback"
)

// Terminal reports whether no further transition is allowed.
func (s ExplainerStatus) Terminal() bool {
	return s == ExplainerReady || s == ExplainerFallback
}

type Intent struct {
	Topic        string `json:"topic"`
	QuestionType string `json:"question_type"`
	Difficulty   string `json:"difficulty"`
}

// Scene is one storyboard beat.
type Scene struct {
	Index      int     `json:"scene"`
	Background string  `json:"background"`
	Dialogue   string  `json:"dialogue"`
	Audio      string  `json:"audio"`
	Duration   float64 `json:"duration"`
	Character  string  `json:"character"`
}

type Explainer struct {
	Title        string   `json:"title"`
	Summary      string   `json:"summary"`
	Points       []string `json:"points"`
	ImageKeyword string   `json:"image_keyword,omitempty"`
	ImageURL     string   `json:"image_url,omitempty"`
}

type Animation struct {
	Action string `json:"action"`
	Loop   bool   `json:"loop"`
}

type Dialogue struct {
	Text string `json:"text"`
}

// AnimationScene drives the real-time character renderer.
type AnimationScene struct {
	SceneID   int       `json:"scene_id"`
	Character string    `json:"character"`
	Animation Animation `json:"animation"`
	Dialogue  Dialogue  `json:"dialogue"`
	Duration  float64   `json:"duration"`
}

// Record is the memoized result of one question.
type Record struct {
	JobID           string           `json:"job_id"`
	Language        string           `json:"language"`
	Text            string           `json:"text"`
	Grade           string           `json:"grade,omitempty"`
	Intent          Intent           `json:"intent"`
	Explainer       *Explainer       `json:"explainer"`
	ExplainerStatus ExplainerStatus  `json:"explainer_status"`
	ExplainerError  *string          `json:"explainer_error"`
	Scenes          []Scene          `json:"scenes"`
	AnimationScenes []AnimationScene `json:"animation_scenes"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Servable reports whether the record carries enough to answer a request.
// The explainer may still be pending.
func (r *Record) Servable() bool {
	return r != nil && len(r.Scenes) > 0 && len(r.AnimationScenes) > 0
}

// Clone returns a deep copy so callers never share slices with the store.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	tmp := *r
	if r.Explainer != nil {
		e := *r.Explainer
		e.Points = append([]string(nil), r.Explainer.Points...)
		tmp.Explainer = &e
	}
	if r.ExplainerError != nil {
		msg := *r.ExplainerError
		tmp.ExplainerError = &msg
	}
	tmp.Scenes = append([]Scene(nil), r.Scenes...)
	tmp.AnimationScenes = append([]AnimationScene(nil), r.AnimationScenes...)
	return &tmp
}
