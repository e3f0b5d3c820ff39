package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MimeLyc/kidz-gpt/internal/agent"
	"github.com/MimeLyc/kidz-gpt/internal/animation"
	"github.com/MimeLyc/kidz-gpt/internal/cache"
	"github.com/MimeLyc/kidz-gpt/internal/jobs"
	"github.com/MimeLyc/kidz-gpt/internal/language"
	"github.com/MimeLyc/kidz-gpt/internal/safety"
	"github.com/MimeLyc/kidz-gpt/internal/speech"
	"github.com/MimeLyc/kidz-gpt/pkg/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTranscribeTimeout = 120 * time.Second
	DefaultSynthTimeout      = 120 * time.Second
	DefaultGenerationTimeout = 90 * time.Second

	// SceneDuration is stamped on every storyboard scene, in seconds.
	SceneDuration = 4

	synthConcurrency = 3
	unsafeMessage    = "Please ask a different question"
)

// Query is one incoming question. Audio is transcribed unless the client
// already supplied Transcript.
type Query struct {
	Text             string
	Audio            []byte
	AudioName        string
	DeclaredLanguage string
	Character        string
	GradeHint        string
	Transcript       string
}

// Coordinator runs the request pipeline and owns the write path into the
// content cache.
type Coordinator struct {
	cache    *cache.Cache
	gate     *safety.Gate
	resolver *language.Resolver
	collab   Collaborators

	transcribeTimeout time.Duration
	synthTimeout      time.Duration
	generationTimeout time.Duration
	queue             *jobs.Queue

	charMu           sync.RWMutex
	defaultCharacter string

	flight singleflight.Group
}

type Option func(*Coordinator)

func WithTranscribeTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.transcribeTimeout = d
		}
	}
}

func WithSynthTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.synthTimeout = d
		}
	}
}

func WithGenerationTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.generationTimeout = d
		}
	}
}

// WithDefaultCharacter is used when a query carries no character preference.
func WithDefaultCharacter(name string) Option {
	return func(c *Coordinator) {
		c.defaultCharacter = strings.TrimSpace(name)
	}
}

// WithDeferredExplainer moves explainer generation onto q. The queue must be
// started with RunExplainerJob as its executor.
func WithDeferredExplainer(q *jobs.Queue) Option {
	return func(c *Coordinator) {
		c.queue = q
	}
}

func NewCoordinator(store *cache.Cache, gate *safety.Gate, resolver *language.Resolver, collab Collaborators, opts ...Option) *Coordinator {
	if store == nil {
		store = cache.New(nil)
	}
	if gate == nil {
		gate = safety.NewGate()
	}
	if resolver == nil {
		resolver = language.NewResolver()
	}
	c := &Coordinator{
		cache:             store,
		gate:              gate,
		resolver:          resolver,
		collab:            collab,
		transcribeTimeout: DefaultTranscribeTimeout,
		synthTimeout:      DefaultSynthTimeout,
		generationTimeout: DefaultGenerationTimeout,
		defaultCharacter:  animation.DefaultCharacter,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// SetDefaultCharacter changes the character used for queries without a
// preference. Cached records keep the character they were built with.
func (c *Coordinator) SetDefaultCharacter(name string) {
	c.charMu.Lock()
	c.defaultCharacter = strings.TrimSpace(name)
	c.charMu.Unlock()
}

func (c *Coordinator) characterPreference(pref string) string {
	if strings.TrimSpace(pref) != "" {
		return pref
	}
	c.charMu.RLock()
	defer c.charMu.RUnlock()
	return c.defaultCharacter
}

// Deferred reports whether explainers are generated after the response.
func (c *Coordinator) Deferred() bool {
	return c.queue != nil
}

// Process answers one query. Only transcription, validation and safety
// failures are returned as errors; every generation stage degrades to a
// deterministic fallback.
func (c *Coordinator) Process(ctx context.Context, q Query) (*cache.Record, error) {
	text, engineLang, err := c.inputText(ctx, q)
	if err != nil {
		return nil, err
	}

	if !c.gate.IsSafe(text) {
		log.Info("rejected unsafe question (matched %q)", c.gate.FirstMatch(text))
		return nil, NewError(ErrUnsafeInput, unsafeMessage)
	}

	jobID := c.cache.Key(text)
	if rec, ok := c.lookup(ctx, jobID); ok {
		log.Debug("cache hit for %s", jobID)
		return rec, nil
	}

	// Generation outlives the caller that started it: a disconnect must not
	// leave a record of fallbacks in the cache for everyone else. Each stage
	// is still bounded by its own timeout.
	genCtx := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(jobID, func() (any, error) {
		// A concurrent caller may have finished while we waited for the slot.
		if rec, ok := c.lookup(genCtx, jobID); ok {
			return rec, nil
		}
		return c.generate(genCtx, jobID, text, engineLang, q)
	})

	select {
	case <-ctx.Done():
		log.Info("caller for %s went away, generation continues in the background", jobID)
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			log.Debug("joined in-flight generation for %s", jobID)
		}
		return res.Val.(*cache.Record).Clone(), nil
	}
}

func (c *Coordinator) lookup(ctx context.Context, jobID string) (*cache.Record, bool) {
	rec, ok, err := c.cache.Lookup(ctx, jobID)
	if err != nil {
		log.Warn("cache lookup for %s failed: %v", jobID, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	if rec.ExplainerStatus == cache.ExplainerPending && c.queue != nil {
		c.enqueueExplainer(rec, "cache")
	}
	return rec, true
}

func (c *Coordinator) inputText(ctx context.Context, q Query) (string, string, error) {
	if t := strings.TrimSpace(q.Transcript); t != "" {
		return t, "", nil
	}
	if len(q.Audio) == 0 {
		text := strings.TrimSpace(q.Text)
		if text == "" {
			return "", "", NewError(ErrValidation, "question text is required")
		}
		return text, "", nil
	}

	if c.collab.Transcriber == nil {
		return "", "", NewError(ErrTranscription, "no transcriber configured")
	}
	tctx, cancel := context.WithTimeout(ctx, c.transcribeTimeout)
	defer cancel()

	hint := ""
	if code := language.Normalize(q.DeclaredLanguage); c.resolver.IsSupported(code) {
		hint = code
	}
	tr, err := c.collab.Transcriber.Transcribe(tctx, q.Audio, q.AudioName, hint)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return "", "", NewErrorWithCause(ErrTranscriptionTimeout, "transcription timed out", err).
				WithContext("timeout", c.transcribeTimeout.String())
		}
		return "", "", WrapError(err, ErrTranscription, "transcription failed")
	}
	if tr == nil || strings.TrimSpace(tr.Text) == "" || strings.TrimSpace(tr.Text) == speech.FailedTranscript {
		return "", "", NewError(ErrValidation, "transcription returned no usable text")
	}
	return strings.TrimSpace(tr.Text), tr.Language, nil
}

func (c *Coordinator) generate(ctx context.Context, jobID, text, engineLang string, q Query) (*cache.Record, error) {
	lang := c.resolver.Resolve(language.Signals{
		Declared: q.DeclaredLanguage,
		Engine:   engineLang,
		Text:     text,
	})
	log.Info("processing %s (lang=%s)", jobID, lang)

	intent := c.extractIntent(ctx, text, lang)

	character := animation.PickCharacter(c.characterPreference(q.Character), intent.Topic, text, lang)

	scenes := c.storyboard(ctx, intent, text, lang)
	lines := make([]string, len(scenes))
	for i, s := range scenes {
		lines[i] = s.Dialogue
	}
	if idx := c.gate.CheckAll(lines); idx >= 0 {
		return nil, NewError(ErrUnsafeGenerated, "generated answer failed the safety check").
			WithContext("scene", idx+1)
	}

	for i := range scenes {
		scenes[i].Index = i + 1
		scenes[i].Duration = SceneDuration
		scenes[i].Character = character
	}
	c.synthesizeScenes(ctx, scenes, lang)

	rec := &cache.Record{
		JobID:    jobID,
		Language: lang,
		Text:     text,
		Grade:    strings.TrimSpace(q.GradeHint),
		Intent:   intent,
		Scenes:   scenes,
	}

	title := intent.Topic
	if c.queue != nil {
		rec.ExplainerStatus = cache.ExplainerPending
	} else {
		explainer, status, errMsg := c.explain(ctx, ExplainTask{
			Topic:    intent.Topic,
			Question: text,
			Language: lang,
			Grade:    q.GradeHint,
		})
		rec.Explainer = explainer
		rec.ExplainerStatus = status
		rec.ExplainerError = errMsg
		title = explainer.Title
	}

	rec.AnimationScenes = c.animate(ctx, intent.Topic, text, scenes, lang, character, title)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("generation of %s interrupted: %w", jobID, err)
	}
	if err := c.cache.Save(ctx, jobID, rec); err != nil {
		log.Error("failed to cache %s: %v", jobID, err)
	}
	if c.queue != nil {
		c.enqueueExplainer(rec, "process")
	}
	return rec, nil
}

func (c *Coordinator) extractIntent(ctx context.Context, text, lang string) cache.Intent {
	if c.collab.Intent == nil {
		return agent.GuessIntent(text)
	}
	gctx, cancel := context.WithTimeout(ctx, c.generationTimeout)
	defer cancel()

	intent, err := c.collab.Intent.Extract(gctx, text, lang)
	if err != nil {
		log.Warn("intent extraction failed, guessing: %v", err)
		return agent.GuessIntent(text)
	}
	if strings.TrimSpace(intent.Topic) == "" {
		intent.Topic = agent.GuessIntent(text).Topic
	}
	return intent
}

func (c *Coordinator) storyboard(ctx context.Context, intent cache.Intent, text, lang string) []cache.Scene {
	var scenes []cache.Scene
	if c.collab.Storyboard != nil {
		gctx, cancel := context.WithTimeout(ctx, c.generationTimeout)
		defer cancel()

		var err error
		scenes, err = c.collab.Storyboard.Generate(gctx, intent, text, lang)
		if err != nil {
			log.Warn("storyboard generation failed: %v", err)
			scenes = nil
		}
	}
	out := make([]cache.Scene, 0, len(scenes))
	for _, s := range scenes {
		if strings.TrimSpace(s.Dialogue) != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return agent.TemplateStoryboard(intent.Topic, lang)
	}
	return out
}

// synthesizeScenes fills scene audio. Each scene has its own deadline and a
// failed scene keeps an empty placeholder.
func (c *Coordinator) synthesizeScenes(ctx context.Context, scenes []cache.Scene, lang string) {
	if c.collab.Synthesizer == nil {
		return
	}
	var g errgroup.Group
	g.SetLimit(synthConcurrency)
	for i := range scenes {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, c.synthTimeout)
			defer cancel()

			audio, err := c.collab.Synthesizer.Synthesize(sctx, scenes[i].Dialogue, lang)
			if err != nil {
				log.Warn("speech synthesis for scene %d failed: %v", i+1, err)
				return nil
			}
			scenes[i].Audio = audio
			return nil
		})
	}
	_ = g.Wait()
}

// ExplainTask is the input of one explainer generation, shared by the
// synchronous path and deferred jobs.
type ExplainTask struct {
	Topic    string
	Question string
	Language string
	Grade    string
}

// explain never fails: errors yield the canned explainer with status
// fallback and the message preserved.
func (c *Coordinator) explain(ctx context.Context, task ExplainTask) (*cache.Explainer, cache.ExplainerStatus, *string) {
	fallback := func(err error) (*cache.Explainer, cache.ExplainerStatus, *string) {
		log.Warn("explainer generation failed, using fallback: %v", err)
		msg := err.Error()
		return agent.FallbackExplainer(task.Language, task.Topic), cache.ExplainerFallback, &msg
	}
	if c.collab.Explainer == nil {
		return fallback(fmt.Errorf("explainer generator not configured"))
	}

	gctx, cancel := context.WithTimeout(ctx, c.generationTimeout)
	defer cancel()

	var explainer *cache.Explainer
	err := SafeExecute(func() error {
		var err error
		explainer, err = c.collab.Explainer.Explain(gctx, agent.ExplainRequest{
			Topic:    task.Topic,
			Question: task.Question,
			Language: task.Language,
			Grade:    task.Grade,
		})
		return err
	})
	if err != nil {
		return fallback(err)
	}
	if explainer == nil || len(explainer.Points) == 0 {
		return fallback(fmt.Errorf("explainer generator returned no content"))
	}
	texts := append([]string{explainer.Title, explainer.Summary}, explainer.Points...)
	if idx := c.gate.CheckAll(texts); idx >= 0 {
		return fallback(fmt.Errorf("generated explainer failed the safety check"))
	}

	explainer.ImageURL = c.findImage(ctx, explainer, task)
	return explainer, cache.ExplainerReady, nil
}

func (c *Coordinator) findImage(ctx context.Context, explainer *cache.Explainer, task ExplainTask) string {
	if c.collab.Images == nil {
		return ""
	}
	keyword := strings.TrimSpace(explainer.ImageKeyword)
	if keyword == "" {
		keyword = strings.TrimSpace(task.Topic)
	}
	if keyword == "" {
		return ""
	}
	gctx, cancel := context.WithTimeout(ctx, c.generationTimeout)
	defer cancel()

	u, err := c.collab.Images.ImageURL(gctx, keyword, task.Language)
	if err != nil {
		log.Warn("image lookup for %q failed: %v", keyword, err)
		return ""
	}
	return u
}

func (c *Coordinator) animate(ctx context.Context, topic, question string, scenes []cache.Scene, lang, character, title string) []cache.AnimationScene {
	var planned []cache.AnimationScene
	if c.collab.Animation != nil {
		gctx, cancel := context.WithTimeout(ctx, c.generationTimeout)
		defer cancel()

		var err error
		planned, err = c.collab.Animation.Plan(gctx, agent.AnimationRequest{
			Topic:     topic,
			Question:  question,
			Scenes:    scenes,
			Language:  lang,
			Character: character,
		})
		if err != nil {
			log.Warn("animation planning failed, using heuristic: %v", err)
			planned = nil
		}
	}

	// Planned lines may be rephrased, so they pass the gate again.
	if len(planned) > 0 {
		lines := make([]string, len(planned))
		for i, s := range planned {
			lines[i] = s.Dialogue.Text
		}
		if c.gate.CheckAll(lines) >= 0 {
			log.Warn("animation plan failed the safety check, using heuristic")
			planned = nil
		}
	}
	if len(planned) == 0 {
		planned = animation.Heuristic(scenes, character)
	}
	for i := range planned {
		planned[i].Character = character
		planned[i].Animation.Action = animation.NormalizeAction(planned[i].Animation.Action)
		planned[i].Duration = animation.ClampDuration(planned[i].Duration)
	}
	return animation.Frame(planned, lang, character, title)
}
