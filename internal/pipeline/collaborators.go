package pipeline

import (
	"context"

	"github.com/MimeLyc/kidz-gpt/internal/agent"
	"github.com/MimeLyc/kidz-gpt/internal/cache"
	"github.com/MimeLyc/kidz-gpt/internal/speech"
)

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename, languageHint string) (*speech.Transcript, error)
}

type IntentExtractor interface {
	Extract(ctx context.Context, text, lang string) (cache.Intent, error)
}

type StoryboardGenerator interface {
	Generate(ctx context.Context, intent cache.Intent, question, lang string) ([]cache.Scene, error)
}

type ExplainerGenerator interface {
	Explain(ctx context.Context, req agent.ExplainRequest) (*cache.Explainer, error)
}

// AnimationGenerator may return no scenes; the coordinator then uses the
// keyword heuristic.
type AnimationGenerator interface {
	Plan(ctx context.Context, req agent.AnimationRequest) ([]cache.AnimationScene, error)
}

// Synthesizer returns a URL for the spoken text.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, lang string) (string, error)
}

type ImageFinder interface {
	ImageURL(ctx context.Context, keyword, lang string) (string, error)
}

// Collaborators groups the generation stages. Nil members are allowed:
// transcription then fails, synthesis and image lookup are skipped, and
// every other stage takes its deterministic fallback.
type Collaborators struct {
	Transcriber Transcriber
	Intent      IntentExtractor
	Storyboard  StoryboardGenerator
	Explainer   ExplainerGenerator
	Animation   AnimationGenerator
	Synthesizer Synthesizer
	Images      ImageFinder
}
