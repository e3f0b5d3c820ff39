package pipeline

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/MimeLyc/kidz-gpt/internal/agent"
	"github.com/MimeLyc/kidz-gpt/internal/cache"
	"github.com/MimeLyc/kidz-gpt/internal/speech"
)

type fakeTranscriber struct {
	transcript *speech.Transcript
	err        error
	block      bool
	calls      atomic.Int32
	lastHint   string
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, _ []byte, _ string, hint string) (*speech.Transcript, error) {
	f.calls.Add(1)
	f.lastHint = hint
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.transcript, f.err
}

type fakeIntent struct {
	calls atomic.Int32
}

func (f *fakeIntent) Extract(_ context.Context, text, _ string) (cache.Intent, error) {
	f.calls.Add(1)
	return agent.GuessIntent(text), nil
}

type fakeStoryboard struct {
	lines   []string
	err     error
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (f *fakeStoryboard) Generate(ctx context.Context, intent cache.Intent, _ string, lang string) ([]cache.Scene, error) {
	f.calls.Add(1)
	if f.entered != nil {
		f.once.Do(func() { close(f.entered) })
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	scenes := make([]cache.Scene, 0, len(f.lines))
	for i, l := range f.lines {
		// Deliberately sparse numbering and odd durations.
		scenes = append(scenes, cache.Scene{Index: (i + 1) * 10, Background: "day_sky", Dialogue: l, Duration: 9})
	}
	return scenes, nil
}

type fakeExplainer struct {
	result *cache.Explainer
	err    error
	calls  atomic.Int32
	// hang, when set, signals entered and blocks until ctx is done.
	hang    atomic.Bool
	entered chan struct{}
}

func (f *fakeExplainer) Explain(ctx context.Context, req agent.ExplainRequest) (*cache.Explainer, error) {
	f.calls.Add(1)
	if f.hang.Load() {
		if f.entered != nil {
			select {
			case f.entered <- struct{}{}:
			default:
			}
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		e := *f.result
		return &e, nil
	}
	return &cache.Explainer{
		Title:        req.Topic,
		Summary:      "The sun is a giant ball of hot gas.",
		Points:       []string{"It is very hot.", "It makes its own light.", "It is a star."},
		ImageKeyword: "Sun",
	}, nil
}

type fakeAnimation struct {
	scenes []cache.AnimationScene
	err    error
	calls  atomic.Int32
}

func (f *fakeAnimation) Plan(_ context.Context, _ agent.AnimationRequest) ([]cache.AnimationScene, error) {
	f.calls.Add(1)
	return f.scenes, f.err
}

type fakeSynth struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeSynth) Synthesize(_ context.Context, text, lang string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if strings.Contains(text, "fail") {
		return "", assertErr("polly unavailable")
	}
	return "/audio/" + lang + "_" + strings.ReplaceAll(strings.ToLower(text[:3]), " ", "") + ".mp3", nil
}

type fakeImages struct {
	url string
	err error
}

func (f *fakeImages) ImageURL(_ context.Context, _, _ string) (string, error) {
	return f.url, f.err
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
