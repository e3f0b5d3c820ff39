package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/MimeLyc/kidz-gpt/pkg/file"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
	"github.com/cespare/xxhash/v2"
)

// ErrUnsupportedLanguage means no voice is configured for the language.
var ErrUnsupportedLanguage = errors.New("no voice for language")

type synthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

type Voice struct {
	ID           string
	LanguageCode string
}

// DefaultVoices covers the languages Polly can speak. Bengali, Tamil and
// Telugu have no Polly voice and are skipped.
var DefaultVoices = map[string]Voice{
	"en": {ID: "Ivy", LanguageCode: "en-US"},
	"hi": {ID: "Kajal", LanguageCode: "hi-IN"},
}

type PollyConfig struct {
	Region string
	Engine string
	// AudioDir receives the mp3 files; URLPrefix is how clients fetch them.
	AudioDir  string
	URLPrefix string
	Voices    map[string]Voice
}

// PollySynthesizer renders dialogue to mp3 files named by content hash, so
// repeated lines are synthesized once.
type PollySynthesizer struct {
	mu     sync.Mutex
	client synthClient
	cfg    PollyConfig
}

func NewPollySynthesizer(cfg PollyConfig) (*PollySynthesizer, error) {
	return NewPollySynthesizerWithClient(cfg, nil)
}

func NewPollySynthesizerWithClient(cfg PollyConfig, client synthClient) (*PollySynthesizer, error) {
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}
	if strings.TrimSpace(cfg.Engine) == "" {
		cfg.Engine = "neural"
	}
	if strings.TrimSpace(cfg.AudioDir) == "" {
		return nil, fmt.Errorf("audio dir is required")
	}
	if cfg.URLPrefix == "" {
		cfg.URLPrefix = "/audio/"
	}
	if !strings.HasSuffix(cfg.URLPrefix, "/") {
		cfg.URLPrefix += "/"
	}
	if len(cfg.Voices) == 0 {
		cfg.Voices = DefaultVoices
	}
	if err := os.MkdirAll(cfg.AudioDir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	return &PollySynthesizer{client: client, cfg: cfg}, nil
}

// Synthesize returns the URL of an mp3 for text spoken in lang.
func (s *PollySynthesizer) Synthesize(ctx context.Context, text, lang string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty text")
	}
	voice, ok := s.cfg.Voices[lang]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}

	name := fmt.Sprintf("%s_%016x.mp3", lang, xxhash.Sum64String(voice.ID+"|"+text))
	path := filepath.Join(s.cfg.AudioDir, name)
	url := s.cfg.URLPrefix + name
	if _, err := os.Stat(path); err == nil {
		// keep reused audio clear of the age-based sweep
		_ = file.Touch(path, time.Now())
		return url, nil
	}

	client, err := s.resolveClient(ctx)
	if err != nil {
		return "", err
	}

	engine := pollytypes.EngineStandard
	if strings.EqualFold(s.cfg.Engine, "neural") {
		engine = pollytypes.EngineNeural
	}
	output, err := client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatMp3,
		Text:         &text,
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(voice.ID),
		LanguageCode: pollytypes.LanguageCode(voice.LanguageCode),
	})
	if err != nil {
		return "", classifyPollyError(err)
	}
	if output == nil || output.AudioStream == nil {
		return "", fmt.Errorf("polly returned no audio")
	}
	defer output.AudioStream.Close()

	if err := writeFileAtomic(path, output.AudioStream); err != nil {
		return "", err
	}
	return url, nil
}

func (s *PollySynthesizer) resolveClient(ctx context.Context) (synthClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(s.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	s.client = polly.NewFromConfig(awsCfg)
	return s.client, nil
}

func writeFileAtomic(path string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".audio-*")
	if err != nil {
		return fmt.Errorf("create audio file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write audio file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close audio file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("store audio file: %w", err)
	}
	return nil
}

// SynthesisError is a Polly failure with its retry classification.
type SynthesisError struct {
	Reason    string
	Retryable bool
	Err       error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("polly %s: %v", e.Reason, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

func classifyPollyError(err error) error {
	if errors.Is(err, context.Canceled) {
		return &SynthesisError{Reason: "cancelled", Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &SynthesisError{Reason: "timeout", Retryable: true, Err: err}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "TooManyRequestsException", "ThrottlingException":
			return &SynthesisError{Reason: "throttled", Retryable: true, Err: err}
		case "InvalidSsmlException", "TextLengthExceededException", "LexiconNotFoundException",
			"MarksNotSupportedForFormatException", "InvalidSampleRateException", "EngineNotSupportedException",
			"LanguageNotSupportedException":
			return &SynthesisError{Reason: "client_error", Err: err}
		default:
			return &SynthesisError{Reason: "server_error", Retryable: true, Err: err}
		}
	}
	return &SynthesisError{Reason: "transport_error", Retryable: true, Err: err}
}
