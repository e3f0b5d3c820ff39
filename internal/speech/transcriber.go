package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MimeLyc/kidz-gpt/pkg/file"
)

const (
	DefaultWhisperURL = "http://localhost:8001/transcribe"

	// FailedTranscript is what the whisper bridge returns instead of an HTTP
	// error when it cannot decode the audio.
	FailedTranscript = "Error in transcription."
)

// Transcript is the speech-to-text result. Language is empty when the
// engine did not report one.
type Transcript struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// WhisperTranscriber posts audio to a whisper HTTP server.
type WhisperTranscriber struct {
	endpoint   string
	httpClient *http.Client
}

type TranscriberOption func(*WhisperTranscriber)

func WithHTTPClient(c *http.Client) TranscriberOption {
	return func(t *WhisperTranscriber) {
		if c != nil {
			t.httpClient = c
		}
	}
}

func NewWhisperTranscriber(endpoint string, opts ...TranscriberOption) *WhisperTranscriber {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultWhisperURL
	}
	t := &WhisperTranscriber{
		endpoint: endpoint,
		// The per-request deadline comes from ctx; this only guards dead connections.
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Transcribe uploads audio as multipart field "file". The language hint is
// passed through; whisper auto-detects for en/auto/unknown hints.
func (t *WhisperTranscriber) Transcribe(ctx context.Context, audio []byte, filename, languageHint string) (*Transcript, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("empty audio")
	}
	if strings.TrimSpace(filename) == "" {
		filename = "audio.mp3"
	}
	filename = file.EnsureExt(filename, ".mp3")

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("write audio: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	u, err := url.Parse(t.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid whisper url: %w", err)
	}
	if hint := strings.TrimSpace(languageHint); hint != "" {
		q := u.Query()
		q.Set("language", hint)
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), &body)
	if err != nil {
		return nil, fmt.Errorf("create transcription request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("transcription timed out: %w", context.DeadlineExceeded)
		}
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read transcription response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("transcription failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out Transcript
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode transcription response: %w", err)
	}
	out.Text = strings.TrimSpace(out.Text)
	out.Language = strings.TrimSpace(out.Language)
	return &out, nil
}
