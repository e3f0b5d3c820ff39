package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MimeLyc/kidz-gpt/internal/agent"
	"github.com/MimeLyc/kidz-gpt/internal/cache"
	"github.com/MimeLyc/kidz-gpt/internal/config"
	"github.com/MimeLyc/kidz-gpt/internal/pipeline"
	"github.com/MimeLyc/kidz-gpt/internal/wikipedia"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSettingsStore struct {
	current   config.RuntimeSettings
	updateErr error
}

func (f *fakeSettingsStore) GetRuntimeSettings() (config.RuntimeSettings, error) {
	return f.current, nil
}

func (f *fakeSettingsStore) UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error) {
	if f.updateErr != nil {
		return config.RuntimeSettings{}, f.updateErr
	}
	f.current = next
	return f.current, nil
}

type fakeProcessor struct {
	mu        sync.Mutex
	lastQuery pipeline.Query
	err       error
	states    []*pipeline.ExplainerState
	polls     int
}

func (f *fakeProcessor) Process(_ context.Context, q pipeline.Query) (*cache.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = q
	if f.err != nil {
		return nil, f.err
	}
	return &cache.Record{JobID: "abc", Language: "en", Text: q.Text + q.Transcript}, nil
}

func (f *fakeProcessor) Poll(_ context.Context, jobID string) (*pipeline.ExplainerState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.states) == 0 {
		return nil, pipeline.NewError(pipeline.ErrUnknownJob, "unknown job_id")
	}
	idx := f.polls
	if idx >= len(f.states) {
		idx = len(f.states) - 1
	}
	f.polls++
	st := *f.states[idx]
	st.JobID = jobID
	return &st, nil
}

type fakeTranslator struct {
	out string
	err error
}

func (f *fakeTranslator) Translate(_ context.Context, text, _ string) (string, error) {
	if f.err != nil {
		return text, f.err
	}
	return f.out, nil
}

type fakeQuiz struct{}

func (fakeQuiz) Generate(_ context.Context, req agent.QuizRequest) (*agent.Quiz, error) {
	return &agent.Quiz{Questions: []agent.QuizQuestion{
		{Question: "Is " + req.Topic + " hot?", Options: []string{"Yes", "No"}, CorrectAnswer: 0},
	}}, nil
}

type fakeImages struct {
	img *wikipedia.Image
}

func (f fakeImages) Lookup(_ context.Context, _, _ string) (*wikipedia.Image, error) {
	return f.img, nil
}

func serve(t *testing.T, srv *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Root(t *testing.T) {
	srv := NewServer(&fakeProcessor{})

	rec := serve(t, srv, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"Backend running"}`, rec.Body.String())

	_, err := uuid.Parse(rec.Header().Get("X-Request-ID"))
	assert.NoError(t, err)

	rec = serve(t, srv, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_RequestIDIsEchoed(t *testing.T) {
	srv := NewServer(&fakeProcessor{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "trace-123")

	rec := serve(t, srv, req)
	assert.Equal(t, "trace-123", rec.Header().Get("X-Request-ID"))
}

func TestServer_ProcessText_EndToEnd(t *testing.T) {
	coord := pipeline.NewCoordinator(nil, nil, nil, pipeline.Collaborators{})
	srv := NewServer(coord)

	body := `{"text":"Why is the sun bright?","language":"en","character":"boy","selected_class":"3"}`
	rec := serve(t, srv, httptest.NewRequest(http.MethodPost, "/process-text", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var got cache.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, cache.Key("Why is the sun bright?"), got.JobID)
	assert.Equal(t, "en", got.Language)
	assert.GreaterOrEqual(t, len(got.Scenes), 2)
	assert.Equal(t, "boy", got.Scenes[0].Character)
	require.NotNil(t, got.Explainer)
	assert.Len(t, got.Explainer.Points, 3)

	poll := serve(t, srv, httptest.NewRequest(http.MethodGet, "/explainer?job_id="+got.JobID, nil))
	require.Equal(t, http.StatusOK, poll.Code)
	var state pipeline.ExplainerState
	require.NoError(t, json.Unmarshal(poll.Body.Bytes(), &state))
	assert.Equal(t, got.JobID, state.JobID)
	assert.Equal(t, cache.ExplainerFallback, state.Status)
}

func TestServer_ProcessText_UnsafeInputIs200(t *testing.T) {
	coord := pipeline.NewCoordinator(nil, nil, nil, pipeline.Collaborators{})
	srv := NewServer(coord)

	body := `{"text":"there was a lot of blood","language":"en"}`
	rec := serve(t, srv, httptest.NewRequest(http.MethodPost, "/process-text", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "unsafe_input", got["error"])
	assert.NotEmpty(t, got["message"])
}

func TestServer_ErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{pipeline.NewError(pipeline.ErrTranscriptionTimeout, "timed out"), http.StatusGatewayTimeout, "transcription_timeout"},
		{pipeline.NewError(pipeline.ErrTranscription, "down"), http.StatusBadGateway, "transcription_failed"},
		{pipeline.NewError(pipeline.ErrValidation, "empty"), http.StatusBadRequest, "validation_error"},
		{pipeline.NewError(pipeline.ErrUnsafeGenerated, "unsafe"), http.StatusUnprocessableEntity, "unsafe_generated"},
		{errors.New("boom"), http.StatusInternalServerError, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			srv := NewServer(&fakeProcessor{err: tt.err})
			rec := serve(t, srv, httptest.NewRequest(http.MethodPost, "/process-text", strings.NewReader(`{"text":"hi"}`)))
			require.Equal(t, tt.status, rec.Code)
			var got map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.code, got["error"])
		})
	}
}

func TestServer_ProcessMultipart(t *testing.T) {
	proc := &fakeProcessor{}
	srv := NewServer(proc)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("audio", "question.webm")
	require.NoError(t, err)
	_, err = part.Write([]byte("fake-audio"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("language", "hi-IN"))
	require.NoError(t, mw.WriteField("character", "ben10"))
	require.NoError(t, mw.WriteField("selected_class", "2"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/process", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := serve(t, srv, req)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []byte("fake-audio"), proc.lastQuery.Audio)
	assert.Equal(t, "question.webm", proc.lastQuery.AudioName)
	assert.Equal(t, "hi-IN", proc.lastQuery.DeclaredLanguage)
	assert.Equal(t, "ben10", proc.lastQuery.Character)
	assert.Equal(t, "2", proc.lastQuery.GradeHint)
}

func TestServer_ProcessMultipart_RequiresAudioOrTranscript(t *testing.T) {
	srv := NewServer(&fakeProcessor{})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("language", "en"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/process", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := serve(t, srv, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ExplainerUnknownJob(t *testing.T) {
	srv := NewServer(&fakeProcessor{})
	rec := serve(t, srv, httptest.NewRequest(http.MethodGet, "/explainer?job_id=missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown_job")
}

func TestServer_ExplainerStream(t *testing.T) {
	proc := &fakeProcessor{states: []*pipeline.ExplainerState{
		{Status: cache.ExplainerPending},
		{Status: cache.ExplainerPending},
		{Status: cache.ExplainerReady, Explainer: &cache.Explainer{Title: "Sun", Points: []string{"a", "b", "c"}}},
	}}
	srv := NewServer(proc, WithStreamInterval(10*time.Millisecond))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/explainer/stream?job_id=abc")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events []pipeline.ExplainerState
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var st pipeline.ExplainerState
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &st))
		events = append(events, st)
	}
	require.Len(t, events, 3)
	assert.Equal(t, cache.ExplainerReady, events[2].Status)
	assert.Equal(t, "abc", events[2].JobID)
}

func TestServer_Translate(t *testing.T) {
	srv := NewServer(&fakeProcessor{}, WithTranslator(&fakeTranslator{out: "सूरज"}))
	rec := serve(t, srv, httptest.NewRequest(http.MethodPost, "/translate", strings.NewReader(`{"text":"sun","target_language":"hi"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"translated_text":"सूरज"}`, rec.Body.String())

	srv = NewServer(&fakeProcessor{}, WithTranslator(&fakeTranslator{err: errors.New("down")}))
	rec = serve(t, srv, httptest.NewRequest(http.MethodPost, "/translate", strings.NewReader(`{"text":"sun","target_language":"hi"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"translated_text":"sun"}`, rec.Body.String())
}

func TestServer_GenerateQuiz(t *testing.T) {
	srv := NewServer(&fakeProcessor{}, WithQuizGenerator(fakeQuiz{}))
	body := `{"topic":"sun","explainer":{"title":"Sun","summary":"Hot","points":["a","b","c"]},"language":"en","selected_class":"2"}`
	rec := serve(t, srv, httptest.NewRequest(http.MethodPost, "/generate-quiz", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var quiz agent.Quiz
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quiz))
	require.Len(t, quiz.Questions, 1)
	assert.Equal(t, "Is sun hot?", quiz.Questions[0].Question)
}

func TestServer_TopicImage(t *testing.T) {
	srv := NewServer(&fakeProcessor{}, WithImageLookup(fakeImages{img: &wikipedia.Image{URL: "https://img.example/sun.jpg", Title: "Sun"}}))
	rec := serve(t, srv, httptest.NewRequest(http.MethodGet, "/topic-image?query=Sun&lang=hi", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"imageUrl":"https://img.example/sun.jpg"`)

	rec = serve(t, srv, httptest.NewRequest(http.MethodGet, "/topic-image", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	srv = NewServer(&fakeProcessor{}, WithImageLookup(fakeImages{}))
	rec = serve(t, srv, httptest.NewRequest(http.MethodGet, "/topic-image?query=Nothing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_AudioFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "en_abc.mp3"), []byte("ID3"), 0o644))
	srv := NewServer(&fakeProcessor{}, WithAudioDir(dir))

	rec := serve(t, srv, httptest.NewRequest(http.MethodGet, "/audio/en_abc.mp3", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ID3", rec.Body.String())
}

func TestServer_Settings(t *testing.T) {
	store := &fakeSettingsStore{current: config.RuntimeSettings{
		LLMAPIURL:       "https://old.example/v1",
		LLMAPIKey:       "secret",
		LLMModel:        "gemma3:1b",
		Character:       "girl",
		CacheSweepCron:  "@hourly",
		DefaultLanguage: "en",
	}}
	var applied config.RuntimeSettings
	srv := NewServer(&fakeProcessor{},
		WithRuntimeSettingsStore(store),
		WithRuntimeSettingsApplier(func(next config.RuntimeSettings) error {
			applied = next
			return nil
		}),
	)

	rec := serve(t, srv, httptest.NewRequest(http.MethodGet, "/api/settings", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")

	body := `{"llm_api_url":"https://new.example/v1","llm_api_key":"k2","llm_model":"llama3","character":"boy","cache_sweep_cron":"*/15 * * * *","default_language":"hi"}`
	rec = serve(t, srv, httptest.NewRequest(http.MethodPut, "/api/settings", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "boy", applied.Character)
	assert.Equal(t, "k2", store.current.LLMAPIKey)

	rec = serve(t, srv, httptest.NewRequest(http.MethodPut, "/api/settings", strings.NewReader(`{"llm_api_url":"x","llm_model":"m","character":"girl","cache_sweep_cron":"bad","default_language":"en"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	store.updateErr = errors.New("disk full")
	rec = serve(t, srv, httptest.NewRequest(http.MethodPut, "/api/settings", strings.NewReader(body)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_SettingsNotConfigured(t *testing.T) {
	srv := NewServer(&fakeProcessor{})
	rec := serve(t, srv, httptest.NewRequest(http.MethodGet, "/api/settings", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestServer_CORSPreflight(t *testing.T) {
	srv := NewServer(&fakeProcessor{})
	rec := serve(t, srv, httptest.NewRequest(http.MethodOptions, "/process", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
