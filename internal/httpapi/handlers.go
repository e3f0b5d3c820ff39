package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/MimeLyc/kidz-gpt/internal/agent"
	"github.com/MimeLyc/kidz-gpt/internal/cache"
	"github.com/MimeLyc/kidz-gpt/internal/config"
	"github.com/MimeLyc/kidz-gpt/internal/pipeline"
	"github.com/MimeLyc/kidz-gpt/pkg/log"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "Backend running",
	})
}

// handleProcess accepts multipart form data: audio, language, character,
// transcript and selected_class.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	q := pipeline.Query{
		DeclaredLanguage: r.FormValue("language"),
		Character:        r.FormValue("character"),
		Transcript:       r.FormValue("transcript"),
		GradeHint:        r.FormValue("selected_class"),
	}
	file, header, err := r.FormFile("audio")
	switch {
	case err == nil:
		defer file.Close()
		audio, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read audio")
			return
		}
		q.Audio = audio
		q.AudioName = header.Filename
	case errors.Is(err, http.ErrMissingFile):
		if strings.TrimSpace(q.Transcript) == "" {
			writeError(w, http.StatusBadRequest, "audio or transcript is required")
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "invalid audio upload")
		return
	}

	s.runPipeline(w, r, q)
}

type processTextRequest struct {
	Text          string `json:"text"`
	Language      string `json:"language"`
	Character     string `json:"character"`
	SelectedClass string `json:"selected_class"`
}

func (s *Server) handleProcessText(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req processTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	s.runPipeline(w, r, pipeline.Query{
		Text:             req.Text,
		DeclaredLanguage: req.Language,
		Character:        req.Character,
		GradeHint:        req.SelectedClass,
	})
}

func (s *Server) runPipeline(w http.ResponseWriter, r *http.Request, q pipeline.Query) {
	rec, err := s.pipeline.Process(r.Context(), q)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleExplainer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	state, err := s.pipeline.Poll(r.Context(), r.URL.Query().Get("job_id"))
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

type translateRequest struct {
	Text           string `json:"text"`
	TargetLanguage string `json:"target_language"`
}

// handleTranslate always answers with text; failures return the input unchanged.
func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	out := req.Text
	if s.translator != nil {
		translated, err := s.translator.Translate(r.Context(), req.Text, req.TargetLanguage)
		if err != nil {
			log.Warn("translation to %s failed: %v", req.TargetLanguage, err)
		}
		if strings.TrimSpace(translated) != "" {
			out = translated
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"translated_text": out,
	})
}

type quizRequest struct {
	Topic         string          `json:"topic"`
	Explainer     cache.Explainer `json:"explainer"`
	Language      string          `json:"language"`
	SelectedClass string          `json:"selected_class"`
}

func (s *Server) handleQuiz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.quiz == nil {
		writeError(w, http.StatusNotImplemented, "quiz generation is not configured")
		return
	}
	var req quizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.Topic) == "" && strings.TrimSpace(req.Explainer.Title) == "" {
		writeError(w, http.StatusBadRequest, "topic is required")
		return
	}
	quiz, err := s.quiz.Generate(r.Context(), agent.QuizRequest{
		Topic:     req.Topic,
		Explainer: req.Explainer,
		Language:  req.Language,
		Grade:     req.SelectedClass,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (s *Server) handleTopicImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.images == nil {
		writeError(w, http.StatusNotImplemented, "image lookup is not configured")
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "Missing query")
		return
	}
	lang := r.URL.Query().Get("lang")
	if lang == "" {
		lang = "en"
	}
	img, err := s.images.Lookup(r.Context(), query, lang)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if img == nil {
		writeError(w, http.StatusNotFound, "No image found")
		return
	}
	writeJSON(w, http.StatusOK, img)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		settings, err := s.settings.GetRuntimeSettings()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, settings.Redacted())
	case http.MethodPut:
		var req config.RuntimeSettings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		saved, err := s.settings.UpdateRuntimeSettings(req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if s.apply != nil {
			if err := s.apply(saved); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, saved.Redacted())
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

// writePipelineError renders a typed pipeline error. Unsafe input is a
// normal answer and keeps status 200.
func writePipelineError(w http.ResponseWriter, err error) {
	status := pipeline.HTTPStatus(err)
	var perr *pipeline.Error
	if !errors.As(err, &perr) {
		log.Error("pipeline failed: %v", err)
		writeError(w, status, "internal error")
		return
	}
	if status >= http.StatusInternalServerError {
		log.Error("pipeline failed: %v", err)
	}
	writeJSON(w, status, map[string]any{
		"error":   perr.Type.Code(),
		"message": perr.Message,
	})
}
