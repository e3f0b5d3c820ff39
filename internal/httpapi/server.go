package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/MimeLyc/kidz-gpt/internal/agent"
	"github.com/MimeLyc/kidz-gpt/internal/cache"
	"github.com/MimeLyc/kidz-gpt/internal/config"
	"github.com/MimeLyc/kidz-gpt/internal/pipeline"
	"github.com/MimeLyc/kidz-gpt/internal/wikipedia"
	"github.com/MimeLyc/kidz-gpt/pkg/log"
	"github.com/google/uuid"
)

const (
	defaultMaxUpload      = 32 << 20
	defaultStreamInterval = time.Second
	requestIDHeader       = "X-Request-ID"
)

type processor interface {
	Process(ctx context.Context, q pipeline.Query) (*cache.Record, error)
	Poll(ctx context.Context, jobID string) (*pipeline.ExplainerState, error)
}

type translator interface {
	Translate(ctx context.Context, text, target string) (string, error)
}

type quizGenerator interface {
	Generate(ctx context.Context, req agent.QuizRequest) (*agent.Quiz, error)
}

type imageLookup interface {
	Lookup(ctx context.Context, keyword, lang string) (*wikipedia.Image, error)
}

type runtimeSettingsStore interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
	UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error)
}

type runtimeSettingsApplier func(next config.RuntimeSettings) error

type Server struct {
	pipeline   processor
	translator translator
	quiz       quizGenerator
	images     imageLookup
	settings   runtimeSettingsStore
	apply      runtimeSettingsApplier

	audioDir       string
	maxUpload      int64
	streamInterval time.Duration

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

func WithTranslator(t translator) Option {
	return func(s *Server) {
		s.translator = t
	}
}

func WithQuizGenerator(q quizGenerator) Option {
	return func(s *Server) {
		s.quiz = q
	}
}

func WithImageLookup(l imageLookup) Option {
	return func(s *Server) {
		s.images = l
	}
}

func WithRuntimeSettingsStore(store runtimeSettingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

func WithRuntimeSettingsApplier(apply runtimeSettingsApplier) Option {
	return func(s *Server) {
		s.apply = apply
	}
}

// WithAudioDir serves synthesized scene audio under /audio/.
func WithAudioDir(dir string) Option {
	return func(s *Server) {
		s.audioDir = strings.TrimSpace(dir)
	}
}

// WithStreamInterval sets how often /explainer/stream re-reads the cache.
func WithStreamInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.streamInterval = d
		}
	}
}

func NewServer(p processor, opts ...Option) *Server {
	s := &Server{
		pipeline:       p,
		maxUpload:      defaultMaxUpload,
		streamInterval: defaultStreamInterval,
		mux:            http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return withRequestID(withCORS(s.mux))
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/process", s.handleProcess)
	s.mux.HandleFunc("/process-text", s.handleProcessText)
	s.mux.HandleFunc("/explainer", s.handleExplainer)
	s.mux.HandleFunc("/explainer/stream", s.handleExplainerStream)
	s.mux.HandleFunc("/translate", s.handleTranslate)
	s.mux.HandleFunc("/generate-quiz", s.handleQuiz)
	s.mux.HandleFunc("/topic-image", s.handleTopicImage)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	if s.audioDir != "" {
		s.mux.Handle("/audio/", http.StripPrefix("/audio/", http.FileServer(http.Dir(s.audioDir))))
	}
	s.mux.HandleFunc("/", s.handleRoot)
}

// withRequestID echoes a caller-supplied X-Request-ID or mints a new one.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug("%s %s request_id=%s took=%s", r.Method, r.URL.Path, id, time.Since(start))
	})
}

// withCORS lets the browser frontend call the API from its own origin.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, "+requestIDHeader)
		h.Set("Access-Control-Expose-Headers", requestIDHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
