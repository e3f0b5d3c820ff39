package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MimeLyc/kidz-gpt/internal/agent"
	"github.com/MimeLyc/kidz-gpt/internal/cache"
	"github.com/MimeLyc/kidz-gpt/internal/config"
	"github.com/MimeLyc/kidz-gpt/internal/httpapi"
	"github.com/MimeLyc/kidz-gpt/internal/jobs"
	"github.com/MimeLyc/kidz-gpt/internal/language"
	"github.com/MimeLyc/kidz-gpt/internal/llm"
	"github.com/MimeLyc/kidz-gpt/internal/persistence"
	"github.com/MimeLyc/kidz-gpt/internal/pipeline"
	"github.com/MimeLyc/kidz-gpt/internal/safety"
	"github.com/MimeLyc/kidz-gpt/internal/speech"
	"github.com/MimeLyc/kidz-gpt/internal/wikipedia"
	"github.com/MimeLyc/kidz-gpt/pkg/log"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// cronStopTimeout bounds how long shutdown waits for a running sweep.
var cronStopTimeout = 10 * time.Second

type scheduler interface {
	Schedule(ctx context.Context) error
}

type cronEngine interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func main() {
	// A missing .env is normal in containers.
	_ = godotenv.Load()

	settingsPath := config.RuntimeSettingsFilePath()
	var opts []config.Option
	if settings, err := config.LoadRuntimeSettingsFile(settingsPath); err == nil {
		opts = append(opts, config.WithRuntimeSettings(settings))
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Warn("Ignoring runtime settings file %s: %v", settingsPath, err)
	}

	cfg, err := config.NewFromEnv(opts...)
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}
	log.InitLogger(log.ParseLevel(cfg.Log.Level), cfg.Log.Format)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, settingsPath)
	if err != nil {
		log.Fatal("Failed to start: %v", err)
	}
	defer app.close()

	if err := runWithComponents(ctx, cfg, app.sweeper, app.cron, app.server); err != nil {
		log.Error("Server stopped: %v", err)
	}
}

// runWithComponents starts the scheduled sweep and the HTTP server, then
// blocks until ctx is cancelled or the server fails.
func runWithComponents(ctx context.Context, cfg *config.Config, sched scheduler, engine cronEngine, srv httpServer) error {
	if err := sched.Schedule(ctx); err != nil {
		return fmt.Errorf("schedule cache sweep: %w", err)
	}
	engine.Start()
	defer func() {
		select {
		case <-engine.Stop().Done():
		case <-time.After(cronStopTimeout):
			log.Warn("Cron jobs still running after %s, not waiting", cronStopTimeout)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening on %s", cfg.HTTP.Addr)
		errCh <- srv.ListenAndServe(cfg.HTTP.Addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type app struct {
	server  *httpapi.Server
	cron    *cron.Cron
	sweeper *sweeper
	queue   *jobs.Queue
	closers []func() error
}

func (a *app) close() {
	if a.queue != nil {
		a.queue.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn("Close failed: %v", err)
		}
	}
}

func buildApp(ctx context.Context, cfg *config.Config, settingsPath string) (*app, error) {
	a := &app{cron: cron.New()}

	store, sqlite, err := openCacheStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		a.closers = append(a.closers, closer.Close)
	}
	records := cache.New(store)

	llmClient, err := llm.NewClient(&llm.Config{
		APIKey:      cfg.LLM.APIKey,
		APIURL:      cfg.LLM.APIURL,
		Model:       cfg.LLM.Model,
		StageModels: cfg.LLM.StageModels,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		AppName:     "kidz-gpt",
	})
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}

	images := wikipedia.NewClient(cfg.Wikipedia.BaseURL)
	collab := pipeline.Collaborators{
		Transcriber: speech.NewWhisperTranscriber(cfg.Speech.WhisperURL),
		Intent:      agent.NewIntentAgent(llmClient),
		Storyboard:  agent.NewStoryboardAgent(llmClient),
		Explainer:   agent.NewExplainerAgent(llmClient),
		Animation:   agent.NewAnimationAgent(llmClient),
		Images:      images,
	}
	if cfg.Speech.TTSEnabled {
		synth, err := speech.NewPollySynthesizer(speech.PollyConfig{
			Region:    cfg.Speech.PollyRegion,
			Engine:    cfg.Speech.PollyEngine,
			AudioDir:  cfg.Speech.AudioDir,
			URLPrefix: "/audio/",
		})
		if err != nil {
			return nil, fmt.Errorf("create synthesizer: %w", err)
		}
		collab.Synthesizer = synth
	}

	coordOpts := []pipeline.Option{
		pipeline.WithTranscribeTimeout(cfg.Speech.TranscribeTimeout),
		pipeline.WithSynthTimeout(cfg.Speech.SynthTimeout),
		pipeline.WithGenerationTimeout(cfg.Pipeline.GenerationTimeout),
		pipeline.WithDefaultCharacter(cfg.Pipeline.Character),
	}
	if cfg.Deferred() {
		var jobStore jobs.Store
		if sqlite != nil {
			jobStore = sqlite
		}
		a.queue = jobs.NewQueue(cfg.Pipeline.ExplainerWorkers, jobStore)
		coordOpts = append(coordOpts, pipeline.WithDeferredExplainer(a.queue))
	}

	coord := pipeline.NewCoordinator(
		records,
		safety.NewGate(cfg.Pipeline.SafetyExtraTerms...),
		language.NewResolver(language.WithDefault(cfg.Pipeline.DefaultLanguage)),
		collab,
		coordOpts...,
	)
	if a.queue != nil {
		a.queue.Start(coord.RunExplainerJob)
	}

	a.sweeper = newSweeper(a.cron, records, cfg.Cache.TTL, cfg.Cache.SweepCron, audioDirFor(cfg))

	settingsStore, err := config.NewRuntimeSettingsStore(settingsPath, cfg.RuntimeSettings())
	if err != nil {
		return nil, fmt.Errorf("create settings store: %w", err)
	}
	settingsStore.OnChange(func(next config.RuntimeSettings) {
		llmClient.Reconfigure(next.LLMAPIURL, next.LLMAPIKey, next.LLMModel)
		coord.SetDefaultCharacter(next.Character)
		if err := a.sweeper.Reschedule(next.CacheSweepCron); err != nil {
			log.Warn("Keeping previous sweep schedule: %v", err)
		}
		if !strings.EqualFold(next.DefaultLanguage, cfg.Pipeline.DefaultLanguage) {
			log.Info("default_language=%s takes effect after restart", next.DefaultLanguage)
		}
	})

	serverOpts := []httpapi.Option{
		httpapi.WithTranslator(agent.NewTranslateAgent(llmClient)),
		httpapi.WithQuizGenerator(agent.NewQuizAgent(llmClient)),
		httpapi.WithImageLookup(images),
		httpapi.WithRuntimeSettingsStore(settingsStore),
	}
	if cfg.Speech.TTSEnabled {
		serverOpts = append(serverOpts, httpapi.WithAudioDir(cfg.Speech.AudioDir))
	}
	a.server = httpapi.NewServer(coord, serverOpts...)
	return a, nil
}

func openCacheStore(ctx context.Context, cfg *config.Config) (cache.Store, *persistence.SQLiteStore, error) {
	switch cfg.Cache.Backend {
	case config.CacheBackendSQLite:
		if err := os.MkdirAll(cfg.System.DataDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create data dir: %w", err)
		}
		store, err := persistence.NewSQLiteStore(cfg.DBPath())
		if err != nil {
			return nil, nil, err
		}
		log.Info("Cache backend: sqlite at %s", cfg.DBPath())
		return store, store, nil
	case config.CacheBackendRedis:
		store, err := cache.NewRedisStore(ctx, cache.RedisOptions{
			Addr: cfg.Cache.RedisAddr,
			TTL:  cfg.Cache.TTL,
		})
		if err != nil {
			return nil, nil, err
		}
		log.Info("Cache backend: redis at %s", cfg.Cache.RedisAddr)
		return store, nil, nil
	default:
		log.Info("Cache backend: memory (max %d entries)", cfg.Cache.MaxEntries)
		return cache.NewMemoryStore(cfg.Cache.MaxEntries), nil, nil
	}
}

func audioDirFor(cfg *config.Config) string {
	if !cfg.Speech.TTSEnabled {
		return ""
	}
	return cfg.Speech.AudioDir
}
