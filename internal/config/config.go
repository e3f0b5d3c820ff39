package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/kidz-gpt/internal/language"
	"github.com/MimeLyc/kidz-gpt/pkg/log"
	"github.com/robfig/cron/v3"
)

// Config holds all application configuration.
// Every value comes from the environment with a default; a .env file is
// loaded by cmd before NewFromEnv runs.
//
// Environment Variables:
// LLM Configuration:
// - LLM_API_URL: OpenAI-compatible endpoint (default: http://localhost:11434/v1)
// - LLM_API_KEY: API key, optional for local servers
// - LLM_MODEL: Model name (default: gemma3:1b)
// - LLM_MODEL_<STAGE>: Per-stage override for INTENT, STORYBOARD, EXPLAINER, ANIMATION, QUIZ, TRANSLATE
// - LLM_MAX_TOKENS (default: 1024), LLM_TEMPERATURE (default: 0.4), LLM_TIMEOUT seconds (default: 90)
//
// Speech Configuration:
// - WHISPER_URL: Transcription endpoint (default: http://localhost:8001/transcribe)
// - TRANSCRIBE_TIMEOUT: default 120s
// - TTS_ENABLED: enable Amazon Polly synthesis (default: false)
// - TTS_POLLY_REGION (default: us-east-1), TTS_POLLY_ENGINE (default: standard)
// - SYNTH_TIMEOUT: per scene, default 120s
// - AUDIO_DIR: where synthesized audio is written (default: DATA_DIR/audio)
//
// Pipeline Configuration:
// - GENERATION_TIMEOUT: per generation stage, default 90s
// - DEFAULT_LANGUAGE (default: en), KIDZ_CHARACTER (default: girl)
// - EXPLAINER_MODE: sync or deferred (default: sync), EXPLAINER_WORKERS (default: 2)
// - SAFETY_EXTRA_TERMS: comma separated additions to the denylist
// - WIKIPEDIA_BASE_URL (default: https://{lang}.wikipedia.org)
//
// Cache Configuration:
// - CACHE_BACKEND: memory, sqlite or redis (default: memory)
// - CACHE_MAX_ENTRIES (default: 10000), CACHE_TTL (default: 0, never expire)
// - CACHE_SWEEP_CRON (default: @hourly), REDIS_ADDR
//
// System Configuration:
// - HTTP_ADDR (default: :8080), DATA_DIR (default: /app/data)
// - LOG_LEVEL (default: info), LOG_FORMAT: console or json (default: console)
type Config struct {
	LLM       LLMConfig       `json:"llm"`
	HTTP      HTTPConfig      `json:"http"`
	Speech    SpeechConfig    `json:"speech"`
	Pipeline  PipelineConfig  `json:"pipeline"`
	Cache     CacheConfig     `json:"cache"`
	Wikipedia WikipediaConfig `json:"wikipedia"`
	System    SystemConfig    `json:"system"`
	Log       LogConfig       `json:"log"`
}

// LLMConfig holds the configuration for the chat-completion client.
type LLMConfig struct {
	APIKey      string            `json:"-"`
	APIURL      string            `json:"api_url"`
	Model       string            `json:"model"`
	StageModels map[string]string `json:"stage_models,omitempty"`
	MaxTokens   int               `json:"max_tokens"`
	Temperature float64           `json:"temperature"`
	Timeout     int               `json:"timeout"`
}

type HTTPConfig struct {
	Addr string `json:"addr"`
}

type SpeechConfig struct {
	WhisperURL        string        `json:"whisper_url"`
	TranscribeTimeout time.Duration `json:"transcribe_timeout"`
	TTSEnabled        bool          `json:"tts_enabled"`
	PollyRegion       string        `json:"polly_region"`
	PollyEngine       string        `json:"polly_engine"`
	SynthTimeout      time.Duration `json:"synth_timeout"`
	AudioDir          string        `json:"audio_dir"`
}

const (
	ExplainerModeSync     = "sync"
	ExplainerModeDeferred = "deferred"
)

type PipelineConfig struct {
	GenerationTimeout time.Duration `json:"generation_timeout"`
	DefaultLanguage   string        `json:"default_language"`
	Character         string        `json:"character"`
	ExplainerMode     string        `json:"explainer_mode"`
	ExplainerWorkers  int           `json:"explainer_workers"`
	SafetyExtraTerms  []string      `json:"safety_extra_terms,omitempty"`
}

const (
	CacheBackendMemory = "memory"
	CacheBackendSQLite = "sqlite"
	CacheBackendRedis  = "redis"
)

type CacheConfig struct {
	Backend    string        `json:"backend"`
	MaxEntries int           `json:"max_entries"`
	TTL        time.Duration `json:"ttl"`
	SweepCron  string        `json:"sweep_cron"`
	RedisAddr  string        `json:"redis_addr"`
}

type WikipediaConfig struct {
	BaseURL string `json:"base_url"`
}

// SystemConfig holds the system configuration
type SystemConfig struct {
	DataDir string `json:"data_dir"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

var llmStages = []string{"intent", "storyboard", "explainer", "animation", "quiz", "translate"}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	dataDir := getEnvString("DATA_DIR", "/app/data")
	config := &Config{
		LLM: LLMConfig{
			APIKey:      getEnvString("LLM_API_KEY", ""),
			APIURL:      getEnvString("LLM_API_URL", "http://localhost:11434/v1"),
			Model:       getEnvString("LLM_MODEL", "gemma3:1b"),
			StageModels: stageModelsFromEnv(),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 1024),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.4),
			Timeout:     getEnvInt("LLM_TIMEOUT", 90),
		},
		HTTP: HTTPConfig{
			Addr: getEnvString("HTTP_ADDR", ":8080"),
		},
		Speech: SpeechConfig{
			WhisperURL:        getEnvString("WHISPER_URL", "http://localhost:8001/transcribe"),
			TranscribeTimeout: getEnvDuration("TRANSCRIBE_TIMEOUT", 120*time.Second),
			TTSEnabled:        getEnvBool("TTS_ENABLED", false),
			PollyRegion:       getEnvString("TTS_POLLY_REGION", "us-east-1"),
			PollyEngine:       getEnvString("TTS_POLLY_ENGINE", "standard"),
			SynthTimeout:      getEnvDuration("SYNTH_TIMEOUT", 120*time.Second),
			AudioDir:          getEnvString("AUDIO_DIR", filepath.Join(dataDir, "audio")),
		},
		Pipeline: PipelineConfig{
			GenerationTimeout: getEnvDuration("GENERATION_TIMEOUT", 90*time.Second),
			DefaultLanguage:   strings.ToLower(getEnvString("DEFAULT_LANGUAGE", language.DefaultLanguage)),
			Character:         getEnvString("KIDZ_CHARACTER", "girl"),
			ExplainerMode:     strings.ToLower(getEnvString("EXPLAINER_MODE", ExplainerModeSync)),
			ExplainerWorkers:  getEnvInt("EXPLAINER_WORKERS", 2),
			SafetyExtraTerms:  getEnvList("SAFETY_EXTRA_TERMS"),
		},
		Cache: CacheConfig{
			Backend:    strings.ToLower(getEnvString("CACHE_BACKEND", CacheBackendMemory)),
			MaxEntries: getEnvInt("CACHE_MAX_ENTRIES", 10000),
			TTL:        getEnvDuration("CACHE_TTL", 0),
			SweepCron:  getEnvString("CACHE_SWEEP_CRON", "@hourly"),
			RedisAddr:  getEnvString("REDIS_ADDR", ""),
		},
		Wikipedia: WikipediaConfig{
			BaseURL: getEnvString("WIKIPEDIA_BASE_URL", "https://{lang}.wikipedia.org"),
		},
		System: SystemConfig{
			DataDir: dataDir,
		},
		Log: LogConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "console"),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	// Validate required configuration
	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Info("Config: llm=%s model=%s cache=%s explainer=%s tts=%t",
		config.LLM.APIURL, config.LLM.Model, config.Cache.Backend, config.Pipeline.ExplainerMode, config.Speech.TTSEnabled)

	return config, nil
}

// DBPath is the SQLite file used by the sqlite cache backend.
func (c *Config) DBPath() string {
	return filepath.Join(c.System.DataDir, "kidz.db")
}

// Deferred reports whether explainers are generated after the response.
func (c *Config) Deferred() bool {
	return c.Pipeline.ExplainerMode == ExplainerModeDeferred
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if strings.TrimSpace(c.LLM.APIURL) == "" {
		return fmt.Errorf("LLM_API_URL is required")
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		return fmt.Errorf("LLM_MODEL is required")
	}
	switch c.Pipeline.ExplainerMode {
	case ExplainerModeSync, ExplainerModeDeferred:
	default:
		return fmt.Errorf("EXPLAINER_MODE must be %q or %q, got %q", ExplainerModeSync, ExplainerModeDeferred, c.Pipeline.ExplainerMode)
	}
	if c.Pipeline.ExplainerWorkers < 1 {
		return fmt.Errorf("EXPLAINER_WORKERS must be at least 1")
	}
	if code := language.Normalize(c.Pipeline.DefaultLanguage); !language.NewResolver().IsSupported(code) {
		return fmt.Errorf("DEFAULT_LANGUAGE %q is not supported", c.Pipeline.DefaultLanguage)
	}
	switch c.Cache.Backend {
	case CacheBackendMemory, CacheBackendSQLite:
	case CacheBackendRedis:
		if strings.TrimSpace(c.Cache.RedisAddr) == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", c.Cache.Backend)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("CACHE_TTL must not be negative")
	}
	if _, err := cron.ParseStandard(c.Cache.SweepCron); err != nil {
		return fmt.Errorf("invalid CACHE_SWEEP_CRON: %w", err)
	}
	for name, d := range map[string]time.Duration{
		"TRANSCRIBE_TIMEOUT": c.Speech.TranscribeTimeout,
		"SYNTH_TIMEOUT":      c.Speech.SynthTimeout,
		"GENERATION_TIMEOUT": c.Pipeline.GenerationTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

func stageModelsFromEnv() map[string]string {
	ret := make(map[string]string)
	for _, stage := range llmStages {
		if m := getEnvString("LLM_MODEL_"+strings.ToUpper(stage), ""); m != "" {
			ret[stage] = m
		}
	}
	return ret
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s", "2m") or plain seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var ret []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			ret = append(ret, item)
		}
	}
	return ret
}
