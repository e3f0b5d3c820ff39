package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"
)

const DefaultRuntimeSettingsFile = "/app/config/settings.json"

var characterChoices = map[string]struct{}{
	"girl":   {},
	"boy":    {},
	"ben10":  {},
	"random": {},
}

// RuntimeSettings are the values editable through /api/settings.
type RuntimeSettings struct {
	LLMAPIURL       string `json:"llm_api_url"`
	LLMAPIKey       string `json:"llm_api_key"`
	LLMModel        string `json:"llm_model"`
	Character       string `json:"character"`
	CacheSweepCron  string `json:"cache_sweep_cron"`
	DefaultLanguage string `json:"default_language"`
}

func RuntimeSettingsFilePath() string {
	return getEnvString("SETTINGS_FILE", DefaultRuntimeSettingsFile)
}

func (s RuntimeSettings) Validate() error {
	if strings.TrimSpace(s.LLMAPIURL) == "" {
		return fmt.Errorf("llm_api_url is required")
	}
	if strings.TrimSpace(s.LLMModel) == "" {
		return fmt.Errorf("llm_model is required")
	}
	if _, ok := characterChoices[strings.ToLower(strings.TrimSpace(s.Character))]; !ok {
		return fmt.Errorf("character must be one of girl, boy, ben10, random")
	}
	if strings.TrimSpace(s.CacheSweepCron) == "" {
		return fmt.Errorf("cache_sweep_cron is required")
	}
	if _, err := cron.ParseStandard(s.CacheSweepCron); err != nil {
		return fmt.Errorf("invalid cache_sweep_cron: %w", err)
	}
	if strings.TrimSpace(s.DefaultLanguage) == "" {
		return fmt.Errorf("default_language is required")
	}
	if _, err := language.Parse(s.DefaultLanguage); err != nil {
		return fmt.Errorf("invalid default_language: %w", err)
	}
	return nil
}

// Redacted hides the API key for responses and logs.
func (s RuntimeSettings) Redacted() RuntimeSettings {
	if s.LLMAPIKey != "" {
		s.LLMAPIKey = "********"
	}
	return s
}

func (c *Config) RuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		LLMAPIURL:       c.LLM.APIURL,
		LLMAPIKey:       c.LLM.APIKey,
		LLMModel:        c.LLM.Model,
		Character:       c.Pipeline.Character,
		CacheSweepCron:  c.Cache.SweepCron,
		DefaultLanguage: c.Pipeline.DefaultLanguage,
	}
}

func WithRuntimeSettings(settings RuntimeSettings) Option {
	return func(c *Config) {
		if strings.TrimSpace(settings.LLMAPIURL) != "" {
			c.LLM.APIURL = settings.LLMAPIURL
		}
		if strings.TrimSpace(settings.LLMAPIKey) != "" {
			c.LLM.APIKey = settings.LLMAPIKey
		}
		if strings.TrimSpace(settings.LLMModel) != "" {
			c.LLM.Model = settings.LLMModel
		}
		if strings.TrimSpace(settings.Character) != "" {
			c.Pipeline.Character = strings.ToLower(strings.TrimSpace(settings.Character))
		}
		if strings.TrimSpace(settings.CacheSweepCron) != "" {
			c.Cache.SweepCron = settings.CacheSweepCron
		}
		if tag, err := language.Parse(settings.DefaultLanguage); err == nil {
			base, _ := tag.Base()
			c.Pipeline.DefaultLanguage = base.String()
		}
	}
}

func LoadRuntimeSettingsFile(path string) (RuntimeSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeSettings{}, err
	}
	var settings RuntimeSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return RuntimeSettings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings, nil
}

func WriteRuntimeSettingsFile(path string, settings RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// RuntimeSettingsStore keeps the current settings in memory and persists
// every accepted update. Subscribers are notified after the file is written.
type RuntimeSettingsStore struct {
	path string

	mu        sync.RWMutex
	current   RuntimeSettings
	listeners []func(RuntimeSettings)
}

func NewRuntimeSettingsStore(path string, initial RuntimeSettings) (*RuntimeSettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &RuntimeSettingsStore{
		path:    path,
		current: initial,
	}, nil
}

// OnChange registers fn to run after each successful update.
func (s *RuntimeSettingsStore) OnChange(fn func(RuntimeSettings)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *RuntimeSettingsStore) GetRuntimeSettings() (RuntimeSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

// UpdateRuntimeSettings validates and stores next. An empty API key keeps the
// current one so clients can round-trip the redacted value.
func (s *RuntimeSettingsStore) UpdateRuntimeSettings(next RuntimeSettings) (RuntimeSettings, error) {
	s.mu.RLock()
	if strings.TrimSpace(next.LLMAPIKey) == "" || next.LLMAPIKey == "********" {
		next.LLMAPIKey = s.current.LLMAPIKey
	}
	s.mu.RUnlock()

	next.Character = strings.ToLower(strings.TrimSpace(next.Character))
	if err := next.Validate(); err != nil {
		return RuntimeSettings{}, err
	}
	if err := WriteRuntimeSettingsFile(s.path, next); err != nil {
		return RuntimeSettings{}, err
	}

	s.mu.Lock()
	s.current = next
	listeners := append([]func(RuntimeSettings){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
	return next, nil
}
