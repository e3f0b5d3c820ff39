package llm

import (
	"fmt"
	"strings"
)

// Config holds the configuration for LLM client.
// Any OpenAI-compatible endpoint works; the default targets a local Ollama.
//
// Environment Variables:
// - LLM_API_URL: API endpoint URL (default: http://localhost:11434/v1)
// - LLM_API_KEY: API key, optional for local servers
// - LLM_MODEL: Model name to use
// - LLM_MODEL_<STAGE>: Per-stage model override (INTENT, STORYBOARD, EXPLAINER, ANIMATION, QUIZ, TRANSLATE)
// - LLM_MAX_TOKENS: Maximum tokens for responses (default: 1024)
// - LLM_TEMPERATURE: Temperature for responses (default: 0.4)
// - LLM_TIMEOUT: Request timeout in seconds (default: 90)
type Config struct {
	APIKey      string            `json:"api_key"`
	APIURL      string            `json:"api_url"`
	Model       string            `json:"model"`
	StageModels map[string]string `json:"stage_models,omitempty"`
	MaxTokens   int               `json:"max_tokens"`
	Temperature float64           `json:"temperature"`
	Timeout     int               `json:"timeout"`
	AppName     string            `json:"app_name"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is required")
	}
	if c.APIURL == "" {
		return fmt.Errorf("API URL is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("max tokens must be greater than 0")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if c.Timeout < 1 {
		return fmt.Errorf("timeout must be greater than 0")
	}
	return nil
}

// ModelFor returns the stage override when present, else the default model.
func (c *Config) ModelFor(stage string) string {
	if m := strings.TrimSpace(c.StageModels[strings.ToLower(stage)]); m != "" {
		return m
	}
	return c.Model
}

// GetHeaders returns the headers for the LLM API request
func (c *Config) GetHeaders() map[string]string {
	headers := map[string]string{
		"Content-Type": "application/json",
	}
	if c.APIKey != "" {
		headers["Authorization"] = "Bearer " + c.APIKey
	}
	if c.AppName != "" {
		headers["X-Title"] = c.AppName
	}
	return headers
}

func (c *Config) clone() *Config {
	tmp := *c
	if c.StageModels != nil {
		tmp.StageModels = make(map[string]string, len(c.StageModels))
		for k, v := range c.StageModels {
			tmp.StageModels[k] = v
		}
	}
	return &tmp
}
