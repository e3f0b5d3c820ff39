package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// Client represents a generic LLM API client.
// Safe for concurrent use; Reconfigure swaps endpoint settings at runtime.
type Client struct {
	mu         sync.RWMutex
	config     *Config
	httpClient *http.Client
}

// NewClient creates a new LLM client with the given configuration
//
// Example:
//
//	client, err := llm.NewClient(&llm.Config{
//		APIURL: "http://localhost:11434/v1", Model: "llama3.1",
//		MaxTokens: 1024, Temperature: 0.4, Timeout: 90,
//	})
func NewClient(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &Client{
		config: config.clone(),
		httpClient: &http.Client{
			Timeout: time.Duration(config.Timeout) * time.Second,
		},
	}, nil
}

// Reconfigure updates endpoint, key and default model. Empty values keep the current ones.
func (c *Client) Reconfigure(apiURL, apiKey, model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.config.clone()
	if v := strings.TrimSpace(apiURL); v != "" {
		next.APIURL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(apiKey); v != "" {
		next.APIKey = v
	}
	if v := strings.TrimSpace(model); v != "" {
		next.Model = v
	}
	c.config = next
}

// Config returns a copy of the active configuration.
func (c *Client) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return *c.config.clone()
}

// ChatCompletion creates a chat completion request to the configured LLM API
func (c *Client) ChatCompletion(ctx context.Context, messages []Message, opts *ChatCompletionOptions) (*ChatResponse, error) {
	if opts == nil {
		opts = NewChatCompletionOptions()
	}
	cfg := c.snapshot()

	if opts.SystemPrompt != "" {
		messages = append([]Message{{Role: "system", Content: opts.SystemPrompt}}, messages...)
	}

	request := ChatRequest{
		Model:       getModel(cfg, opts),
		Messages:    messages,
		MaxTokens:   getMaxTokens(cfg, opts),
		Temperature: getTemperature(cfg, opts),
	}
	if opts.JSON {
		request.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}

	response, err := c.makeRequest(ctx, cfg, http.MethodPost, "/chat/completions", request)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	return response, nil
}

// SimpleChat sends one user prompt and returns the assistant's reply.
//
// Example:
//
//	reply, err := client.SimpleChat(ctx, "Why is the sky blue?", llm.NewChatCompletionOptions().WithStage("intent"))
func (c *Client) SimpleChat(ctx context.Context, prompt string, opts *ChatCompletionOptions) (string, error) {
	response, err := c.ChatCompletion(ctx, []Message{{Role: "user", Content: prompt}}, opts)
	if err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return response.Choices[0].Message.Content, nil
}

// ChatJSON requests a JSON reply and decodes it into out, repairing and
// validating against schema when one is given.
func (c *Client) ChatJSON(ctx context.Context, prompt string, opts *ChatCompletionOptions, schema *Schema, out any) error {
	if opts == nil {
		opts = NewChatCompletionOptions()
	}
	opts.JSON = true
	reply, err := c.SimpleChat(ctx, prompt, opts)
	if err != nil {
		return err
	}
	return DecodeJSON(reply, schema, out)
}

func (c *Client) snapshot() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

// makeRequest makes a raw HTTP request to the configured LLM API
func (c *Client) makeRequest(ctx context.Context, cfg *Config, method, path string, payload interface{}) (*ChatResponse, error) {
	url := strings.TrimRight(cfg.APIURL, "/") + path

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range cfg.GetHeaders() {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if os.IsTimeout(err) {
			return nil, fmt.Errorf("request timed out: %w", err)
		}
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var chatResponse ChatResponse
	if err := json.Unmarshal(responseBody, &chatResponse); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(responseBody))
		}
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if chatResponse.Error != nil && chatResponse.Error.Message != "" {
		return &chatResponse, chatResponse.Error
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &chatResponse, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(responseBody))
	}

	return &chatResponse, nil
}

func getModel(cfg *Config, opts *ChatCompletionOptions) string {
	if opts.Model != "" {
		return opts.Model
	}
	return cfg.ModelFor(opts.Stage)
}

func getMaxTokens(cfg *Config, opts *ChatCompletionOptions) int {
	if opts.MaxTokens > 0 {
		return opts.MaxTokens
	}
	return cfg.MaxTokens
}

func getTemperature(cfg *Config, opts *ChatCompletionOptions) float64 {
	if opts.Temperature >= 0 && opts.Temperature <= 2 {
		return opts.Temperature
	}
	return cfg.Temperature
}
