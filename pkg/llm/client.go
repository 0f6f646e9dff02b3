// Package llm provides the HTTP client for the LLM planning service.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Sentinel errors distinguishing transport failures from upstream ones.
// Callers use errors.Is to map them onto pipeline error codes.
var (
	// ErrUnavailable means the service could not be reached at all.
	ErrUnavailable = errors.New("llm service unavailable")
	// ErrUpstream means the service answered with a non-2xx status.
	ErrUpstream = errors.New("llm service returned an error")
)

// generateTimeout bounds a single /generate or /chat call. The ambient
// request deadline still applies on top of it.
const generateTimeout = 60 * time.Second

const healthTimeout = 5 * time.Second

// Client talks to the LLM service. Safe for concurrent use; the underlying
// http.Client pools connections.
type Client struct {
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	logger      *slog.Logger
}

// Options allows per-call overrides of the configured generation parameters.
type Options struct {
	Temperature *float64
	MaxTokens   *int
	System      string
}

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewClient creates an LLM client for the given base URL.
func NewClient(baseURL, model string, temperature float64, maxTokens int) *Client {
	return &Client{
		baseURL:     baseURL,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		httpClient:  &http.Client{},
		logger:      slog.With("component", "llm_client"),
	}
}

// Close releases pooled connections. The client must not be used afterwards.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

type generateRequest struct {
	Prompt      string  `json:"prompt"`
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	System      string  `json:"system,omitempty"`
	Stream      bool    `json:"stream"`
}

type generateResponse struct {
	Text string `json:"text"`
}

// Generate asks the LLM for a completion of prompt. opts may be nil.
func (c *Client) Generate(ctx context.Context, prompt string, opts *Options) (string, error) {
	req := generateRequest{
		Prompt:      prompt,
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Stream:      false,
	}
	if opts != nil {
		if opts.Temperature != nil {
			req.Temperature = *opts.Temperature
		}
		if opts.MaxTokens != nil {
			req.MaxTokens = *opts.MaxTokens
		}
		req.System = opts.System
	}

	var resp generateResponse
	if err := c.post(ctx, "/generate", req, &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}

type chatRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatResponse struct {
	Message string `json:"message"`
}

// Chat sends a multi-turn conversation and returns the assistant reply.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	req := chatRequest{
		Messages:    messages,
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	var resp chatResponse
	if err := c.post(ctx, "/chat", req, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// Healthy probes GET /health on the LLM service.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) post(ctx context.Context, path string, body, target any) error {
	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("LLM request failed", "path", path, "error", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("LLM returned non-2xx", "path", path, "status", resp.StatusCode)
		return fmt.Errorf("%w: HTTP %d", ErrUpstream, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	return nil
}
