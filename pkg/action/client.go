// Package action provides the HTTP client for the action executor service.
package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nestor-ai/nestor/pkg/models"
)

const (
	executeTimeout  = 60 * time.Second
	validateTimeout = 5 * time.Second
	healthTimeout   = 5 * time.Second
)

// Client talks to the action executor. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an action executor client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		logger:     slog.With("component", "action_client"),
	}
}

// Close releases pooled connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// Result is the executor's answer for one action.
type Result struct {
	Status string `json:"status"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Validation is the executor's answer for a dry validation request.
type Validation struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// executePayload is the wire form of an execution request: the full action
// object plus the dry-run flag.
type executePayload struct {
	models.Action
	DryRun bool `json:"dry_run,omitempty"`
}

// Execute runs an action remotely. A transport or upstream failure is
// returned as an error; the caller converts it into an error outcome.
func (c *Client) Execute(ctx context.Context, a models.Action, dryRun bool) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, executeTimeout)
	defer cancel()

	var result Result
	if err := c.post(ctx, "/execute", executePayload{Action: a, DryRun: dryRun}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Validate asks the executor whether it would accept the action,
// without running it.
func (c *Client) Validate(ctx context.Context, a models.Action) (*Validation, error) {
	ctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	var v Validation
	if err := c.post(ctx, "/validate", a, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Healthy probes GET /health on the executor service.
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
		return fmt.Errorf("action executor unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("action executor returned HTTP %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
