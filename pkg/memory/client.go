// Package memory provides the HTTP client for the vector memory service.
//
// Memory is strictly best-effort for the pipeline: Search returns nil on any
// failure and Store reports a bool. Neither ever propagates an error into
// request processing.
package memory

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
	// DefaultSearchLimit caps similarity search results when the caller
	// does not specify a limit.
	DefaultSearchLimit = 5

	callTimeout   = 10 * time.Second
	healthTimeout = 5 * time.Second

	collectionName = "nestor_memory"
)

// Client talks to the vector store's collection API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a memory client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		logger:     slog.With("component", "memory_client"),
	}
}

// Close releases pooled connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// Entry is an interaction record to persist.
type Entry struct {
	RequestID string         `json:"request_id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type queryRequest struct {
	QueryTexts []string `json:"query_texts"`
	NResults   int      `json:"n_results"`
}

// queryResponse mirrors the vector store's nested result arrays: the outer
// index is the query (we always send one), the inner the hits.
type queryResponse struct {
	Documents [][]string         `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
	Distances [][]float64        `json:"distances"`
}

// Search returns up to limit hits for query, most similar first.
// Any failure is absorbed: the caller gets nil and the pipeline proceeds
// with empty context.
func (c *Client) Search(ctx context.Context, query string, limit int) []models.MemoryHit {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var resp queryResponse
	if err := c.post(ctx, "/api/v1/collections/"+collectionName+"/query",
		queryRequest{QueryTexts: []string{query}, NResults: limit}, &resp); err != nil {
		c.logger.Warn("Memory search failed", "error", err)
		return nil
	}

	if len(resp.Documents) == 0 {
		return nil
	}

	docs := resp.Documents[0]
	hits := make([]models.MemoryHit, 0, len(docs))
	for i, doc := range docs {
		hit := models.MemoryHit{Content: doc, Metadata: map[string]any{}}
		// Documents and metadatas are zipped pairwise; a missing metadata
		// entry is treated as an empty map.
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) && resp.Metadatas[0][i] != nil {
			hit.Metadata = resp.Metadatas[0][i]
		}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			hit.Score = resp.Distances[0][i]
		}
		hits = append(hits, hit)
	}
	return hits
}

type addRequest struct {
	IDs       []string         `json:"ids"`
	Documents []string         `json:"documents"`
	Metadatas []map[string]any `json:"metadatas"`
}

// Store persists an entry. Best-effort: returns false on any failure.
func (c *Client) Store(ctx context.Context, entry Entry) bool {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	req := addRequest{
		IDs:       []string{entry.RequestID},
		Documents: []string{entry.Content},
		Metadatas: []map[string]any{metadata},
	}
	if err := c.post(ctx, "/api/v1/collections/"+collectionName+"/add", req, nil); err != nil {
		c.logger.Warn("Memory store failed", "request_id", entry.RequestID, "error", err)
		return false
	}
	return true
}

// Healthy probes the store's heartbeat endpoint.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/heartbeat", nil)
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
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{code: resp.StatusCode}
	}

	if target == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("memory service returned HTTP %d", e.code)
}
