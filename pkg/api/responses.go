package api

import (
	"github.com/nestor-ai/nestor/pkg/health"
	"github.com/nestor-ai/nestor/pkg/models"
)

// ServiceInfo is returned by GET /.
type ServiceInfo struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status        string                    `json:"status"`
	Version       string                    `json:"version"`
	Timestamp     string                    `json:"timestamp"`
	Collaborators map[string]*health.Status `json:"collaborators,omitempty"`
	Connections   int                       `json:"ws_connections"`
}

// AllowedActionsResponse is returned by GET /api/actions/allowed.
type AllowedActionsResponse struct {
	AllowedActions []string `json:"allowed_actions"`
}

// HistoryResponse is returned by GET /api/actions/history.
type HistoryResponse struct {
	History []*models.PipelineResponse `json:"history"`
}

// MemorySearchResponse is returned by POST /api/memory/search.
type MemorySearchResponse struct {
	Results []models.MemoryHit `json:"results"`
}

// MemoryStoreResponse is returned by POST /api/memory/store.
type MemoryStoreResponse struct {
	Status string `json:"status"`
}
