// Package audit keeps a record of every pipeline response: an append-only
// JSONL file plus a bounded in-memory tail serving the history endpoint.
package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/nestor-ai/nestor/pkg/models"
)

// defaultCapacity bounds the in-memory tail.
const defaultCapacity = 1000

// Log records pipeline responses. Safe for concurrent use. A disabled log
// accepts records and drops them, so callers never branch on configuration.
type Log struct {
	mu      sync.Mutex
	entries []*models.PipelineResponse
	file    *os.File
	enabled bool
	logger  *slog.Logger
}

// New opens an audit log. path may be empty for a memory-only log; when
// enabled is false the log is inert.
func New(path string, enabled bool) (*Log, error) {
	l := &Log{
		enabled: enabled,
		logger:  slog.With("component", "audit"),
	}
	if !enabled || path == "" {
		return l, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log %s: %w", path, err)
	}
	l.file = f
	return l, nil
}

// Record appends a response to the trail.
func (l *Log) Record(resp *models.PipelineResponse) {
	if !l.enabled {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, resp)
	if len(l.entries) > defaultCapacity {
		l.entries = l.entries[len(l.entries)-defaultCapacity:]
	}

	if l.file == nil {
		return
	}
	line, err := json.Marshal(resp)
	if err != nil {
		l.logger.Warn("Audit marshal failed", "request_id", resp.RequestID, "error", err)
		return
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		l.logger.Warn("Audit write failed", "request_id", resp.RequestID, "error", err)
	}
}

// Tail returns the most recent n responses, oldest first.
func (l *Log) Tail(n int) []*models.PipelineResponse {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]*models.PipelineResponse, n)
	copy(out, l.entries[len(l.entries)-n:])
	return out
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
