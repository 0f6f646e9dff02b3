// Package ws multiplexes pipeline requests over WebSocket connections.
//
// Each frame a client sends is one pipeline request; each request produces
// exactly one response frame carrying the same request_id. Responses arrive
// in completion order, not submission order — clients correlate by id.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/nestor-ai/nestor/pkg/models"
)

// writeTimeout bounds a single outbound frame. A client that stops reading
// loses the connection instead of stalling pipelines behind it.
const writeTimeout = 10 * time.Second

// Processor runs one request through the pipeline. Implemented by
// pipeline.Engine.
type Processor interface {
	Process(ctx context.Context, req models.Request) *models.PipelineResponse
}

// ConnNotifier observes connection open/close events, typically for metrics.
type ConnNotifier interface {
	ConnOpened()
	ConnClosed()
}

// Manager tracks open WebSocket connections and runs their requests
// concurrently, at most maxInflight per connection.
type Manager struct {
	connections map[string]*Connection
	mu          sync.RWMutex

	processor   Processor
	maxInflight int
	notifier    ConnNotifier
	logger      *slog.Logger
}

// Connection is one WebSocket client session.
//
// slots bounds in-flight pipelines: a slot is acquired before the next frame
// is read, so a client that floods the socket blocks on its own connection's
// capacity instead of the service's. writeMu serializes outbound frames;
// interleaved writes would corrupt them.
type Connection struct {
	ID      string
	conn    *websocket.Conn
	slots   chan struct{}
	writeMu sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewManager creates a connection manager.
func NewManager(processor Processor, maxInflight int) *Manager {
	return &Manager{
		connections: make(map[string]*Connection),
		processor:   processor,
		maxInflight: maxInflight,
		logger:      slog.With("component", "ws"),
	}
}

// SetNotifier attaches a connection observer. Optional.
func (m *Manager) SetNotifier(n ConnNotifier) { m.notifier = n }

// errorFrame is sent for frames that never reach the pipeline.
type errorFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Message   string `json:"message"`
}

// HandleConnection manages the lifecycle of one WebSocket connection. Called
// by the HTTP handler after upgrade; blocks until the connection closes.
func (m *Manager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	connID := uuid.New().String()
	ctx, cancel := context.WithCancel(parentCtx)

	c := &Connection{
		ID:     connID,
		conn:   conn,
		slots:  make(chan struct{}, m.maxInflight),
		ctx:    ctx,
		cancel: cancel,
	}

	m.register(c)

	// On any read-loop exit the connection is gone: cancel its in-flight
	// pipelines first, then wait for their goroutines to drain, then drop
	// the registration. Waiting before cancelling would hold a dead
	// connection open until every pipeline ran to completion.
	var wg sync.WaitGroup
	defer func() {
		c.cancel()
		wg.Wait()
		m.unregister(c)
	}()

	m.sendJSON(c, map[string]string{
		"type":          "connection.established",
		"connection_id": connID,
	})

	for {
		// Back-pressure: hold the next read until a pipeline slot frees up.
		select {
		case c.slots <- struct{}{}:
		case <-ctx.Done():
			return
		}

		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		req, ok := m.decodeRequest(c, data)
		if !ok {
			// Rejected frames never consume a slot.
			<-c.slots
			continue
		}

		wg.Add(1)
		go func(req models.Request) {
			defer wg.Done()
			defer func() { <-c.slots }()

			resp := m.processor.Process(c.ctx, req)
			m.sendJSON(c, resp)
		}(req)
	}
}

// decodeRequest parses a client frame, answering malformed ones with an
// error frame.
func (m *Manager) decodeRequest(c *Connection, data []byte) (models.Request, bool) {
	var req models.Request
	if err := json.Unmarshal(data, &req); err != nil {
		m.logger.Warn("Invalid WebSocket frame", "connection_id", c.ID, "error", err)
		m.sendJSON(c, errorFrame{Type: "error", Message: "invalid message"})
		return models.Request{}, false
	}
	if strings.TrimSpace(req.Content) == "" {
		m.sendJSON(c, errorFrame{Type: "error", RequestID: req.ID, Message: "content is required"})
		return models.Request{}, false
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	return req, true
}

// ActiveConnections returns the count of open connections.
func (m *Manager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// Shutdown closes every open connection. In-flight pipelines are cancelled
// through each connection's context.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.connections))
	for _, c := range m.connections {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	for _, c := range conns {
		c.cancel()
		_ = c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (m *Manager) register(c *Connection) {
	m.mu.Lock()
	m.connections[c.ID] = c
	m.mu.Unlock()

	if m.notifier != nil {
		m.notifier.ConnOpened()
	}
	m.logger.Info("WebSocket connected", "connection_id", c.ID)
}

func (m *Manager) unregister(c *Connection) {
	m.mu.Lock()
	delete(m.connections, c.ID)
	m.mu.Unlock()

	c.cancel()
	_ = c.conn.Close(websocket.StatusNormalClosure, "")

	if m.notifier != nil {
		m.notifier.ConnClosed()
	}
	m.logger.Info("WebSocket disconnected", "connection_id", c.ID)
}

// sendJSON marshals and sends one frame with a write timeout. Writes are
// serialized per connection so concurrently completing pipelines cannot
// interleave frames.
func (m *Manager) sendJSON(c *Connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		m.logger.Warn("Failed to marshal WebSocket frame",
			"connection_id", c.ID, "error", err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	writeCtx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()

	if err := c.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		m.logger.Warn("Failed to send WebSocket frame",
			"connection_id", c.ID, "error", err)
	}
}
