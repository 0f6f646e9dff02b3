// Package health runs background liveness probes against the collaborator
// services and caches their status for the readiness endpoint.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultCheckInterval is how often collaborators are probed.
const DefaultCheckInterval = 15 * time.Second

// probeTimeout bounds a single collaborator probe.
const probeTimeout = 5 * time.Second

// Probe is the health capability every collaborator client exposes.
type Probe interface {
	Healthy(ctx context.Context) bool
}

// Status captures the most recent probe result for one collaborator.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	LastCheck time.Time `json:"last_check"`
}

// Monitor periodically checks collaborator health.
// Runs a background goroutine that probes each registered collaborator.
type Monitor struct {
	probes        map[string]Probe
	checkInterval time.Duration

	statuses   map[string]*Status
	statusesMu sync.RWMutex

	cancel context.CancelFunc
	done   chan struct{}
	logger *slog.Logger
}

// NewMonitor creates a monitor over the named probes.
func NewMonitor(probes map[string]Probe, checkInterval time.Duration) *Monitor {
	if checkInterval <= 0 {
		checkInterval = DefaultCheckInterval
	}
	return &Monitor{
		probes:        probes,
		checkInterval: checkInterval,
		statuses:      make(map[string]*Status),
		logger:        slog.With("component", "health_monitor"),
	}
}

// Start launches the background probe loop.
// Calling Start on an already-running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	if m.cancel != nil {
		return // already started
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.loop(ctx)
}

// Stop shuts the monitor down and clears cached statuses so a subsequent
// Start begins with a clean slate.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.done != nil {
		<-m.done
	}

	m.statusesMu.Lock()
	m.statuses = make(map[string]*Status)
	m.statusesMu.Unlock()

	m.cancel = nil
	m.done = nil
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	// First check immediately so readiness doesn't wait a full interval.
	m.checkAll(ctx)

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkAll(ctx)
		}
	}
}

func (m *Monitor) checkAll(ctx context.Context) {
	for name, probe := range m.probes {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		healthy := probe.Healthy(probeCtx)
		cancel()

		if !healthy {
			m.logger.Warn("Collaborator unhealthy", "collaborator", name)
		}
		m.setStatus(name, healthy)
	}
}

func (m *Monitor) setStatus(name string, healthy bool) {
	m.statusesMu.Lock()
	defer m.statusesMu.Unlock()
	m.statuses[name] = &Status{
		Name:      name,
		Healthy:   healthy,
		LastCheck: time.Now(),
	}
}

// Statuses returns a copy of the current per-collaborator statuses.
func (m *Monitor) Statuses() map[string]*Status {
	m.statusesMu.RLock()
	defer m.statusesMu.RUnlock()
	result := make(map[string]*Status, len(m.statuses))
	for k, v := range m.statuses {
		cp := *v
		result[k] = &cp
	}
	return result
}

// IsHealthy returns true when every collaborator passed its last probe.
// Returns false before the first check completes.
func (m *Monitor) IsHealthy() bool {
	m.statusesMu.RLock()
	defer m.statusesMu.RUnlock()
	if len(m.statuses) == 0 {
		return false
	}
	for _, s := range m.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}
