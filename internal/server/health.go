package server

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Component is a subsystem that reports its own health.
type Component interface {
	Healthy() bool
	Status() map[string]string
}

// Checker aggregates component health. It is ready once marked ready and
// while every component is healthy.
type Checker struct {
	mu         sync.RWMutex
	ready      bool
	components map[string]Component
}

// NewChecker creates a checker that is alive but not yet ready.
func NewChecker() *Checker {
	return &Checker{components: make(map[string]Component)}
}

// Register adds a named component.
func (c *Checker) Register(name string, component Component) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components[name] = component
}

// SetReady toggles readiness, typically on startup and shutdown.
func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

func (c *Checker) Liveness() bool {
	return true
}

func (c *Checker) Readiness(ctx context.Context) bool {
	c.mu.RLock()
	ready := c.ready
	c.mu.RUnlock()
	return ready && ctx.Err() == nil && c.IsHealthy()
}

func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, component := range c.components {
		if !component.Healthy() {
			return false
		}
	}
	return true
}

// GetStatus returns each component's state plus its details prefixed with
// the component name.
func (c *Checker) GetStatus() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.components))
	for name := range c.components {
		names = append(names, name)
	}
	sort.Strings(names)

	status := make(map[string]string)
	for _, name := range names {
		component := c.components[name]
		if component.Healthy() {
			status[name] = "healthy"
		} else {
			status[name] = "unhealthy"
		}
		for k, v := range component.Status() {
			status[name+"."+k] = v
		}
	}
	return status
}

// LivenessHandler returns a handler for Kubernetes liveness probes.
// Liveness probes should only fail if the process needs to be restarted.
func LivenessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "alive"
		statusCode := http.StatusOK

		if !checker.Liveness() {
			status = "not alive"
			statusCode = http.StatusServiceUnavailable
		}

		writeJSON(w, statusCode, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}, logger)
	}
}

// ReadinessHandler returns a handler for Kubernetes readiness probes.
// Readiness probes indicate if the application can handle traffic.
func ReadinessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ready"
		statusCode := http.StatusOK

		if !checker.Readiness(r.Context()) {
			status = "not ready"
			statusCode = http.StatusServiceUnavailable
		}

		writeJSON(w, statusCode, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    checker.GetStatus(),
		}, logger)
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}
