// Package health aggregates component health checks into a single
// service status served over HTTP.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Service states, ordered from best to worst.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Status is the health of one component or of the whole service.
type Status struct {
	Component string    `json:"component"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Checks    []Status  `json:"checks,omitempty"`
}

// Healthy reports whether the status is fully healthy.
func (s Status) Healthy() bool {
	return s.Status == StatusHealthy
}

// Checker reports the health of one component.
type Checker interface {
	Name() string
	Check(ctx context.Context) Status
}

// CheckFunc adapts a function to the Checker interface.
type CheckFunc struct {
	ComponentName string
	Fn            func(ctx context.Context) Status
}

func (c CheckFunc) Name() string                      { return c.ComponentName }
func (c CheckFunc) Check(ctx context.Context) Status { return c.Fn(ctx) }

// OK builds a healthy status for a component.
func OK(component string) Status {
	return Status{Component: component, Status: StatusHealthy, Timestamp: time.Now().UTC()}
}

// Degraded builds a degraded status for a component.
func Degraded(component, message string) Status {
	return Status{Component: component, Status: StatusDegraded, Message: message, Timestamp: time.Now().UTC()}
}

// Unhealthy builds an unhealthy status for a component.
func Unhealthy(component, message string) Status {
	return Status{Component: component, Status: StatusUnhealthy, Message: message, Timestamp: time.Now().UTC()}
}

// Monitor aggregates checkers. The overall status is the worst of the
// individual checks: one unhealthy component makes the service
// unhealthy, one degraded component makes it degraded.
type Monitor struct {
	mu       sync.RWMutex
	checkers []Checker
	timeout  time.Duration
}

// NewMonitor creates an empty monitor. Each check runs with the given
// per-check timeout.
func NewMonitor(timeout time.Duration) *Monitor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Monitor{timeout: timeout}
}

// Register adds a checker.
func (m *Monitor) Register(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checker)
}

// Check runs all registered checks and aggregates them.
func (m *Monitor) Check(ctx context.Context) Status {
	m.mu.RLock()
	checkers := make([]Checker, len(m.checkers))
	copy(checkers, m.checkers)
	m.mu.RUnlock()

	overall := Status{Component: "service", Status: StatusHealthy, Timestamp: time.Now().UTC()}
	for _, checker := range checkers {
		checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
		status := checker.Check(checkCtx)
		cancel()

		overall.Checks = append(overall.Checks, status)
		switch status.Status {
		case StatusUnhealthy:
			overall.Status = StatusUnhealthy
		case StatusDegraded:
			if overall.Status == StatusHealthy {
				overall.Status = StatusDegraded
			}
		}
	}
	return overall
}

// Handler serves the aggregated status as JSON. Unhealthy maps to 503 so
// orchestrators can act on the status code alone; degraded still serves
// 200.
func (m *Monitor) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := m.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if status.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	})
}
