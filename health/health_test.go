package health

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticChecker(name, status string) Checker {
	return CheckFunc{
		ComponentName: name,
		Fn: func(context.Context) Status {
			return Status{Component: name, Status: status, Timestamp: time.Now()}
		},
	}
}

func TestMonitorAggregatesWorstStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []string
		want     string
	}{
		{"all healthy", []string{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"one degraded", []string{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"one unhealthy", []string{StatusDegraded, StatusUnhealthy}, StatusUnhealthy},
		{"no checkers", nil, StatusHealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			monitor := NewMonitor(time.Second)
			for i, status := range tt.statuses {
				monitor.Register(staticChecker("c"+string(rune('0'+i)), status))
			}
			overall := monitor.Check(context.Background())
			assert.Equal(t, tt.want, overall.Status)
			assert.Len(t, overall.Checks, len(tt.statuses))
		})
	}
}

func TestHandlerStatusCodes(t *testing.T) {
	monitor := NewMonitor(time.Second)
	monitor.Register(staticChecker("nats", StatusHealthy))

	rec := httptest.NewRecorder()
	monitor.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, 200, rec.Code)

	var status Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Healthy())

	monitor.Register(staticChecker("store", StatusUnhealthy))
	rec = httptest.NewRecorder()
	monitor.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, 503, rec.Code)
}

func TestHelpers(t *testing.T) {
	assert.True(t, OK("x").Healthy())
	assert.Equal(t, StatusDegraded, Degraded("x", "slow").Status)
	assert.Equal(t, StatusUnhealthy, Unhealthy("x", "down").Status)
}
