package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker_Liveness(t *testing.T) {
	h := NewHealthChecker("1.2.3")
	h.SetShuttingDown()

	rec := httptest.NewRecorder()
	h.LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHealthChecker_Readiness(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(h *HealthChecker)
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "not ready",
			setup:      func(*HealthChecker) {},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"ready": "not ready", "shutdown": "ok"},
		},
		{
			name:       "ready",
			setup:      func(h *HealthChecker) { h.SetReady(true) },
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"ready": "ok", "shutdown": "ok"},
		},
		{
			name: "shutting down",
			setup: func(h *HealthChecker) {
				h.SetReady(true)
				h.SetShuttingDown()
			},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"ready": "ok", "shutdown": "shutting down"},
		},
		{
			name: "failing dependency",
			setup: func(h *HealthChecker) {
				h.SetReady(true)
				h.AddCheck("session_store", func(context.Context) error { return errors.New("connection refused") })
			},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"ready": "ok", "shutdown": "ok", "session_store": "failed"},
		},
		{
			name: "healthy dependency",
			setup: func(h *HealthChecker) {
				h.SetReady(true)
				h.AddCheck("session_store", func(context.Context) error { return nil })
			},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"ready": "ok", "shutdown": "ok", "session_store": "ok"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthChecker("")
			tt.setup(h)

			rec := httptest.NewRecorder()
			h.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantChecks, resp.Checks)
		})
	}
}

func TestHealthChecker_Detailed(t *testing.T) {
	h := NewHealthChecker("1.2.3")
	h.SetReady(true)

	rec := httptest.NewRecorder()
	h.DetailedHealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/detailed", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DetailedHealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.NotEmpty(t, resp.Uptime)

	h.SetShuttingDown()
	rec = httptest.NewRecorder()
	h.DetailedHealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/detailed", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "shutting down", resp.Status)
}
