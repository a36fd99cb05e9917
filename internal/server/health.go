package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
)

// Health status constants for health check responses.
const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
	healthStatusFailed       = "failed"
)

// healthCheckTimeout bounds a single readiness check.
const healthCheckTimeout = 2 * time.Second

// CheckFunc reports whether a dependency is usable.
type CheckFunc func(ctx context.Context) error

// HealthChecker provides health check endpoints for Kubernetes liveness and readiness checks.
type HealthChecker struct {
	ready        atomic.Bool
	shuttingDown atomic.Bool
	startTime    time.Time
	version      string

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// NewHealthChecker creates a HealthChecker that starts out not ready.
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		startTime: time.Now(),
		version:   version,
		checks:    make(map[string]CheckFunc),
	}
}

// SetReady sets the readiness state of the server.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns whether the server is ready to receive traffic.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// SetShuttingDown marks the server as draining.
func (h *HealthChecker) SetShuttingDown() {
	h.shuttingDown.Store(true)
}

// AddCheck registers a readiness check under name.
func (h *HealthChecker) AddCheck(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// HealthResponse represents the JSON response for health endpoints.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse provides comprehensive health information.
type DetailedHealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Uptime  string            `json:"uptime"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// evaluate runs every check and reports whether all passed.
func (h *HealthChecker) evaluate(ctx context.Context) (map[string]string, bool) {
	results := make(map[string]string)
	allOk := true

	if h.ready.Load() {
		results["ready"] = healthStatusOK
	} else {
		results["ready"] = healthStatusNotReady
		allOk = false
	}
	if h.shuttingDown.Load() {
		results["shutdown"] = healthStatusShuttingDown
		allOk = false
	} else {
		results["shutdown"] = healthStatusOK
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	h.mu.RUnlock()
	sort.Strings(names)

	for _, name := range names {
		h.mu.RLock()
		check := h.checks[name]
		h.mu.RUnlock()

		checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := check(checkCtx)
		cancel()
		if err != nil {
			results[name] = healthStatusFailed
			allOk = false
		} else {
			results[name] = healthStatusOK
		}
	}

	return results, allOk
}

// LivenessHandler returns an HTTP handler for the /healthz endpoint.
// Liveness only reports that the process is serving requests.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler returns an HTTP handler for the /readyz endpoint.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checks, allOk := h.evaluate(r.Context())

		response := HealthResponse{Status: healthStatusOK, Checks: checks}
		status := http.StatusOK
		if !allOk {
			response.Status = healthStatusNotReady
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, response)
	})
}

// DetailedHealthHandler returns an HTTP handler for the /healthz/detailed endpoint.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checks, allOk := h.evaluate(r.Context())

		response := DetailedHealthResponse{
			Status:  healthStatusOK,
			Version: h.version,
			Uptime:  time.Since(h.startTime).Truncate(time.Second).String(),
			Checks:  checks,
		}
		status := http.StatusOK
		switch {
		case h.shuttingDown.Load():
			response.Status = healthStatusShuttingDown
			status = http.StatusServiceUnavailable
		case !allOk:
			response.Status = healthStatusNotReady
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, response)
	})
}

// RegisterHealthEndpoints registers health check endpoints on r.
func (h *HealthChecker) RegisterHealthEndpoints(r *mux.Router) {
	r.Handle("/healthz", h.LivenessHandler()).Methods(http.MethodGet)
	r.Handle("/readyz", h.ReadinessHandler()).Methods(http.MethodGet)
	r.Handle("/healthz/detailed", h.DetailedHealthHandler()).Methods(http.MethodGet)
}

// writeJSON writes v as the JSON response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
