package server

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Health status constants for health check responses.
const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
)

// Check reports the health of one component. A nil error is healthy.
type Check func() error

// HealthChecker serves liveness and readiness probes.
//
// The server starts not ready; the caller flips it with SetReady once the
// session manager has initialized. Named checks are evaluated on every
// readiness probe.
type HealthChecker struct {
	ready         atomic.Bool
	serverContext *ServerContext
	startTime     time.Time

	mu     sync.RWMutex
	checks map[string]Check
}

// NewHealthChecker creates a new HealthChecker. sc may be nil.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	return &HealthChecker{
		serverContext: sc,
		startTime:     time.Now(),
		checks:        make(map[string]Check),
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

// AddCheck registers a named readiness check, replacing any with the same name.
func (h *HealthChecker) AddCheck(name string, check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

func (h *HealthChecker) isServerShuttingDown() bool {
	return h.serverContext != nil && h.serverContext.IsShutdown()
}

// HealthResponse represents the JSON response for health endpoints.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse provides comprehensive health information.
type DetailedHealthResponse struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime"`
	Checks map[string]string `json:"checks,omitempty"`
}

// evaluate runs every check and reports the overall status.
func (h *HealthChecker) evaluate() (string, map[string]string) {
	checks := make(map[string]string)
	status := healthStatusOK

	if h.ready.Load() {
		checks["ready"] = healthStatusOK
	} else {
		checks["ready"] = healthStatusNotReady
		status = healthStatusNotReady
	}

	if h.isServerShuttingDown() {
		checks["shutdown"] = healthStatusShuttingDown
		status = healthStatusShuttingDown
	} else {
		checks["shutdown"] = healthStatusOK
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := h.checks[name](); err != nil {
			checks[name] = err.Error()
			if status == healthStatusOK {
				status = healthStatusNotReady
			}
		} else {
			checks[name] = healthStatusOK
		}
	}
	h.mu.RUnlock()

	return status, checks
}

// LivenessHandler returns an HTTP handler for the /healthz endpoint.
// It only reports that the process is serving.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler returns an HTTP handler for the /readyz endpoint.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		status, checks := h.evaluate()
		if status == healthStatusOK {
			w.WriteHeader(http.StatusOK)
		} else {
			status = healthStatusNotReady
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		_ = json.NewEncoder(w).Encode(HealthResponse{Status: status, Checks: checks})
	})
}

// DetailedHealthHandler returns an HTTP handler for the /healthz/detailed endpoint.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		status, checks := h.evaluate()
		if status == healthStatusOK {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		_ = json.NewEncoder(w).Encode(DetailedHealthResponse{
			Status: status,
			Uptime: time.Since(h.startTime).Truncate(time.Second).String(),
			Checks: checks,
		})
	})
}

// RegisterHealthEndpoints registers health check endpoints on the given mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	mux.Handle("/healthz/detailed", h.DetailedHealthHandler())
}
