package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthChecker reports the health of one dependency.
type HealthChecker func(ctx context.Context) error

// HealthHandler aggregates dependency checks behind /healthz-style endpoints.
type HealthHandler struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
	timeout  time.Duration
}

// NewHealthHandler creates a health handler with a per-check timeout.
func NewHealthHandler(timeout time.Duration) *HealthHandler {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &HealthHandler{
		checkers: make(map[string]HealthChecker),
		timeout:  timeout,
	}
}

// Register adds a named dependency check.
func (h *HealthHandler) Register(name string, check HealthChecker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = check
}

// ServeHTTP runs all checks and returns 200 when every dependency is healthy,
// 503 otherwise, with a per-dependency status body.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checkers := make(map[string]HealthChecker, len(h.checkers))
	for name, c := range h.checkers {
		checkers[name] = c
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(checkers))
	for name, check := range checkers {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			results[name] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(results)
}
