package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// readyTimeout bounds all dependency checks of one readiness check.
const readyTimeout = 5 * time.Second

// Check outcomes reported per dependency.
const (
	checkOK            = "ok"
	checkUnreachable   = "unreachable"
	checkNotConfigured = "not configured"
)

// HealthChecker is a dependency the readiness check can ping.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness checks.
type HealthHandler struct {
	deps map[string]HealthChecker
}

// NewHealthHandler checks db as "postgres" and cache as "redis". A nil
// checker is reported as not configured.
func NewHealthHandler(db, cache HealthChecker) *HealthHandler {
	return &HealthHandler{deps: map[string]HealthChecker{"postgres": db, "redis": cache}}
}

// HealthResponse is the body of both checks.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz is the liveness check. It never touches dependencies.
//
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readyz pings every dependency in parallel and answers 503 when any of them
// is down.
//
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(h.deps))
		g      errgroup.Group
	)
	for name, dep := range h.deps {
		if dep == nil {
			mu.Lock()
			checks[name] = checkNotConfigured
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			result := checkOK
			if dep.Ping(ctx) != nil {
				result = checkUnreachable
			}
			mu.Lock()
			checks[name] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, result := range checks {
		if result == checkUnreachable {
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Checks: checks})
			return
		}
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Checks: checks})
}
