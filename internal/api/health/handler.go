// Package health serves the liveness and readiness probes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

const serviceName = "roadwatch"

// Checker reports the health of one backing dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// Handler serves the probe endpoints. A checker is registered at
// startup for each configured backend (SQLite, ClickHouse, Redis).
type Handler struct {
	mu       sync.RWMutex
	checkers []Checker
}

// NewHandler creates a health handler with no checkers.
func NewHandler() *Handler {
	return &Handler{}
}

// RegisterChecker adds a dependency checker.
func (h *Handler) RegisterChecker(c Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers = append(h.checkers, c)
}

// HealthResponse is the probe payload.
type HealthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// Health reports that the process is up. No dependencies are checked.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeProbe(w, http.StatusOK, HealthResponse{Status: "ok", Service: serviceName})
}

// Live is the liveness probe: 200 whenever the process can serve.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	writeProbe(w, http.StatusOK, HealthResponse{Status: "live", Service: serviceName})
}

// Ready runs every registered dependency check and reports 503 when
// any of them fails, with the per-dependency outcome in the body.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	h.mu.RLock()
	checkers := append([]Checker(nil), h.checkers...)
	h.mu.RUnlock()

	checks := make(map[string]string, len(checkers))
	status, code := "ready", http.StatusOK
	for _, c := range checkers {
		if err := c.Check(ctx); err != nil {
			checks[c.Name()] = err.Error()
			status, code = "not_ready", http.StatusServiceUnavailable
		} else {
			checks[c.Name()] = "ok"
		}
	}

	writeProbe(w, code, HealthResponse{Status: status, Service: serviceName, Checks: checks})
}

func writeProbe(w http.ResponseWriter, status int, resp HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
