package api

import (
	"net/http"
	"time"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/api/respond"
)

// HealthReporter is satisfied by health.ServiceHealthChecker.
type HealthReporter interface {
	IsHealthy() bool
	Components() map[string]bool
}

// HealthHandler serves GET /api/health.
type HealthHandler struct {
	svc HealthReporter
}

func NewHealthHandler(svc HealthReporter) *HealthHandler { return &HealthHandler{svc: svc} }

// CheckHealth always answers 200; the body reports healthy or unhealthy along
// with per-dependency status. A nil reporter is unhealthy.
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, _ *http.Request) {
	status := "unhealthy"
	var components map[string]bool
	if h.svc != nil {
		if h.svc.IsHealthy() {
			status = "healthy"
		}
		components = h.svc.Components()
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}
