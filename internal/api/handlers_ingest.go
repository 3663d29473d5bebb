package api

import (
	"context"
	"net/http"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/api/respond"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/ingest"
)

// IngestTrigger runs one ingestion round on demand.
type IngestTrigger interface {
	RunOnce(ctx context.Context) []ingest.Report
}

// IngestHandler handles POST /api/ingest/run.
type IngestHandler struct {
	trigger IngestTrigger
}

func NewIngestHandler(t IngestTrigger) *IngestHandler { return &IngestHandler{trigger: t} }

func (h *IngestHandler) Run(w http.ResponseWriter, r *http.Request) {
	if h.trigger == nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "ingestion disabled")
		return
	}
	reports := h.trigger.RunOnce(r.Context())
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"reports": reports})
}
