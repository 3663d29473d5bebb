package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/api/respond"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/embeddings"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/searchindex"
)

const (
	defaultTopK = 10
	maxTopK     = 100
)

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"topK"`
}

// SearchHandler handles POST /api/search over indexed posts.
type SearchHandler struct {
	emb embeddings.Provider
	idx searchindex.Index
	log zerolog.Logger
}

func NewSearchHandler(emb embeddings.Provider, idx searchindex.Index, log zerolog.Logger) *SearchHandler {
	return &SearchHandler{emb: emb, idx: idx, log: log}
}

func (h *SearchHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	var in searchRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond.WriteBadRequest(w, "invalid json")
		return
	}
	in.Query = strings.TrimSpace(in.Query)
	if in.Query == "" {
		respond.WriteBadRequest(w, "query is required")
		return
	}
	switch {
	case in.TopK <= 0:
		in.TopK = defaultTopK
	case in.TopK > maxTopK:
		in.TopK = maxTopK
	}
	if h.emb == nil || h.idx == nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "search not configured")
		return
	}

	vec, err := h.emb.Embed(r.Context(), in.Query)
	if err != nil {
		h.log.Error().Err(err).Msg("embed query")
		respond.WriteError(w, http.StatusBadGateway, "embedding service unavailable")
		return
	}
	hits, err := h.idx.Search(r.Context(), in.Query, vec, in.TopK)
	if err != nil {
		h.log.Error().Err(err).Msg("search index")
		respond.WriteError(w, http.StatusBadGateway, "search service unavailable")
		return
	}
	if hits == nil {
		hits = []searchindex.Hit{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"hits": hits, "count": len(hits)})
}
