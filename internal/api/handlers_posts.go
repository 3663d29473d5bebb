package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/api/respond"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/model"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/store"
)

// PostHandler serves post and leaderboard queries.
type PostHandler struct {
	store store.Store
	log   zerolog.Logger
}

func NewPostHandler(s store.Store, log zerolog.Logger) *PostHandler {
	return &PostHandler{store: s, log: log}
}

// Relevant handles GET /api/posts/relevant?limit=N, newest first.
func (h *PostHandler) Relevant(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	posts, err := h.store.Posts().Relevant(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("relevant posts")
		respond.WriteInternalError(w, "query posts failed")
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"posts": posts, "count": len(posts)})
}

// Get handles GET /api/posts/{postId}.
func (h *PostHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Posts().Get(r.Context(), mux.Vars(r)["postId"])
	if errors.Is(err, model.ErrNotFound) {
		respond.WriteNotFound(w, "post not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("get post")
		respond.WriteInternalError(w, "query post failed")
		return
	}
	respond.WriteJSON(w, http.StatusOK, p)
}

// Top handles GET /api/engagement/top?limit=N.
func (h *PostHandler) Top(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	aggs, err := h.store.Engagement().Top(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("top engagement")
		respond.WriteInternalError(w, "query engagement failed")
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"leaders": aggs, "count": len(aggs)})
}
