package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/api/respond"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/model"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/services"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/store"
)

type walletRequest struct {
	Address string `json:"address"`
	Chain   string `json:"chain,omitempty"`
}

type registerRequest struct {
	Handle string `json:"handle"`
	walletRequest
}

// IdentityHandler exposes identity registration and lookups.
type IdentityHandler struct {
	svc   *services.IdentityService
	store store.Store
	log   zerolog.Logger
}

func NewIdentityHandler(svc *services.IdentityService, s store.Store, log zerolog.Logger) *IdentityHandler {
	return &IdentityHandler{svc: svc, store: s, log: log}
}

// Register handles POST /api/identities.
func (h *IdentityHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond.WriteBadRequest(w, "invalid json")
		return
	}
	out, err := h.svc.Register(r.Context(), in.Handle, in.Address, in.Chain)
	h.writeOutcome(w, out, err)
}

// AddWallet handles POST /api/identities/{handle}/wallets.
func (h *IdentityHandler) AddWallet(w http.ResponseWriter, r *http.Request) {
	var in walletRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond.WriteBadRequest(w, "invalid json")
		return
	}
	out, err := h.svc.AddWallet(r.Context(), mux.Vars(r)["handle"], in.Address, in.Chain)
	h.writeOutcome(w, out, err)
}

// Archive handles POST /api/identities/{handle}/archive.
func (h *IdentityHandler) Archive(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Archive(r.Context(), mux.Vars(r)["handle"])
	h.writeOutcome(w, out, err)
}

// Reactivate handles POST /api/identities/{handle}/reactivate.
func (h *IdentityHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Reactivate(r.Context(), mux.Vars(r)["handle"])
	h.writeOutcome(w, out, err)
}

// Get handles GET /api/identities/{handle}.
func (h *IdentityHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respond.WriteJSON(w, http.StatusOK, id)
}

// List handles GET /api/identities?includeArchived=true&limit=N.
func (h *IdentityHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	includeArchived, _ := strconv.ParseBool(r.URL.Query().Get("includeArchived"))
	ids, err := h.svc.List(r.Context(), includeArchived, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("list identities")
		respond.WriteInternalError(w, "list identities failed")
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"identities": ids, "count": len(ids)})
}

// Posts handles GET /api/identities/{handle}/posts?limit=N, newest first.
func (h *IdentityHandler) Posts(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	id, ok := h.lookup(w, r)
	if !ok {
		return
	}
	posts, err := h.store.Posts().RecentByAuthor(r.Context(), id.ExternalID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("handle", id.Handle).Msg("recent posts")
		respond.WriteInternalError(w, "query posts failed")
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"posts": posts, "count": len(posts)})
}

// Engagement handles GET /api/identities/{handle}/engagement.
func (h *IdentityHandler) Engagement(w http.ResponseWriter, r *http.Request) {
	id, ok := h.lookup(w, r)
	if !ok {
		return
	}
	agg, err := h.store.Engagement().Get(r.Context(), id.ExternalID)
	if errors.Is(err, model.ErrNotFound) {
		agg = &model.EngagementAggregate{IdentityRef: id.ExternalID}
	} else if err != nil {
		h.log.Error().Err(err).Str("handle", id.Handle).Msg("engagement aggregate")
		respond.WriteInternalError(w, "query engagement failed")
		return
	}
	respond.WriteJSON(w, http.StatusOK, agg)
}

func (h *IdentityHandler) lookup(w http.ResponseWriter, r *http.Request) (*model.Identity, bool) {
	handle := mux.Vars(r)["handle"]
	id, err := h.svc.Get(r.Context(), handle)
	if errors.Is(err, model.ErrNotFound) {
		respond.WriteNotFound(w, "identity not found")
		return nil, false
	}
	if err != nil {
		h.log.Error().Err(err).Str("handle", handle).Msg("get identity")
		respond.WriteInternalError(w, "lookup failed")
		return nil, false
	}
	return id, true
}

func (h *IdentityHandler) writeOutcome(w http.ResponseWriter, out model.Outcome, err error) {
	if err != nil {
		h.log.Error().Err(err).Str("reason", string(out.Reason)).Msg("identity operation")
		respond.WriteInternalError(w, out.Message)
		return
	}
	respond.WriteJSON(w, outcomeStatus(out), out)
}

// outcomeStatus maps an Outcome reason to an HTTP status.
func outcomeStatus(out model.Outcome) int {
	switch out.Reason {
	case model.ReasonRegistered, model.ReasonWalletAdded:
		return http.StatusCreated
	case model.ReasonArchived, model.ReasonReactivated, model.ReasonObserved:
		return http.StatusOK
	case model.ReasonDuplicateIdentity, model.ReasonDuplicateWallet:
		return http.StatusConflict
	case model.ReasonMissingWallet, model.ReasonInvalidWallet, model.ReasonInvalidIdentity:
		return http.StatusUnprocessableEntity
	case model.ReasonNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return store.DefaultQueryLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return n, nil
}
