package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/api/recovery"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/embeddings"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/searchindex"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/services"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/store"
)

// Deps are the collaborators served over HTTP. Embedder, Index and Ingest are
// optional; their endpoints answer 503 when unset.
type Deps struct {
	Identities *services.IdentityService
	Store      store.Store
	Embedder   embeddings.Provider
	Index      searchindex.Index
	Ingest     IngestTrigger
	Health     HealthReporter
	Log        zerolog.Logger
}

// NewRouter wires every route behind the panic recovery middleware.
func NewRouter(d Deps) *mux.Router {
	router := mux.NewRouter()
	router.Use(recovery.New(d.Log))

	identities := NewIdentityHandler(d.Identities, d.Store, d.Log)
	posts := NewPostHandler(d.Store, d.Log)
	search := NewSearchHandler(d.Embedder, d.Index, d.Log)

	router.HandleFunc("/api/health", NewHealthHandler(d.Health).CheckHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	router.HandleFunc("/api/identities", identities.Register).Methods(http.MethodPost)
	router.HandleFunc("/api/identities", identities.List).Methods(http.MethodGet)
	router.HandleFunc("/api/identities/{handle}", identities.Get).Methods(http.MethodGet)
	router.HandleFunc("/api/identities/{handle}/wallets", identities.AddWallet).Methods(http.MethodPost)
	router.HandleFunc("/api/identities/{handle}/archive", identities.Archive).Methods(http.MethodPost)
	router.HandleFunc("/api/identities/{handle}/reactivate", identities.Reactivate).Methods(http.MethodPost)
	router.HandleFunc("/api/identities/{handle}/posts", identities.Posts).Methods(http.MethodGet)
	router.HandleFunc("/api/identities/{handle}/engagement", identities.Engagement).Methods(http.MethodGet)

	router.HandleFunc("/api/posts/relevant", posts.Relevant).Methods(http.MethodGet)
	router.HandleFunc("/api/posts/{postId}", posts.Get).Methods(http.MethodGet)
	router.HandleFunc("/api/engagement/top", posts.Top).Methods(http.MethodGet)

	router.HandleFunc("/api/search", search.HandleSearch).Methods(http.MethodPost)
	router.HandleFunc("/api/ingest/run", NewIngestHandler(d.Ingest).Run).Methods(http.MethodPost)

	return router
}
