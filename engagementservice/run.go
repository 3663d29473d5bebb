package engagementservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/api"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/config"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/embeddings"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/factory"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/health"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/indexing"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/ingest"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/logger"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/searchindex"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/services"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/store"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/upstream"
)

// dependencies are the long-lived components shared by the HTTP API and the
// ingestion runner.
type dependencies struct {
	store    store.Store
	client   *upstream.Client
	identity *services.IdentityService
	embedder embeddings.Provider
	index    searchindex.Index
	queue    *indexing.Queue
	runner   *ingest.Runner
}

// Run starts the engagement service and blocks until shutdown or error.
func Run() error {
	cfg, err := config.New()
	if err != nil {
		l := logger.New("engagement-service")
		l.Error().Err(err).Msg("Failed to load configuration")
		return err
	}
	log := logger.New("engagement-service", logger.WithLevel(cfg.LogLevel))

	proj, err := config.LoadProject(cfg.ProjectFile)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load project file")
		return err
	}
	proj.Merge(cfg)

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Int("http_port", cfg.HTTPPort).
		Bool("ingest_enabled", cfg.IngestEnabled).
		Int("accounts", len(proj.Accounts)).
		Int("keywords", len(proj.Keywords)+len(proj.Hashtags)).
		Str("weaviate_url", cfg.WeaviateURL).
		Msg("Engagement service starting")

	ctx, stop := newServerContext()
	defer stop()

	deps, err := initDependencies(ctx, cfg, proj, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.store.Close(); err != nil {
			log.Warn().Err(err).Msg("store close")
		}
	}()

	if deps.queue != nil {
		go func() {
			if err := deps.queue.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("index queue stopped")
			}
		}()
	}

	svcHealth := startHealthCheckers(ctx, cfg, log, deps)
	if err := waitUntilHealthy(ctx, cfg, svcHealth); err != nil {
		log.Error().Stack().Err(err).Msg("startup health check failed")
		return err
	}

	if cfg.IngestEnabled {
		if err := deps.runner.Start(ctx); err != nil {
			return err
		}
	}
	defer func() {
		if err := deps.runner.Shutdown(); err != nil {
			log.Warn().Err(err).Msg("ingest runner shutdown")
		}
	}()

	router := api.NewRouter(api.Deps{
		Identities: deps.identity,
		Store:      deps.store,
		Embedder:   deps.embedder,
		Index:      deps.index,
		Ingest:     deps.runner,
		Health:     svcHealth,
		Log:        log,
	})
	server := newHTTPServer(ctx, cfg, router)
	errCh := serveHTTP(server, log, cfg)

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

// initDependencies constructs every component and fails fast on the required
// ones. The embedder and index are optional.
func initDependencies(ctx context.Context, cfg *config.Config, proj *config.Project, log zerolog.Logger) (*dependencies, error) {
	st, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Store adapter unavailable")
		return nil, err
	}
	d := &dependencies{store: st}

	fail := func(msg string, err error) (*dependencies, error) {
		log.Error().Stack().Err(err).Msg(msg)
		_ = st.Close()
		return nil, err
	}

	if d.client, err = factory.NewUpstreamClient(cfg, log); err != nil {
		return fail("Upstream client unavailable", err)
	}
	elig, err := factory.NewEligibility(cfg, log)
	if err != nil {
		return fail("Eligibility registry unavailable", err)
	}
	d.identity = services.NewIdentityService(st, elig, d.client, log)

	if d.index, err = factory.NewSearchIndex(ctx, cfg, log); err != nil {
		return fail("Search index adapter unavailable", err)
	}
	var sink indexing.Sink = indexing.Noop{}
	if d.index != nil {
		d.embedder = factory.NewEmbeddingProvider(ctx, cfg, log)
		d.queue = indexing.NewQueue(d.embedder, d.index, indexing.Config{QueueSize: cfg.IndexQueueSize}, log)
		sink = d.queue
	}

	coord := factory.NewCoordinator(cfg, proj, d.client, d.identity, st, sink, log)
	if d.runner, err = factory.NewRunner(cfg, proj, coord, d.client, log); err != nil {
		return fail("Ingest runner unavailable", err)
	}
	return d, nil
}

// startHealthCheckers starts per-dependency checkers and the service-level
// aggregator.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, d *dependencies) *health.ServiceHealthChecker {
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second

	var checkers []health.HealthChecker
	storeChecker := store.NewStoreHealthChecker(d.store, log, probeTimeout)
	go storeChecker.Start(ctx, interval)
	checkers = append(checkers, storeChecker)

	if d.index != nil {
		idxChecker := searchindex.NewSearchIndexHealthChecker(d.index, log, probeTimeout)
		go idxChecker.Start(ctx, interval)
		checkers = append(checkers, idxChecker)
	}
	if d.embedder != nil {
		embChecker := embeddings.NewProviderHealthChecker(d.embedder, log, probeTimeout)
		go embChecker.Start(ctx, interval)
		checkers = append(checkers, embChecker)
	}

	svcHealth := health.NewServiceHealthChecker(log, checkers...)
	go svcHealth.Start(ctx, interval)
	return svcHealth
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		// on-demand ingestion rounds can outlast a short write timeout
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// startupHealthTimeout is twice the probe interval, at least 60 seconds.
func startupHealthTimeout(healthIntervalSeconds int) time.Duration {
	timeout := healthIntervalSeconds * 2
	if timeout < 60 {
		timeout = 60
	}
	return time.Duration(timeout) * time.Second
}

// waitUntilHealthy blocks until service health is healthy or the startup
// window expires.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, svcHealth *health.ServiceHealthChecker) error {
	timeout := startupHealthTimeout(cfg.HealthIntervalSeconds)
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if svcHealth.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: dependencies not healthy within %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// newServerContext returns a context canceled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
