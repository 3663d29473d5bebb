package factory

import (
	"github.com/rs/zerolog"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/config"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/engagement"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/indexing"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/ingest"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/relevance"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/services"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/store"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/upstream"
)

// NewCoordinator assembles the ingestion pipeline for the tracked project.
func NewCoordinator(cfg *config.Config, proj *config.Project, client *upstream.Client, ids *services.IdentityService, s store.Store, sink indexing.Sink, log zerolog.Logger) *ingest.Coordinator {
	classifier := relevance.New(relevance.Config{
		Keywords: proj.Keywords,
		Hashtags: proj.Hashtags,
		Accounts: proj.Accounts,
	})
	return ingest.NewCoordinator(client, ids, s, classifier, engagement.New(proj.Weights), sink,
		ingest.Config{Workers: cfg.IngestWorkers, PageSize: cfg.PageSize}, log)
}

// NewRunner schedules the project's accounts and keywords every
// cfg.IngestInterval.
func NewRunner(cfg *config.Config, proj *config.Project, coord *ingest.Coordinator, client *upstream.Client, log zerolog.Logger) (*ingest.Runner, error) {
	return ingest.NewRunner(coord, client, ingest.Sources{
		Accounts: proj.Accounts,
		Keywords: append(append([]string{}, proj.Keywords...), proj.Hashtags...),
	}, cfg.IngestInterval, log)
}
