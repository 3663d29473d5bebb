package factory

import (
	"github.com/rs/zerolog"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/config"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/upstream"
)

// NewUpstreamClient builds the rate-limited platform client. It fails with
// model.ErrFatalConfig when no bearer token is configured.
func NewUpstreamClient(cfg *config.Config, log zerolog.Logger) (*upstream.Client, error) {
	return upstream.New(upstream.Config{
		BaseURL:     cfg.UpstreamBaseURL,
		BearerToken: cfg.UpstreamBearerToken,
		Timeout:     cfg.UpstreamTimeout,
		Policy:      cfg.RetryPolicy(),
	}, log.With().Str("component", "upstream").Logger())
}
