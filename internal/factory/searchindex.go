package factory

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/config"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/searchindex"
)

// NewSearchIndex returns the Weaviate index, or nil when cfg.WeaviateURL is
// empty. The Post class is bootstrapped asynchronously.
func NewSearchIndex(ctx context.Context, cfg *config.Config, log zerolog.Logger) (searchindex.Index, error) {
	if cfg.WeaviateURL == "" {
		log.Info().Msg("search index disabled")
		return nil, nil
	}
	idx, err := searchindex.NewWeaviateNativeIndex(cfg.WeaviateURL, log)
	if err != nil {
		return nil, err
	}

	go func() {
		bootCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.BootstrapTimeoutSeconds)*time.Second)
		defer cancel()

		if err := searchindex.BootstrapWeaviate(bootCtx, cfg.WeaviateURL); err != nil {
			log.Warn().Err(err).Str("url", cfg.WeaviateURL).Msg("search index bootstrap failed")
			return
		}
		log.Debug().Str("url", cfg.WeaviateURL).Msg("search index bootstrap completed")
	}()

	return idx, nil
}
