package factory

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/config"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/embeddings"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/embeddings/ollama"
)

// NewEmbeddingProvider returns the configured provider, or nil when
// cfg.EmbedProvider is "none". A warmup embed runs in the background so
// startup never waits on the model.
func NewEmbeddingProvider(ctx context.Context, cfg *config.Config, log zerolog.Logger) embeddings.Provider {
	var provider embeddings.Provider
	switch cfg.EmbedProvider {
	case "none":
		return nil
	case "", "ollama":
		provider = ollama.New(cfg.OllamaURL, cfg.EmbedModel)
	default:
		log.Warn().Str("provider", cfg.EmbedProvider).Msg("unknown embedding provider; using ollama")
		provider = ollama.New(cfg.OllamaURL, cfg.EmbedModel)
	}

	go func() {
		warmupCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.BootstrapTimeoutSeconds)*time.Second)
		defer cancel()

		if vec, err := provider.Embed(warmupCtx, "factory-warmup-check"); err != nil || len(vec) == 0 {
			log.Warn().Err(err).Int("vec_len", len(vec)).
				Str("model", cfg.EmbedModel).
				Msg("embedding provider warmup failed")
			return
		}
		log.Debug().Str("model", cfg.EmbedModel).Msg("embedding provider warmup completed")
	}()

	return provider
}
