package embeddings

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/health"
)

// Provider produces vector representations for text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NewProviderHealthChecker monitors an embeddings provider. Providers that
// implement health.HealthPinger are pinged; others embed a probe string.
func NewProviderHealthChecker(p Provider, log zerolog.Logger, probeTimeout time.Duration) *health.PingChecker {
	if hp, ok := p.(health.HealthPinger); ok {
		return health.NewPingChecker("embedder", hp, log, probeTimeout)
	}
	return health.NewPingChecker("embedder", health.PingFunc(func(ctx context.Context) error {
		vec, err := p.Embed(ctx, "health-check")
		if err != nil {
			return err
		}
		if len(vec) == 0 {
			return errors.New("empty embedding")
		}
		return nil
	}), log, probeTimeout)
}
