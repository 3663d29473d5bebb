package store

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/health"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/model"
)

// NewStoreHealthChecker monitors store connectivity. Stores that implement
// health.HealthPinger are pinged directly; others are probed with a cheap read.
func NewStoreHealthChecker(s Store, log zerolog.Logger, probeTimeout time.Duration) *health.PingChecker {
	return health.NewPingChecker("store", storePinger(s), log, probeTimeout)
}

func storePinger(s Store) health.HealthPinger {
	if p, ok := s.(health.HealthPinger); ok {
		return p
	}
	return health.PingFunc(func(ctx context.Context) error {
		_, err := s.Identities().Get(ctx, "__health_check__")
		// ErrNotFound is acceptable - means the store is responsive
		if err == nil || errors.Is(err, model.ErrNotFound) {
			return nil
		}
		return err
	})
}
