package searchindex

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/health"
)

// NewSearchIndexHealthChecker monitors index health through its optional
// HealthPinger. Indexes without one are probed with a no-op delete.
func NewSearchIndexHealthChecker(index Index, log zerolog.Logger, probeTimeout time.Duration) *health.PingChecker {
	if p, ok := index.(health.HealthPinger); ok {
		return health.NewPingChecker("searchindex", p, log, probeTimeout)
	}
	return health.NewPingChecker("searchindex", health.PingFunc(func(ctx context.Context) error {
		return index.DeletePost(ctx, "")
	}), log, probeTimeout)
}
