package health

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

const (
	defaultInterval     = 30 * time.Second
	defaultProbeTimeout = 2 * time.Second
)

var dependencyUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "engagement",
	Name:      "dependency_up",
	Help:      "1 when the named dependency answered its last probe.",
}, []string{"component"})

// HealthChecker reports the cached status of one dependency.
type HealthChecker interface {
	Name() string
	IsHealthy() bool
	Start(ctx context.Context, interval time.Duration)
}

// PingChecker probes a HealthPinger on an interval. It reports unhealthy
// until the first probe succeeds.
type PingChecker struct {
	name         string
	pinger       HealthPinger
	probeTimeout time.Duration
	log          zerolog.Logger

	up      atomic.Bool
	mu      sync.Mutex
	lastErr error
}

func NewPingChecker(name string, p HealthPinger, log zerolog.Logger, probeTimeout time.Duration) *PingChecker {
	if probeTimeout <= 0 {
		probeTimeout = defaultProbeTimeout
	}
	return &PingChecker{name: name, pinger: p, probeTimeout: probeTimeout, log: log}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) IsHealthy() bool { return c.up.Load() }

// LastError returns the error of the most recent failed probe, or nil.
func (c *PingChecker) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Start probes immediately, then every interval until ctx is done.
func (c *PingChecker) Start(ctx context.Context, interval time.Duration) {
	every(ctx, interval, func() { c.Check(ctx) })
}

// Check runs one bounded probe and records the result.
func (c *PingChecker) Check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	err := c.pinger.HealthPing(probeCtx)
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()

	ok := err == nil
	if was := c.up.Swap(ok); was != ok || !ok {
		if ok {
			c.log.Info().Str("checker", c.name).Msg("dependency healthy")
		} else {
			c.log.Error().Str("checker", c.name).Err(err).Msg("health check failed")
		}
	}
	dependencyUp.WithLabelValues(c.name).Set(boolGauge(ok))
	return ok
}

// ServiceHealthChecker is healthy when every dependency is.
type ServiceHealthChecker struct {
	deps []HealthChecker
	log  zerolog.Logger
	up   atomic.Bool
}

func NewServiceHealthChecker(log zerolog.Logger, deps ...HealthChecker) *ServiceHealthChecker {
	return &ServiceHealthChecker{deps: deps, log: log}
}

func (h *ServiceHealthChecker) IsHealthy() bool { return h.up.Load() }

// Components reports each dependency's cached status by name.
func (h *ServiceHealthChecker) Components() map[string]bool {
	out := make(map[string]bool, len(h.deps))
	for _, c := range h.deps {
		out[c.Name()] = c.IsHealthy()
	}
	return out
}

// Start re-evaluates the aggregate every interval until ctx is done.
func (h *ServiceHealthChecker) Start(ctx context.Context, interval time.Duration) {
	every(ctx, interval, h.evaluate)
}

func (h *ServiceHealthChecker) evaluate() {
	all := true
	for _, c := range h.deps {
		if !c.IsHealthy() {
			all = false
			break
		}
	}
	if h.up.Swap(all) == all {
		return
	}
	if all {
		h.log.Info().Msg("service health: UP")
	} else {
		h.log.Error().Interface("components", h.Components()).Msg("service health: DOWN")
	}
}

// every runs fn now and on each tick until ctx is done.
func every(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fn()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
