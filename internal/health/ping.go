package health

import "context"

// HealthPinger is implemented by components that can answer a liveness probe.
// A nil error means healthy.
type HealthPinger interface {
	HealthPing(ctx context.Context) error
}

// PingFunc lets a plain function serve as a HealthPinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) HealthPing(ctx context.Context) error { return f(ctx) }
