// Package retry runs idempotent operations under a bounded attempt budget
// shared between transport failures and rate-limit throttling.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/model"
)

// ErrExhausted is returned once every attempt has failed.
var ErrExhausted = errors.New("retry attempts exhausted")

const (
	DefaultAttempts        = 3
	DefaultDelay           = time.Second
	DefaultThrottleWait    = 60 * time.Second
	DefaultMaxThrottleWait = 15 * time.Minute
)

// Policy configures Do. Zero values fall back to the package defaults.
type Policy struct {
	Attempts            int
	Delay               time.Duration
	DefaultThrottleWait time.Duration
	MaxThrottleWait     time.Duration

	// Sleep waits for d or until ctx ends. Tests replace it to avoid real waits.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called before each wait with the failed attempt number.
	OnRetry func(attempt int, wait time.Duration, err error)
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

func (p Policy) withDefaults() Policy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultAttempts
	}
	if p.Delay <= 0 {
		p.Delay = DefaultDelay
	}
	if p.DefaultThrottleWait <= 0 {
		p.DefaultThrottleWait = DefaultThrottleWait
	}
	if p.MaxThrottleWait <= 0 {
		p.MaxThrottleWait = DefaultMaxThrottleWait
	}
	if p.Sleep == nil {
		p.Sleep = SleepContext
	}
	return p
}

// WaitFor returns how long to pause after err before the next attempt.
func (p Policy) WaitFor(err error) time.Duration {
	p = p.withDefaults()
	var te *model.ThrottleError
	if errors.As(err, &te) {
		w := te.Wait
		if w <= 0 {
			w = p.DefaultThrottleWait
		}
		if w > p.MaxThrottleWait {
			w = p.MaxThrottleWait
		}
		return w
	}
	return p.Delay
}

// Do calls fn until it succeeds, returns a permanent error, the attempt budget
// runs out, or ctx is done.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	p = p.withDefaults()
	var last error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		last = fn(ctx)
		if last == nil {
			return nil
		}
		if IsPermanent(last) {
			return last
		}
		if attempt == p.Attempts {
			break
		}
		wait := p.WaitFor(last)
		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, last)
		}
		if err := p.Sleep(ctx, wait); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, p.Attempts, last)
}

// SleepContext blocks for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
