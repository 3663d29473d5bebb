package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// Resolver maps a handle to its platform id.
type Resolver interface {
	ResolveHandle(ctx context.Context, handle string) (string, bool)
}

// Sources lists what a scheduled round ingests. Accounts may be numeric ids
// or handles; handles are resolved once and cached for the Runner's lifetime.
type Sources struct {
	Accounts []string
	Keywords []string
}

// Runner schedules ingestion rounds.
type Runner struct {
	coord    *Coordinator
	resolver Resolver
	sources  Sources
	interval time.Duration
	log      zerolog.Logger

	sched gocron.Scheduler

	mu       sync.Mutex
	resolved map[string]string
}

// NewRunner builds a Runner that fires every interval.
func NewRunner(c *Coordinator, r Resolver, src Sources, interval time.Duration, log zerolog.Logger) (*Runner, error) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Runner{
		coord:    c,
		resolver: r,
		sources:  src,
		interval: interval,
		log:      log.With().Str("component", "ingest-runner").Logger(),
		sched:    sched,
		resolved: make(map[string]string),
	}, nil
}

// Start schedules rounds until ctx is canceled or Shutdown is called. A round
// still running when the next one is due is not overlapped.
func (r *Runner) Start(ctx context.Context) error {
	_, err := r.sched.NewJob(
		gocron.DurationJob(r.interval),
		gocron.NewTask(func() { r.RunOnce(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("schedule ingestion: %w", err)
	}
	r.sched.Start()
	r.log.Info().Dur("interval", r.interval).Int("accounts", len(r.sources.Accounts)).Int("keywords", len(r.sources.Keywords)).Msg("ingestion scheduled")
	return nil
}

// Shutdown stops the scheduler and waits for a running round.
func (r *Runner) Shutdown() error {
	return r.sched.Shutdown()
}

// RunOnce performs one accounts batch and one keywords batch.
func (r *Runner) RunOnce(ctx context.Context) []Report {
	var out []Report
	if ids := r.accountIDs(ctx); len(ids) > 0 {
		out = append(out, r.coord.Process(ctx, ids))
	}
	if len(r.sources.Keywords) > 0 && ctx.Err() == nil {
		out = append(out, r.coord.ProcessByKeywords(ctx, r.sources.Keywords))
	}
	return out
}

func (r *Runner) accountIDs(ctx context.Context) []string {
	ids := make([]string, 0, len(r.sources.Accounts))
	for _, acct := range r.sources.Accounts {
		if id, ok := r.resolve(ctx, acct); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *Runner) resolve(ctx context.Context, acct string) (string, bool) {
	acct = strings.TrimPrefix(strings.TrimSpace(acct), "@")
	if acct == "" {
		return "", false
	}
	if isNumeric(acct) {
		return acct, true
	}
	r.mu.Lock()
	id, ok := r.resolved[acct]
	r.mu.Unlock()
	if ok {
		return id, true
	}
	if r.resolver == nil {
		return "", false
	}
	id, ok = r.resolver.ResolveHandle(ctx, acct)
	if !ok {
		r.log.Warn().Str("handle", acct).Msg("could not resolve tracked account")
		return "", false
	}
	r.mu.Lock()
	r.resolved[acct] = id
	r.mu.Unlock()
	return id, true
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
