// Package ingest pulls posts from the upstream API and runs them through
// classification, scoring and persistence.
package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/engagement"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/indexing"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/model"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/relevance"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/store"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/upstream"
)

const (
	KindAccounts = "accounts"
	KindKeywords = "keywords"

	// MaxWorkers caps concurrent units regardless of configuration.
	MaxWorkers = 10
)

// Fetcher reads pages of posts. A false second return means no data this round.
type Fetcher interface {
	FetchByIdentity(ctx context.Context, ref string, pageSize int) (*upstream.Page, bool)
	FetchByQuery(ctx context.Context, terms []string, pageSize int) (*upstream.Page, bool)
}

// Observer records authors seen during ingestion.
type Observer interface {
	Observe(ctx context.Context, externalID, handle string, followerCount int64) (model.Outcome, error)
}

// Config tunes a Coordinator.
type Config struct {
	Workers  int
	PageSize int
}

// Report is the per-batch tally.
type Report struct {
	Kind      string        `json:"kind"`
	Processed int           `json:"processed"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

type tally struct {
	processed atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
}

func (t *tally) report(kind string, d time.Duration) Report {
	return Report{
		Kind:      kind,
		Processed: int(t.processed.Load()),
		Skipped:   int(t.skipped.Load()),
		Failed:    int(t.failed.Load()),
		Duration:  d,
	}
}

// Coordinator runs ingestion batches. Concurrent batches over overlapping
// identities are safe; correctness rests on store upserts.
type Coordinator struct {
	fetch      Fetcher
	identities Observer
	store      store.Store
	classifier *relevance.Classifier
	scorer     *engagement.Scorer
	sink       indexing.Sink
	cfg        Config
	log        zerolog.Logger
}

// NewCoordinator wires a Coordinator. A nil sink disables indexing.
func NewCoordinator(f Fetcher, obs Observer, s store.Store, c *relevance.Classifier, sc *engagement.Scorer, sink indexing.Sink, cfg Config, log zerolog.Logger) *Coordinator {
	if cfg.Workers <= 0 || cfg.Workers > MaxWorkers {
		cfg.Workers = MaxWorkers
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}
	if sink == nil {
		sink = indexing.Noop{}
	}
	return &Coordinator{
		fetch:      f,
		identities: obs,
		store:      s,
		classifier: c,
		scorer:     sc,
		sink:       sink,
		cfg:        cfg,
		log:        log.With().Str("component", "ingest").Logger(),
	}
}

// Process ingests the recent posts of each identity ref. Refs run as
// independent units; a ref with no data is skipped without aborting the batch.
// Cancellation is honored before each unit starts.
func (c *Coordinator) Process(ctx context.Context, refs []string) Report {
	start := time.Now()
	var t tally

	g := new(errgroup.Group)
	g.SetLimit(c.cfg.Workers)
	for _, ref := range dedupe(refs) {
		if ctx.Err() != nil {
			c.log.Warn().Err(ctx.Err()).Msg("batch canceled; remaining identities not started")
			break
		}
		g.Go(func() error {
			c.processIdentity(ctx, ref, &t)
			return nil
		})
	}
	_ = g.Wait()

	return c.finish(t.report(KindAccounts, time.Since(start)))
}

func (c *Coordinator) processIdentity(ctx context.Context, ref string, t *tally) {
	page, ok := c.fetch.FetchByIdentity(ctx, ref, c.cfg.PageSize)
	if !ok {
		c.log.Warn().Str("ref", ref).Msg("no data for identity this round")
		t.skipped.Add(1)
		return
	}
	// Persistence runs to completion once the unit has started.
	pctx := context.WithoutCancel(ctx)
	authors := make(map[string]struct{})
	for _, p := range page.Posts {
		if c.processPost(pctx, page, p, t) {
			authors[p.AuthorID] = struct{}{}
		}
	}
	c.refresh(pctx, authors)
}

// ProcessByKeywords runs one broad search for terms and processes each
// distinct post exactly once.
func (c *Coordinator) ProcessByKeywords(ctx context.Context, terms []string) Report {
	start := time.Now()
	var t tally

	terms = dedupe(terms)
	if len(terms) == 0 {
		return c.finish(t.report(KindKeywords, time.Since(start)))
	}
	page, ok := c.fetch.FetchByQuery(ctx, terms, c.cfg.PageSize)
	if !ok {
		c.log.Warn().Strs("terms", terms).Msg("no data for keyword search this round")
		t.skipped.Add(1)
		return c.finish(t.report(KindKeywords, time.Since(start)))
	}

	posts := uniquePosts(page.Posts)
	pctx := context.WithoutCancel(ctx)

	var mu sync.Mutex
	authors := make(map[string]struct{})
	g := new(errgroup.Group)
	g.SetLimit(c.cfg.Workers)
	for _, p := range posts {
		if ctx.Err() != nil {
			c.log.Warn().Err(ctx.Err()).Msg("batch canceled; remaining posts not started")
			break
		}
		g.Go(func() error {
			if c.processPost(pctx, page, p, &t) {
				mu.Lock()
				authors[p.AuthorID] = struct{}{}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	c.refresh(pctx, authors)

	return c.finish(t.report(KindKeywords, time.Since(start)))
}

// processPost observes the author, classifies, scores and upserts p. It
// reports whether the post was stored.
func (c *Coordinator) processPost(ctx context.Context, page *upstream.Page, p upstream.RawPost, t *tally) bool {
	log := c.log.With().Str("postId", p.ID).Str("authorId", p.AuthorID).Logger()

	author, ok := page.Author(p)
	if !ok {
		log.Warn().Msg("author missing from page; post skipped")
		t.skipped.Add(1)
		return false
	}
	out, err := c.identities.Observe(ctx, author.ID, author.Handle, author.FollowerCount)
	if err != nil || !out.OK {
		log.Error().Err(err).Str("reason", string(out.Reason)).Msg("observe author")
		t.failed.Add(1)
		return false
	}

	post := model.Post{
		ExternalID:  p.ID,
		AuthorRef:   author.ID,
		Content:     p.Text,
		CreatedTime: p.CreatedAt,
		Relevant:    c.classifier.IsRelevant(p.Text, p.Mentions, p.References),
		Score:       c.scorer.Score(p.Metrics),
	}
	if _, err := c.store.Posts().Upsert(ctx, &post); err != nil {
		log.Error().Err(err).Msg("upsert post")
		t.failed.Add(1)
		return false
	}
	c.sink.Store(ctx, post)
	t.processed.Add(1)
	return true
}

func (c *Coordinator) refresh(ctx context.Context, authors map[string]struct{}) {
	for id := range authors {
		if _, err := c.store.Engagement().Refresh(ctx, id); err != nil {
			c.log.Error().Err(err).Str("identityRef", id).Msg("refresh engagement")
		}
	}
}

func (c *Coordinator) finish(r Report) Report {
	batchesTotal.WithLabelValues(r.Kind).Inc()
	postsTotal.WithLabelValues(r.Kind, "processed").Add(float64(r.Processed))
	postsTotal.WithLabelValues(r.Kind, "skipped").Add(float64(r.Skipped))
	postsTotal.WithLabelValues(r.Kind, "failed").Add(float64(r.Failed))
	batchDuration.WithLabelValues(r.Kind).Observe(r.Duration.Seconds())

	c.log.Info().
		Str("kind", r.Kind).
		Int("processed", r.Processed).
		Int("skipped", r.Skipped).
		Int("failed", r.Failed).
		Dur("duration", r.Duration).
		Msg("ingestion batch complete")
	return r
}

func uniquePosts(in []upstream.RawPost) []upstream.RawPost {
	seen := make(map[string]struct{}, len(in))
	out := make([]upstream.RawPost, 0, len(in))
	for _, p := range in {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
