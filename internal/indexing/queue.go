package indexing

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/embeddings"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/model"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/searchindex"
)

// Config controls queue capacity and per-post retry.
type Config struct {
	QueueSize   int           // buffered posts before Store starts dropping
	MaxAttempts int           // index attempts per post
	BaseBackoff time.Duration // first retry delay
	MaxInterval time.Duration // retry delay ceiling
}

// Stats are cumulative queue counters.
type Stats struct {
	Indexed int64
	Dropped int64
	Failed  int64
}

// Queue is a bounded Sink drained by Run. Posts are embedded and upserted
// into the index one at a time.
type Queue struct {
	ch       chan model.Post
	embedder embeddings.Provider
	index    searchindex.Index
	cfg      Config
	log      zerolog.Logger

	indexed atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewQueue constructs a Queue. A nil embedder stores posts without vectors.
func NewQueue(emb embeddings.Provider, idx searchindex.Index, cfg Config, log zerolog.Logger) *Queue {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 10 * time.Second
	}
	return &Queue{
		ch:       make(chan model.Post, cfg.QueueSize),
		embedder: emb,
		index:    idx,
		cfg:      cfg,
		log:      log,
	}
}

// Store enqueues p without blocking. A full queue drops the post.
func (q *Queue) Store(_ context.Context, p model.Post) {
	select {
	case q.ch <- p:
		queueDepth.Set(float64(len(q.ch)))
	default:
		q.dropped.Add(1)
		postsDroppedTotal.WithLabelValues("queue_full").Inc()
		q.log.Warn().Str("postId", p.ExternalID).Int("capacity", cap(q.ch)).Msg("index queue full; post dropped")
	}
}

// Run drains the queue until ctx is canceled.
func (q *Queue) Run(ctx context.Context) error {
	q.log.Info().Int("capacity", cap(q.ch)).Msg("index queue starting")
	for {
		select {
		case <-ctx.Done():
			q.log.Info().Int("pending", len(q.ch)).Msg("index queue stopping")
			return ctx.Err()
		case p := <-q.ch:
			queueDepth.Set(float64(len(q.ch)))
			q.handle(ctx, p)
		}
	}
}

// Stats returns cumulative counters.
func (q *Queue) Stats() Stats {
	return Stats{Indexed: q.indexed.Load(), Dropped: q.dropped.Load(), Failed: q.failed.Load()}
}

func (q *Queue) handle(ctx context.Context, p model.Post) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = q.cfg.BaseBackoff
	exp.MaxInterval = q.cfg.MaxInterval
	exp.Multiplier = 2
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(q.cfg.MaxAttempts-1)), ctx)

	err := backoff.Retry(func() error {
		vec, err := q.embed(ctx, p.Content)
		if err != nil {
			return err
		}
		return q.index.UpsertPost(ctx, searchindex.PostDoc{
			PostID:      p.ExternalID,
			AuthorRef:   p.AuthorRef,
			Content:     p.Content,
			CreatedTime: p.CreatedTime,
			Relevant:    p.Relevant,
			Score:       p.Score,
		}, vec)
	}, policy)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		q.failed.Add(1)
		postsDroppedTotal.WithLabelValues("index_error").Inc()
		q.log.Error().Err(err).Str("postId", p.ExternalID).Msg("index post")
		return
	}
	q.indexed.Add(1)
	postsIndexedTotal.Inc()
}

func (q *Queue) embed(ctx context.Context, text string) ([]float32, error) {
	if q.embedder == nil {
		return nil, nil
	}
	return q.embedder.Embed(ctx, text)
}
