package indexing

import (
	"context"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/model"
)

// Sink receives stored posts for similarity indexing. Store must not block
// the caller on network I/O and never reports failure.
type Sink interface {
	Store(ctx context.Context, p model.Post)
}

// Noop discards every post. It is used when no index is configured.
type Noop struct{}

func (Noop) Store(context.Context, model.Post) {}
