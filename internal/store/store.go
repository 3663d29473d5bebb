package store

import (
	"context"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/model"
)

// DefaultQueryLimit bounds list queries called with a non-positive limit.
const DefaultQueryLimit = 100

// Store exposes persistence operations required by services.
// Implementations live under internal/store/<driver>/ (postgres, sqlite).
type Store interface {
	Identities() Identities
	Posts() Posts
	Engagement() Engagement
	Close() error
}

// Identities persists identities and their wallet bindings.
type Identities interface {
	// Register upserts id and binds w to it in one transaction. It fails with
	// model.ErrDuplicateIdentity when the identity already owns a wallet or its
	// handle belongs to another identity, and with model.ErrDuplicateWallet when
	// the address is bound anywhere. Nothing is written on failure.
	Register(ctx context.Context, id *model.Identity, w *model.Wallet) (*model.Identity, error)
	// AddWallet binds w to the identity with the given handle.
	AddWallet(ctx context.Context, handle string, w *model.Wallet) (*model.Wallet, error)
	// Observe creates or refreshes an identity seen during ingestion without
	// touching wallets or the archived flag.
	Observe(ctx context.Context, id *model.Identity) (*model.Identity, error)
	SetArchived(ctx context.Context, handle string, archived bool) (*model.Identity, error)
	Get(ctx context.Context, externalID string) (*model.Identity, error)
	GetByHandle(ctx context.Context, handle string) (*model.Identity, error)
	HandleRegistered(ctx context.Context, handle string) (bool, error)
	WalletBound(ctx context.Context, address string) (bool, error)
	List(ctx context.Context, includeArchived bool, limit int) ([]*model.Identity, error)
}

// Posts persists posts with merge-on-conflict semantics.
type Posts interface {
	// Upsert validates p and inserts it, or updates content, relevance and
	// score of the existing row. Creation time is never changed.
	Upsert(ctx context.Context, p *model.Post) (string, error)
	Get(ctx context.Context, externalID string) (*model.Post, error)
	RecentByAuthor(ctx context.Context, authorRef string, limit int) ([]*model.Post, error)
	Relevant(ctx context.Context, limit int) ([]*model.Post, error)
}

// Engagement maintains per-identity score aggregates.
type Engagement interface {
	// Refresh recomputes the aggregate from the identity's stored posts.
	Refresh(ctx context.Context, identityRef string) (*model.EngagementAggregate, error)
	Get(ctx context.Context, identityRef string) (*model.EngagementAggregate, error)
	Top(ctx context.Context, limit int) ([]*model.EngagementAggregate, error)
}

// Limit normalizes a caller-supplied list limit.
func Limit(n int) int {
	if n <= 0 {
		return DefaultQueryLimit
	}
	return n
}
