package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/model"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/store"
)

// DefaultMaxConns bounds the pool when the caller does not.
const DefaultMaxConns = 10

// Open creates a bounded connection pool and verifies connectivity.
func Open(ctx context.Context, dsn string, maxConns int) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres DSN: %w", err)
	}
	if maxConns <= 0 {
		maxConns = DefaultMaxConns
	}
	cfg.MaxConns = int32(maxConns)
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// NewWithPool constructs a Postgres store over pool. Close releases the pool.
func NewWithPool(pool *pgxpool.Pool) store.Store { return &pgStore{pool: pool} }

type pgStore struct{ pool *pgxpool.Pool }

func (s *pgStore) Identities() store.Identities { return &identities{pool: s.pool} }
func (s *pgStore) Posts() store.Posts           { return &posts{pool: s.pool} }
func (s *pgStore) Engagement() store.Engagement { return &engagement{pool: s.pool} }

func (s *pgStore) Close() error {
	s.pool.Close()
	return nil
}

// HealthPing implements health.HealthPinger for the Postgres-backed store.
func (s *pgStore) HealthPing(ctx context.Context) error { return s.pool.Ping(ctx) }

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func mapIdentityErr(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return err
	}
	switch pgErr.ConstraintName {
	case constraintAddressUnique:
		return model.ErrDuplicateWallet
	case constraintHandleUnique:
		return model.ErrDuplicateIdentity
	default:
		return fmt.Errorf("%w: %s", model.ErrConflict, pgErr.ConstraintName)
	}
}

// --- Identities ---
type identities struct{ pool *pgxpool.Pool }

const upsertRegisteredIdentitySQL = `
INSERT INTO identities (external_id, handle, registration_time, follower_count, archived)
VALUES ($1, $2, $3, $4, FALSE)
ON CONFLICT (external_id) DO UPDATE SET
    handle = EXCLUDED.handle,
    archived = FALSE,
    registration_time = LEAST(identities.registration_time, EXCLUDED.registration_time)`

const upsertObservedIdentitySQL = `
INSERT INTO identities (external_id, handle, registration_time, follower_count, archived)
VALUES ($1, $2, $3, $4, FALSE)
ON CONFLICT (external_id) DO UPDATE SET
    handle = EXCLUDED.handle,
    follower_count = EXCLUDED.follower_count`

const insertWalletSQL = `
INSERT INTO wallets (id, identity_ref, address, chain, is_primary, archived, created_time)
VALUES ($1, $2, $3, $4, $5, FALSE, $6)`

const selectIdentityColumns = `SELECT external_id, handle, registration_time, follower_count, archived FROM identities`

// Register runs the identity upsert and wallet insert in one transaction. The
// upsert takes the identity's row lock, so a concurrent registration of the
// same identity observes the first one's wallet once it commits.
func (r *identities) Register(ctx context.Context, id *model.Identity, w *model.Wallet) (*model.Identity, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	reg := id.RegistrationTime
	if reg.IsZero() {
		reg = time.Now()
	}
	if _, err := tx.Exec(ctx, upsertRegisteredIdentitySQL, id.ExternalID, id.Handle, reg.UTC(), id.FollowerCount); err != nil {
		return nil, mapIdentityErr(err)
	}

	var owned int
	if err := tx.QueryRow(ctx, `SELECT COUNT(1) FROM wallets WHERE identity_ref = $1`, id.ExternalID).Scan(&owned); err != nil {
		return nil, err
	}
	if owned > 0 {
		return nil, model.ErrDuplicateIdentity
	}

	if _, err := insertWallet(ctx, tx, id.ExternalID, w, true); err != nil {
		return nil, err
	}
	out, err := loadIdentity(ctx, tx, `external_id = $1`, id.ExternalID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *identities) AddWallet(ctx context.Context, handle string, w *model.Wallet) (*model.Wallet, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var ext string
	if err := tx.QueryRow(ctx, `SELECT external_id FROM identities WHERE handle = $1 FOR UPDATE`, handle).Scan(&ext); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	var owned int
	if err := tx.QueryRow(ctx, `SELECT COUNT(1) FROM wallets WHERE identity_ref = $1`, ext).Scan(&owned); err != nil {
		return nil, err
	}
	out, err := insertWallet(ctx, tx, ext, w, owned == 0)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func insertWallet(ctx context.Context, q querier, identityRef string, w *model.Wallet, primary bool) (*model.Wallet, error) {
	out := *w
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if out.Chain == "" {
		out.Chain = model.DefaultChain
	}
	out.IdentityRef = identityRef
	out.Primary = primary
	out.Archived = false
	out.CreatedTime = time.Now().UTC().Truncate(time.Microsecond)
	if _, err := q.Exec(ctx, insertWalletSQL, out.ID, identityRef, out.Address, out.Chain, primary, out.CreatedTime); err != nil {
		return nil, mapIdentityErr(err)
	}
	return &out, nil
}

func (r *identities) Observe(ctx context.Context, id *model.Identity) (*model.Identity, error) {
	reg := id.RegistrationTime
	if reg.IsZero() {
		reg = time.Now()
	}
	if _, err := r.pool.Exec(ctx, upsertObservedIdentitySQL, id.ExternalID, id.Handle, reg.UTC(), id.FollowerCount); err != nil {
		return nil, mapIdentityErr(err)
	}
	return loadIdentity(ctx, r.pool, `external_id = $1`, id.ExternalID)
}

func (r *identities) SetArchived(ctx context.Context, handle string, archived bool) (*model.Identity, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE identities SET archived = $1 WHERE handle = $2`, archived, handle)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, model.ErrNotFound
	}
	return loadIdentity(ctx, r.pool, `handle = $1`, handle)
}

func (r *identities) Get(ctx context.Context, externalID string) (*model.Identity, error) {
	return loadIdentity(ctx, r.pool, `external_id = $1`, externalID)
}

func (r *identities) GetByHandle(ctx context.Context, handle string) (*model.Identity, error) {
	return loadIdentity(ctx, r.pool, `handle = $1`, handle)
}

func (r *identities) HandleRegistered(ctx context.Context, handle string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM identities i JOIN wallets w ON w.identity_ref = i.external_id
            WHERE i.handle = $1
        )`, handle).Scan(&ok)
	return ok, err
}

func (r *identities) WalletBound(ctx context.Context, address string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM wallets WHERE address = $1)`, address).Scan(&ok)
	return ok, err
}

func (r *identities) List(ctx context.Context, includeArchived bool, limit int) ([]*model.Identity, error) {
	rows, err := r.pool.Query(ctx, selectIdentityColumns+`
        WHERE $1::boolean OR archived = FALSE
        ORDER BY handle
        LIMIT $2`, includeArchived, store.Limit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Identity
	for rows.Next() {
		id, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanIdentity(row pgx.Row) (*model.Identity, error) {
	var out model.Identity
	if err := row.Scan(&out.ExternalID, &out.Handle, &out.RegistrationTime, &out.FollowerCount, &out.Archived); err != nil {
		return nil, err
	}
	out.RegistrationTime = out.RegistrationTime.UTC()
	return &out, nil
}

// loadIdentity reads one identity matching where (a single-parameter
// predicate) together with its wallets.
func loadIdentity(ctx context.Context, q querier, where string, arg any) (*model.Identity, error) {
	out, err := scanIdentity(q.QueryRow(ctx, selectIdentityColumns+` WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}

	rows, err := q.Query(ctx, `
        SELECT id, identity_ref, address, chain, is_primary, archived, created_time
        FROM wallets WHERE identity_ref = $1
        ORDER BY is_primary DESC, created_time, id`, out.ExternalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var w model.Wallet
		if err := rows.Scan(&w.ID, &w.IdentityRef, &w.Address, &w.Chain, &w.Primary, &w.Archived, &w.CreatedTime); err != nil {
			return nil, err
		}
		w.CreatedTime = w.CreatedTime.UTC()
		out.Wallets = append(out.Wallets, w)
	}
	return out, rows.Err()
}

// --- Posts ---
type posts struct{ pool *pgxpool.Pool }

const upsertPostSQL = `
INSERT INTO posts (external_id, author_ref, content, created_time, relevance, score)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (external_id) DO UPDATE SET
    content = EXCLUDED.content,
    relevance = EXCLUDED.relevance,
    score = EXCLUDED.score`

const selectPostColumns = `SELECT external_id, author_ref, content, created_time, relevance, score FROM posts`

func (r *posts) Upsert(ctx context.Context, p *model.Post) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	if _, err := r.pool.Exec(ctx, upsertPostSQL, p.ExternalID, p.AuthorRef, p.Content, p.CreatedTime.UTC(), p.Relevant, p.Score); err != nil {
		return "", fmt.Errorf("upsert post %s: %w", p.ExternalID, err)
	}
	return p.ExternalID, nil
}

func (r *posts) Get(ctx context.Context, externalID string) (*model.Post, error) {
	p, err := scanPost(r.pool.QueryRow(ctx, selectPostColumns+` WHERE external_id = $1`, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	return p, err
}

func (r *posts) RecentByAuthor(ctx context.Context, authorRef string, limit int) ([]*model.Post, error) {
	return r.list(ctx, selectPostColumns+` WHERE author_ref = $1 ORDER BY created_time DESC, external_id DESC LIMIT $2`, authorRef, store.Limit(limit))
}

func (r *posts) Relevant(ctx context.Context, limit int) ([]*model.Post, error) {
	return r.list(ctx, selectPostColumns+` WHERE relevance ORDER BY created_time DESC, external_id DESC LIMIT $1`, store.Limit(limit))
}

func (r *posts) list(ctx context.Context, query string, args ...any) ([]*model.Post, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPost(row pgx.Row) (*model.Post, error) {
	var p model.Post
	if err := row.Scan(&p.ExternalID, &p.AuthorRef, &p.Content, &p.CreatedTime, &p.Relevant, &p.Score); err != nil {
		return nil, err
	}
	p.CreatedTime = p.CreatedTime.UTC()
	return &p, nil
}

// --- Engagement ---
type engagement struct{ pool *pgxpool.Pool }

const refreshEngagementSQL = `
INSERT INTO engagement_scores (identity_ref, score, last_updated)
SELECT $1::text, COALESCE(SUM(score), 0), now() FROM posts WHERE author_ref = $1::text
ON CONFLICT (identity_ref) DO UPDATE SET
    score = EXCLUDED.score,
    last_updated = EXCLUDED.last_updated
RETURNING identity_ref, score, last_updated`

func (r *engagement) Refresh(ctx context.Context, identityRef string) (*model.EngagementAggregate, error) {
	a, err := scanAggregate(r.pool.QueryRow(ctx, refreshEngagementSQL, identityRef))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("refresh engagement %s: %w", identityRef, err)
	}
	return a, nil
}

func (r *engagement) Get(ctx context.Context, identityRef string) (*model.EngagementAggregate, error) {
	a, err := scanAggregate(r.pool.QueryRow(ctx, `
        SELECT identity_ref, score, last_updated FROM engagement_scores WHERE identity_ref = $1`, identityRef))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	return a, err
}

func (r *engagement) Top(ctx context.Context, limit int) ([]*model.EngagementAggregate, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT identity_ref, score, last_updated FROM engagement_scores
        ORDER BY score DESC, identity_ref DESC LIMIT $1`, store.Limit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.EngagementAggregate
	for rows.Next() {
		a, err := scanAggregate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAggregate(row pgx.Row) (*model.EngagementAggregate, error) {
	var a model.EngagementAggregate
	if err := row.Scan(&a.IdentityRef, &a.Score, &a.LastUpdated); err != nil {
		return nil, err
	}
	a.LastUpdated = a.LastUpdated.UTC()
	return &a, nil
}
