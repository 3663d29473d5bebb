// Package sqlite is the single-file store used for local runs and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/model"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/store"
)

// Open opens (or creates) a SQLite database at path with WAL journaling and
// foreign keys enabled. The pool is limited to one connection, which
// serializes writers the way SQLite requires.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewWithDB constructs a store backed by db. The schema must already exist.
func NewWithDB(db *sql.DB) store.Store { return &sqliteStore{db: db} }

type sqliteStore struct{ db *sql.DB }

func (s *sqliteStore) Identities() store.Identities { return &identities{db: s.db} }
func (s *sqliteStore) Posts() store.Posts           { return &posts{db: s.db} }
func (s *sqliteStore) Engagement() store.Engagement { return &engagement{db: s.db} }
func (s *sqliteStore) Close() error                 { return s.db.Close() }

// HealthPing implements health.HealthPinger.
func (s *sqliteStore) HealthPing(ctx context.Context) error { return s.db.PingContext(ctx) }

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func micros(t time.Time) int64 { return t.UTC().UnixMicro() }

func fromMicros(v int64) time.Time { return time.UnixMicro(v).UTC() }

// uniqueViolation returns the "table.column" named by a unique constraint
// failure, or "" when err is not one.
func uniqueViolation(err error) string {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return ""
	}
	if se.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE && se.Code() != sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
		return ""
	}
	msg := se.Error()
	for _, col := range []string{"wallets.address", "identities.handle", "identities.external_id", "wallets.id"} {
		if strings.Contains(msg, col) {
			return col
		}
	}
	return "unknown"
}

func mapIdentityErr(err error) error {
	switch uniqueViolation(err) {
	case "":
		return err
	case "wallets.address":
		return model.ErrDuplicateWallet
	case "identities.handle":
		return model.ErrDuplicateIdentity
	default:
		return fmt.Errorf("%w: %v", model.ErrConflict, err)
	}
}

// --- Identities ---
type identities struct{ db *sql.DB }

const upsertRegisteredIdentitySQL = `
INSERT INTO identities (external_id, handle, registration_time, follower_count, archived)
VALUES (?, ?, ?, ?, 0)
ON CONFLICT(external_id) DO UPDATE SET
    handle = excluded.handle,
    archived = 0,
    registration_time = MIN(identities.registration_time, excluded.registration_time)`

const upsertObservedIdentitySQL = `
INSERT INTO identities (external_id, handle, registration_time, follower_count, archived)
VALUES (?, ?, ?, ?, 0)
ON CONFLICT(external_id) DO UPDATE SET
    handle = excluded.handle,
    follower_count = excluded.follower_count`

const insertWalletSQL = `
INSERT INTO wallets (id, identity_ref, address, chain, is_primary, archived, created_time)
VALUES (?, ?, ?, ?, ?, 0, ?)`

func (r *identities) Register(ctx context.Context, id *model.Identity, w *model.Wallet) (*model.Identity, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	reg := id.RegistrationTime
	if reg.IsZero() {
		reg = time.Now()
	}
	if _, err := tx.ExecContext(ctx, upsertRegisteredIdentitySQL, id.ExternalID, id.Handle, micros(reg), id.FollowerCount); err != nil {
		return nil, mapIdentityErr(err)
	}

	var owned int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM wallets WHERE identity_ref = ?`, id.ExternalID).Scan(&owned); err != nil {
		return nil, err
	}
	if owned > 0 {
		return nil, model.ErrDuplicateIdentity
	}

	if _, err := insertWallet(ctx, tx, id.ExternalID, w, true); err != nil {
		return nil, err
	}

	out, err := loadIdentity(ctx, tx, `external_id = ?`, id.ExternalID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *identities) AddWallet(ctx context.Context, handle string, w *model.Wallet) (*model.Wallet, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var ext string
	if err := tx.QueryRowContext(ctx, `SELECT external_id FROM identities WHERE handle = ?`, handle).Scan(&ext); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	var owned int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM wallets WHERE identity_ref = ?`, ext).Scan(&owned); err != nil {
		return nil, err
	}
	out, err := insertWallet(ctx, tx, ext, w, owned == 0)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
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
	if _, err := q.ExecContext(ctx, insertWalletSQL, out.ID, identityRef, out.Address, out.Chain, primary, micros(out.CreatedTime)); err != nil {
		return nil, mapIdentityErr(err)
	}
	return &out, nil
}

func (r *identities) Observe(ctx context.Context, id *model.Identity) (*model.Identity, error) {
	reg := id.RegistrationTime
	if reg.IsZero() {
		reg = time.Now()
	}
	if _, err := r.db.ExecContext(ctx, upsertObservedIdentitySQL, id.ExternalID, id.Handle, micros(reg), id.FollowerCount); err != nil {
		return nil, mapIdentityErr(err)
	}
	return loadIdentity(ctx, r.db, `external_id = ?`, id.ExternalID)
}

func (r *identities) SetArchived(ctx context.Context, handle string, archived bool) (*model.Identity, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE identities SET archived = ? WHERE handle = ?`, archived, handle)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, model.ErrNotFound
	}
	return loadIdentity(ctx, r.db, `handle = ?`, handle)
}

func (r *identities) Get(ctx context.Context, externalID string) (*model.Identity, error) {
	return loadIdentity(ctx, r.db, `external_id = ?`, externalID)
}

func (r *identities) GetByHandle(ctx context.Context, handle string) (*model.Identity, error) {
	return loadIdentity(ctx, r.db, `handle = ?`, handle)
}

func (r *identities) HandleRegistered(ctx context.Context, handle string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM identities i JOIN wallets w ON w.identity_ref = i.external_id
            WHERE i.handle = ?
        )`, handle).Scan(&ok)
	return ok, err
}

func (r *identities) WalletBound(ctx context.Context, address string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM wallets WHERE address = ?)`, address).Scan(&ok)
	return ok, err
}

func (r *identities) List(ctx context.Context, includeArchived bool, limit int) ([]*model.Identity, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT external_id, handle, registration_time, follower_count, archived
        FROM identities
        WHERE ? OR archived = 0
        ORDER BY handle
        LIMIT ?`, includeArchived, store.Limit(limit))
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

type rowScanner interface{ Scan(dest ...any) error }

func scanIdentity(row rowScanner) (*model.Identity, error) {
	var out model.Identity
	var reg int64
	if err := row.Scan(&out.ExternalID, &out.Handle, &reg, &out.FollowerCount, &out.Archived); err != nil {
		return nil, err
	}
	out.RegistrationTime = fromMicros(reg)
	return &out, nil
}

// loadIdentity reads one identity matching where (a single-parameter
// predicate) together with its wallets.
func loadIdentity(ctx context.Context, q querier, where string, arg any) (*model.Identity, error) {
	row := q.QueryRowContext(ctx, `
        SELECT external_id, handle, registration_time, follower_count, archived
        FROM identities WHERE `+where, arg)
	out, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
        SELECT id, identity_ref, address, chain, is_primary, archived, created_time
        FROM wallets WHERE identity_ref = ?
        ORDER BY is_primary DESC, created_time, id`, out.ExternalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var w model.Wallet
		var created int64
		if err := rows.Scan(&w.ID, &w.IdentityRef, &w.Address, &w.Chain, &w.Primary, &w.Archived, &created); err != nil {
			return nil, err
		}
		w.CreatedTime = fromMicros(created)
		out.Wallets = append(out.Wallets, w)
	}
	return out, rows.Err()
}

// --- Posts ---
type posts struct{ db *sql.DB }

const upsertPostSQL = `
INSERT INTO posts (external_id, author_ref, content, created_time, relevance, score)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(external_id) DO UPDATE SET
    content = excluded.content,
    relevance = excluded.relevance,
    score = excluded.score`

const selectPostColumns = `SELECT external_id, author_ref, content, created_time, relevance, score FROM posts`

func (r *posts) Upsert(ctx context.Context, p *model.Post) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	if _, err := r.db.ExecContext(ctx, upsertPostSQL, p.ExternalID, p.AuthorRef, p.Content, micros(p.CreatedTime), p.Relevant, p.Score); err != nil {
		return "", fmt.Errorf("upsert post %s: %w", p.ExternalID, err)
	}
	return p.ExternalID, nil
}

func (r *posts) Get(ctx context.Context, externalID string) (*model.Post, error) {
	p, err := scanPost(r.db.QueryRowContext(ctx, selectPostColumns+` WHERE external_id = ?`, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	return p, err
}

func (r *posts) RecentByAuthor(ctx context.Context, authorRef string, limit int) ([]*model.Post, error) {
	return r.list(ctx, selectPostColumns+` WHERE author_ref = ? ORDER BY created_time DESC, external_id DESC LIMIT ?`, authorRef, store.Limit(limit))
}

func (r *posts) Relevant(ctx context.Context, limit int) ([]*model.Post, error) {
	return r.list(ctx, selectPostColumns+` WHERE relevance = 1 ORDER BY created_time DESC, external_id DESC LIMIT ?`, store.Limit(limit))
}

func (r *posts) list(ctx context.Context, query string, args ...any) ([]*model.Post, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
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

func scanPost(row rowScanner) (*model.Post, error) {
	var p model.Post
	var created int64
	if err := row.Scan(&p.ExternalID, &p.AuthorRef, &p.Content, &created, &p.Relevant, &p.Score); err != nil {
		return nil, err
	}
	p.CreatedTime = fromMicros(created)
	return &p, nil
}

// --- Engagement ---
type engagement struct{ db *sql.DB }

const refreshEngagementSQL = `
INSERT INTO engagement_scores (identity_ref, score, last_updated)
SELECT ?, COALESCE(SUM(score), 0), ? FROM posts WHERE author_ref = ?
ON CONFLICT(identity_ref) DO UPDATE SET
    score = excluded.score,
    last_updated = excluded.last_updated`

func (r *engagement) Refresh(ctx context.Context, identityRef string) (*model.EngagementAggregate, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM identities WHERE external_id = ?)`, identityRef).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, model.ErrNotFound
	}
	if _, err := r.db.ExecContext(ctx, refreshEngagementSQL, identityRef, micros(time.Now()), identityRef); err != nil {
		return nil, fmt.Errorf("refresh engagement %s: %w", identityRef, err)
	}
	return r.Get(ctx, identityRef)
}

func (r *engagement) Get(ctx context.Context, identityRef string) (*model.EngagementAggregate, error) {
	a, err := scanAggregate(r.db.QueryRowContext(ctx, `
        SELECT identity_ref, score, last_updated FROM engagement_scores WHERE identity_ref = ?`, identityRef))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	return a, err
}

func (r *engagement) Top(ctx context.Context, limit int) ([]*model.EngagementAggregate, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT identity_ref, score, last_updated FROM engagement_scores
        ORDER BY score DESC, identity_ref DESC LIMIT ?`, store.Limit(limit))
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

func scanAggregate(row rowScanner) (*model.EngagementAggregate, error) {
	var a model.EngagementAggregate
	var updated int64
	if err := row.Scan(&a.IdentityRef, &a.Score, &updated); err != nil {
		return nil, err
	}
	a.LastUpdated = fromMicros(updated)
	return &a, nil
}
