package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	constraintHandleUnique  = "identities_handle_unique"
	constraintAddressUnique = "wallets_address_unique"
)

// EnsureSchema creates tables and indexes if they do not exist. Production
// deployments may run the same DDL through their migration tooling instead.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS identities (
            external_id       TEXT PRIMARY KEY,
            handle            TEXT NOT NULL,
            registration_time TIMESTAMPTZ NOT NULL,
            follower_count    BIGINT NOT NULL DEFAULT 0,
            archived          BOOLEAN NOT NULL DEFAULT FALSE,
            CONSTRAINT ` + constraintHandleUnique + ` UNIQUE (handle)
        )`,
		`CREATE TABLE IF NOT EXISTS wallets (
            id           TEXT PRIMARY KEY,
            identity_ref TEXT NOT NULL REFERENCES identities(external_id),
            address      TEXT NOT NULL,
            chain        TEXT NOT NULL,
            is_primary   BOOLEAN NOT NULL DEFAULT FALSE,
            archived     BOOLEAN NOT NULL DEFAULT FALSE,
            created_time TIMESTAMPTZ NOT NULL DEFAULT now(),
            CONSTRAINT ` + constraintAddressUnique + ` UNIQUE (address)
        )`,
		`CREATE TABLE IF NOT EXISTS posts (
            external_id  TEXT PRIMARY KEY,
            author_ref   TEXT NOT NULL REFERENCES identities(external_id),
            content      TEXT NOT NULL,
            created_time TIMESTAMPTZ NOT NULL,
            relevance    BOOLEAN NOT NULL DEFAULT FALSE,
            score        DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (score >= 0)
        )`,
		`CREATE TABLE IF NOT EXISTS engagement_scores (
            identity_ref TEXT PRIMARY KEY REFERENCES identities(external_id),
            score        DOUBLE PRECISION NOT NULL DEFAULT 0,
            last_updated TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
		`CREATE INDEX IF NOT EXISTS wallets_identity_ref_idx ON wallets(identity_ref)`,
		`CREATE INDEX IF NOT EXISTS posts_author_ref_idx ON posts(author_ref)`,
		`CREATE INDEX IF NOT EXISTS posts_created_time_idx ON posts(created_time)`,
		`CREATE INDEX IF NOT EXISTS posts_relevance_idx ON posts(relevance)`,
	}
	for _, s := range stmts {
		if _, err := pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("ensure postgres schema: %w", err)
		}
	}
	return nil
}
