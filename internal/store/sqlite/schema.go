package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// EnsureSchema creates tables and indexes if they do not exist.
// Timestamps are stored as unix microseconds.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS identities (
            external_id       TEXT PRIMARY KEY,
            handle            TEXT NOT NULL UNIQUE,
            registration_time INTEGER NOT NULL,
            follower_count    INTEGER NOT NULL DEFAULT 0,
            archived          INTEGER NOT NULL DEFAULT 0
        );`,
		`CREATE TABLE IF NOT EXISTS wallets (
            id           TEXT PRIMARY KEY,
            identity_ref TEXT NOT NULL REFERENCES identities(external_id),
            address      TEXT NOT NULL UNIQUE,
            chain        TEXT NOT NULL,
            is_primary   INTEGER NOT NULL DEFAULT 0,
            archived     INTEGER NOT NULL DEFAULT 0,
            created_time INTEGER NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS posts (
            external_id  TEXT PRIMARY KEY,
            author_ref   TEXT NOT NULL REFERENCES identities(external_id),
            content      TEXT NOT NULL,
            created_time INTEGER NOT NULL,
            relevance    INTEGER NOT NULL DEFAULT 0,
            score        REAL NOT NULL DEFAULT 0
        );`,
		`CREATE TABLE IF NOT EXISTS engagement_scores (
            identity_ref TEXT PRIMARY KEY REFERENCES identities(external_id),
            score        REAL NOT NULL DEFAULT 0,
            last_updated INTEGER NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS wallets_identity_ref_idx ON wallets(identity_ref);`,
		`CREATE INDEX IF NOT EXISTS posts_author_ref_idx ON posts(author_ref);`,
		`CREATE INDEX IF NOT EXISTS posts_created_time_idx ON posts(created_time);`,
		`CREATE INDEX IF NOT EXISTS posts_relevance_idx ON posts(relevance);`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("ensure sqlite schema: %w", err)
		}
	}
	return nil
}
