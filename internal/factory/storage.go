package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/config"
	storepkg "github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/store"
	storepg "github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/store/postgres"
	storesqlite "github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/store/sqlite"
)

// NewStore opens the store selected by cfg.DBDriver. The schema is applied
// before returning when cfg.EnsureSchema is set, since every caller writes
// immediately.
func NewStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storepkg.Store, error) {
	timeout := time.Duration(cfg.BootstrapTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	bootCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch cfg.DBDriver {
	case "sqlite":
		db, err := storesqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		if cfg.EnsureSchema {
			if err := storesqlite.EnsureSchema(bootCtx, db); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		log.Info().Str("driver", "sqlite").Str("path", cfg.SQLitePath).Msg("store ready")
		return storesqlite.NewWithDB(db), nil

	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("%s_POSTGRES_DSN is required when DB_DRIVER=postgres", config.Prefix)
		}
		pool, err := storepg.Open(bootCtx, cfg.PostgresDSN, int(cfg.PostgresMaxConns))
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.EnsureSchema {
			if err := storepg.EnsureSchema(bootCtx, pool); err != nil {
				pool.Close()
				return nil, err
			}
		}
		log.Info().Str("driver", "postgres").Int32("maxConns", cfg.PostgresMaxConns).Msg("store ready")
		return storepg.NewWithPool(pool), nil
	}
	return nil, fmt.Errorf("unknown DB_DRIVER: %s", cfg.DBDriver)
}
