package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/config"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/factory"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/logger"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/mcptools"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/services"
)

const (
	serverName    = "engagement-mcp"
	serverVersion = "0.1.0"
)

func main() {
	_ = godotenv.Load()
	// stdout carries the MCP protocol; logs go to stderr.
	bootLog := logger.New(serverName, logger.WithOutput(os.Stderr))
	if err := run(); err != nil {
		bootLog.Error().Err(err).Msg("MCP server exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.New()
	if err != nil {
		return err
	}
	log := logger.New(serverName, logger.WithLevel(cfg.LogLevel), logger.WithOutput(os.Stderr))

	ctx := context.Background()
	st, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	elig, err := factory.NewEligibility(cfg, log)
	if err != nil {
		return err
	}
	svc := services.NewIdentityService(st, elig, resolver(cfg, log), log)

	s := server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(true))
	if err := mcptools.NewHandler(svc, st).RegisterTools(s); err != nil {
		return err
	}
	log.Info().Str("db_driver", cfg.DBDriver).Msg("Starting engagement MCP server (stdio transport)")
	return server.ServeStdio(s)
}

// resolver returns the upstream client, or nil when no bearer token is set so
// read-only tools still work.
func resolver(cfg *config.Config, log zerolog.Logger) services.Resolver {
	c, err := factory.NewUpstreamClient(cfg, log)
	if err != nil {
		log.Warn().Err(err).Msg("upstream client unavailable; register_identity will reject handles")
		return nil
	}
	return c
}
