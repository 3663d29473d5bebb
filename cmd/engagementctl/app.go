package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/config"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/factory"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/logger"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/model"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/services"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/store"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/upstream"
)

// app holds the in-process components a command needs. Logs go to stderr so
// stdout carries only JSON results.
type app struct {
	cfg   *config.Config
	proj  *config.Project
	log   zerolog.Logger
	store store.Store
	out   io.Writer
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, err
	}
	if projectFlag != "" {
		cfg.ProjectFile = projectFlag
	}
	if dbFlag != "" {
		cfg.DBDriver = "sqlite"
		cfg.SQLitePath = dbFlag
	}
	log := logger.New("engagementctl", logger.WithLevel(cfg.LogLevel), logger.WithOutput(os.Stderr))

	proj, err := config.LoadProject(cfg.ProjectFile)
	if err != nil {
		return nil, err
	}
	proj.Merge(cfg)

	st, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, proj: proj, log: log, store: st, out: os.Stdout}, nil
}

func (a *app) Close() error { return a.store.Close() }

func (a *app) client() (*upstream.Client, error) {
	return factory.NewUpstreamClient(a.cfg, a.log)
}

// identities builds the identity service. Registration needs the upstream
// resolver; read and archive commands pass nil.
func (a *app) identities(resolver services.Resolver) (*services.IdentityService, error) {
	elig, err := factory.NewEligibility(a.cfg, a.log)
	if err != nil {
		return nil, err
	}
	return services.NewIdentityService(a.store, elig, resolver, a.log), nil
}

func (a *app) print(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printOutcome writes out and turns a failed Outcome into a command error.
func (a *app) printOutcome(out model.Outcome, err error) error {
	if err != nil {
		return err
	}
	if perr := a.print(out); perr != nil {
		return perr
	}
	if !out.OK {
		return fmt.Errorf("%s: %s", out.Reason, out.Message)
	}
	return nil
}

// withApp opens the app for the duration of fn.
func withApp(ctx context.Context, fn func(*app) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			a.log.Warn().Err(cerr).Msg("close store")
		}
	}()
	return fn(a)
}
