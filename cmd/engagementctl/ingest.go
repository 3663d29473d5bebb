package main

import (
	"github.com/spf13/cobra"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/factory"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/indexing"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/ingest"
)

func init() {
	ingestCmd := &cobra.Command{Use: "ingest", Short: "Run ingestion batches once"}

	ingestCmd.AddCommand(&cobra.Command{
		Use:   "accounts [ACCOUNT...]",
		Short: "Ingest recent posts of accounts (ids or handles; default: project accounts)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				if len(args) == 0 {
					args = a.proj.Accounts
				}
				return a.runIngest(cmd, ingest.Sources{Accounts: args})
			})
		},
	})

	ingestCmd.AddCommand(&cobra.Command{
		Use:   "keywords [TERM...]",
		Short: "Ingest recent posts matching any term (default: project keywords and hashtags)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				if len(args) == 0 {
					args = append(append([]string{}, a.proj.Keywords...), a.proj.Hashtags...)
				}
				return a.runIngest(cmd, ingest.Sources{Keywords: args})
			})
		},
	})

	ingestCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run one full round over project accounts and keywords",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				return a.runIngest(cmd, ingest.Sources{
					Accounts: a.proj.Accounts,
					Keywords: append(append([]string{}, a.proj.Keywords...), a.proj.Hashtags...),
				})
			})
		},
	})

	rootCmd.AddCommand(ingestCmd)
}

// runIngest runs one round over src without the similarity index.
func (a *app) runIngest(cmd *cobra.Command, src ingest.Sources) error {
	client, err := a.client()
	if err != nil {
		return err
	}
	svc, err := a.identities(client)
	if err != nil {
		return err
	}
	coord := factory.NewCoordinator(a.cfg, a.proj, client, svc, a.store, indexing.Noop{}, a.log)
	runner, err := ingest.NewRunner(coord, client, src, a.cfg.IngestInterval, a.log)
	if err != nil {
		return err
	}
	defer func() { _ = runner.Shutdown() }()
	return a.print(runner.RunOnce(cmd.Context()))
}
