package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/model"
)

type seedResult struct {
	Handle  string        `json:"handle"`
	Outcome model.Outcome `json:"outcome"`
}

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Register the users listed in the project file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				seeds, errs := a.proj.Seeds()
				for _, err := range errs {
					a.log.Warn().Err(err).Msg("skipping malformed user row")
				}
				client, err := a.client()
				if err != nil {
					return err
				}
				svc, err := a.identities(client)
				if err != nil {
					return err
				}
				results := make([]seedResult, 0, len(seeds))
				for _, s := range seeds {
					out, err := svc.Register(cmd.Context(), s.Handle, s.Wallet, s.Chain)
					if err != nil {
						return fmt.Errorf("seed %s: %w", s.Handle, err)
					}
					results = append(results, seedResult{Handle: s.Handle, Outcome: out})
				}
				return a.print(results)
			})
		},
	})
}
