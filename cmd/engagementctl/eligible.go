package main

import (
	"github.com/spf13/cobra"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/eligibility"
)

func init() {
	eligibleCmd := &cobra.Command{Use: "eligible", Short: "Manage the eligible wallet list"}
	eligibleCmd.AddCommand(&cobra.Command{
		Use:   "add ADDRESS...",
		Short: "Append addresses to the eligibility file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				reg, err := eligibility.Load(a.cfg.EligibilityFile, a.log)
				if err != nil {
					return err
				}
				added := map[string]bool{}
				for _, addr := range args {
					ok, err := reg.Add(addr)
					if err != nil {
						return err
					}
					added[addr] = ok
				}
				return a.print(added)
			})
		},
	})
	rootCmd.AddCommand(eligibleCmd)
}
