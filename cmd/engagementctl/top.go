package main

import (
	"github.com/spf13/cobra"
)

func init() {
	var limit int
	topCmd := &cobra.Command{
		Use:   "top",
		Short: "Show identities with the highest engagement",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				aggs, err := a.store.Engagement().Top(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return a.print(aggs)
			})
		},
	}
	topCmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of identities")
	rootCmd.AddCommand(topCmd)
}
