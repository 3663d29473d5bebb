package main

import (
	"github.com/spf13/cobra"
)

func init() {
	var chain string
	registerCmd := &cobra.Command{
		Use:   "register HANDLE ADDRESS",
		Short: "Register an identity with its first wallet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				client, err := a.client()
				if err != nil {
					return err
				}
				svc, err := a.identities(client)
				if err != nil {
					return err
				}
				return a.printOutcome(svc.Register(cmd.Context(), args[0], args[1], chain))
			})
		},
	}
	registerCmd.Flags().StringVarP(&chain, "chain", "c", "", "Wallet chain (default solana)")
	rootCmd.AddCommand(registerCmd)

	var walletChain string
	addWalletCmd := &cobra.Command{
		Use:   "add-wallet HANDLE ADDRESS",
		Short: "Bind another wallet to a known identity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				svc, err := a.identities(nil)
				if err != nil {
					return err
				}
				return a.printOutcome(svc.AddWallet(cmd.Context(), args[0], args[1], walletChain))
			})
		},
	}
	addWalletCmd.Flags().StringVarP(&walletChain, "chain", "c", "", "Wallet chain (default solana)")
	rootCmd.AddCommand(addWalletCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "get HANDLE",
		Short: "Show an identity and its wallets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				svc, err := a.identities(nil)
				if err != nil {
					return err
				}
				id, err := svc.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.print(id)
			})
		},
	})

	var includeArchived bool
	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List identities by handle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				svc, err := a.identities(nil)
				if err != nil {
					return err
				}
				ids, err := svc.List(cmd.Context(), includeArchived, limit)
				if err != nil {
					return err
				}
				return a.print(ids)
			})
		},
	}
	listCmd.Flags().BoolVar(&includeArchived, "all", false, "Include archived identities")
	listCmd.Flags().IntVarP(&limit, "limit", "n", 100, "Maximum identities to list")
	rootCmd.AddCommand(listCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "archive HANDLE",
		Short: "Archive an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				svc, err := a.identities(nil)
				if err != nil {
					return err
				}
				return a.printOutcome(svc.Archive(cmd.Context(), args[0]))
			})
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "reactivate HANDLE",
		Short: "Reactivate an archived identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				svc, err := a.identities(nil)
				if err != nil {
					return err
				}
				return a.printOutcome(svc.Reactivate(cmd.Context(), args[0]))
			})
		},
	})
}
