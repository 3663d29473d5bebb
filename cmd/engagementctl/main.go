package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	projectFlag string
	dbFlag      string
	rootCmd     = &cobra.Command{
		Use:           "engagementctl",
		Short:         "Operate the engagement store: identities, wallets and ingestion",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func main() {
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVarP(&projectFlag, "project", "p", "", "Project YAML file (overrides ENGAGEMENT_PROJECT_FILE)")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "sqlite", "", "SQLite path (overrides ENGAGEMENT_SQLITE_PATH)")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
