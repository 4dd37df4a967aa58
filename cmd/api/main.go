package main

import (
	"fmt"
	"os"

	"github.com/ayo6706/payment-bridge/internal/app"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "payment-bridge",
		Short:   "Payin/payout bridge to the Payraizen gateway",
		Version: Version,
		// Running the binary without a subcommand starts the server.
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run()
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "application error: %v\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and background sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply Postgres schema migrations from MIGRATIONS_PATH",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Migrate(); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}
