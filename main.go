package main

import (
	"context"
	"fmt"
	"os"

	api "foratask-backend/cmd/api"
	"foratask-backend/pkg/clock"
	"foratask-backend/pkg/config"
	"foratask-backend/pkg/database"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "foratask",
		Short:         "ForaTask task lifecycle and notification service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadApp connects to the database and wires the service
func loadApp(ctx context.Context, migrate bool, clk clock.Clock) (*api.App, error) {
	cfg := config.Load()

	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if migrate {
		if err := api.Migrate(db); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	return api.NewApp(ctx, cfg, db, clk)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			db, err := database.NewPostgresConnection(cfg)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			if err := api.Migrate(db); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			fmt.Println("Database schema is up to date")
			return nil
		},
	}
}
