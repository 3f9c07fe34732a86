// Package main is the entry point for the Billit API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"gitlab.com/billit/billit-api/internal/config"
	"gitlab.com/billit/billit-api/internal/database"
	"gitlab.com/billit/billit-api/internal/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "billit",
		Short:         "Billit receipt processing API",
		SilenceUsage:  true,
		SilenceErrors: true,
		// Running the bare binary serves the API.
		RunE: runServe,
	}
	root.AddCommand(serveCmd(), migrateCmd(), versionCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "billit %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func migrateCmd() *cobra.Command {
	var withProcedures bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Long: `Create the Billit tables and indexes.

With --with-procedures the duplicate, folder and notification procedures are
installed as well. Skip it when those are managed by the hosting platform.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			pool, err := database.Connect(ctx, cfg.DatabaseURL, poolOptions(cfg))
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer pool.Close()

			if err := database.RunMigrations(ctx, pool); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			if withProcedures {
				if err := database.InstallProcedures(ctx, pool); err != nil {
					return fmt.Errorf("failed to install procedures: %w", err)
				}
			}
			logger.Log.Info().Bool("procedures", withProcedures).Msg("Database schema is up to date")
			return nil
		},
	}
	cmd.Flags().BoolVar(&withProcedures, "with-procedures", false, "also install the database procedures")
	return cmd
}

// loadConfig reads the environment and prepares logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Configure(cfg.LogLevel, cfg.LogFormat)
	if err := logger.InitHashSalt(); err != nil {
		return nil, fmt.Errorf("failed to initialize log hashing: %w", err)
	}
	return cfg, nil
}

func poolOptions(cfg *config.Config) database.PoolOptions {
	return database.PoolOptions{MaxConns: cfg.DBMaxConns, MaxConnIdle: cfg.DBMaxConnIdle}
}
