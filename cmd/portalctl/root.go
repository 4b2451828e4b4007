package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"incident-portal/internal/config"
	"incident-portal/pkg/logger"
	"incident-portal/pkg/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
)

var (
	dsn     string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "portalctl",
	Short: "Operator tooling for the incident portal",
	Long: `portalctl applies the database schema, prints a report's audit trail
and manages the portal settings file.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		env := "production"
		if verbose {
			env = "dev"
		}
		slog.SetDefault(logger.New(env, "portalctl"))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "postgres DSN (defaults to the DB_* environment)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// openDB connects using --dsn, or the same environment the API reads.
func openDB(ctx context.Context) (*sql.DB, error) {
	target := dsn
	if target == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		target = cfg.PostgresDSN()
	}
	return utils.OpenPostgres(ctx, "pgx", target, utils.PostgresPoolConfig{MaxOpenConns: 2, MaxIdleConns: 2})
}
