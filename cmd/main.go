package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Vovarama1992/odoo-ai-bridge/internal/config"
	"github.com/Vovarama1992/odoo-ai-bridge/internal/observability"
	"github.com/Vovarama1992/odoo-ai-bridge/internal/session"
)

var rootCmd = &cobra.Command{
	Use:           "odoo-ai-bridge",
	Short:         "Conversational assistant bridge for Odoo",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the assistant HTTP server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

// migrateCmd applies the transcript schema and exits
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is not set")
		}
		db, err := openDB(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := session.Migrate(db); err != nil {
			return err
		}
		observability.Logger().Info("migrations applied")
		return nil
	},
}

func main() {
	rootCmd.AddCommand(serveCmd, migrateCmd)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log, err := observability.Setup(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		return nil, err
	}
	log.Info("config loaded",
		zap.String("provider", string(cfg.Model.Provider)),
		zap.String("odoo_url", cfg.Odoo.URL),
		zap.Bool("postgres", cfg.DatabaseURL != ""))
	return cfg, nil
}

func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}
