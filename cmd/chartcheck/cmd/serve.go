package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openpa/chartcheck/internal/core/api"
	"github.com/openpa/chartcheck/internal/core/auth"
	"github.com/openpa/chartcheck/internal/core/config"
	"github.com/openpa/chartcheck/internal/core/db"
	"github.com/openpa/chartcheck/internal/core/metrics"
	"github.com/openpa/chartcheck/internal/core/server"
	"github.com/openpa/chartcheck/internal/core/store"
	"github.com/openpa/chartcheck/internal/rules"
)

const Version = "0.1.0"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chart evaluation HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "HTTP server host")
	serveCmd.Flags().Int("port", 8080, "HTTP server port")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	log := newLogger()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("host") {
		host, _ := cmd.Flags().GetString("host")
		cfg.Host = host
	}
	if cmd.Flags().Changed("port") {
		port, _ := cmd.Flags().GetInt("port")
		cfg.Port = port
	}

	if dbURL == "" {
		return fmt.Errorf("--db-url required")
	}
	database, err := db.Open(dbURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	// Refuse to serve against an unmigrated database
	var migrationID string
	checkQuery := `SELECT migration_id FROM migrations WHERE migration_id = '002_api_keys.sql'`
	err = database.Get(&migrationID, database.Rebind(checkQuery))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("migration 002_api_keys not applied - run 'chartcheck migrate' first")
		}
		return fmt.Errorf("failed to check migrations: %w", err)
	}

	queries, err := db.LoadQueries(database)
	if err != nil {
		return fmt.Errorf("failed to load queries: %w", err)
	}

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no HMAC secrets configured (set CC_HMAC_SECRET environment variable)")
	}

	authenticator := auth.NewAuthenticator(secrets, queries, log)
	engine := rules.NewEngine(log)

	// No extraction backend wired yet; chart_text requests return 422 until
	// a deployment provides one.
	service, err := api.NewService(store.New(queries), engine, cfg, log, metrics.New(), nil)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	httpServer, err := server.NewHTTPServer(cfg, service, authenticator)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	log.Info().Str("version", Version).Str("host", cfg.Host).Int("port", cfg.Port).
		Msg("starting chartcheck API")
	errChan := make(chan error, 1)
	go func() {
		errChan <- httpServer.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-sigChan:
		log.Info().Msg("shutting down gracefully")
		return httpServer.Shutdown(ctx)
	}
}
