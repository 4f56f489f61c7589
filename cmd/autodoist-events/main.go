// Command autodoist-events runs the Todoist webhook service: it receives
// signed deliveries, records them in the receipt ledger, and executes the
// recurring-task and reminder rules against the Todoist API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	_ "github.com/erauner/autodoist-events/docs"
	"github.com/erauner/autodoist-events/internal/config"
	httpapi "github.com/erauner/autodoist-events/internal/http"
	"github.com/erauner/autodoist-events/internal/observability"
	"github.com/erauner/autodoist-events/internal/repo"
	"github.com/erauner/autodoist-events/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

// serveOverrides are optional command line values that take precedence over
// the corresponding environment variables. Secrets stay env-only so they
// never show up in process listings.
type serveOverrides struct {
	envFile  string
	host     string
	port     string
	dbPath   string
	logLevel string
	dryRun   string // tri-state: "" inherits env, otherwise truthy/falsy
	pretty   string // same tri-state as dryRun
}

// @title Autodoist Events API
// @version 1.0
// @description Todoist webhook ingestion and rule execution service. Verifies deliveries, persists an idempotent receipt ledger, runs recurring-task cleanup and reminder-notify rules, and exposes admin reads plus an internal policy trigger.
// @BasePath /
// @securityDefinitions.apikey AdminToken
// @in header
// @name Authorization
// @securityDefinitions.apikey InternalToken
// @in header
// @name Authorization
func main() {
	root := &cobra.Command{
		Use:     "autodoist-events",
		Short:   "Todoist webhook ingestion and rule execution service",
		Version: version,
		Long: `autodoist-events receives Todoist webhook deliveries, verifies their
HMAC signatures, and records every delivery in a SQLite receipt ledger so
redeliveries are acknowledged without re-running side effects. Enabled rules
clean up completed recurring tasks and forward reminder notifications.`,
	}
	root.AddCommand(newServeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	var o serveOverrides

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true // config errors are not usage errors
			return runServe(o)
		},
	}

	cmd.Flags().StringVar(&o.envFile, "env-file", "", "load this .env file before reading configuration")
	cmd.Flags().StringVar(&o.host, "host", "", "bind address (overrides AUTODOIST_EVENTS_HOST)")
	cmd.Flags().StringVar(&o.port, "port", "", "listen port (overrides AUTODOIST_EVENTS_PORT)")
	cmd.Flags().StringVar(&o.dbPath, "db-path", "", "SQLite ledger path (overrides AUTODOIST_EVENTS_DB_PATH)")
	cmd.Flags().StringVar(&o.logLevel, "log-level", "", "debug|info|warn|error (overrides LOG_LEVEL)")
	cmd.Flags().StringVar(&o.dryRun, "dry-run", "", "plan actions without touching Todoist (overrides AUTODOIST_EVENTS_DRY_RUN)")
	cmd.Flags().StringVar(&o.pretty, "pretty-logs", "", "human-readable console logs (overrides LOG_PRETTY)")

	return cmd
}

func runServe(o serveOverrides) error {
	// .env is a local dev convenience; absence is not an error unless a
	// file was named explicitly.
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil {
			return fmt.Errorf("load env file %s: %w", o.envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyOverrides(&cfg, o)

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx := context.Background()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	if cfg.OTEL.Enabled {
		log.Info().Str("endpoint", cfg.OTEL.Endpoint).Msg("tracing enabled")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate ledger: %w", err)
	}
	if cfg.OTEL.Enabled {
		if err := observability.InstrumentGorm(db, "receipts"); err != nil {
			return fmt.Errorf("instrument ledger: %w", err)
		}
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, cfg)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", version).
			Bool("dry_run", cfg.DryRun).
			Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}

	log.Info().Msg("shutdown complete")
	return nil
}

// applyOverrides folds non-empty command line values into the loaded config.
func applyOverrides(cfg *config.Config, o serveOverrides) {
	cfg.Host = sysutil.FirstNonEmpty(o.host, cfg.Host)
	cfg.Port = sysutil.FirstNonEmpty(o.port, cfg.Port)
	cfg.DBPath = sysutil.FirstNonEmpty(o.dbPath, cfg.DBPath)
	cfg.LogLevel = sysutil.FirstNonEmpty(o.logLevel, cfg.LogLevel)
	if o.dryRun != "" {
		cfg.DryRun = sysutil.IsTruthy(o.dryRun)
	}
	if o.pretty != "" {
		cfg.LogPretty = sysutil.IsTruthy(o.pretty)
	}
}
