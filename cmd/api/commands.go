package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pasteapi/internal/app"
	"pasteapi/internal/config"
	"pasteapi/internal/database"
	"pasteapi/internal/database/migration"
	"pasteapi/internal/ident"
	"pasteapi/internal/logging"
	"pasteapi/internal/otel"
	"pasteapi/internal/service"
	"pasteapi/internal/storage"
)

var backendFlag string

func init() {
	rootCmd.PersistentFlags().StringVarP(&backendFlag, "backend", "b", "", "Storage backend, overrides STORAGE_BACKEND (filesystem, sqlite, postgres, redis, minio, bolt)")

	rootCmd.AddCommand(serveCmd, migrateCmd)
}

var rootCmd = &cobra.Command{
	Use:           "pasteapi",
	Short:         "Paste service over pluggable storage",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          serve,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server (default)",
	RunE:  serve,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the pastes table for the sqlite or postgres backend and exit",
	RunE:  migrate,
}

// loadConfig reads the environment (.env auto-loaded) and applies flag overrides.
func loadConfig() (*config.AppConfig, *logrus.Logger) {
	cfg := config.Load()
	if backendFlag != "" {
		cfg.Storage.Backend = backendFlag
	}
	return cfg, logging.New(os.Stdout, cfg.LogLevel, cfg.Location())
}

func serve(cmd *cobra.Command, _ []string) error {
	cfg, log := loadConfig()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := otel.Init(ctx, otel.SettingsFromEnv(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.WithError(err).Warn("tracing shutdown")
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	backend, err := storage.NewFactory(cfg, log, reg).Open(ctx)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if c, ok := backend.(storage.Closer); ok {
			if err := c.Close(); err != nil {
				log.WithError(err).Warn("storage close")
			}
		}
	}()

	storeMetrics, err := storage.NewMetrics(reg)
	if err != nil {
		return err
	}
	backend = storage.Instrument(backend, cfg.Storage.Backend, storeMetrics)

	svc := service.NewPasteService(backend, ident.NewGenerator(cfg.Paste.IDLength), service.Options{
		DefaultMeta: cfg.Paste.DefaultMeta,
		MaxAttempts: cfg.Paste.MaxAttempts,
		MaxBytes:    cfg.Paste.MaxBytes,
		Log:         log,
	})

	srv, err := app.New(cfg, app.Deps{
		Backend:  backend,
		Service:  svc,
		Log:      log,
		Registry: reg,
	})
	if err != nil {
		return err
	}

	addr := ":" + cfg.Port
	log.WithFields(logrus.Fields{"addr": addr, "backend": cfg.Storage.Backend}).Info("server starting")
	return app.Run(ctx, srv, addr)
}

func migrate(cmd *cobra.Command, _ []string) error {
	cfg, log := loadConfig()

	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		db, err := database.NewSQLite(cfg.Storage.SQLitePath)
		if err != nil {
			return err
		}
		defer db.Close()
		return migration.EnsureMigrated(cmd.Context(), db, migration.SQLite, log)
	case config.BackendPostgres:
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		return migration.EnsureMigrated(cmd.Context(), db, migration.Postgres, log)
	default:
		log.WithField("backend", cfg.Storage.Backend).Info("backend has no schema, nothing to migrate")
		return nil
	}
}
