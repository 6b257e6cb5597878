package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/specsync/specsync/internal/controller"
	"github.com/specsync/specsync/internal/credentials"
	"github.com/specsync/specsync/internal/gitvcs"
	"github.com/specsync/specsync/internal/importer"
	"github.com/specsync/specsync/internal/metrics"
	"github.com/specsync/specsync/internal/store"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevelFromEnv()}))

	dataDir := strings.TrimSpace(os.Getenv("SPECSYNC_DATA_DIR"))
	if dataDir == "" {
		dataDir = "/data"
		if _, err := os.Stat(dataDir); os.IsNotExist(err) {
			// Fallback for local development if /data doesn't exist
			dataDir = "."
		}
	}

	var dbStore store.Store
	var err error

	dbType := os.Getenv("SPECSYNC_DB_TYPE")
	if dbType == "postgres" {
		connString := os.Getenv("SPECSYNC_DB_CONNECTION_STRING")
		if connString == "" {
			logger.Error("SPECSYNC_DB_CONNECTION_STRING is required for postgres")
			os.Exit(1)
		}
		dbStore, err = store.NewPostgresStore(context.Background(), connString)
		if err != nil {
			logger.Error("Failed to initialize postgres store", "error", err)
			os.Exit(1)
		}
		logger.Info("Using PostgreSQL store")
	} else {
		// Default to SQLite
		dbPath := filepath.Join(dataDir, "specsync.db")

		dbStore, err = store.NewSQLiteStore(dbPath)
		if err != nil {
			logger.Error("Failed to initialize sqlite store", "error", err)
			os.Exit(1)
		}
		logger.Info("Using SQLite store")
	}
	defer dbStore.Close()

	credentialService, err := credentials.NewServiceFromEnv(filepath.Join(dataDir, "specsync-encryption.key"))
	if err != nil {
		logger.Error("Failed to initialize credential encryption", "error", err)
		os.Exit(1)
	}
	logger.Info("Credential encryption is enabled", "source", credentialService.KeySource())

	workspaceDir := strings.TrimSpace(os.Getenv("SPECSYNC_WORKSPACE_DIR"))
	if workspaceDir == "" {
		workspaceDir = filepath.Join(dataDir, "repositories")
	}
	if err := os.MkdirAll(workspaceDir, 0o755); err != nil {
		logger.Error("Failed to create workspace directory", "dir", workspaceDir, "error", err)
		os.Exit(1)
	}

	recorder := metrics.NewPrometheusRecorder(nil)

	registry := controller.NewRegistry(dbStore, credentialService, logger)
	vcs := gitvcs.NewAdapter(workspaceDir, logger)
	catalogImporter := importer.NewCatalogImporter(dbStore, logger)

	orchCfg, err := controller.LoadOrchestratorConfigFromEnv()
	if err != nil {
		logger.Error("Failed to load orchestrator config", "error", err)
		os.Exit(1)
	}
	orch := controller.NewOrchestrator(vcs, catalogImporter, registry, logger, recorder, orchCfg)

	schedCfg, err := controller.LoadSchedulerConfigFromEnv()
	if err != nil {
		logger.Error("Failed to load scheduler config", "error", err)
		os.Exit(1)
	}
	scheduler, err := controller.NewScheduler(registry, orch, logger, recorder, schedCfg)
	if err != nil {
		logger.Error("Failed to create scheduler", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := scheduler.Start(ctx); err != nil {
		logger.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := scheduler.Stop(); err != nil {
			logger.Warn("Scheduler shutdown failed", "error", err)
		}
	}()

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	repoHandler := controller.NewHandler(registry, orch, scheduler, logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", recorder.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/repositories", func(r chi.Router) {
			r.Post("/", repoHandler.RegisterRepository)
			r.Get("/", repoHandler.ListRepositories)
			r.Get("/{id}", repoHandler.GetRepository)
			r.Put("/{id}", repoHandler.UpdateRepository)
			r.Delete("/{id}", repoHandler.DeleteRepository)
			r.Post("/{id}/activate", repoHandler.ActivateRepository)
			r.Post("/{id}/deactivate", repoHandler.DeactivateRepository)
			r.Post("/{id}/sync", repoHandler.SyncRepository)
			r.Get("/{id}/status", repoHandler.RepositoryStatus)
		})
	})

	addr := strings.TrimSpace(os.Getenv("SPECSYNC_ADDR"))
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		logger.Info("Starting specsync service", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown failed", "error", err)
	}
}

func logLevelFromEnv() slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("SPECSYNC_LOG_LEVEL"))) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
