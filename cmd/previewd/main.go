package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jgirmay/FORGE_GO/internal/api"
	"github.com/jgirmay/FORGE_GO/internal/history"
	"github.com/jgirmay/FORGE_GO/internal/patch"
	"github.com/jgirmay/FORGE_GO/internal/preview"
	"github.com/jgirmay/FORGE_GO/pkg/config"
	"github.com/jgirmay/FORGE_GO/pkg/logging"
)

func main() {
	// Load environment configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	if err := logging.Init(logging.LogLevel(cfg.Logging.Level), cfg.Logging.Format); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logging.Get().Sync()

	// Optional session event store
	var recorder preview.EventRecorder
	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.DSN)
		if err != nil {
			logging.Get().Fatal("failed to open history store", zap.Error(err))
		}
		defer store.Close()
		recorder = store
		logging.Info("session history enabled", zap.String("dsn", cfg.History.DSN))
	}

	// Optional patch-suggestion collaborator
	var suggester preview.PatchSuggester
	if cfg.Patch.Endpoint != "" {
		suggester = patch.NewClient(cfg.Patch.Endpoint, cfg.Patch.Timeout)
		logging.Info("auto-patch collaborator configured", zap.String("endpoint", cfg.Patch.Endpoint))
	}

	// The orchestrator's own port must never be handed to a preview
	excluded := append([]int{cfg.Server.Port, cfg.Server.OpsPort}, cfg.Preview.ExcludedPorts...)

	registry := preview.NewRegistry(preview.RegistryConfig{
		PortRangeStart:  cfg.Preview.PortRangeStart,
		PortRangeEnd:    cfg.Preview.PortRangeEnd,
		ExcludedPorts:   excluded,
		LogBufferSize:   cfg.Preview.LogBufferSize,
		TerminationWait: cfg.Preview.TerminationWait,
		Prepare: preview.PrepareConfig{
			Disabled:  cfg.Preview.PrepareDisabled,
			PythonBin: cfg.Preview.PythonBin,
			NpmBin:    cfg.Preview.NpmBin,
			Timeout:   cfg.Preview.PrepareTimeout,
		},
		Resolver: preview.ResolverConfig{
			PythonBin:      cfg.Preview.PythonBin,
			NodeBin:        cfg.Preview.NodeBin,
			GraceStatic:    cfg.Preview.GraceStatic,
			GraceFlask:     cfg.Preview.GraceFlask,
			GraceStreamlit: cfg.Preview.GraceStreamlit,
			GraceNode:      cfg.Preview.GraceNode,
			GraceSPA:       cfg.Preview.GraceSPA,
			GracePHP:       cfg.Preview.GracePHP,
		},
		Suggester: suggester,
		Recorder:  recorder,
		Metrics:   preview.NewMetrics("forge"),
	})

	// Public preview API
	apiServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(registry),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Ops router: health and metrics
	opsRouter := chi.NewRouter()
	opsRouter.Use(middleware.RequestID)
	opsRouter.Use(middleware.Recoverer)
	opsRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","sessions":%d}`, len(registry.SessionIDs()))
	})
	opsRouter.Handle("/metrics", promhttp.Handler())

	opsServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.OpsPort),
		Handler: opsRouter,
	}

	go func() {
		logging.Info("ops server listening", zap.String("addr", opsServer.Addr))
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Get().Fatal("ops server failed", zap.Error(err))
		}
	}()

	go func() {
		logging.Info("preview API listening", zap.String("addr", apiServer.Addr))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Get().Fatal("api server failed", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(ctx); err != nil {
		logging.Warn("api server shutdown error", zap.Error(err))
	}
	if err := opsServer.Shutdown(ctx); err != nil {
		logging.Warn("ops server shutdown error", zap.Error(err))
	}

	// Stop every running preview and release all ports
	registry.Close()
	logging.Info("shutdown complete")
}
