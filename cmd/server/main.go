package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nodpt/llmserve/internal/api"
	"github.com/nodpt/llmserve/internal/config"
	"github.com/nodpt/llmserve/internal/engine"
	"github.com/nodpt/llmserve/internal/metrics"
	"github.com/nodpt/llmserve/internal/middleware"
	"github.com/nodpt/llmserve/internal/usage"
)

func main() {
	logger := log.New(os.Stdout, "[llmserve] ", log.LstdFlags)

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Printf("Starting %s v%s", api.ServiceName, api.Version)
	logger.Printf("Host: %s", cfg.Host)
	logger.Printf("Port: %d", cfg.Port)
	logger.Printf("Engine Directory: %s", cfg.EngineDir)
	logger.Printf("Model Directory: %s", cfg.ModelDir)
	logger.Printf("Model Name: %s", cfg.ModelName)

	var store *usage.Store
	if cfg.UsageDB != "" {
		store, err = usage.Open(cfg.UsageDB)
		if err != nil {
			logger.Fatalf("Failed to open usage database: %v", err)
		}
		defer store.Close()
		logger.Printf("Usage logging to %s", cfg.UsageDB)
	}

	eng := engine.New(engine.Probe(cfg.EngineDir, logger))

	m := metrics.New()
	handler := api.NewHandler(cfg, eng, store, m, logger)
	logging := middleware.NewLogging(logger, m)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      logging.Wrap(handler.Routes()),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("Server listening on http://%s", cfg.Addr())
		logger.Println("Routes:")
		logger.Println("  GET  /                     - Service metadata")
		logger.Println("  GET  /health               - Health check")
		logger.Println("  GET  /info                 - Runtime info")
		logger.Println("  GET  /metrics              - Request statistics")
		logger.Println("  GET  /v1/models            - Served model list")
		logger.Println("  GET  /v1/local-models      - Models found on disk")
		logger.Println("  POST /v1/completions       - Text completions")
		logger.Println("  POST /v1/chat/completions  - Chat completions")
		logger.Println("Press Ctrl+C to stop...")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Printf("Server forced to shutdown: %v", err)
	}
	logger.Println("Server stopped gracefully")
}
