package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"support_server/config"
	"support_server/internal/bootstrap"
	"support_server/pkg/logger"

	"github.com/joho/godotenv"
)

// shutdownTimeout bounds how long a SIGTERM waits on in-flight work.
const shutdownTimeout = 30 * time.Second

func main() {
	logger.Init(logger.Config{
		Level:   logger.LevelInfo,
		Service: "support",
	})

	// Local development reads .env; deployments set the real environment.
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	mode := flag.String("mode", "all", "api, worker, or all")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	switch *mode {
	case "api":
		runAPI(cfg)
	case "worker":
		runWorker(cfg)
	case "all":
		// One process hosts both: the worker drains the queue while the
		// API serves the ops surface.
		go runWorker(cfg)
		runAPI(cfg)
	default:
		logger.Fatal("Unknown mode %q", *mode)
	}
}

func runAPI(cfg *config.Config) {
	app, cleanup, err := bootstrap.NewAPI(cfg)
	if err != nil {
		logger.Fatal("API bootstrap failed: %v", err)
	}
	defer cleanup()

	go func() {
		waitForSignal()
		logger.Info("Stopping API server...")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.ShutdownWithContext(ctx); err != nil {
			logger.Error("API shutdown: %v", err)
		}
	}()

	addr := ":" + cfg.Port
	logger.Info("API listening on %s", addr)
	if err := app.Listen(addr); err != nil {
		logger.Fatal("API server: %v", err)
	}
}

func runWorker(cfg *config.Config) {
	w, cleanup, err := bootstrap.NewWorker(cfg)
	if err != nil {
		logger.Fatal("Worker bootstrap failed: %v", err)
	}
	defer cleanup()

	go func() {
		waitForSignal()
		logger.Info("Stopping worker...")

		done := make(chan struct{})
		go func() {
			w.Stop()
			close(done)
		}()
		select {
		case <-done:
			logger.Info("Worker stopped")
		case <-time.After(shutdownTimeout):
			logger.Warn("Worker shutdown timed out, exiting")
			os.Exit(1)
		}
	}()

	w.Start()
}

func waitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
}
