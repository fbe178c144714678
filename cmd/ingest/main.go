package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/portfoliolens/sheetload/internal/app"
	"github.com/portfoliolens/sheetload/internal/config"
	"github.com/portfoliolens/sheetload/internal/logger"
	"github.com/portfoliolens/sheetload/internal/service"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "sheetload-ingest",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	jobID := flag.String("job", "", "Process a single pending import job")
	watch := flag.Bool("watch", false, "Poll for pending jobs until interrupted")
	batch := flag.Int("batch", 10, "Maximum pending jobs picked up per poll")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if (*jobID == "") == !*watch {
		appLogger.Error("Exactly one of -job or -watch is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	a, err := app.New(cfg, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize application")
	}
	defer a.Close()

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		appLogger.Info("Received shutdown signal, stopping...")
		cancel()
	}()

	if *watch {
		worker := service.NewWorker(a.Jobs, a.Imports, a.Limiter, appLogger, service.WorkerConfig{
			PollInterval: cfg.Ingest.PollInterval,
			BatchSize:    *batch,
		})
		if err := worker.Run(ctx); err != nil {
			appLogger.WithError(err).Fatal("Worker stopped")
		}
		return
	}

	appLogger.WithField(logger.FieldJobID, *jobID).Info("Starting import")
	res, err := a.Imports.Process(ctx, *jobID)
	if err != nil {
		appLogger.WithError(err).WithField(logger.FieldJobID, *jobID).Error("Import failed")
		a.Close()
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		appLogger.WithError(err).Error("Failed to print result")
	}
}
