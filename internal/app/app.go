// Package app wires configuration, stores and services into a runnable import pipeline.
package app

import (
	"context"
	"fmt"

	"github.com/portfoliolens/sheetload/internal/config"
	"github.com/portfoliolens/sheetload/internal/logger"
	"github.com/portfoliolens/sheetload/internal/repository"
	"github.com/portfoliolens/sheetload/internal/service"
	"github.com/portfoliolens/sheetload/internal/storage"
	"gorm.io/gorm"
)

// App holds the shared dependencies of the API server and the CLI.
type App struct {
	DB        *gorm.DB
	Jobs      *repository.JobRepository
	Sheets    *repository.SheetStatusRepository
	Templates *repository.TemplateRepository
	Staging   *repository.StagingRepository
	Logs      *repository.ImportLogRepository
	Blobs     storage.BlobStore
	Imports   *service.ImportService
	Limiter   *service.JobLimiter
}

// New connects to the database and blob store and builds the import coordinator.
// Parameters:
//   - cfg: loaded application configuration.
//   - log: base logger handed to the services.
// Returns:
//   - *App: wired dependencies; call Close when done.
//   - error: non-nil if a backend cannot be initialized.
func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	blobs, err := storage.NewStorage(&storage.Config{
		Type:      storage.StorageType(cfg.Storage.Type),
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		LocalDir:  cfg.Storage.LocalDir,
	})
	if err != nil {
		closeDB(db)
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	a := &App{
		DB:        db,
		Jobs:      repository.NewJobRepository(db),
		Sheets:    repository.NewSheetStatusRepository(db),
		Templates: repository.NewTemplateRepository(db),
		Staging:   repository.NewStagingRepository(db),
		Logs:      repository.NewImportLogRepository(db),
		Blobs:     blobs,
		Limiter:   service.NewJobLimiter(cfg.Ingest.MaxConcurrentJobs, cfg.Ingest.JobWaitTimeout),
	}

	var processor service.SheetProcessor
	if cfg.Processor.URL != "" {
		log.WithField("url", cfg.Processor.URL).Info("Using remote sheet processor")
		processor = service.NewHTTPSheetProcessor(&service.HTTPProcessorConfig{
			URL:     cfg.Processor.URL,
			APIKey:  cfg.Processor.APIKey,
			Timeout: cfg.Processor.Timeout,
		})
	} else {
		log.Info("No processor URL configured, counting staged rows")
		processor = service.NewStagedSheetProcessor(a.Staging)
	}

	a.Imports = service.NewImportService(
		a.Jobs,
		a.Templates,
		a.Sheets,
		a.Staging,
		a.Blobs,
		processor,
		a.Logs,
		log,
		&service.ImportConfig{
			ChunkSize:              cfg.Ingest.ChunkSize,
			MaxAttempts:            cfg.Ingest.MaxAttempts,
			RetryBackoff:           cfg.Ingest.RetryBackoff,
			StoragePrefix:          cfg.Ingest.StoragePrefix,
			TolerateTemplateErrors: cfg.Ingest.TolerateTemplateErrors,
			SheetConcurrency:       cfg.Ingest.SheetConcurrency,
			MaxFileBytes:           cfg.Ingest.MaxFileBytes,
		},
	)
	return a, nil
}

// PingDB checks the database connection.
func (a *App) PingDB(ctx context.Context) error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the database connection.
func (a *App) Close() error {
	return closeDB(a.DB)
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
