package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/portfoliolens/sheetload/internal/domain"
	"github.com/portfoliolens/sheetload/internal/logger"
)

// PendingJobLister lists jobs waiting to be processed.
type PendingJobLister interface {
	ListPending(ctx context.Context, limit int) ([]domain.ImportJob, error)
}

// JobRunner processes one job end to end.
type JobRunner interface {
	Process(ctx context.Context, jobID string) (*ImportResult, error)
}

// WorkerConfig holds configuration for the polling worker.
type WorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// Worker polls for pending jobs and runs them within the job limiter.
type Worker struct {
	jobs    PendingJobLister
	runner  JobRunner
	limiter *JobLimiter
	cfg     WorkerConfig
	logger  *logger.Logger
}

// NewWorker creates a polling worker.
func NewWorker(jobs PendingJobLister, runner JobRunner, limiter *JobLimiter, log *logger.Logger, cfg WorkerConfig) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &Worker{jobs: jobs, runner: runner, limiter: limiter, cfg: cfg, logger: log}
}

// Run polls until ctx is cancelled. Jobs already started are allowed to finish.
func (w *Worker) Run(ctx context.Context) error {
	ctx = logger.SetComponent(ctx, "worker")
	w.logger.WithField("interval", w.cfg.PollInterval.String()).Info("Worker started")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.WithError(err).Warn("Poll failed")
		}
		select {
		case <-ctx.Done():
			w.logger.Info("Worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce processes one batch of pending jobs and returns how many were started.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	pending, err := w.jobs.ListPending(ctx, w.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	var wg sync.WaitGroup
	started := 0
	for _, job := range pending {
		if err := w.limiter.Acquire(ctx); err != nil {
			if errors.Is(err, ErrTooManyJobs) {
				w.logger.WithField(logger.FieldJobID, job.ID).Info("No free job slot, deferring to next poll")
				break
			}
			wg.Wait()
			return started, err
		}
		started++
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer w.limiter.Release()
			w.run(ctx, job.ID)
		}()
	}
	wg.Wait()
	return started, nil
}

func (w *Worker) run(ctx context.Context, jobID string) {
	log := w.logger.WithField(logger.FieldJobID, jobID)
	res, err := w.runner.Process(ctx, jobID)
	switch {
	case errors.Is(err, domain.ErrJobNotPending):
		log.Debug("Job already claimed")
	case err != nil:
		log.WithError(err).Error("Import failed")
	default:
		log.WithFields(logger.Fields{
			logger.FieldStatus: string(res.Status),
			"processed":        res.Processed,
			"failed":           res.Failed,
		}).Info("Import done")
	}
}
