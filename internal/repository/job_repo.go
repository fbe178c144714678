package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/portfoliolens/sheetload/internal/domain"
	"gorm.io/gorm"
)

// JobRepository handles import job persistence.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new import job.
func (r *JobRepository) Create(ctx context.Context, job *domain.ImportJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByID retrieves a job by its ID. Returns gorm.ErrRecordNotFound if missing.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.ImportJob, error) {
	var job domain.ImportJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// ListPending returns the oldest pending jobs.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of jobs to return.
// Returns:
//   - []domain.ImportJob: pending jobs ordered by creation time.
//   - error: non-nil if the query fails.
func (r *JobRepository) ListPending(ctx context.Context, limit int) ([]domain.ImportJob, error) {
	var jobs []domain.ImportJob
	err := r.db.WithContext(ctx).
		Where("status = ?", domain.JobStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// MarkProcessing claims a pending job. Only one caller can win the claim.
// Returns:
//   - error: gorm.ErrRecordNotFound if the job is missing, domain.ErrJobNotPending if it
//     already left pending.
func (r *JobRepository) MarkProcessing(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Model(&domain.ImportJob{}).
		Where("id = ? AND status = ?", id, domain.JobStatusPending).
		Updates(map[string]interface{}{
			"status":     domain.JobStatusProcessing,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to claim import job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return domain.ErrJobNotPending
	}
	return nil
}

// UpdateProgress raises percent_complete of a processing job. Progress never moves back.
func (r *JobRepository) UpdateProgress(ctx context.Context, id string, percent int) error {
	return r.db.WithContext(ctx).Model(&domain.ImportJob{}).
		Where("id = ? AND status = ? AND percent_complete < ?", id, domain.JobStatusProcessing, percent).
		Updates(map[string]interface{}{
			"percent_complete": percent,
			"updated_at":       time.Now(),
		}).Error
}

// Finish writes the terminal state of a processing job.
func (r *JobRepository) Finish(ctx context.Context, id string, outcome *domain.JobOutcome) error {
	var errMsg *string
	if outcome.ErrorMessage != "" {
		msg := domain.TruncateReason(outcome.ErrorMessage)
		errMsg = &msg
	}
	sheetCounts := outcome.SheetCounts
	if sheetCounts == nil {
		sheetCounts = domain.SheetCounts{}
	}

	result := r.db.WithContext(ctx).Model(&domain.ImportJob{}).
		Where("id = ? AND status = ?", id, domain.JobStatusProcessing).
		Updates(map[string]interface{}{
			"status":           outcome.Status,
			"percent_complete": outcome.PercentComplete,
			"processed_rows":   outcome.ProcessedRows,
			"failed_rows":      outcome.FailedRows,
			"sheet_counts":     sheetCounts,
			"error_message":    errMsg,
			"completed_at":     outcome.CompletedAt,
			"updated_at":       time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("import job %s is not processing", id)
	}
	return nil
}

// IsCancelRequested reports whether cancellation was requested for the job.
func (r *JobRepository) IsCancelRequested(ctx context.Context, id string) (bool, error) {
	var job domain.ImportJob
	err := r.db.WithContext(ctx).Select("cancel_requested").First(&job, "id = ?", id).Error
	if err != nil {
		return false, err
	}
	return job.CancelRequested, nil
}

// RequestCancel flags a pending or processing job for cancellation.
// Returns:
//   - error: gorm.ErrRecordNotFound if missing, domain.ErrJobFinished if already terminal.
func (r *JobRepository) RequestCancel(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Model(&domain.ImportJob{}).
		Where("id = ? AND status IN ?", id, []domain.JobStatus{domain.JobStatusPending, domain.JobStatusProcessing}).
		Updates(map[string]interface{}{
			"cancel_requested": true,
			"updated_at":       time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return domain.ErrJobFinished
	}
	return nil
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
