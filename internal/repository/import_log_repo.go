package repository

import (
	"context"

	"github.com/portfoliolens/sheetload/internal/domain"
	"gorm.io/gorm"
)

// ImportLogRepository stores job completion records.
type ImportLogRepository struct {
	db *gorm.DB
}

// NewImportLogRepository creates a new ImportLogRepository.
func NewImportLogRepository(db *gorm.DB) *ImportLogRepository {
	return &ImportLogRepository{db: db}
}

// Record inserts a completion record.
func (r *ImportLogRepository) Record(ctx context.Context, entry *domain.ImportLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListByJob returns the completion records of a job, newest first.
func (r *ImportLogRepository) ListByJob(ctx context.Context, jobID string) ([]domain.ImportLog, error) {
	var logs []domain.ImportLog
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at DESC").
		Find(&logs).Error
	return logs, err
}
