package repository

import (
	"context"

	"github.com/portfoliolens/sheetload/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SheetStatusRepository handles per-sheet status records.
type SheetStatusRepository struct {
	db *gorm.DB
}

// NewSheetStatusRepository creates a new SheetStatusRepository.
// Parameters:
//   - db: GORM database handle used for queries.
//
// Returns:
//   - *SheetStatusRepository: repository instance bound to db.
func NewSheetStatusRepository(db *gorm.DB) *SheetStatusRepository {
	return &SheetStatusRepository{db: db}
}

// Save upserts the record keyed by (job_id, sheet_name).
// A row already in skipped, completed or error is left untouched.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - status: the full record to persist.
//
// Returns:
//   - error: non-nil if the upsert fails.
func (r *SheetStatusRepository) Save(ctx context.Context, status *domain.SheetStatus) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "job_id"}, {Name: "sheet_name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "total_rows", "total_chunks", "target_table",
			"processed_rows", "failed_rows", "note", "error_message",
			"started_at", "completed_at", "updated_at",
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "sheet_statuses.status NOT IN ?", Vars: []interface{}{domain.TerminalSheetStates}},
		}},
	}).Create(status).Error
}

// ListByJob returns the sheet records of a job in workbook order.
func (r *SheetStatusRepository) ListByJob(ctx context.Context, jobID string) ([]domain.SheetStatus, error) {
	var statuses []domain.SheetStatus
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("position ASC").
		Find(&statuses).Error
	return statuses, err
}
