package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/portfoliolens/sheetload/internal/chunk"
	"github.com/portfoliolens/sheetload/internal/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StagingRepository is the staging sink: one row per chunk, rows stored as JSON.
type StagingRepository struct {
	db *gorm.DB
}

// NewStagingRepository creates a new StagingRepository.
// Parameters:
//   - db: GORM database handle used for queries.
//
// Returns:
//   - *StagingRepository: repository instance bound to db.
func NewStagingRepository(db *gorm.DB) *StagingRepository {
	return &StagingRepository{db: db}
}

// WriteChunk stores one chunk. Writing the same (job, sheet, index) again replaces it,
// so a retried write never duplicates rows.
func (r *StagingRepository) WriteChunk(ctx context.Context, c chunk.Chunk) error {
	payload, err := json.Marshal(c.Rows)
	if err != nil {
		return fmt.Errorf("failed to encode chunk rows: %w", err)
	}
	now := time.Now()
	staged := &domain.StagedChunk{
		JobID:       c.JobID,
		SheetName:   c.SheetName,
		ChunkIndex:  c.Index,
		TargetTable: c.TargetTable,
		TotalChunks: c.Total,
		RowCount:    c.RowCount(),
		Rows:        datatypes.JSON(payload),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}, {Name: "sheet_name"}, {Name: "chunk_index"}},
		DoUpdates: clause.AssignmentColumns([]string{"target_table", "total_chunks", "row_count", "rows", "updated_at"}),
	}).Create(staged).Error
}

// CountRows sums the staged rows of one sheet.
func (r *StagingRepository) CountRows(ctx context.Context, jobID, sheet string) (int, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&domain.StagedChunk{}).
		Where("job_id = ? AND sheet_name = ?", jobID, sheet).
		Select("COALESCE(SUM(row_count), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count staged rows: %w", err)
	}
	return int(total), nil
}

// ListChunks returns the staged chunks of one sheet ordered by index.
func (r *StagingRepository) ListChunks(ctx context.Context, jobID, sheet string) ([]domain.StagedChunk, error) {
	var chunks []domain.StagedChunk
	err := r.db.WithContext(ctx).
		Where("job_id = ? AND sheet_name = ?", jobID, sheet).
		Order("chunk_index ASC").
		Find(&chunks).Error
	return chunks, err
}
