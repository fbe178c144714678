package domain

import (
	"time"

	"gorm.io/datatypes"
)

// StagedChunk is the staging-sink row for one chunk of one sheet.
// (job_id, sheet_name, chunk_index) is unique; writes upsert on it.
type StagedChunk struct {
	ID          uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID       string         `gorm:"type:text;not null;uniqueIndex:idx_staged_chunks_key" json:"job_id"`
	SheetName   string         `gorm:"type:text;not null;uniqueIndex:idx_staged_chunks_key" json:"sheet_name"`
	ChunkIndex  int            `gorm:"not null;uniqueIndex:idx_staged_chunks_key" json:"chunk_index"`
	TargetTable string         `gorm:"type:text;index" json:"target_table"`
	TotalChunks int            `gorm:"not null" json:"total_chunks"`
	RowCount    int            `gorm:"not null" json:"row_count"`
	Rows        datatypes.JSON `json:"rows"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TableName returns the database table name for StagedChunk.
func (StagedChunk) TableName() string {
	return "staged_chunks"
}

// ImportLog is the completion record written once per finished job.
type ImportLog struct {
	ID        string      `gorm:"type:text;primaryKey" json:"id"`
	JobID     string      `gorm:"type:text;not null;index" json:"job_id"`
	Status    JobStatus   `gorm:"type:text" json:"status"`
	Processed int         `json:"processed"`
	Failed    int         `json:"failed"`
	Sheets    SheetCounts `gorm:"type:text" json:"sheets"`
	Message   string      `gorm:"type:text" json:"message,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// TableName returns the database table name for ImportLog.
func (ImportLog) TableName() string {
	return "import_logs"
}
