package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JobStatus represents the status of an import job.
// Values include JobStatusPending, JobStatusProcessing, JobStatusCompleted, and JobStatusError.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
)

// IsTerminal reports whether no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// SheetCount is the per-sheet row breakdown stored on a job.
type SheetCount struct {
	Sheet     string `json:"sheet"`
	Status    string `json:"status"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

// SheetCounts is a custom type for storing the per-sheet breakdown as JSON in the database.
type SheetCounts []SheetCount

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the slice.
//   - error: non-nil if marshaling fails.
func (c SheetCounts) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (c *SheetCounts) Scan(value interface{}) error {
	if value == nil {
		*c = SheetCounts{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan SheetCounts")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, c)
}

// ImportJob is one end-to-end import run over a single uploaded workbook.
// CancelRequested is the only field written by actors other than the coordinator.
type ImportJob struct {
	ID              string      `gorm:"type:text;primaryKey" json:"id"`
	TemplateID      *string     `gorm:"type:text;index" json:"template_id,omitempty"`
	SourcePath      string      `gorm:"type:text;not null" json:"source_path"`
	Status          JobStatus   `gorm:"type:text;index:idx_import_jobs_status;default:pending" json:"status"`
	PercentComplete int         `gorm:"default:0" json:"percent_complete"`
	ProcessedRows   int         `gorm:"default:0" json:"processed_rows"`
	FailedRows      int         `gorm:"default:0" json:"failed_rows"`
	SheetCounts     SheetCounts `gorm:"type:text" json:"sheet_counts"`
	ErrorMessage    *string     `gorm:"type:text" json:"error_message,omitempty"`
	CancelRequested bool        `gorm:"default:false" json:"cancel_requested"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
}

// TableName returns the database table name for ImportJob.
func (ImportJob) TableName() string {
	return "import_jobs"
}

// JobOutcome is the terminal state written once all sheets are done.
type JobOutcome struct {
	Status          JobStatus
	PercentComplete int
	ProcessedRows   int
	FailedRows      int
	SheetCounts     SheetCounts
	ErrorMessage    string
	CompletedAt     time.Time
}
