package domain

import "time"

// SheetState is the lifecycle state of one sheet within a job.
type SheetState string

const (
	SheetPending    SheetState = "pending"
	SheetSkipped    SheetState = "skipped"
	SheetProcessing SheetState = "processing"
	SheetCompleted  SheetState = "completed"
	SheetError      SheetState = "error"
)

// IsTerminal reports whether the sheet has reached skipped, completed or error.
func (s SheetState) IsTerminal() bool {
	return s == SheetSkipped || s == SheetCompleted || s == SheetError
}

// CanTransition reports whether moving from s to next is a forward transition.
func (s SheetState) CanTransition(next SheetState) bool {
	switch s {
	case SheetPending:
		return next == SheetProcessing || next == SheetSkipped || next == SheetError
	case SheetProcessing:
		return next == SheetCompleted || next == SheetError
	default:
		return false
	}
}

// TerminalSheetStates lists the states that must never be overwritten.
var TerminalSheetStates = []string{string(SheetSkipped), string(SheetCompleted), string(SheetError)}

// SheetStatus is the audit record for one (job, sheet) pair.
type SheetStatus struct {
	ID            string     `gorm:"type:text;primaryKey" json:"id"`
	JobID         string     `gorm:"type:text;not null;uniqueIndex:idx_sheet_statuses_job_sheet" json:"job_id"`
	SheetName     string     `gorm:"type:text;not null;uniqueIndex:idx_sheet_statuses_job_sheet" json:"sheet_name"`
	Position      int        `gorm:"default:0" json:"position"`
	Status        SheetState `gorm:"type:text;default:pending" json:"status"`
	TotalRows     int        `gorm:"default:0" json:"total_rows"`
	TotalChunks   int        `gorm:"default:0" json:"total_chunks"`
	TargetTable   string     `gorm:"type:text" json:"target_table"`
	ProcessedRows int        `gorm:"default:0" json:"processed_rows"`
	FailedRows    int        `gorm:"default:0" json:"failed_rows"`
	Note          string     `gorm:"type:text" json:"note,omitempty"`
	ErrorMessage  *string    `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName returns the database table name for SheetStatus.
func (SheetStatus) TableName() string {
	return "sheet_statuses"
}
