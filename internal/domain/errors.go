package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrJobNotPending is returned when a job cannot be claimed because it already left pending.
	ErrJobNotPending = errors.New("import job is not pending")
	// ErrJobFinished is returned when a terminal job is asked to change.
	ErrJobFinished = errors.New("import job already finished")
	// ErrTemplateNotFound is returned when a job references a template that does not exist.
	ErrTemplateNotFound = errors.New("mapping template not found")
)

// DecodeError reports a malformed or ambiguous workbook. Job-fatal.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to decode workbook: %s: %v", e.Reason, e.Err)
	}
	return "failed to decode workbook: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TemplateResolutionError reports a malformed template entry for one sheet. Sheet-fatal.
type TemplateResolutionError struct {
	Sheet  string
	Reason string
}

func (e *TemplateResolutionError) Error() string {
	return fmt.Sprintf("invalid template mapping for sheet %q: %s", e.Sheet, e.Reason)
}

// ChunkWriteError reports a staging write that failed after the retry budget. Sheet-fatal.
type ChunkWriteError struct {
	Sheet      string
	ChunkIndex int
	Attempts   int
	Err        error
}

func (e *ChunkWriteError) Error() string {
	return fmt.Sprintf("failed to write chunk %d of sheet %q after %d attempts: %v", e.ChunkIndex, e.Sheet, e.Attempts, e.Err)
}

func (e *ChunkWriteError) Unwrap() error { return e.Err }

// DownstreamProcessingError reports a failure of the downstream sheet processor. Sheet-fatal.
type DownstreamProcessingError struct {
	Sheet string
	Err   error
}

func (e *DownstreamProcessingError) Error() string {
	return fmt.Sprintf("downstream processing failed for sheet %q: %v", e.Sheet, e.Err)
}

func (e *DownstreamProcessingError) Unwrap() error { return e.Err }

// JobNotFoundError is returned before any processing when the job id is unknown. Job-fatal.
type JobNotFoundError struct {
	JobID string
}

func (e *JobNotFoundError) Error() string {
	return fmt.Sprintf("import job %s not found", e.JobID)
}

// IsSheetFatal reports whether err should fail one sheet without aborting the job.
func IsSheetFatal(err error) bool {
	var (
		tmplErr  *TemplateResolutionError
		chunkErr *ChunkWriteError
		downErr  *DownstreamProcessingError
	)
	return errors.As(err, &tmplErr) || errors.As(err, &chunkErr) || errors.As(err, &downErr)
}

const maxReasonLen = 1000

// TruncateReason trims an error message to the length stored on job and sheet rows.
func TruncateReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if len(reason) <= maxReasonLen {
		return reason
	}
	return reason[:maxReasonLen]
}
