package service

import (
	"fmt"

	"github.com/portfoliolens/sheetload/internal/domain"
)

// sheetOutcome is the terminal result of one sheet, folded into a tally in workbook order.
type sheetOutcome struct {
	Sheet       string
	Status      domain.SheetState
	TargetTable string
	TotalRows   int
	TotalChunks int
	Processed   int
	Failed      int
	Note        string
	Err         error
}

// tally accumulates job-level counts. It is a value: add returns the updated copy.
type tally struct {
	processed     int
	failed        int
	totalRows     int
	sheets        int
	erroredSheets int
	breakdown     domain.SheetCounts
}

func (t tally) add(o sheetOutcome) tally {
	count := domain.SheetCount{Sheet: o.Sheet, Status: string(o.Status)}
	if o.Status == domain.SheetSkipped {
		t.breakdown = append(append(domain.SheetCounts{}, t.breakdown...), count)
		return t
	}

	t.sheets++
	t.totalRows += o.TotalRows
	switch o.Status {
	case domain.SheetCompleted:
		processed, failed := clampCounts(o.Processed, o.Failed, o.TotalRows)
		count.Processed, count.Failed = processed, failed
	case domain.SheetError:
		t.erroredSheets++
		count.Failed = o.TotalRows
		if o.Err != nil {
			count.Error = domain.TruncateReason(o.Err.Error())
		}
	}
	t.processed += count.Processed
	t.failed += count.Failed
	t.breakdown = append(append(domain.SheetCounts{}, t.breakdown...), count)
	return t
}

// clampCounts keeps downstream counts within the sheet's row total.
func clampCounts(processed, failed, total int) (int, int) {
	processed = max(0, min(processed, total))
	failed = max(0, min(failed, total-processed))
	return processed, failed
}

func (t tally) hasFailures() bool {
	return t.failed > 0 || t.erroredSheets > 0
}

// status is error only when nothing was processed and something failed.
func (t tally) status() domain.JobStatus {
	if t.processed == 0 && t.hasFailures() {
		return domain.JobStatusError
	}
	return domain.JobStatusCompleted
}

func (t tally) summary() string {
	return fmt.Sprintf("Processed %d rows, %d failed across %d sheets", t.processed, t.failed, t.sheets)
}

// message is the job error text; empty when nothing failed.
func (t tally) message() string {
	if !t.hasFailures() {
		return ""
	}
	return t.summary()
}
