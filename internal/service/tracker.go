package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/portfoliolens/sheetload/internal/domain"
)

// NoteSheetEmpty is recorded on sheets completed without any data rows.
const NoteSheetEmpty = "Sheet is empty"

// SheetStatusStore persists sheet status records.
type SheetStatusStore interface {
	Save(ctx context.Context, status *domain.SheetStatus) error
}

// SheetTracker drives the per-sheet state machine for one job and persists every transition.
// Calls made after a sheet reached a terminal state are no-ops.
type SheetTracker struct {
	mu     sync.Mutex
	jobID  string
	store  SheetStatusStore
	sheets map[string]*domain.SheetStatus
	order  []string
	now    func() time.Time
}

// NewSheetTracker creates a tracker for jobID.
func NewSheetTracker(jobID string, store SheetStatusStore) *SheetTracker {
	return &SheetTracker{
		jobID:  jobID,
		store:  store,
		sheets: make(map[string]*domain.SheetStatus),
		now:    time.Now,
	}
}

// Register creates the pending record for a sheet the first time it is encountered.
func (t *SheetTracker) Register(ctx context.Context, sheet string, position int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sheets[sheet]; ok {
		return nil
	}
	now := t.now()
	status := &domain.SheetStatus{
		ID:        uuid.New().String(),
		JobID:     t.jobID,
		SheetName: sheet,
		Position:  position,
		Status:    domain.SheetPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.store.Save(ctx, status); err != nil {
		return fmt.Errorf("failed to register sheet %q: %w", sheet, err)
	}
	t.sheets[sheet] = status
	t.order = append(t.order, sheet)
	return nil
}

// Begin moves the sheet from pending to processing.
func (t *SheetTracker) Begin(ctx context.Context, sheet string) error {
	return t.update(ctx, sheet, func(s *domain.SheetStatus, now time.Time) error {
		if err := transition(s, domain.SheetProcessing); err != nil {
			return err
		}
		s.StartedAt = &now
		return nil
	})
}

// Skip marks the sheet as skipped with zero rows.
func (t *SheetTracker) Skip(ctx context.Context, sheet string) error {
	return t.update(ctx, sheet, func(s *domain.SheetStatus, now time.Time) error {
		if err := transition(s, domain.SheetSkipped); err != nil {
			return err
		}
		s.TotalRows = 0
		s.TotalChunks = 0
		s.CompletedAt = &now
		return nil
	})
}

// RecordTotals stores the row and chunk totals and the resolved target table.
func (t *SheetTracker) RecordTotals(ctx context.Context, sheet string, totalRows, totalChunks int, targetTable string) error {
	return t.update(ctx, sheet, func(s *domain.SheetStatus, _ time.Time) error {
		s.TotalRows = totalRows
		s.TotalChunks = totalChunks
		s.TargetTable = targetTable
		return nil
	})
}

// Complete marks a processing sheet completed with the downstream counts.
func (t *SheetTracker) Complete(ctx context.Context, sheet string, processed, failed int) error {
	return t.update(ctx, sheet, func(s *domain.SheetStatus, now time.Time) error {
		if err := transition(s, domain.SheetCompleted); err != nil {
			return err
		}
		s.ProcessedRows = processed
		s.FailedRows = failed
		s.CompletedAt = &now
		return nil
	})
}

// CompleteEmpty completes a processing sheet that has no data rows.
func (t *SheetTracker) CompleteEmpty(ctx context.Context, sheet string) error {
	return t.update(ctx, sheet, func(s *domain.SheetStatus, now time.Time) error {
		if err := transition(s, domain.SheetCompleted); err != nil {
			return err
		}
		s.Note = NoteSheetEmpty
		s.CompletedAt = &now
		return nil
	})
}

// Fail marks the sheet as errored. All of its rows count as failed.
func (t *SheetTracker) Fail(ctx context.Context, sheet string, cause error) error {
	return t.update(ctx, sheet, func(s *domain.SheetStatus, now time.Time) error {
		if err := transition(s, domain.SheetError); err != nil {
			return err
		}
		msg := "unknown error"
		if cause != nil {
			msg = domain.TruncateReason(cause.Error())
		}
		s.ErrorMessage = &msg
		s.ProcessedRows = 0
		s.FailedRows = s.TotalRows
		s.CompletedAt = &now
		return nil
	})
}

// Get returns a copy of the sheet's current record.
func (t *SheetTracker) Get(sheet string) (domain.SheetStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sheets[sheet]
	if !ok {
		return domain.SheetStatus{}, false
	}
	return *s, true
}

// Snapshot returns copies of all records in registration order.
func (t *SheetTracker) Snapshot() []domain.SheetStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.SheetStatus, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, *t.sheets[name])
	}
	return out
}

// update applies fn to a copy of the record and keeps the change only once it is persisted.
func (t *SheetTracker) update(ctx context.Context, sheet string, fn func(*domain.SheetStatus, time.Time) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.sheets[sheet]
	if !ok {
		return fmt.Errorf("sheet %q is not registered", sheet)
	}
	if current.Status.IsTerminal() {
		return nil
	}

	next := *current
	now := t.now()
	if err := fn(&next, now); err != nil {
		return err
	}
	next.UpdatedAt = now
	if err := t.store.Save(ctx, &next); err != nil {
		return fmt.Errorf("failed to save status of sheet %q: %w", sheet, err)
	}
	*current = next
	return nil
}

func transition(s *domain.SheetStatus, next domain.SheetState) error {
	if !s.Status.CanTransition(next) {
		return fmt.Errorf("invalid transition for sheet %q: %s -> %s", s.SheetName, s.Status, next)
	}
	s.Status = next
	return nil
}
