package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/portfoliolens/sheetload/internal/domain"
)

func TestSheetTrackerLifecycle(t *testing.T) {
	store := newFakeSheetStore()
	tracker := NewSheetTracker("job-1", store)
	ctx := context.Background()

	if err := tracker.Register(ctx, "Loans", 0); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := tracker.Register(ctx, "Loans", 0); err != nil {
		t.Fatalf("second Register() error = %v", err)
	}
	if err := tracker.Begin(ctx, "Loans"); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := tracker.RecordTotals(ctx, "Loans", 10, 2, "ln_loans"); err != nil {
		t.Fatalf("RecordTotals() error = %v", err)
	}
	if err := tracker.Complete(ctx, "Loans", 9, 1); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	got, _ := store.get("job-1", "Loans")
	if got.Status != domain.SheetCompleted || got.ProcessedRows != 9 || got.FailedRows != 1 || got.TotalChunks != 2 {
		t.Errorf("unexpected stored status %+v", got)
	}
	if got.StartedAt == nil || got.CompletedAt == nil {
		t.Errorf("timestamps not set: %+v", got)
	}

	// Terminal records ignore later updates.
	if err := tracker.Fail(ctx, "Loans", errors.New("late failure")); err != nil {
		t.Fatalf("Fail() on terminal sheet error = %v", err)
	}
	if s, _ := tracker.Get("Loans"); s.Status != domain.SheetCompleted || s.ErrorMessage != nil {
		t.Errorf("terminal sheet changed: %+v", s)
	}
}

func TestSheetTrackerRejectsInvalidTransitions(t *testing.T) {
	tracker := NewSheetTracker("job-1", newFakeSheetStore())
	ctx := context.Background()

	if err := tracker.Begin(ctx, "Unknown"); err == nil {
		t.Errorf("expected error for unregistered sheet")
	}
	tracker.Register(ctx, "Loans", 0)
	if err := tracker.Complete(ctx, "Loans", 1, 0); err == nil || !strings.Contains(err.Error(), "invalid transition") {
		t.Errorf("pending -> completed should be rejected, got %v", err)
	}
	if s, _ := tracker.Get("Loans"); s.Status != domain.SheetPending {
		t.Errorf("status changed after rejected transition: %s", s.Status)
	}
}

func TestSheetTrackerFailCountsAllRows(t *testing.T) {
	tracker := NewSheetTracker("job-1", newFakeSheetStore())
	ctx := context.Background()
	tracker.Register(ctx, "Loans", 0)
	tracker.Begin(ctx, "Loans")
	tracker.RecordTotals(ctx, "Loans", 7, 1, "ln_loans")

	long := strings.Repeat("x", 2000)
	if err := tracker.Fail(ctx, "Loans", errors.New(long)); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}
	s, _ := tracker.Get("Loans")
	if s.Status != domain.SheetError || s.FailedRows != 7 || s.ProcessedRows != 0 {
		t.Errorf("unexpected status %+v", s)
	}
	if s.ErrorMessage == nil || len(*s.ErrorMessage) != 1000 {
		t.Errorf("error message should be truncated to 1000 bytes")
	}
}

func TestSheetTrackerKeepsStateWhenSaveFails(t *testing.T) {
	store := newFakeSheetStore()
	tracker := NewSheetTracker("job-1", store)
	ctx := context.Background()
	tracker.Register(ctx, "Loans", 0)

	store.failAt = 2
	if err := tracker.Begin(ctx, "Loans"); err == nil {
		t.Fatalf("expected save error")
	}
	if s, _ := tracker.Get("Loans"); s.Status != domain.SheetPending {
		t.Errorf("in-memory state advanced without being persisted: %s", s.Status)
	}
}

func TestSheetTrackerSkipAndSnapshotOrder(t *testing.T) {
	tracker := NewSheetTracker("job-1", newFakeSheetStore())
	ctx := context.Background()
	for i, name := range []string{"C", "A", "B"} {
		tracker.Register(ctx, name, i)
	}
	if err := tracker.Skip(ctx, "A"); err != nil {
		t.Fatalf("Skip() error = %v", err)
	}

	snap := tracker.Snapshot()
	if len(snap) != 3 || snap[0].SheetName != "C" || snap[1].SheetName != "A" || snap[2].SheetName != "B" {
		t.Errorf("snapshot not in registration order: %+v", snap)
	}
	if snap[1].Status != domain.SheetSkipped || snap[1].TotalRows != 0 {
		t.Errorf("unexpected skipped record %+v", snap[1])
	}
}
