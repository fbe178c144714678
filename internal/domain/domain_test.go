package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSheetStateTransitions(t *testing.T) {
	testCases := []struct {
		from SheetState
		to   SheetState
		want bool
	}{
		{SheetPending, SheetProcessing, true},
		{SheetPending, SheetSkipped, true},
		{SheetPending, SheetError, true},
		{SheetPending, SheetCompleted, false},
		{SheetProcessing, SheetCompleted, true},
		{SheetProcessing, SheetError, true},
		{SheetProcessing, SheetPending, false},
		{SheetProcessing, SheetSkipped, false},
		{SheetCompleted, SheetError, false},
		{SheetError, SheetProcessing, false},
		{SheetSkipped, SheetProcessing, false},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%s_to_%s", tc.from, tc.to), func(t *testing.T) {
			if got := tc.from.CanTransition(tc.to); got != tc.want {
				t.Errorf("CanTransition() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsSheetFatal(t *testing.T) {
	cause := errors.New("boom")
	if !IsSheetFatal(fmt.Errorf("wrapped: %w", &ChunkWriteError{Sheet: "A", Err: cause})) {
		t.Errorf("ChunkWriteError should be sheet-fatal")
	}
	if !IsSheetFatal(&DownstreamProcessingError{Sheet: "A", Err: cause}) {
		t.Errorf("DownstreamProcessingError should be sheet-fatal")
	}
	if !IsSheetFatal(&TemplateResolutionError{Sheet: "A", Reason: "bad"}) {
		t.Errorf("TemplateResolutionError should be sheet-fatal")
	}
	if IsSheetFatal(&DecodeError{Reason: "corrupt", Err: cause}) {
		t.Errorf("DecodeError must be job-fatal")
	}
	if IsSheetFatal(&JobNotFoundError{JobID: "x"}) {
		t.Errorf("JobNotFoundError must be job-fatal")
	}
}

func TestDecodeErrorUnwrap(t *testing.T) {
	cause := errors.New("zip: not a valid zip file")
	err := &DecodeError{Reason: "not a workbook", Err: cause}
	if !errors.Is(err, cause) {
		t.Errorf("expected DecodeError to unwrap to cause")
	}
	if !strings.Contains(err.Error(), "zip: not a valid zip file") {
		t.Errorf("expected message to carry cause, got %q", err.Error())
	}
}

func TestTruncateReason(t *testing.T) {
	long := strings.Repeat("x", 1500)
	if got := TruncateReason(long); len(got) != 1000 {
		t.Errorf("len = %d, want 1000", len(got))
	}
	if got := TruncateReason("  short  "); got != "short" {
		t.Errorf("got %q, want %q", got, "short")
	}
}
