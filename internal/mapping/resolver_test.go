package mapping

import (
	"errors"
	"strings"
	"testing"

	"github.com/portfoliolens/sheetload/internal/domain"
)

func TestNormalize(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple", input: "Loans", want: "loans"},
		{name: "spaces", input: "Pmt Hist", want: "pmt_hist"},
		{name: "empty", input: "", want: ""},
		{name: "sql injection", input: "Loans; DROP TABLE x;--", want: "loans__drop_table_x___"},
		{name: "quotes", input: `a"b'c`, want: "a_b_c"},
		{name: "unicode one underscore per rune", input: "Prêt", want: "pr_t"},
		{name: "cjk", input: "贷款", want: "__"},
		{name: "digits and underscore kept", input: "2024_Q1", want: "2024_q1"},
		{name: "dots and dashes", input: "loan-tape.v2", want: "loan_tape_v2"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Normalize(tc.input)
			if got != tc.want {
				t.Errorf("Normalize(%q) = %q, want %q", tc.input, got, tc.want)
			}
			for _, r := range got {
				if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_') {
					t.Errorf("Normalize(%q) produced illegal rune %q", tc.input, r)
				}
			}
		})
	}
}

func TestResolveDefault(t *testing.T) {
	r := NewResolver("ln_")

	plan, err := r.Resolve("Loans", nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if plan.Skip {
		t.Errorf("default plan must not skip")
	}
	if plan.TargetTable != "ln_loans" {
		t.Errorf("TargetTable = %q, want ln_loans", plan.TargetTable)
	}
	if d := plan.Decision("Anything"); d.Action != Keep {
		t.Errorf("default column decision = %s, want keep", d.Action)
	}
	if plan.FromTemplate {
		t.Errorf("default plan should not be marked as from template")
	}
}

func TestResolveDefaultAlwaysPrefixes(t *testing.T) {
	testCases := []struct {
		sheet string
		want  string
	}{
		{"ln_data", "ln_ln_data"},
		{"Data", "ln_data"},
		{" Loans ", "ln__loans_"},
		{"LN_Tape", "ln_ln_tape"},
	}
	r := NewResolver("ln_")
	for _, tc := range testCases {
		t.Run(tc.sheet, func(t *testing.T) {
			plan, err := r.Resolve(tc.sheet, nil)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if plan.TargetTable != tc.want {
				t.Errorf("TargetTable = %q, want %q", plan.TargetTable, tc.want)
			}
		})
	}
}

func TestResolveTemplateRename(t *testing.T) {
	tmpl := &domain.MappingTemplate{
		ID: "t1",
		SheetMappings: domain.SheetMappings{
			{
				OriginalName: "Pmt Hist",
				MappedName:   "payments",
				Columns: []domain.ColumnMapping{
					{OriginalName: "Amt", MappedName: "amount"},
					{OriginalName: "Notes", Skip: true},
					{OriginalName: "Loan ID", MappedName: "Loan ID"},
				},
			},
		},
	}
	r := NewResolver("ln_")

	plan, err := r.Resolve("Pmt Hist", tmpl)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if plan.TargetTable != "ln_payments" {
		t.Errorf("TargetTable = %q, want ln_payments", plan.TargetTable)
	}
	if d := plan.Decision("Amt"); d.Action != Rename || d.Name != "amount" {
		t.Errorf("Amt decision = %+v, want rename to amount", d)
	}
	if d := plan.Decision("Notes"); d.Action != Drop {
		t.Errorf("Notes decision = %+v, want drop", d)
	}
	if d := plan.Decision("Loan ID"); d.Action != Keep {
		t.Errorf("Loan ID decision = %+v, want keep", d)
	}

	// Sheets without an entry still get the default plan.
	other, err := r.Resolve("Loans", tmpl)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if other.TargetTable != "ln_loans" || other.FromTemplate {
		t.Errorf("unexpected plan for unmapped sheet: %+v", other)
	}
}

func TestResolvePrefixNotDoubled(t *testing.T) {
	tmpl := &domain.MappingTemplate{SheetMappings: domain.SheetMappings{
		{OriginalName: "Pmt Hist", MappedName: "ln_payments"},
	}}
	plan, err := NewResolver("ln_").Resolve("Pmt Hist", tmpl)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if plan.TargetTable != "ln_payments" {
		t.Errorf("TargetTable = %q, want ln_payments", plan.TargetTable)
	}
}

func TestResolveSkipWins(t *testing.T) {
	tmpl := &domain.MappingTemplate{SheetMappings: domain.SheetMappings{
		{OriginalName: "Notes", MappedName: "notes_table", Skip: true,
			Columns: []domain.ColumnMapping{{OriginalName: ""}}},
	}}
	plan, err := NewResolver("ln_").Resolve("Notes", tmpl)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !plan.Skip {
		t.Errorf("expected skip plan")
	}
}

func TestResolveMalformedTemplate(t *testing.T) {
	testCases := []struct {
		name    string
		entries domain.SheetMappings
	}{
		{
			name: "duplicate sheet entries",
			entries: domain.SheetMappings{
				{OriginalName: "Loans"},
				{OriginalName: "Loans", MappedName: "other"},
			},
		},
		{
			name: "column without original name",
			entries: domain.SheetMappings{
				{OriginalName: "Loans", Columns: []domain.ColumnMapping{{MappedName: "x"}}},
			},
		},
		{
			name: "duplicate column rule",
			entries: domain.SheetMappings{
				{OriginalName: "Loans", Columns: []domain.ColumnMapping{
					{OriginalName: "Amt", MappedName: "a"},
					{OriginalName: "Amt", MappedName: "b"},
				}},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewResolver("ln_").Resolve("Loans", &domain.MappingTemplate{SheetMappings: tc.entries})
			var resErr *domain.TemplateResolutionError
			if !errors.As(err, &resErr) {
				t.Fatalf("expected TemplateResolutionError, got %v", err)
			}
			if resErr.Sheet != "Loans" {
				t.Errorf("error sheet = %q, want Loans", resErr.Sheet)
			}
		})
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	tmpl := &domain.MappingTemplate{SheetMappings: domain.SheetMappings{
		{OriginalName: "A", MappedName: "alpha", Columns: []domain.ColumnMapping{{OriginalName: "x", MappedName: "y"}}},
	}}
	r := NewResolver("ln_")
	first, _ := r.Resolve("A", tmpl)
	for i := 0; i < 10; i++ {
		next, _ := r.Resolve("A", tmpl)
		if next.TargetTable != first.TargetTable || next.Decision("x") != first.Decision("x") {
			t.Fatalf("resolution changed between calls: %+v vs %+v", first, next)
		}
	}
}

func TestTableNameTruncatesLongIdentifiers(t *testing.T) {
	table, err := NewResolver("ln_").TableName(strings.Repeat("a", 100))
	if err != nil {
		t.Fatalf("TableName() error = %v", err)
	}
	if len(table) != 63 || !strings.HasPrefix(table, "ln_") {
		t.Errorf("unexpected table %q (len %d)", table, len(table))
	}
}

func TestResolveSymbolOnlyNames(t *testing.T) {
	tmpl := &domain.MappingTemplate{SheetMappings: domain.SheetMappings{
		{OriginalName: "Loans", MappedName: "!!!"},
	}}
	plan, err := NewResolver("ln_").Resolve("Loans", tmpl)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if plan.TargetTable != "ln____" {
		t.Errorf("TargetTable = %q, want ln____", plan.TargetTable)
	}

	blank := &domain.MappingTemplate{SheetMappings: domain.SheetMappings{
		{OriginalName: "Loans", MappedName: "   "},
	}}
	plan, err = NewResolver("ln_").Resolve("Loans", blank)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if plan.TargetTable != "ln_loans" {
		t.Errorf("blank mappedName should fall back to the sheet name, got %q", plan.TargetTable)
	}
}

func TestDefaultRejectsEmptyName(t *testing.T) {
	_, err := NewResolver("").Default("")
	var resErr *domain.TemplateResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected TemplateResolutionError, got %v", err)
	}
}

func TestDefaultTruncatesLongSheetNames(t *testing.T) {
	plan, err := NewResolver("ln_").Default(strings.Repeat("b", 80))
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if len(plan.TargetTable) != 63 || !strings.HasPrefix(plan.TargetTable, "ln_b") {
		t.Errorf("unexpected table %q (len %d)", plan.TargetTable, len(plan.TargetTable))
	}
}
