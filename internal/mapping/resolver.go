// Package mapping resolves how a sheet is routed: skipped, or loaded into which target table
// with which column renames. Resolution is pure and deterministic.
package mapping

import (
	"fmt"
	"strings"

	"github.com/portfoliolens/sheetload/internal/domain"
)

// DefaultPrefix namespaces every derived table name.
const DefaultPrefix = "ln_"

// maxIdentifierLen is the PostgreSQL identifier limit in bytes.
const maxIdentifierLen = 63

// Action is what happens to one source column.
type Action int

const (
	Keep Action = iota
	Rename
	Drop
)

func (a Action) String() string {
	switch a {
	case Rename:
		return "rename"
	case Drop:
		return "drop"
	default:
		return "keep"
	}
}

// ColumnDecision is the tagged decision for one original column. Name is set for Rename only.
type ColumnDecision struct {
	Action Action
	Name   string
}

// SheetPlan is the routing decision for one sheet.
type SheetPlan struct {
	Skip         bool
	TargetTable  string
	Columns      map[string]ColumnDecision
	FromTemplate bool
}

// Decision returns the rule for column, defaulting to keep.
func (p SheetPlan) Decision(column string) ColumnDecision {
	if d, ok := p.Columns[column]; ok {
		return d
	}
	return ColumnDecision{Action: Keep}
}

// Normalize lowercases s and replaces every rune outside [a-z0-9_] with an underscore.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Resolver builds SheetPlans for a fixed storage prefix.
type Resolver struct {
	Prefix string
}

// NewResolver creates a resolver; an empty prefix falls back to DefaultPrefix.
func NewResolver(prefix string) Resolver {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Resolver{Prefix: Normalize(prefix)}
}

// TableName derives the target table for a template mappedName: trimmed, normalized, and
// prefixed unless the name already carries the prefix.
func (r Resolver) TableName(name string) (string, error) {
	normalized := Normalize(strings.TrimSpace(name))
	if normalized == "" {
		return "", fmt.Errorf("name %q is empty", name)
	}
	if !strings.HasPrefix(normalized, r.Prefix) {
		normalized = r.Prefix + normalized
	}
	return truncateIdentifier(normalized), nil
}

// Default returns the plan used when no template entry matches sheetName. The table is always
// Prefix + Normalize(sheetName), even when the sheet name already starts with the prefix.
func (r Resolver) Default(sheetName string) (SheetPlan, error) {
	if sheetName == "" {
		return SheetPlan{}, &domain.TemplateResolutionError{Sheet: sheetName, Reason: "sheet name is empty"}
	}
	table := truncateIdentifier(r.Prefix + Normalize(sheetName))
	return SheetPlan{TargetTable: table, Columns: map[string]ColumnDecision{}}, nil
}

func truncateIdentifier(name string) string {
	if len(name) > maxIdentifierLen {
		return name[:maxIdentifierLen]
	}
	return name
}

// Resolve determines the plan for sheetName under tmpl, which may be nil.
// Parameters:
//   - sheetName: original sheet name from the workbook.
//   - tmpl: optional mapping template.
// Returns:
//   - SheetPlan: skip flag, target table and column rules.
//   - error: *domain.TemplateResolutionError if the matching entry is malformed.
func (r Resolver) Resolve(sheetName string, tmpl *domain.MappingTemplate) (SheetPlan, error) {
	entry, err := findEntry(sheetName, tmpl)
	if err != nil {
		return SheetPlan{}, err
	}
	if entry == nil {
		return r.Default(sheetName)
	}
	if entry.Skip {
		return SheetPlan{Skip: true, Columns: map[string]ColumnDecision{}, FromTemplate: true}, nil
	}

	var table string
	if strings.TrimSpace(entry.MappedName) != "" {
		table, err = r.TableName(entry.MappedName)
		if err != nil {
			return SheetPlan{}, &domain.TemplateResolutionError{Sheet: sheetName, Reason: "mappedName " + err.Error()}
		}
	} else {
		def, err := r.Default(sheetName)
		if err != nil {
			return SheetPlan{}, err
		}
		table = def.TargetTable
	}

	columns, err := columnRules(sheetName, entry.Columns)
	if err != nil {
		return SheetPlan{}, err
	}
	return SheetPlan{TargetTable: table, Columns: columns, FromTemplate: true}, nil
}

func findEntry(sheetName string, tmpl *domain.MappingTemplate) (*domain.SheetMapping, error) {
	if tmpl == nil {
		return nil, nil
	}
	var found *domain.SheetMapping
	for i := range tmpl.SheetMappings {
		m := &tmpl.SheetMappings[i]
		if m.OriginalName != sheetName {
			continue
		}
		if found != nil {
			return nil, &domain.TemplateResolutionError{Sheet: sheetName, Reason: "sheet is mapped more than once"}
		}
		found = m
	}
	return found, nil
}

func columnRules(sheetName string, cols []domain.ColumnMapping) (map[string]ColumnDecision, error) {
	rules := make(map[string]ColumnDecision, len(cols))
	for _, c := range cols {
		original := strings.TrimSpace(c.OriginalName)
		if original == "" {
			return nil, &domain.TemplateResolutionError{Sheet: sheetName, Reason: "column rule without originalName"}
		}
		if _, dup := rules[original]; dup {
			return nil, &domain.TemplateResolutionError{Sheet: sheetName, Reason: fmt.Sprintf("column %q is mapped more than once", original)}
		}

		mapped := strings.TrimSpace(c.MappedName)
		switch {
		case c.Skip:
			rules[original] = ColumnDecision{Action: Drop}
		case mapped != "" && mapped != original:
			rules[original] = ColumnDecision{Action: Rename, Name: mapped}
		default:
			rules[original] = ColumnDecision{Action: Keep}
		}
	}
	return rules, nil
}
