// Package rows projects decoded sheet grids into row objects keyed by output column name.
package rows

import (
	"bytes"
	"encoding/json"
	"iter"
	"strconv"

	"github.com/portfoliolens/sheetload/internal/mapping"
	"github.com/portfoliolens/sheetload/internal/workbook"
)

// Row is one materialized row. Columns and Values are parallel and follow header order.
type Row struct {
	Columns []string
	Values  []workbook.Cell
}

// Get returns the value stored under column.
func (r Row) Get(column string) (workbook.Cell, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return workbook.Cell{}, false
}

// Map returns the row as a plain map. Key order is lost; use Columns for ordering.
func (r Row) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(r.Columns))
	for i, c := range r.Columns {
		m[c] = r.Values[i].Value()
	}
	return m
}

// MarshalJSON writes the row as a JSON object with keys in column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := r.Values[i].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// projection maps an output column to its source position in the raw row.
type projection struct {
	name   string
	source int
}

// Sequence is a lazy, finite and restartable sequence of rows for one sheet.
type Sequence struct {
	columns []projection
	data    [][]workbook.Cell
}

// Materialize prepares the row sequence for a sheet under plan. Nothing is copied until the
// sequence is iterated, and the caller's slices are never modified.
// Parameters:
//   - header: trimmed header names aligned with data columns.
//   - data: raw data rows.
//   - plan: resolved column rules.
// Returns:
//   - Sequence: rows in source order with dropped columns removed and renames applied.
func Materialize(header []string, data [][]workbook.Cell, plan mapping.SheetPlan) Sequence {
	return Sequence{columns: project(header, plan), data: data}
}

func project(header []string, plan mapping.SheetPlan) []projection {
	cols := make([]projection, 0, len(header))
	taken := make(map[string]bool, len(header))
	for i, h := range header {
		if h == "" {
			continue
		}
		base := h
		switch d := plan.Decision(h); d.Action {
		case mapping.Drop:
			continue
		case mapping.Rename:
			base = d.Name
		}
		name := base
		for n := 2; taken[name]; n++ {
			name = base + "_" + strconv.Itoa(n)
		}
		taken[name] = true
		cols = append(cols, projection{name: name, source: i})
	}
	return cols
}

// Columns returns the output column names in order.
func (s Sequence) Columns() []string {
	names := make([]string, len(s.columns))
	for i, c := range s.columns {
		names[i] = c.name
	}
	return names
}

// All yields every non-blank row. Each call starts from the first row.
func (s Sequence) All() iter.Seq[Row] {
	return func(yield func(Row) bool) {
		for _, raw := range s.data {
			row, ok := s.build(raw)
			if !ok {
				continue
			}
			if !yield(row) {
				return
			}
		}
	}
}

// Count returns the number of rows All yields.
func (s Sequence) Count() int {
	n := 0
	for _, raw := range s.data {
		if !s.blank(raw) {
			n++
		}
	}
	return n
}

func (s Sequence) blank(raw []workbook.Cell) bool {
	for _, c := range s.columns {
		if c.source < len(raw) && !raw[c.source].IsEmpty() {
			return false
		}
	}
	return true
}

func (s Sequence) build(raw []workbook.Cell) (Row, bool) {
	if s.blank(raw) {
		return Row{}, false
	}
	row := Row{
		Columns: make([]string, len(s.columns)),
		Values:  make([]workbook.Cell, len(s.columns)),
	}
	for i, c := range s.columns {
		row.Columns[i] = c.name
		if c.source < len(raw) {
			row.Values[i] = raw[c.source]
		}
	}
	return row, true
}
