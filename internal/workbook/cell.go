package workbook

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// CellKind identifies the type of a raw cell value.
type CellKind int

const (
	KindEmpty CellKind = iota
	KindText
	KindNumber
	KindDate
	KindBool
)

func (k CellKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindDate:
		return "date"
	case KindBool:
		return "bool"
	default:
		return "empty"
	}
}

// Cell is one raw typed cell value. Only the field matching Kind is meaningful.
type Cell struct {
	Kind   CellKind
	Text   string
	Number float64
	Time   time.Time
	Bool   bool
}

// TextCell returns a text cell, or an empty cell for blank input.
func TextCell(s string) Cell {
	if strings.TrimSpace(s) == "" {
		return Cell{}
	}
	return Cell{Kind: KindText, Text: s}
}

// NumberCell returns a numeric cell.
func NumberCell(n float64) Cell {
	return Cell{Kind: KindNumber, Number: n}
}

// DateCell returns a date cell.
func DateCell(t time.Time) Cell {
	return Cell{Kind: KindDate, Time: t}
}

// BoolCell returns a boolean cell.
func BoolCell(b bool) Cell {
	return Cell{Kind: KindBool, Bool: b}
}

// IsEmpty reports whether the cell carries no value.
func (c Cell) IsEmpty() bool {
	return c.Kind == KindEmpty
}

// String renders the cell as plain text. Dates at midnight render without a time part.
func (c Cell) String() string {
	switch c.Kind {
	case KindText:
		return c.Text
	case KindNumber:
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	case KindDate:
		if c.Time.Hour() == 0 && c.Time.Minute() == 0 && c.Time.Second() == 0 && c.Time.Nanosecond() == 0 {
			return c.Time.Format(time.DateOnly)
		}
		return c.Time.Format(time.RFC3339)
	case KindBool:
		return strconv.FormatBool(c.Bool)
	default:
		return ""
	}
}

// Value returns the cell as a plain Go value (nil, string, float64, time.Time or bool).
func (c Cell) Value() interface{} {
	switch c.Kind {
	case KindText:
		return c.Text
	case KindNumber:
		return c.Number
	case KindDate:
		return c.Time
	case KindBool:
		return c.Bool
	default:
		return nil
	}
}

// MarshalJSON encodes empty cells as null, dates as ISO strings and the rest natively.
func (c Cell) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case KindText, KindDate:
		return json.Marshal(c.String())
	case KindNumber:
		return json.Marshal(c.Number)
	case KindBool:
		return json.Marshal(c.Bool)
	default:
		return []byte("null"), nil
	}
}

// IsBlankRow reports whether every cell in row is empty.
func IsBlankRow(row []Cell) bool {
	for _, c := range row {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}
