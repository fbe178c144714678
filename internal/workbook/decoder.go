// Package workbook turns raw spreadsheet bytes into named sheets of typed cells.
// It is the only package that knows about spreadsheet formats.
package workbook

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/portfoliolens/sheetload/internal/domain"
	"github.com/xuri/excelize/v2"
)

// Format is the container format of an uploaded file.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// Sheet is one named grid: the header row plus data rows aligned by column position.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]Cell
}

// Empty reports whether the sheet has no data rows.
func (s Sheet) Empty() bool {
	return len(s.Rows) == 0
}

// Workbook is the ordered list of decoded sheets.
type Workbook struct {
	Sheets []Sheet
}

// FormatFromPath picks the decoder from the file extension. Anything that is not .csv is
// treated as XLSX so that corrupt uploads surface as decode errors.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return FormatCSV
	}
	return FormatXLSX
}

// Decode parses data according to the format implied by sourcePath.
// Parameters:
//   - data: raw file bytes.
//   - sourcePath: stored path of the upload; used for format detection and CSV sheet naming.
// Returns:
//   - *Workbook: decoded sheets in source order.
//   - error: *domain.DecodeError if the bytes are not a parseable workbook.
func Decode(data []byte, sourcePath string) (*Workbook, error) {
	if FormatFromPath(sourcePath) == FormatCSV {
		stem := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
		return DecodeCSV(data, stem)
	}
	return DecodeXLSX(data)
}

// DecodeXLSX parses an XLSX workbook with excelize.
func DecodeXLSX(data []byte) (*Workbook, error) {
	if len(data) == 0 {
		return nil, &domain.DecodeError{Reason: "empty file"}
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &domain.DecodeError{Reason: "not a valid xlsx workbook", Err: err}
	}
	defer func() {
		_ = f.Close()
	}()

	names := f.GetSheetList()
	if err := checkUniqueNames(names); err != nil {
		return nil, err
	}

	use1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		use1904 = *props.Date1904
	}

	r := &sheetReader{file: f, use1904: use1904, dateStyles: make(map[int]bool)}
	wb := &Workbook{Sheets: make([]Sheet, 0, len(names))}
	for _, name := range names {
		sheet, err := r.read(name)
		if err != nil {
			return nil, &domain.DecodeError{Reason: fmt.Sprintf("failed to read sheet %q", name), Err: err}
		}
		wb.Sheets = append(wb.Sheets, sheet)
	}
	return wb, nil
}

// DecodeCSV parses a CSV file as a single sheet called name. All cells are text.
func DecodeCSV(data []byte, name string) (*Workbook, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var grid [][]Cell
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &domain.DecodeError{Reason: "not a valid csv file", Err: err}
		}
		row := make([]Cell, len(record))
		for i, v := range record {
			row[i] = TextCell(v)
		}
		grid = append(grid, row)
	}
	return &Workbook{Sheets: []Sheet{buildSheet(name, grid)}}, nil
}

func checkUniqueNames(names []string) error {
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			return &domain.DecodeError{Reason: fmt.Sprintf("ambiguous sheet identity: duplicate sheet name %q", name)}
		}
		seen[name] = struct{}{}
	}
	return nil
}

// buildSheet splits a raw grid into header and data rows. Blank rows before the header are
// skipped and blank rows after it are dropped wherever they occur.
func buildSheet(name string, grid [][]Cell) Sheet {
	start := 0
	for start < len(grid) && IsBlankRow(grid[start]) {
		start++
	}
	end := len(grid)
	for end > start && IsBlankRow(grid[end-1]) {
		end--
	}
	sheet := Sheet{Name: name, Rows: [][]Cell{}}
	if start == end {
		return sheet
	}

	header := grid[start]
	sheet.Header = make([]string, len(header))
	for i, c := range header {
		sheet.Header[i] = strings.TrimSpace(c.String())
	}
	for _, row := range grid[start+1 : end] {
		if !IsBlankRow(row) {
			sheet.Rows = append(sheet.Rows, row)
		}
	}
	return sheet
}

type sheetReader struct {
	file       *excelize.File
	use1904    bool
	dateStyles map[int]bool
}

func (r *sheetReader) read(name string) (Sheet, error) {
	rows, err := r.file.Rows(name)
	if err != nil {
		return Sheet{}, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var grid [][]Cell
	rowNum := 0
	for rows.Next() {
		rowNum++
		raw, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return Sheet{}, err
		}
		row := make([]Cell, len(raw))
		for i, v := range raw {
			if strings.TrimSpace(v) == "" {
				continue
			}
			ref, err := excelize.CoordinatesToCellName(i+1, rowNum)
			if err != nil {
				return Sheet{}, err
			}
			row[i] = r.typedCell(name, ref, v)
		}
		grid = append(grid, row)
	}
	if err := rows.Error(); err != nil {
		return Sheet{}, err
	}
	return buildSheet(name, grid), nil
}

// typedCell converts a raw cell value using the stored cell type and number format.
func (r *sheetReader) typedCell(sheet, ref, raw string) Cell {
	typ, err := r.file.GetCellType(sheet, ref)
	if err != nil {
		return TextCell(raw)
	}

	switch typ {
	case excelize.CellTypeBool:
		switch strings.ToUpper(strings.TrimSpace(raw)) {
		case "1", "TRUE":
			return BoolCell(true)
		case "0", "FALSE":
			return BoolCell(false)
		}
		return TextCell(raw)
	case excelize.CellTypeDate:
		if t, ok := parseISODate(raw); ok {
			return DateCell(t)
		}
		return TextCell(raw)
	case excelize.CellTypeUnset, excelize.CellTypeNumber:
		n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return TextCell(raw)
		}
		if r.isDateStyled(sheet, ref) {
			if t, err := excelize.ExcelDateToTime(n, r.use1904); err == nil {
				return DateCell(t)
			}
		}
		return NumberCell(n)
	default:
		return TextCell(raw)
	}
}

func (r *sheetReader) isDateStyled(sheet, ref string) bool {
	styleID, err := r.file.GetCellStyle(sheet, ref)
	if err != nil || styleID == 0 {
		return false
	}
	if isDate, ok := r.dateStyles[styleID]; ok {
		return isDate
	}
	isDate := false
	if style, err := r.file.GetStyle(styleID); err == nil && style != nil {
		isDate = isDateNumFmt(style.NumFmt, style.CustomNumFmt)
	}
	r.dateStyles[styleID] = isDate
	return isDate
}

// isDateNumFmt reports whether a number format renders its value as a date or time.
func isDateNumFmt(id int, custom *string) bool {
	switch {
	case id >= 14 && id <= 22, id >= 27 && id <= 36, id >= 45 && id <= 47, id >= 50 && id <= 58:
		return true
	}
	if custom == nil {
		return false
	}
	code := strings.ToLower(stripFormatLiterals(*custom))
	return strings.ContainsAny(code, "yd") || strings.Contains(code, "mmm") || strings.Contains(code, "h:mm")
}

// stripFormatLiterals removes quoted text and bracketed sections such as colors and locales.
func stripFormatLiterals(code string) string {
	var b strings.Builder
	inQuote, inBracket, escaped := false, false, false
	for _, ch := range code {
		switch {
		case escaped:
			escaped = false
		case ch == '\\':
			escaped = true
		case ch == '"':
			inQuote = !inQuote
		case inQuote:
		case ch == '[':
			inBracket = true
		case ch == ']':
			inBracket = false
		case inBracket:
		default:
			b.WriteRune(ch)
		}
	}
	return b.String()
}

var isoLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04", time.DateOnly}

func parseISODate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
