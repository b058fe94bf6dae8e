package sheet

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/fleetsync/internal/core"
)

// xlsxWorkbook reads Office Open XML workbooks.
type xlsxWorkbook struct {
	f         *excelize.File
	date1904  bool
	dateStyle map[int]bool
}

func openXLSX(r io.Reader) (*xlsxWorkbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		if errors.Is(err, ErrFileTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("open workbook: %w", err)
	}

	wb := &xlsxWorkbook{f: f, dateStyle: make(map[int]bool)}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		wb.date1904 = *props.Date1904
	}
	return wb, nil
}

func (w *xlsxWorkbook) Sheets() []string {
	return w.f.GetSheetList()
}

func (w *xlsxWorkbook) ReadSheet(name string) ([]core.Row, error) {
	sheet, err := resolveSheet(w.Sheets(), name)
	if err != nil {
		return nil, err
	}

	// Raw values keep numbers unformatted; dates are recovered from the
	// cell style below.
	values, err := w.f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptySheet, sheet)
	}

	rows := make([]core.Row, len(values))
	for r, record := range values {
		row := make(core.Row, len(record))
		for c, raw := range record {
			if strings.TrimSpace(raw) == "" {
				continue
			}
			row[c] = w.cell(sheet, c, r, raw)
		}
		rows[r] = row
	}
	return rows, nil
}

// cell types one raw value. Lookup failures fall back to text.
func (w *xlsxWorkbook) cell(sheet string, col, row int, raw string) core.Cell {
	axis, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return core.TextCell(raw)
	}

	typ, err := w.f.GetCellType(sheet, axis)
	if err != nil {
		return core.TextCell(raw)
	}
	switch typ {
	case excelize.CellTypeUnset, excelize.CellTypeNumber, excelize.CellTypeDate:
	default:
		return core.TextCell(raw)
	}

	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return core.TextCell(raw)
	}

	if w.isDate(sheet, axis) {
		if t, err := excelize.ExcelDateToTime(n, w.date1904); err == nil {
			return core.DateCell(t)
		}
	}
	return core.NumberCell(n)
}

func (w *xlsxWorkbook) isDate(sheet, axis string) bool {
	idx, err := w.f.GetCellStyle(sheet, axis)
	if err != nil || idx == 0 {
		return false
	}
	if v, ok := w.dateStyle[idx]; ok {
		return v
	}

	isDate := false
	if style, err := w.f.GetStyle(idx); err == nil {
		isDate = dateNumFmt(style.NumFmt)
		if style.CustomNumFmt != nil {
			isDate = dateFormatCode(*style.CustomNumFmt)
		}
	}
	w.dateStyle[idx] = isDate
	return isDate
}

func (w *xlsxWorkbook) Close() error {
	return w.f.Close()
}

// dateNumFmt reports whether a built-in number format id displays a date.
func dateNumFmt(id int) bool {
	switch {
	case id >= 14 && id <= 22:
		return true
	case id >= 27 && id <= 36:
		return true
	case id >= 45 && id <= 47:
		return true
	case id >= 50 && id <= 58:
		return true
	}
	return false
}

// dateFormatCode reports whether a custom format code displays a date:
// it carries a day or year token outside quotes and brackets.
func dateFormatCode(code string) bool {
	var (
		inQuote   bool
		inBracket bool
	)
	for _, r := range strings.ToLower(code) {
		switch {
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '[':
			inBracket = true
		case r == ']':
			inBracket = false
		case inBracket:
		case r == 'd' || r == 'y':
			return true
		}
	}
	return false
}
