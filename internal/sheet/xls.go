package sheet

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/extrame/xls"

	"github.com/JonMunkholm/fleetsync/internal/core"
)

// xlsWorkbook reads legacy BIFF8 (.xls) workbooks. Cells arrive as the
// text the workbook displays, so numbers and dates go through the same
// normalizers as csv cells.
type xlsWorkbook struct {
	wb     *xls.WorkBook
	sheets []string
}

func openXLS(r io.Reader) (wb *xlsWorkbook, err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		if errors.Is(err, ErrFileTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("open workbook: %w", err)
	}

	// The BIFF parser panics on some damaged files.
	defer func() {
		if p := recover(); p != nil {
			wb, err = nil, fmt.Errorf("open workbook: damaged xls file: %v", p)
		}
	}()

	book, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	if book == nil {
		return nil, fmt.Errorf("open workbook: no workbook stream")
	}

	wb = &xlsWorkbook{wb: book}
	for i := range book.NumSheets() {
		if s := book.GetSheet(i); s != nil {
			wb.sheets = append(wb.sheets, s.Name)
		}
	}
	return wb, nil
}

func (w *xlsWorkbook) Sheets() []string { return w.sheets }

func (w *xlsWorkbook) ReadSheet(name string) (rows []core.Row, err error) {
	sheetName, err := resolveSheet(w.sheets, name)
	if err != nil {
		return nil, err
	}

	defer func() {
		if p := recover(); p != nil {
			rows, err = nil, fmt.Errorf("read sheet %q: %v", sheetName, p)
		}
	}()

	var ws *xls.WorkSheet
	for i := range w.wb.NumSheets() {
		if s := w.wb.GetSheet(i); s != nil && s.Name == sheetName {
			ws = s
			break
		}
	}
	if ws == nil {
		return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, sheetName)
	}

	last := -1
	rows = make([]core.Row, int(ws.MaxRow)+1)
	for r := range rows {
		xr := ws.Row(r)
		if xr == nil {
			rows[r] = core.Row{}
			continue
		}
		row := make(core.Row)
		for c := 0; c <= xr.LastCol(); c++ {
			if text := xr.Col(c); strings.TrimSpace(text) != "" {
				row[c] = core.TextCell(text)
			}
		}
		rows[r] = row
		if len(row) > 0 {
			last = r
		}
	}
	if last < 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptySheet, sheetName)
	}
	return rows[:last+1], nil
}

func (w *xlsWorkbook) Close() error { return nil }
