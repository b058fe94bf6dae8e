package sheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/JonMunkholm/fleetsync/internal/core"
)

// csvWorkbook is a csv file read as a single sheet.
type csvWorkbook struct {
	name string
	rows []core.Row
}

func readCSV(r io.Reader, name string) (*csvWorkbook, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var rows []core.Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if errors.Is(err, ErrFileTooLarge) {
				return nil, err
			}
			return nil, fmt.Errorf("open workbook: %w", err)
		}
		rows = append(rows, core.RowFromStrings(record...))
	}

	return &csvWorkbook{name: name, rows: rows}, nil
}

func (w *csvWorkbook) Sheets() []string { return []string{w.name} }

// ReadSheet ignores name: a csv file has a single sheet.
func (w *csvWorkbook) ReadSheet(string) ([]core.Row, error) {
	if len(w.rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptySheet, w.name)
	}
	return w.rows, nil
}

func (w *csvWorkbook) Close() error { return nil }
