// Package sheet reads spreadsheets into core rows.
//
// Workbooks in the Office Open XML format (.xlsx, .xlsm) are read with
// excelize and keep their cell types: numbers stay numbers and date
// formatted cells become dates. A .csv file is a workbook with a single
// sheet whose cells are all text. Legacy BIFF8 workbooks (.xls) are read
// with extrame/xls and, like csv, yield text cells only.
package sheet

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/fleetsync/internal/core"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")
	ErrSheetNotFound     = errors.New("sheet not found")
	ErrEmptySheet        = errors.New("empty sheet")
	ErrFileTooLarge      = errors.New("file too large")
)

// Workbook is an opened spreadsheet.
type Workbook interface {
	// Sheets lists the worksheet names in workbook order.
	Sheets() []string

	// ReadSheet returns every row of the named sheet, indexed from the top of
	// the sheet. An empty name reads the first sheet.
	ReadSheet(name string) ([]core.Row, error)

	Close() error
}

// Format is a supported file format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
	FormatCSV  Format = "csv"
)

// DetectFormat picks the reader for a file name by its extension.
func DetectFormat(filename string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".csv":
		return FormatCSV, nil
	case ".xls":
		return FormatXLS, nil
	case "":
		return "", fmt.Errorf("%w: file has no extension", ErrUnsupportedFormat)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

// Open opens the spreadsheet at path.
func Open(path string) (Workbook, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	return read(f, path, format, 0)
}

// OpenReader reads a spreadsheet from r. filename selects the format and
// names the sheet of a csv file. maxSize bounds the bytes read (0 = no limit).
func OpenReader(r io.Reader, filename string, maxSize int64) (Workbook, error) {
	format, err := DetectFormat(filename)
	if err != nil {
		return nil, err
	}
	return read(r, filename, format, maxSize)
}

func read(r io.Reader, filename string, format Format, maxSize int64) (Workbook, error) {
	switch format {
	case FormatXLSX:
		if maxSize > 0 {
			r = &sizeLimiter{r: r, remaining: maxSize}
		}
		return openXLSX(r)
	case FormatXLS:
		if maxSize > 0 {
			r = &sizeLimiter{r: r, remaining: maxSize}
		}
		return openXLS(r)
	default:
		return readCSV(wrapCSV(r, maxSize), sheetName(filename))
	}
}

// sheetName is the name a csv file's only sheet goes by: the file name
// without directory and extension.
func sheetName(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ReadFile opens path and reads one sheet. An empty sheet name reads the
// sheet the feed names, or the first sheet.
func ReadFile(path, name string) ([]core.Row, error) {
	wb, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer wb.Close()
	return wb.ReadSheet(name)
}

// resolveSheet finds name among sheets. Matching ignores case and
// surrounding whitespace, since sheet tabs are often typed by hand.
func resolveSheet(sheets []string, name string) (string, error) {
	if len(sheets) == 0 {
		return "", ErrEmptySheet
	}
	if strings.TrimSpace(name) == "" {
		return sheets[0], nil
	}
	for _, s := range sheets {
		if s == name {
			return s, nil
		}
	}
	want := strings.ToLower(strings.TrimSpace(name))
	for _, s := range sheets {
		if strings.ToLower(strings.TrimSpace(s)) == want {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q (have %s)", ErrSheetNotFound, name, strings.Join(sheets, ", "))
}
