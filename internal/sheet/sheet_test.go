package sheet

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/fleetsync/internal/core"
)

// ---- Format Tests ----

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		filename string
		want     Format
		wantErr  bool
	}{
		{filename: "Convenc Fee 2025-26.xlsx", want: FormatXLSX},
		{filename: "fees.XLSM", want: FormatXLSX},
		{filename: "export.csv", want: FormatCSV},
		{filename: "Convenc Fee 2025-26.xls", want: FormatXLS},
		{filename: "notes.txt", wantErr: true},
		{filename: "noext", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got, err := DetectFormat(tt.filename)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedFormat) {
					t.Errorf("DetectFormat() error = %v, want ErrUnsupportedFormat", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("DetectFormat() = %q, %v, want %q", got, err, tt.want)
			}
		})
	}
}

func TestDetectFormat_MapsToUserMessage(t *testing.T) {
	_, err := DetectFormat("fees.ods")
	if got := core.MapError(err).Code; got != "FILE002" {
		t.Errorf("MapError().Code = %q, want FILE002", got)
	}
}

// ---- CSV Tests ----

func TestOpenReader_CSV(t *testing.T) {
	input := "\xEF\xBB\xBFSr,Name,Class,Village,Fee\n1,Ravi,X A,Nabha,1500\n2, Anita ,VI M\n,,,,\n"

	wb, err := OpenReader(strings.NewReader(input), "uploads/Bhola Singh.csv", 0)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer wb.Close()

	if got := wb.Sheets(); len(got) != 1 || got[0] != "Bhola Singh" {
		t.Errorf("Sheets() = %v, want [Bhola Singh]", got)
	}

	rows, err := wb.ReadSheet("Sheet2")
	if err != nil {
		t.Fatalf("ReadSheet() error = %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(rows))
	}
	if raw, _ := rows[0].Cell(0).Raw(); raw != "Sr" {
		t.Errorf("BOM not stripped: first cell = %q", raw)
	}
	if raw, _ := rows[2].Cell(1).Raw(); raw != "Anita " {
		t.Errorf("rows[2][1] = %q", raw)
	}
	if rows[2].Cell(4).Kind != core.CellAbsent {
		t.Error("short row must leave missing cells absent")
	}
	if len(rows[3]) != 0 {
		t.Errorf("blank row = %v, want no cells", rows[3])
	}
}

func TestOpenReader_CSVTooLarge(t *testing.T) {
	input := strings.Repeat("Ravi,1500\n", 100)

	_, err := OpenReader(strings.NewReader(input), "fees.csv", 64)
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("OpenReader() error = %v, want ErrFileTooLarge", err)
	}
	if got := core.MapError(err).Code; got != "FILE001" {
		t.Errorf("MapError().Code = %q, want FILE001", got)
	}
}

func TestReadSheet_EmptyCSV(t *testing.T) {
	wb, err := OpenReader(strings.NewReader(""), "empty.csv", 0)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	if _, err := wb.ReadSheet(""); !errors.Is(err, ErrEmptySheet) {
		t.Errorf("ReadSheet() error = %v, want ErrEmptySheet", err)
	}
}

// ---- XLSX Tests ----

// writeWorkbook saves a vehicle details style workbook and returns its path.
func writeWorkbook(t *testing.T) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet("Sheet2"); err != nil {
		t.Fatal(err)
	}

	cells := map[string]any{
		"B3": "Bus No",
		"B4": "rj-13-pa-4035",
		"C4": "Bhola Singh",
		"E4": 42,
		"F4": time.Date(2019, 6, 12, 0, 0, 0, 0, time.UTC),
		"G4": 1500.5,
	}
	for axis, v := range cells {
		if err := f.SetCellValue("Sheet2", axis, v); err != nil {
			t.Fatal(err)
		}
	}

	custom := "dd.mm.yyyy"
	style, err := f.NewStyle(&excelize.Style{CustomNumFmt: &custom})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.SetCellValue("Sheet2", "H4", 43831); err != nil {
		t.Fatal(err)
	}
	if err := f.SetCellStyle("Sheet2", "H4", "H4", style); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "Vehicle Details.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpen_XLSX(t *testing.T) {
	wb, err := Open(writeWorkbook(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer wb.Close()

	if got := wb.Sheets(); len(got) != 2 || got[1] != "Sheet2" {
		t.Fatalf("Sheets() = %v", got)
	}

	rows, err := wb.ReadSheet(" sheet2 ")
	if err != nil {
		t.Fatalf("ReadSheet() error = %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(rows))
	}
	bus := rows[3]

	if c := bus.Cell(1); c.Kind != core.CellText || c.Text != "rj-13-pa-4035" {
		t.Errorf("registration cell = %+v", c)
	}
	if c := bus.Cell(4); c.Kind != core.CellNumber || c.Number != 42 {
		t.Errorf("seating cell = %+v, want number 42", c)
	}
	if c := bus.Cell(5); c.Kind != core.CellDate || c.Time.Format("2006-01-02") != "2019-06-12" {
		t.Errorf("date cell = %+v, want 2019-06-12", c)
	}
	if c := bus.Cell(6); c.Kind != core.CellNumber || c.Number != 1500.5 {
		t.Errorf("fee cell = %+v", c)
	}
	if c := bus.Cell(7); c.Kind != core.CellDate || c.Time.Format("2006-01-02") != "2020-01-01" {
		t.Errorf("custom date cell = %+v, want 2020-01-01", c)
	}
	if bus.Cell(3).Kind != core.CellAbsent {
		t.Error("empty cell must be absent")
	}
}

func TestReadSheet_NotFound(t *testing.T) {
	wb, err := Open(writeWorkbook(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer wb.Close()

	_, err = wb.ReadSheet("Drivers")
	if !errors.Is(err, ErrSheetNotFound) {
		t.Fatalf("ReadSheet() error = %v, want ErrSheetNotFound", err)
	}
	if got := core.MapError(err).Code; got != "FILE003" {
		t.Errorf("MapError().Code = %q, want FILE003", got)
	}

	if _, err := wb.ReadSheet("Sheet1"); !errors.Is(err, ErrEmptySheet) {
		t.Errorf("ReadSheet(Sheet1) error = %v, want ErrEmptySheet", err)
	}
}

func TestOpen_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.xlsx")
	if err := os.WriteFile(path, []byte("not a zip"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := Open(path)
	if err == nil {
		t.Fatal("Open() of a corrupt workbook succeeded")
	}
	if got := core.MapError(err).Code; got != "FILE006" {
		t.Errorf("MapError().Code = %q, want FILE006", got)
	}
}

func TestOpen_XLS(t *testing.T) {
	wb, err := Open(filepath.Join("testdata", "fees.xls"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer wb.Close()

	if got := wb.Sheets(); len(got) != 1 || got[0] != "Bhola" {
		t.Fatalf("Sheets() = %v, want [Bhola]", got)
	}

	rows, err := wb.ReadSheet("bhola")
	if err != nil {
		t.Fatalf("ReadSheet() error = %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("rows = %d, want 5", len(rows))
	}
	if c := rows[2].Cell(1); c.Text != "Name" {
		t.Errorf("header cell = %+v, want Name", c)
	}
	ravi := rows[3]
	if c := ravi.Cell(1); c.Kind != core.CellText || c.Text != "Ravi Kumar" {
		t.Errorf("name cell = %+v", c)
	}
	if c := ravi.Cell(4); c.Text != "1500" {
		t.Errorf("fee cell = %+v, want 1500", c)
	}
	if rows[4].Cell(3).Kind != core.CellAbsent {
		t.Error("empty village cell must be absent")
	}

	if _, err := wb.ReadSheet("Sheet1"); !errors.Is(err, ErrSheetNotFound) {
		t.Errorf("ReadSheet(Sheet1) error = %v, want ErrSheetNotFound", err)
	}
}

func TestOpenReader_XLSRespectsLimit(t *testing.T) {
	f, err := os.Open(filepath.Join("testdata", "fees.xls"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	_, err = OpenReader(f, "fees.xls", 1024)
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("OpenReader() error = %v, want ErrFileTooLarge", err)
	}
}

func TestOpen_CorruptXLS(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Convenc Fee.xls")
	if err := os.WriteFile(path, []byte("not a compound file"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := Open(path)
	if err == nil {
		t.Fatal("Open() of a corrupt xls succeeded")
	}
	if got := core.MapError(err).Code; got != "FILE006" {
		t.Errorf("MapError().Code = %q, want FILE006", got)
	}
}

func TestReadFile_FeedRows(t *testing.T) {
	rows, err := ReadFile(writeWorkbook(t), "Sheet2")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	layout := core.Layout{
		Kind:         core.KindVehicle,
		HeaderOffset: 3,
		Columns: []core.ColumnSpec{
			{Index: 1, Field: core.FieldRegistrationNumber, Type: core.ColumnRegistration},
			{Index: 4, Field: core.FieldSeatingCapacity, Type: core.ColumnInt},
			{Index: 5, Field: core.FieldPurchaseDate, Type: core.ColumnDate},
		},
	}
	result := core.BuildRecords(layout, rows, nil)
	if len(result.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(result.Records))
	}
	got := result.Records[0].Fields()
	if got[core.FieldRegistrationNumber] != "RJ 13 PA 4035" || got[core.FieldSeatingCapacity] != 42 || got[core.FieldPurchaseDate] != "2019-06-12" {
		t.Errorf("Fields() = %v", got)
	}
}
