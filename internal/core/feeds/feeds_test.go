package feeds

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JonMunkholm/fleetsync/internal/core"
)

// ---- Built-in Feed Tests ----

func TestBuiltinFeeds(t *testing.T) {
	tests := []struct {
		key      string
		kind     core.Kind
		group    string
		offset   int
		lastRow  int
		fallback float64
	}{
		{key: "students", kind: core.KindStudent, group: GroupFees, offset: 3},
		{key: "students-compact", kind: core.KindStudent, group: GroupFees, offset: 2},
		{key: "students-padampur", kind: core.KindStudent, group: GroupFees, offset: 3, fallback: 1000},
		{key: "drivers", kind: core.KindDriver, group: GroupFleet, offset: 3, lastRow: 28},
		{key: "vehicles", kind: core.KindVehicle, group: GroupFleet, offset: 3, lastRow: 28},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			def, ok := core.Get(tt.key)
			if !ok {
				t.Fatalf("feed %q not registered", tt.key)
			}
			l := def.Layout
			if l.Kind != tt.kind || def.Info.Group != tt.group {
				t.Errorf("kind/group = %s/%s, want %s/%s", l.Kind, def.Info.Group, tt.kind, tt.group)
			}
			if l.HeaderOffset != tt.offset || l.LastRow != tt.lastRow {
				t.Errorf("rows = %d..%d, want %d..%d", l.HeaderOffset, l.LastRow, tt.offset, tt.lastRow)
			}
			if l.FeeFallback != tt.fallback {
				t.Errorf("FeeFallback = %v, want %v", l.FeeFallback, tt.fallback)
			}
			if err := l.Validate(); err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		})
	}
}

func TestVehiclesFeed_ReadsBusList(t *testing.T) {
	def, _ := core.Get("vehicles")

	rows := make([]core.Row, 5)
	for i := range rows {
		rows[i] = core.Row{}
	}
	rows[2] = core.RowFromStrings("Sr", "Bus No", "Driver", "Chassis", "Seats", "Reg Date", "Fitness")
	rows[3] = core.RowFromStrings("1", "rj-13-pa-4035", "Bhola Singh", "MAT4484", "42", "12.06.2019", "…")
	rows[4] = core.RowFromStrings("", "Total", "", "", "42", "", "")

	result := core.BuildRecords(def.Layout, rows, nil)
	if len(result.Records) != 1 || result.Excluded != 1 {
		t.Fatalf("records = %d, excluded = %d, want 1 and 1", len(result.Records), result.Excluded)
	}

	bus := result.Records[0].Fields()
	want := map[string]any{
		core.FieldRegistrationNumber: "RJ 13 PA 4035",
		core.FieldDriverName:         "Bhola Singh",
		core.FieldChassisNumber:      "MAT4484",
		core.FieldSeatingCapacity:    42,
		core.FieldPurchaseDate:       "2019-06-12",
	}
	for k, v := range want {
		if bus[k] != v {
			t.Errorf("%s = %v, want %v", k, bus[k], v)
		}
	}
	if bus.Has(core.FieldFitnessExpiry) {
		t.Errorf("placeholder fitness date was kept: %v", bus[core.FieldFitnessExpiry])
	}
}

// ---- Feed File Tests ----

const feedFile = `
feeds:
  - info:
      key: students-bhola
      group: Fees
      label: Bhola Singh
    layout:
      kind: student
      headerOffset: 2
      columns:
        - {index: 1, field: name, type: name}
        - {index: 2, field: class, type: classCode}
        - {index: 4, field: monthlyFee, type: money}
      defaults:
        village: Unknown
      aliases:
        gurpreet kaur: gurpreet kour
      scopeField: busId
  - info:
      key: drivers
    layout:
      kind: driver
      columns:
        - {index: 1, field: name, type: name}
  - info:
      key: broken
    layout:
      kind: parent
      columns:
        - {index: 1, field: name, type: name}
`

func TestParse(t *testing.T) {
	defs, err := Parse([]byte(feedFile))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(defs) != 3 {
		t.Fatalf("Parse() = %d feeds, want 3", len(defs))
	}

	bhola := defs[0]
	if bhola.Info.Label != "Bhola Singh" || bhola.Layout.Kind != core.KindStudent {
		t.Errorf("info = %+v, kind = %s", bhola.Info, bhola.Layout.Kind)
	}
	if len(bhola.Layout.Columns) != 3 || bhola.Layout.Columns[1].Type != core.ColumnClassCode {
		t.Errorf("columns = %+v", bhola.Layout.Columns)
	}
	if bhola.Layout.Defaults[core.FieldVillage] != "Unknown" {
		t.Errorf("defaults = %v", bhola.Layout.Defaults)
	}
	if bhola.Layout.Aliases["gurpreet kaur"] != "gurpreet kour" {
		t.Errorf("aliases = %v", bhola.Layout.Aliases)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte("feeds: [")); err == nil {
		t.Error("Parse() of malformed YAML succeeded")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feeds.yaml")
	if err := os.WriteFile(path, []byte(feedFile), 0o600); err != nil {
		t.Fatal(err)
	}

	n, err := LoadFile(path)
	if n != 1 {
		t.Errorf("LoadFile() registered %d feeds, want 1", n)
	}
	if err == nil {
		t.Fatal("LoadFile() error = nil, want duplicate and invalid feeds reported")
	}
	for _, want := range []string{"already registered: drivers", "feed broken"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("LoadFile() error = %v, want it to mention %q", err, want)
		}
	}

	if _, ok := core.Get("students-bhola"); !ok {
		t.Error("students-bhola not registered")
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("LoadFile() of a missing file succeeded")
	}
}
