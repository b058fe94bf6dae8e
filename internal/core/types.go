package core

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"time"
)

// Kind identifies the entity type carried by a feed.
type Kind string

const (
	KindStudent Kind = "student"
	KindDriver  Kind = "driver"
	KindVehicle Kind = "vehicle"
)

// Kinds lists every supported kind in dependency order (drivers before vehicles).
var Kinds = []Kind{KindStudent, KindDriver, KindVehicle}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return slices.Contains(Kinds, k)
}

// Store field vocabulary.
const (
	FieldName               = "name"
	FieldClass              = "class"
	FieldSection            = "section"
	FieldVillage            = "village"
	FieldMonthlyFee         = "monthlyFee"
	FieldParentName         = "parentName"
	FieldParentContact      = "parentContact"
	FieldBusID              = "busId"
	FieldRegistrationNumber = "registrationNumber"
	FieldChassisNumber      = "chassisNumber"
	FieldSeatingCapacity    = "seatingCapacity"
	FieldPurchaseDate       = "purchaseDate"
	FieldFitnessExpiry      = "fitnessExpiry"
	FieldPrimaryDriverID    = "primaryDriverId"
	FieldLicenseNumber      = "licenseNumber"
	FieldLicenseExpiry      = "licenseExpiry"
	FieldPhone              = "phone"
	FieldAddress            = "address"
	FieldRole               = "role"
	FieldStatus             = "status"

	// FieldDriverName is a source-only hint resolved into FieldPrimaryDriverID.
	FieldDriverName = "driverName"
)

// sourceOnlyFields are never sent to the store.
var sourceOnlyFields = map[string]bool{
	FieldDriverName: true,
}

// relationshipFields maps a reference field to the kind it points at.
var relationshipFields = map[string]Kind{
	FieldPrimaryDriverID: KindDriver,
}

// Fields maps semantic field names to normalized values.
// A field that is not known is a missing key, never an empty string.
type Fields map[string]any

// Clone returns a shallow copy of f.
func (f Fields) Clone() Fields {
	if f == nil {
		return Fields{}
	}
	return maps.Clone(f)
}

// Has reports whether the field is present with a meaningful value.
func (f Fields) Has(field string) bool {
	v, ok := f[field]
	return ok && isSet(v)
}

// Text returns the field rendered as a string and whether it is set.
func (f Fields) Text(field string) (string, bool) {
	v, ok := f[field]
	if !ok || !isSet(v) {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

// Keys returns the field names in sorted order.
func (f Fields) Keys() []string {
	return slices.Sorted(maps.Keys(f))
}

// isSet treats nil, blank strings and numeric zero as unset, which is how the
// record store reports a field nobody filled in.
func isSet(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0 && !math.IsNaN(t)
	case float32:
		return t != 0
	case time.Time:
		return !t.IsZero()
	default:
		return true
	}
}

// CellKind describes what a spreadsheet cell holds.
type CellKind int

const (
	CellAbsent CellKind = iota
	CellText
	CellNumber
	CellDate
)

// Cell is a single raw spreadsheet value.
type Cell struct {
	Kind   CellKind
	Text   string
	Number float64
	Time   time.Time
}

// TextCell returns a text cell.
func TextCell(s string) Cell { return Cell{Kind: CellText, Text: s} }

// NumberCell returns a numeric cell.
func NumberCell(n float64) Cell { return Cell{Kind: CellNumber, Number: n} }

// DateCell returns a date cell.
func DateCell(t time.Time) Cell { return Cell{Kind: CellDate, Time: t} }

// Raw renders the cell the way a user would read it.
// Whole numbers print without a fractional part.
func (c Cell) Raw() (string, bool) {
	switch c.Kind {
	case CellText:
		return c.Text, true
	case CellNumber:
		if math.IsNaN(c.Number) {
			return "", false
		}
		if c.Number == math.Trunc(c.Number) && math.Abs(c.Number) < 1e15 {
			return fmt.Sprintf("%.0f", c.Number), true
		}
		return fmt.Sprint(c.Number), true
	case CellDate:
		if c.Time.IsZero() {
			return "", false
		}
		return c.Time.Format("2006-01-02"), true
	default:
		return "", false
	}
}

// Row maps zero-based column index to cell.
type Row map[int]Cell

// Cell returns the cell at index, absent when out of range.
func (r Row) Cell(index int) Cell {
	return r[index]
}

// RowFromStrings builds a Row from plain text values.
// Empty strings become absent cells.
func RowFromStrings(values ...string) Row {
	row := make(Row, len(values))
	for i, v := range values {
		if v == "" {
			continue
		}
		row[i] = TextCell(v)
	}
	return row
}

// SourceRecord is one normalized spreadsheet row. It is immutable once built;
// accessors hand out copies.
type SourceRecord struct {
	kind     Kind
	row      int
	fields   Fields
	warnings []ParseWarning
}

// NewSourceRecord builds a record from already normalized fields.
func NewSourceRecord(kind Kind, row int, fields Fields, warnings []ParseWarning) SourceRecord {
	return SourceRecord{
		kind:     kind,
		row:      row,
		fields:   fields.Clone(),
		warnings: slices.Clone(warnings),
	}
}

func (s SourceRecord) Kind() Kind { return s.kind }

// Row is the zero-based sheet row the record came from.
func (s SourceRecord) Row() int { return s.row }

func (s SourceRecord) Fields() Fields { return s.fields.Clone() }

func (s SourceRecord) Warnings() []ParseWarning { return slices.Clone(s.warnings) }

// Get returns a single field value.
func (s SourceRecord) Get(field string) (any, bool) {
	v, ok := s.fields[field]
	return v, ok
}

// Has reports whether the record carries a meaningful value for field.
func (s SourceRecord) Has(field string) bool {
	return s.fields.Has(field)
}

// Key is the identity key of the record.
func (s SourceRecord) Key() string {
	return IdentityKey(s.kind, s.fields)
}

// DisplayName is the human readable identity of the record for reports.
func (s SourceRecord) DisplayName() string {
	field := identityField(s.kind)
	if v, ok := s.fields.Text(field); ok {
		return v
	}
	return fmt.Sprintf("row %d", s.row+1)
}

// With returns a copy of s with field set to value.
func (s SourceRecord) With(field string, value any) SourceRecord {
	out := NewSourceRecord(s.kind, s.row, s.fields, s.warnings)
	out.fields[field] = value
	return out
}

// TargetRecord is a record already held by the store.
type TargetRecord struct {
	ID     string `json:"id"`
	Fields Fields `json:"fields"`
}

// Has reports whether the store has a value for field.
func (t TargetRecord) Has(field string) bool {
	return t.Fields.Has(field)
}

// Action is the outcome of planning a single record.
type Action string

const (
	ActionCreate Action = "create"
	ActionPatch  Action = "patch"
	ActionSkip   Action = "skip"
)

// ChangePlan is the decision for one source record.
type ChangePlan struct {
	Action    Action                 `json:"action"`
	TargetID  string                 `json:"targetId,omitempty"`
	Fields    Fields                 `json:"fields,omitempty"`
	Conflicts []RelationshipConflict `json:"conflicts,omitempty"`
}

// CreatePlan builds a Create plan.
func CreatePlan(fields Fields) ChangePlan {
	return ChangePlan{Action: ActionCreate, Fields: fields}
}

// PatchPlan builds a Patch plan.
func PatchPlan(targetID string, fields Fields) ChangePlan {
	return ChangePlan{Action: ActionPatch, TargetID: targetID, Fields: fields}
}

// SkipPlan builds a Skip plan.
func SkipPlan(targetID string) ChangePlan {
	return ChangePlan{Action: ActionSkip, TargetID: targetID}
}
