package core

import (
	"fmt"
	"maps"
)

// ColumnType selects the normalizer applied to a column.
type ColumnType string

const (
	ColumnText         ColumnType = "text"
	ColumnName         ColumnType = "name"
	ColumnClassCode    ColumnType = "classCode"
	ColumnRegistration ColumnType = "registration"
	ColumnDate         ColumnType = "date"
	ColumnMoney        ColumnType = "money"
	ColumnInt          ColumnType = "int"
)

var columnTypes = map[ColumnType]bool{
	ColumnText:         true,
	ColumnName:         true,
	ColumnClassCode:    true,
	ColumnRegistration: true,
	ColumnDate:         true,
	ColumnMoney:        true,
	ColumnInt:          true,
}

// ColumnSpec maps one sheet column to a store field.
type ColumnSpec struct {
	Index int        `json:"index" yaml:"index"` // zero-based column index
	Field string     `json:"field" yaml:"field"`
	Type  ColumnType `json:"type" yaml:"type"`
}

// Layout describes where a feed's data sits in a worksheet and how each
// column is read.
type Layout struct {
	Kind Kind `json:"kind" yaml:"kind"`

	// HeaderOffset is the zero-based index of the first data row.
	HeaderOffset int `json:"headerOffset" yaml:"headerOffset"`

	// LastRow is the zero-based index of the last data row, inclusive.
	// Zero reads to the end of the sheet.
	LastRow int `json:"lastRow,omitempty" yaml:"lastRow"`

	Columns []ColumnSpec `json:"columns" yaml:"columns"`

	// Defaults fill fields the sheet does not carry, e.g. a fixed village.
	Defaults Fields `json:"defaults,omitempty" yaml:"defaults"`

	// FeeFallback replaces unreadable money cells. Zero uses DefaultFeeFallback.
	FeeFallback float64 `json:"feeFallback,omitempty" yaml:"feeFallback"`

	// Aliases are extra identity spellings, see AliasTable.
	Aliases map[string]string `json:"aliases,omitempty" yaml:"aliases"`

	// ScopeField limits matching to targets sharing the run's value for this
	// field, e.g. students are matched per bus.
	ScopeField string `json:"scopeField,omitempty" yaml:"scopeField"`
}

// feeFallback returns the configured fallback or the package default.
func (l Layout) feeFallback() float64 {
	if l.FeeFallback > 0 {
		return l.FeeFallback
	}
	return DefaultFeeFallback
}

// identityColumn returns the column carrying the identity field.
func (l Layout) identityColumn() (ColumnSpec, bool) {
	field := identityField(l.Kind)
	for _, c := range l.Columns {
		if c.Field == field {
			return c, true
		}
	}
	return ColumnSpec{}, false
}

// MergeDefaults overlays run supplied defaults on the layout's own.
func (l Layout) MergeDefaults(run Fields) Fields {
	out := l.Defaults.Clone()
	maps.Copy(out, run)
	return out
}

// BuildResult is the outcome of reading a sheet through a layout.
type BuildResult struct {
	Records  []SourceRecord
	Excluded int
	Warnings []ParseWarning
}

// BuildRecords turns raw rows into source records. rows is the full sheet;
// only rows between HeaderOffset and LastRow are read. Noise rows are dropped.
func BuildRecords(layout Layout, rows []Row, defaults Fields) BuildResult {
	var result BuildResult

	idCol, ok := layout.identityColumn()
	if !ok {
		return result
	}

	last := len(rows) - 1
	if layout.LastRow > 0 && layout.LastRow < last {
		last = layout.LastRow
	}

	for i := layout.HeaderOffset; i <= last; i++ {
		row := rows[i]
		identity, _ := row.Cell(idCol.Index).Raw()
		if ExcludeRow(identity) {
			result.Excluded++
			continue
		}

		rec := BuildRecord(layout, i, row, defaults)
		result.Warnings = append(result.Warnings, rec.warnings...)
		result.Records = append(result.Records, rec)
	}

	return result
}

// BuildRecord normalizes a single row. Fields in defaults fill gaps the row
// leaves; they never override a value read from the sheet.
func BuildRecord(layout Layout, index int, row Row, defaults Fields) SourceRecord {
	fields := make(Fields, len(layout.Columns)+len(defaults))
	var warnings []ParseWarning

	warn := func(field, value, msg string) {
		warnings = append(warnings, ParseWarning{Row: index, Field: field, Value: value, Message: msg})
	}

	for _, col := range layout.Columns {
		cell := row.Cell(col.Index)
		raw, present := cell.Raw()

		switch col.Type {
		case ColumnName:
			if v, ok := NormalizeName(raw); ok {
				fields[col.Field] = v
			}

		case ColumnClassCode:
			label, section, hasSection := NormalizeClassCode(raw)
			fields[col.Field] = label
			if hasSection && section != "" {
				fields[FieldSection] = section
			}

		case ColumnRegistration:
			if v, ok := NormalizeRegistrationNumber(raw); ok {
				fields[col.Field] = v
			}

		case ColumnDate:
			v, ok := NormalizeDateCell(cell)
			if ok {
				fields[col.Field] = v
			} else if text, filled := NormalizeText(raw); present && filled {
				warn(col.Field, text, "unrecognized date, value dropped")
			}

		case ColumnMoney:
			fallback := layout.feeFallback()
			v, ok := NormalizeMoney(raw, fallback)
			if cell.Kind == CellNumber {
				v, ok = cell.Number, true
			}
			text, filled := NormalizeText(raw)
			switch {
			case !ok && filled:
				warn(col.Field, text, fmt.Sprintf("unreadable amount replaced by fallback fee %.0f", fallback))
			case ok && v == 0:
				v = fallback
				warn(col.Field, text, fmt.Sprintf("zero amount replaced by fallback fee %.0f", fallback))
			}
			fields[col.Field] = v

		case ColumnInt:
			if v, ok := NormalizeInt(raw); ok {
				fields[col.Field] = v
			} else if text, filled := NormalizeText(raw); filled {
				warn(col.Field, text, "not a whole number, value dropped")
			}

		default:
			if v, ok := NormalizeText(raw); ok {
				fields[col.Field] = v
			}
		}
	}

	for k, v := range defaults {
		if !fields.Has(k) {
			fields[k] = v
		}
	}

	return NewSourceRecord(layout.Kind, index, fields, warnings)
}
