package core

// validation.go checks feed layouts when they are registered and records
// before they are created.
//
// Validation happens at two levels:
//  1. Layout validation: kind, row range and column mapping of a feed
//  2. Record validation: every required field of the kind must be present
//     before a Create is emitted

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a single validation error for a layout setting.
type ValidationError struct {
	Field   string // Setting name
	Value   string // The invalid value
	Message string // Human-readable error message
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

var requiredFields = map[Kind][]string{
	KindStudent: {FieldName, FieldClass, FieldVillage, FieldMonthlyFee, FieldParentName, FieldParentContact, FieldBusID},
	KindDriver:  {FieldName, FieldPhone, FieldRole},
	KindVehicle: {FieldRegistrationNumber, FieldChassisNumber, FieldSeatingCapacity, FieldPurchaseDate},
}

// RequiredFields returns the fields a new record of kind must carry.
func RequiredFields(kind Kind) []string {
	return append([]string(nil), requiredFields[kind]...)
}

// CheckRequired returns a MissingFieldError for the first required field
// absent from fields.
func CheckRequired(kind Kind, row int, fields Fields, required []string) error {
	for _, f := range required {
		if !fields.Has(f) {
			return &MissingFieldError{Kind: kind, Field: f, Row: row}
		}
	}
	return nil
}

// Validate checks that a layout can be used to read a sheet.
// All problems are reported at once.
func (l Layout) Validate() error {
	var errs []error

	if !l.Kind.Valid() {
		errs = append(errs, ValidationError{Field: "kind", Value: string(l.Kind), Message: "must be student, driver or vehicle"})
	}
	if l.HeaderOffset < 0 {
		errs = append(errs, ValidationError{Field: "headerOffset", Value: fmt.Sprint(l.HeaderOffset), Message: "must be non-negative"})
	}
	if l.LastRow != 0 && l.LastRow < l.HeaderOffset {
		errs = append(errs, ValidationError{Field: "lastRow", Value: fmt.Sprint(l.LastRow), Message: "must not be before headerOffset"})
	}
	if l.FeeFallback < 0 {
		errs = append(errs, ValidationError{Field: "feeFallback", Value: fmt.Sprint(l.FeeFallback), Message: "must be non-negative"})
	}

	if len(l.Columns) == 0 {
		errs = append(errs, ValidationError{Field: "columns", Message: "at least one column is required"})
	}

	seenIndex := make(map[int]bool)
	seenField := make(map[string]bool)
	for _, c := range l.Columns {
		name := fmt.Sprintf("columns[%d]", c.Index)
		if c.Index < 0 {
			errs = append(errs, ValidationError{Field: name, Message: "index must be non-negative"})
		}
		if seenIndex[c.Index] {
			errs = append(errs, ValidationError{Field: name, Message: "column mapped twice"})
		}
		seenIndex[c.Index] = true

		if strings.TrimSpace(c.Field) == "" {
			errs = append(errs, ValidationError{Field: name, Message: "field is required"})
		} else if seenField[c.Field] {
			errs = append(errs, ValidationError{Field: name, Value: c.Field, Message: "field mapped twice"})
		}
		seenField[c.Field] = true

		if !columnTypes[c.Type] {
			errs = append(errs, ValidationError{Field: name, Value: string(c.Type), Message: "unknown column type"})
		}
	}

	if l.Kind.Valid() {
		if _, ok := l.identityColumn(); !ok {
			errs = append(errs, ValidationError{
				Field:   "columns",
				Message: fmt.Sprintf("a %s layout needs a %q column", l.Kind, identityField(l.Kind)),
			})
		}
	}

	return errors.Join(errs...)
}
