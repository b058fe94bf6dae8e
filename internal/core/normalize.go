package core

// normalize.go turns raw spreadsheet cells into canonical field values.
//
// These functions handle the messy reality of hand-maintained fee and fleet
// sheets:
//   - Roman numeral class codes with a trailing section ("XII B")
//   - Day-first dates in several separators, plus spreadsheet timestamps
//   - Rupee amounts written as "₹1,500/-"
//   - Placeholder cells ("…", "nan") that mean "nothing here"
//
// Every function is total: malformed input yields an absent value (ok=false)
// or a fallback, never a panic or an error.

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultFeeFallback is the monthly fee used when a fee cell cannot be read.
const DefaultFeeFallback = 1500

// UnknownClass is the label for rows without a usable class code.
const UnknownClass = "Unknown"

// romanClasses is ordered longest numeral first so "XII B" never matches "X".
var romanClasses = []struct {
	numeral string
	label   string
}{
	{"VIII", "8"},
	{"XII", "12"},
	{"VII", "7"},
	{"III", "3"},
	{"XI", "11"},
	{"IX", "9"},
	{"VI", "6"},
	{"IV", "4"},
	{"II", "2"},
	{"X", "10"},
	{"V", "5"},
	{"I", "1"},
}

// dateLayouts are tried in order; day-first layouts come before ISO because the
// sheets are maintained in day-first locales.
var dateLayouts = []string{
	"2.1.2006",
	"2/1/2006",
	"2006-1-2",
	"2-1-2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// placeholderValues are cell contents that mean the value was never filled in.
var placeholderValues = map[string]bool{
	"":     true,
	"…":    true,
	"….":   true,
	"...":  true,
	"nan":  true,
	"none": true,
	"nat":  true,
	"null": true,
	"-":    true,
	"--":   true,
	"n/a":  true,
}

// headerRepeats are identity cells that are really a repeated header row.
var headerRepeats = map[string]bool{
	"student name": true,
	"name":         true,
	"driver name":  true,
	"bus no":       true,
	"bus no.":      true,
	"vehicle no":   true,
}

var moneyStrip = regexp.MustCompile(`[^0-9.]`)

// NormalizeText trims a cell and drops placeholder values.
func NormalizeText(raw string) (string, bool) {
	s := strings.TrimSpace(CleanCell(raw))
	if placeholderValues[strings.ToLower(s)] {
		return "", false
	}
	return s, true
}

// NormalizeName trims a name and collapses inner whitespace, keeping case.
func NormalizeName(raw string) (string, bool) {
	s, ok := NormalizeText(raw)
	if !ok {
		return "", false
	}
	return strings.Join(strings.Fields(s), " "), true
}

// NormalizeClassCode maps a class cell to a store label and an optional section.
//
//	"XII B" -> ("12", "B", true)
//	"X"     -> ("X", "", false)
//	"UKG"   -> ("UKG", "", false)
//	"NUR"   -> ("Nursery", "", false)
//	""      -> ("Unknown", "", false)
func NormalizeClassCode(raw string) (label, section string, hasSection bool) {
	s, ok := NormalizeText(raw)
	if !ok {
		return UnknownClass, "", false
	}

	upper := strings.ToUpper(s)
	switch {
	case strings.Contains(upper, "UKG"):
		return "UKG", "", false
	case strings.Contains(upper, "LKG"):
		return "LKG", "", false
	case strings.Contains(upper, "NUR"):
		return "Nursery", "", false
	}

	for _, rc := range romanClasses {
		prefix := rc.numeral + " "
		if !strings.HasPrefix(upper, prefix) {
			continue
		}
		return rc.label, strings.TrimSpace(s[len(prefix):]), true
	}

	return s, "", false
}

// NormalizeRegistrationNumber canonicalizes a vehicle plate:
// upper case, dashes read as spaces, whitespace collapsed.
//
//	"pb-10 ab 1234" -> "PB 10 AB 1234"
func NormalizeRegistrationNumber(raw string) (string, bool) {
	s, ok := NormalizeText(raw)
	if !ok {
		return "", false
	}
	s = strings.ReplaceAll(strings.ToUpper(s), "-", " ")
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "", false
	}
	return s, true
}

// NormalizeDate parses a day-first date and returns it as YYYY-MM-DD.
// ok is false for blank and unparsable input.
func NormalizeDate(raw string) (string, bool) {
	s, ok := NormalizeText(raw)
	if !ok {
		return "", false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

// NormalizeDateCell reads a date from a cell, using the typed value when the
// workbook already stored a date.
func NormalizeDateCell(c Cell) (string, bool) {
	switch c.Kind {
	case CellDate:
		if c.Time.IsZero() {
			return "", false
		}
		return c.Time.Format("2006-01-02"), true
	case CellText:
		return NormalizeDate(c.Text)
	default:
		return "", false
	}
}

// NormalizeMoney keeps only digits and the decimal point and parses the rest.
// ok is false when fallback was used.
//
//	"₹1,500/-" -> (1500, true)
//	""         -> (fallback, false)
func NormalizeMoney(raw string, fallback float64) (float64, bool) {
	s, ok := NormalizeText(raw)
	if !ok {
		return fallback, false
	}
	// "Rs. 1500" leaves a stray leading dot behind.
	digits := strings.Trim(moneyStrip.ReplaceAllString(s, ""), ".")
	if digits == "" {
		return fallback, false
	}
	v, err := strconv.ParseFloat(digits, 64)
	if err != nil || math.IsInf(v, 0) {
		return fallback, false
	}
	return v, true
}

// NormalizeInt reads a whole number, tolerating a ".0" suffix from numeric cells.
func NormalizeInt(raw string) (int, bool) {
	s, ok := NormalizeText(raw)
	if !ok {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", "")
	if i, err := strconv.Atoi(s); err == nil {
		return i, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// ExcludeRow reports whether a row is noise rather than data, judged by its
// identity cell: blank, a totals line, or a repeated header.
func ExcludeRow(identity string) bool {
	s, ok := NormalizeText(identity)
	if !ok {
		return true
	}
	lower := strings.ToLower(strings.Join(strings.Fields(s), " "))
	if strings.Contains(lower, "total") {
		return true
	}
	return headerRepeats[lower]
}

// CleanCell removes common export artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.TrimSpace(strings.Trim(s, `"'`))
}
