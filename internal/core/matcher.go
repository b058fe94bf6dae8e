package core

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// identityField is the field that identifies a record of the given kind.
func identityField(kind Kind) string {
	if kind == KindVehicle {
		return FieldRegistrationNumber
	}
	return FieldName
}

// IdentityKey derives the comparison key of a record. Names are case folded
// with whitespace collapsed; registration numbers are canonicalized first.
// Keys are never persisted.
func IdentityKey(kind Kind, fields Fields) string {
	raw, ok := fields.Text(identityField(kind))
	if !ok {
		return ""
	}
	if kind == KindVehicle {
		reg, ok := NormalizeRegistrationNumber(raw)
		if !ok {
			return ""
		}
		return foldKey(reg)
	}
	return foldKey(raw)
}

// foldKey case folds s and collapses whitespace.
// Casers are stateful and must not be shared between goroutines.
func foldKey(s string) string {
	s = cases.Fold().String(norm.NFC.String(s))
	return strings.Join(strings.Fields(s), " ")
}

// compactKey drops all whitespace: "om parkash" and "omparkash" compare equal.
func compactKey(key string) string {
	return strings.Join(strings.Fields(key), "")
}

// DefaultAliases are spellings that differ between the fleet sheets and the
// driver records.
var DefaultAliases = map[string]string{
	"sampuran singh": "sampooran singh",
	"omparkash":      "om parkash",
}

// AliasTable maps an identity key to an alternate spelling of the same identity.
type AliasTable map[string]string

// NewAliasTable builds a table from raw name pairs; keys and values are folded.
func NewAliasTable(sets ...map[string]string) AliasTable {
	table := make(AliasTable)
	for _, set := range sets {
		for from, to := range set {
			k, v := foldKey(from), foldKey(to)
			if k == "" || v == "" || k == v {
				continue
			}
			table[k] = v
		}
	}
	return table
}

// Lookup returns the alternate spelling for key, trying its compact form too.
func (a AliasTable) Lookup(key string) (string, bool) {
	if alt, ok := a[key]; ok {
		return alt, true
	}
	compact := compactKey(key)
	for from, to := range a {
		if compactKey(from) == compact {
			return to, true
		}
	}
	return "", false
}

// MatchLevel records which rung of the matching ladder produced a hit.
type MatchLevel int

const (
	MatchNone MatchLevel = iota
	MatchExact
	MatchCompact
	MatchAlias
)

func (l MatchLevel) String() string {
	switch l {
	case MatchExact:
		return "exact"
	case MatchCompact:
		return "whitespace"
	case MatchAlias:
		return "alias"
	default:
		return "none"
	}
}

// MatchResult is the outcome of looking a record up in a snapshot.
type MatchResult struct {
	Target TargetRecord
	Level  MatchLevel

	// Ambiguous counts the extra candidates that matched at the same level.
	// The first candidate in snapshot order wins.
	Ambiguous int
}

// NoMatch is the result when no target shares the identity key.
var NoMatch = MatchResult{}

// Found reports whether a target was matched.
func (m MatchResult) Found() bool {
	return m.Level != MatchNone
}

// Matcher finds the target record that a source record refers to.
type Matcher struct {
	aliases AliasTable
}

// NewMatcher creates a matcher. A nil alias table uses DefaultAliases.
func NewMatcher(aliases AliasTable) *Matcher {
	if aliases == nil {
		aliases = NewAliasTable(DefaultAliases)
	}
	return &Matcher{aliases: aliases}
}

// FindMatch looks source up in targets:
//  1. exact identity key
//  2. identity key with all whitespace removed
//  3. alias of the identity key, exact then whitespace-insensitive
func (m *Matcher) FindMatch(source SourceRecord, targets []TargetRecord) MatchResult {
	return m.FindByKey(source.Kind(), source.Key(), targets)
}

// ResolveName finds the driver whose name matches name. It drives relationship
// hints such as a vehicle's driverName column.
func (m *Matcher) ResolveName(name string, drivers []TargetRecord) MatchResult {
	return m.FindByKey(KindDriver, foldKey(name), drivers)
}

// FindByKey runs the matching ladder for an already derived identity key.
func (m *Matcher) FindByKey(kind Kind, key string, targets []TargetRecord) MatchResult {
	if key == "" || len(targets) == 0 {
		return NoMatch
	}

	keys := make([]string, len(targets))
	for i, t := range targets {
		keys[i] = IdentityKey(kind, t.Fields)
	}

	if r := scan(targets, keys, key, MatchExact); r.Found() {
		return r
	}
	if r := scan(targets, keys, key, MatchCompact); r.Found() {
		return r
	}

	alt, ok := m.aliases.Lookup(key)
	if !ok {
		return NoMatch
	}
	r := scan(targets, keys, alt, MatchExact)
	if !r.Found() {
		r = scan(targets, keys, alt, MatchCompact)
	}
	if r.Found() {
		r.Level = MatchAlias
	}
	return r
}

func scan(targets []TargetRecord, keys []string, key string, level MatchLevel) MatchResult {
	want := key
	if level == MatchCompact {
		want = compactKey(key)
	}

	result := NoMatch
	for i, k := range keys {
		if k == "" {
			continue
		}
		if level == MatchCompact {
			k = compactKey(k)
		}
		if k != want {
			continue
		}
		if result.Found() {
			result.Ambiguous++
			continue
		}
		result = MatchResult{Target: targets[i], Level: level}
	}
	return result
}

// DuplicateKey describes targets that share one identity key.
type DuplicateKey struct {
	Key string
	IDs []string
}

// CheckUniqueKeys reports identity keys held by more than one target, in
// snapshot order of first appearance.
func CheckUniqueKeys(kind Kind, targets []TargetRecord) []DuplicateKey {
	var dups []DuplicateKey
	var order []string
	ids := make(map[string][]string)

	for _, t := range targets {
		k := IdentityKey(kind, t.Fields)
		if k == "" {
			continue
		}
		if _, seen := ids[k]; !seen {
			order = append(order, k)
		}
		ids[k] = append(ids[k], t.ID)
	}

	for _, k := range order {
		if len(ids[k]) < 2 {
			continue
		}
		dups = append(dups, DuplicateKey{Key: k, IDs: ids[k]})
	}
	return dups
}
