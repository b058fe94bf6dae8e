package core

// Default values used when creating records the sheet only partly describes.
const (
	DefaultParentName    = "Parent"
	DefaultParentContact = "0000000000"
	DefaultVillage       = "Unknown"
	DefaultDriverStatus  = "active"

	RoleDriver    = "driver"
	RoleConductor = "conductor"
)

// Assignments reports who currently holds a reference, e.g. which vehicle a
// driver is the primary driver of.
type Assignments interface {
	HolderOf(field, refID string) (holder string, ok bool)
}

type noAssignments struct{}

func (noAssignments) HolderOf(string, string) (string, bool) { return "", false }

// Plan decides what to do with one source record.
//
// Without a match the record is created with kind defaults filled in, or
// rejected with a MissingFieldError. With a match only fields the target does
// not have yet are sent; existing values are never overwritten. A matched
// record with nothing to add is skipped.
func Plan(source SourceRecord, match MatchResult, required []string, assignments Assignments) (ChangePlan, error) {
	if assignments == nil {
		assignments = noAssignments{}
	}
	if !match.Found() {
		return planCreate(source, required, assignments)
	}
	return planPatch(source, match.Target, assignments), nil
}

func planCreate(source SourceRecord, required []string, assignments Assignments) (ChangePlan, error) {
	fields := source.Fields()
	for f := range sourceOnlyFields {
		delete(fields, f)
	}
	applyKindDefaults(source.Kind(), fields)

	if source.Kind() == KindDriver {
		if role, _ := fields.Text(FieldRole); role == RoleDriver {
			required = append(required[:len(required):len(required)], FieldLicenseNumber, FieldLicenseExpiry)
		}
	}
	if err := CheckRequired(source.Kind(), source.Row(), fields, required); err != nil {
		return ChangePlan{}, err
	}

	plan := CreatePlan(fields)
	for _, field := range sortedRelationshipFields(fields) {
		ref, _ := fields.Text(field)
		if holder, held := assignments.HolderOf(field, ref); held {
			delete(fields, field)
			plan.Conflicts = append(plan.Conflicts, RelationshipConflict{Field: field, RefID: ref, HeldBy: holder})
		}
	}
	return plan, nil
}

func planPatch(source SourceRecord, target TargetRecord, assignments Assignments) ChangePlan {
	fields := make(Fields)
	var conflicts []RelationshipConflict

	all := source.Fields()
	withheld := withheldLicense(source.Kind(), all, target)
	for _, k := range all.Keys() {
		if sourceOnlyFields[k] || !all.Has(k) || target.Has(k) || withheld[k] {
			continue
		}
		if _, isRef := relationshipFields[k]; isRef {
			ref, _ := all.Text(k)
			if holder, held := assignments.HolderOf(k, ref); held && holder != target.ID {
				conflicts = append(conflicts, RelationshipConflict{Field: k, RefID: ref, HeldBy: holder})
				continue
			}
		}
		fields[k] = all[k]
	}

	if len(fields) == 0 {
		plan := SkipPlan(target.ID)
		plan.Conflicts = conflicts
		return plan
	}
	plan := PatchPlan(target.ID, fields)
	plan.Conflicts = conflicts
	return plan
}

// applyKindDefaults fills fields every new record of kind must have.
func applyKindDefaults(kind Kind, fields Fields) {
	setDefault := func(field string, value any) {
		if !fields.Has(field) {
			fields[field] = value
		}
	}

	switch kind {
	case KindStudent:
		setDefault(FieldParentName, DefaultParentName)
		setDefault(FieldParentContact, DefaultParentContact)
		setDefault(FieldVillage, DefaultVillage)

	case KindDriver:
		setDefault(FieldStatus, DefaultDriverStatus)
		role := derivedRole(fields)
		fields[FieldRole] = role
		if role != RoleDriver {
			delete(fields, FieldLicenseNumber)
			delete(fields, FieldLicenseExpiry)
		}
	}
}

// derivedRole is the role a new driver record gets: the sheet's own role,
// else driver when both license fields are present, else conductor.
func derivedRole(fields Fields) string {
	if role, ok := fields.Text(FieldRole); ok {
		return role
	}
	if fields.Has(FieldLicenseNumber) && fields.Has(FieldLicenseExpiry) {
		return RoleDriver
	}
	return RoleConductor
}

var licenseFields = map[string]bool{FieldLicenseNumber: true, FieldLicenseExpiry: true}

// withheldLicense returns the license fields a patch must not send: the ones
// a Create from the same source would drop, unless the target is a driver.
// A conductor created on one run is then not patched with a partial license
// on the next.
func withheldLicense(kind Kind, source Fields, target TargetRecord) map[string]bool {
	if kind != KindDriver || derivedRole(source) == RoleDriver {
		return nil
	}
	if role, _ := target.Fields.Text(FieldRole); role == RoleDriver {
		return nil
	}
	return licenseFields
}

func sortedRelationshipFields(fields Fields) []string {
	var out []string
	for _, k := range fields.Keys() {
		if _, ok := relationshipFields[k]; ok && fields.Has(k) {
			out = append(out, k)
		}
	}
	return out
}
