package mapping

import (
	"errors"
	"fmt"
	"strings"

	"github.com/macjediwizard/syncbridge/internal/api"
	"github.com/macjediwizard/syncbridge/internal/db"
)

// ErrInvalidMapping is returned by ValidateSet.
var ErrInvalidMapping = errors.New("invalid field mapping")

const maxFieldNameLength = 120

// ValidateSet checks a submitted mapping set before it replaces the stored
// one. known reports whether a source field exists on the entity; a nil
// known accepts every field. The evtName source is a literal event name and
// is not checked against known.
func ValidateSet(target db.TargetEntity, set []api.FieldMapping, known func(string) bool) error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidMapping, fmt.Sprintf(format, args...))
	}
	if known == nil {
		known = func(string) bool { return true }
	}

	var identity, eventName int
	seen := make(map[string]bool, len(set))

	for _, m := range set {
		if m.DataType != "" && !api.Contains(api.DataTypes, m.DataType) {
			return fail("invalid data type %q", m.DataType)
		}

		if m.IsMandatory {
			switch m.Field {
			case api.IdentityField:
				identity++
				if m.SalesforceField == "" {
					return fail("Please map the mandatory customer ID field")
				}
				if !known(m.SalesforceField) {
					return fail("unknown source field %q", m.SalesforceField)
				}
			case api.EventNameField:
				eventName++
				if strings.TrimSpace(m.SalesforceField) == "" {
					return fail("Please provide an event name")
				}
			default:
				return fail("%q cannot be mandatory", m.Field)
			}
			continue
		}

		if m.Field == "" || m.SalesforceField == "" {
			return fail("target and source field are required")
		}
		if strings.TrimSpace(m.Field) != m.Field || len(m.Field) > maxFieldNameLength {
			return fail("invalid target field name %q", m.Field)
		}
		if strings.EqualFold(m.Field, api.IdentityField) || strings.EqualFold(m.Field, api.EventNameField) {
			return fail("%q is reserved for mandatory mappings", m.Field)
		}
		if !known(m.SalesforceField) {
			return fail("unknown source field %q", m.SalesforceField)
		}
		key := strings.ToLower(m.Field)
		if seen[key] {
			return fail("Duplicate target field names are not allowed")
		}
		seen[key] = true
	}

	if identity != 1 {
		return fail("Please map the mandatory customer ID field")
	}
	switch {
	case target == db.TargetEvent && eventName != 1:
		return fail("Please provide an event name")
	case target != db.TargetEvent && eventName != 0:
		return fail("event name mapping is only allowed for event targets")
	}
	return nil
}

// ToModels converts a validated set for storage, preserving order.
func ToModels(syncID string, set []api.FieldMapping) []*db.FieldMapping {
	out := make([]*db.FieldMapping, 0, len(set))
	for i, m := range set {
		dataType := db.DataType(m.DataType)
		if dataType == "" {
			dataType = db.DataTypeText
		}
		out = append(out, &db.FieldMapping{
			SyncID:      syncID,
			Field:       m.Field,
			SourceField: m.SalesforceField,
			DataType:    dataType,
			IsMandatory: m.IsMandatory,
			Position:    i,
		})
	}
	return out
}

// FromModels converts stored mappings to their API form.
func FromModels(models []*db.FieldMapping) []api.FieldMapping {
	out := make([]api.FieldMapping, 0, len(models))
	for _, m := range models {
		out = append(out, api.FieldMapping{
			Field:           m.Field,
			SalesforceField: m.SourceField,
			DataType:        string(m.DataType),
			IsMandatory:     m.IsMandatory,
		})
	}
	return out
}
