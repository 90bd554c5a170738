// Package mapping turns stored CRM records into analytics records using a
// sync configuration's field mappings.
package mapping

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/macjediwizard/syncbridge/internal/analytics"
	"github.com/macjediwizard/syncbridge/internal/api"
	"github.com/macjediwizard/syncbridge/internal/db"
)

var (
	ErrNoIdentityMapping = errors.New("identity mapping is required")
	ErrNoEventName       = errors.New("event name mapping is required")
	ErrMissingIdentity   = errors.New("record has no identity value")
	ErrCoercion          = errors.New("value cannot be converted")
)

const datePrefix = "$D_"

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Plan is a validated mapping set ready to apply to many records.
type Plan struct {
	target         db.TargetEntity
	identitySource string
	eventName      string
	fields         []*db.FieldMapping
}

// NewPlan validates a mapping set for a target entity.
func NewPlan(target db.TargetEntity, mappings []*db.FieldMapping) (*Plan, error) {
	p := &Plan{target: target}
	for _, m := range mappings {
		switch {
		case m.IsMandatory && m.Field == api.IdentityField:
			p.identitySource = m.SourceField
		case m.IsMandatory && m.Field == api.EventNameField:
			p.eventName = m.SourceField
		default:
			p.fields = append(p.fields, m)
		}
	}

	if p.identitySource == "" {
		return nil, ErrNoIdentityMapping
	}
	if target == db.TargetEvent && strings.TrimSpace(p.eventName) == "" {
		return nil, ErrNoEventName
	}
	return p, nil
}

// FieldError reports one dropped field of a record.
type FieldError struct {
	RecordID string
	Field    string
	Err      error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("record %s field %s: %v", e.RecordID, e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Transform maps one record. Fields that fail coercion are left out and
// returned as FieldErrors next to the record. A record without an identity
// value returns ErrMissingIdentity.
func (p *Plan) Transform(rec *db.SourceRecord) (*analytics.Record, []error, error) {
	identity := stringValue(rec.Fields[p.identitySource])
	if identity == "" {
		return nil, nil, fmt.Errorf("%w: %s", ErrMissingIdentity, rec.RecordID)
	}

	data := make(map[string]any, len(p.fields))
	var fieldErrs []error
	for _, m := range p.fields {
		raw, ok := rec.Fields[m.SourceField]
		if !ok || raw == nil {
			continue
		}
		v, err := Coerce(raw, m.DataType)
		if err != nil {
			fieldErrs = append(fieldErrs, &FieldError{RecordID: rec.RecordID, Field: m.Field, Err: err})
			continue
		}
		data[m.Field] = v
	}

	out := &analytics.Record{Identity: identity}
	if !rec.UpdatedAt.IsZero() {
		out.TS = rec.UpdatedAt.Unix()
	}
	if p.target == db.TargetEvent {
		out.Type = analytics.TypeEvent
		out.EvtName = p.eventName
		out.EvtData = data
	} else {
		out.Type = analytics.TypeProfile
		out.ProfileData = data
	}
	return out, fieldErrs, nil
}

// Coerce converts a JSON value to the representation of a data type.
// Unknown types are treated as Text.
func Coerce(v any, dataType db.DataType) (any, error) {
	switch dataType {
	case db.DataTypeNumber:
		return toNumber(v)
	case db.DataTypeDate:
		return toDate(v)
	case db.DataTypeBoolean:
		return toBool(v)
	default:
		return stringValue(v), nil
	}
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func toNumber(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("%w: %q to Number", ErrCoercion, t)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %T to Number", ErrCoercion, v)
	}
}

func toDate(v any) (string, error) {
	switch t := v.(type) {
	case float64:
		// Epoch milliseconds.
		return fmt.Sprintf("%s%d", datePrefix, int64(t)/1000), nil
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return fmt.Sprintf("%s%d", datePrefix, ts.Unix()), nil
			}
		}
		return "", fmt.Errorf("%w: %q to Date", ErrCoercion, t)
	default:
		return "", fmt.Errorf("%w: %T to Date", ErrCoercion, v)
	}
}

func toBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case float64:
		return t != 0, nil
	case string:
		b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(t)))
		if err != nil {
			return false, fmt.Errorf("%w: %q to Boolean", ErrCoercion, t)
		}
		return b, nil
	default:
		return false, fmt.Errorf("%w: %T to Boolean", ErrCoercion, v)
	}
}
