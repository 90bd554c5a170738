package mapping

import (
	"errors"
	"testing"
	"time"

	"github.com/macjediwizard/syncbridge/internal/analytics"
	"github.com/macjediwizard/syncbridge/internal/db"
)

func identity(source string) *db.FieldMapping {
	return &db.FieldMapping{Field: "Identity", SourceField: source, DataType: db.DataTypeText, IsMandatory: true}
}

func TestNewPlan(t *testing.T) {
	t.Run("requires identity", func(t *testing.T) {
		_, err := NewPlan(db.TargetProfile, []*db.FieldMapping{{Field: "email", SourceField: "Email"}})
		if !errors.Is(err, ErrNoIdentityMapping) {
			t.Errorf("expected ErrNoIdentityMapping, got %v", err)
		}
	})

	t.Run("event requires event name", func(t *testing.T) {
		_, err := NewPlan(db.TargetEvent, []*db.FieldMapping{identity("Id")})
		if !errors.Is(err, ErrNoEventName) {
			t.Errorf("expected ErrNoEventName, got %v", err)
		}
	})

	t.Run("profile without event name", func(t *testing.T) {
		if _, err := NewPlan(db.TargetProfile, []*db.FieldMapping{identity("Id")}); err != nil {
			t.Errorf("NewPlan failed: %v", err)
		}
	})
}

func TestTransform(t *testing.T) {
	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &db.SourceRecord{
		RecordID: "00Q1",
		Fields: map[string]any{
			"Id":            "00Q1",
			"Email":         "lead@example.com",
			"AnnualRevenue": "125000.50",
			"CreatedDate":   "2026-01-15T08:30:00.000+0000",
			"IsConverted":   "TRUE",
			"Rating":        "hot",
			"Status":        nil,
		},
		UpdatedAt: updated,
	}

	t.Run("event record", func(t *testing.T) {
		plan, err := NewPlan(db.TargetEvent, []*db.FieldMapping{
			identity("Id"),
			{Field: "evtName", SourceField: "lead_updated", DataType: db.DataTypeText, IsMandatory: true},
			{Field: "email", SourceField: "Email", DataType: db.DataTypeText},
			{Field: "revenue", SourceField: "AnnualRevenue", DataType: db.DataTypeNumber},
			{Field: "created", SourceField: "CreatedDate", DataType: db.DataTypeDate},
			{Field: "converted", SourceField: "IsConverted", DataType: db.DataTypeBoolean},
			{Field: "status", SourceField: "Status", DataType: db.DataTypeText},
		})
		if err != nil {
			t.Fatalf("NewPlan failed: %v", err)
		}

		out, fieldErrs, err := plan.Transform(rec)
		if err != nil {
			t.Fatalf("Transform failed: %v", err)
		}
		if len(fieldErrs) != 0 {
			t.Errorf("unexpected field errors: %v", fieldErrs)
		}
		if out.Type != analytics.TypeEvent || out.EvtName != "lead_updated" || out.Identity != "00Q1" {
			t.Errorf("unexpected record header: %+v", out)
		}
		if out.TS != updated.Unix() {
			t.Errorf("ts = %d, want %d", out.TS, updated.Unix())
		}
		want := map[string]any{
			"email":     "lead@example.com",
			"revenue":   125000.5,
			"created":   "$D_1768465800",
			"converted": true,
		}
		for k, v := range want {
			if out.EvtData[k] != v {
				t.Errorf("%s = %v, want %v", k, out.EvtData[k], v)
			}
		}
		if _, ok := out.EvtData["status"]; ok {
			t.Error("expected null source value to be skipped")
		}
		if out.ProfileData != nil {
			t.Error("expected no profile data on an event")
		}
	})

	t.Run("coercion failure drops only the field", func(t *testing.T) {
		plan, _ := NewPlan(db.TargetProfile, []*db.FieldMapping{
			identity("Id"),
			{Field: "rating", SourceField: "Rating", DataType: db.DataTypeNumber},
			{Field: "email", SourceField: "Email"},
		})

		out, fieldErrs, err := plan.Transform(rec)
		if err != nil {
			t.Fatalf("Transform failed: %v", err)
		}
		if len(fieldErrs) != 1 || !errors.Is(fieldErrs[0], ErrCoercion) {
			t.Fatalf("expected one coercion error, got %v", fieldErrs)
		}
		var fe *FieldError
		if !errors.As(fieldErrs[0], &fe) || fe.Field != "rating" {
			t.Errorf("unexpected field error %v", fieldErrs[0])
		}
		if out.Type != analytics.TypeProfile || out.ProfileData["email"] != "lead@example.com" {
			t.Errorf("unexpected profile %+v", out)
		}
		if _, ok := out.ProfileData["rating"]; ok {
			t.Error("expected rating dropped")
		}
	})

	t.Run("missing identity skips record", func(t *testing.T) {
		plan, _ := NewPlan(db.TargetProfile, []*db.FieldMapping{identity("ExternalId__c")})
		if _, _, err := plan.Transform(rec); !errors.Is(err, ErrMissingIdentity) {
			t.Errorf("expected ErrMissingIdentity, got %v", err)
		}
	})
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		dataType db.DataType
		want     any
		wantErr  bool
	}{
		{"number to text", 42.0, db.DataTypeText, "42", false},
		{"bool to text", false, db.DataTypeText, "false", false},
		{"unknown type is text", "x", db.DataType("Blob"), "x", false},
		{"string number", " 3.5 ", db.DataTypeNumber, 3.5, false},
		{"bad number", "abc", db.DataTypeNumber, nil, true},
		{"infinite number", "Inf", db.DataTypeNumber, nil, true},
		{"epoch millis date", 1700000000123.0, db.DataTypeDate, "$D_1700000000", false},
		{"plain date", "2026-01-02", db.DataTypeDate, "$D_1767312000", false},
		{"bad date", "yesterday", db.DataTypeDate, nil, true},
		{"numeric bool", 0.0, db.DataTypeBoolean, false, false},
		{"string bool", "True", db.DataTypeBoolean, true, false},
		{"bad bool", "maybe", db.DataTypeBoolean, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.value, tt.dataType)
			if tt.wantErr {
				if !errors.Is(err, ErrCoercion) {
					t.Errorf("expected ErrCoercion, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Coerce failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Coerce(%v, %s) = %v (%T), want %v (%T)", tt.value, tt.dataType, got, got, tt.want, tt.want)
			}
		})
	}
}
