package console

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/macjediwizard/syncbridge/internal/api"
)

const maxFieldNameLength = 120

// Row is an optional mapping being edited. ID is transient and never persisted.
type Row struct {
	ID          int
	Field       string
	SourceField string
	DataType    string
}

// complete reports whether the row has both sides set and will be saved.
func (r Row) complete() bool {
	return r.Field != "" && r.SourceField != ""
}

// EditorOptions configures a MappingEditor.
type EditorOptions struct {
	SyncID       string
	SourceEntity string
	TargetEntity string
	OnSave       func()
	OnCancel     func(ctx context.Context)
}

// MappingEditor edits the field mapping set of one sync configuration.
type MappingEditor struct {
	backend MappingBackend
	toaster Toaster
	opts    EditorOptions

	options        []api.FieldOption
	identitySource string
	eventName      string
	rows           []Row
	nextID         int
	loading        bool
}

// NewMappingEditor creates an editor. Call Activate to load its data.
func NewMappingEditor(backend MappingBackend, toaster Toaster, opts EditorOptions) *MappingEditor {
	e := &MappingEditor{
		backend: backend,
		toaster: toaster,
		opts:    opts,
	}
	if e.IsEvent() {
		e.eventName = defaultEventName(opts.SourceEntity)
	}
	return e
}

func defaultEventName(sourceEntity string) string {
	return "sf_" + strings.ToLower(sourceEntity)
}

// IsEvent reports whether the target requires an event name.
func (e *MappingEditor) IsEvent() bool { return e.opts.TargetEntity == api.TargetEvent }

// SyncID returns the configuration being mapped.
func (e *MappingEditor) SyncID() string { return e.opts.SyncID }

// FieldOptions returns the selectable source fields.
func (e *MappingEditor) FieldOptions() []api.FieldOption { return e.options }

// IdentitySource returns the source field mapped to the identity slot.
func (e *MappingEditor) IdentitySource() string { return e.identitySource }

// EventName returns the literal event name.
func (e *MappingEditor) EventName() string { return e.eventName }

// Rows returns a copy of the optional rows.
func (e *MappingEditor) Rows() []Row {
	out := make([]Row, len(e.rows))
	copy(out, e.rows)
	return out
}

// Loading reports whether a remote call is in flight.
func (e *MappingEditor) Loading() bool { return e.loading }

// Activate loads the selectable fields and the saved mappings.
func (e *MappingEditor) Activate(ctx context.Context) error {
	if e.opts.SourceEntity == "" {
		return nil
	}

	e.loading = true
	defer func() { e.loading = false }()

	var errs []error

	options, err := e.backend.ListFields(ctx, e.opts.SourceEntity)
	if err != nil {
		toastError(e.toaster, "Failed to load source fields: "+errorMessage(err, "Unknown error"))
		errs = append(errs, err)
	} else {
		e.options = options
	}

	e.seedPredefinedRows()

	existing, err := e.backend.GetFieldMappings(ctx, e.opts.SyncID)
	if err != nil {
		toastError(e.toaster, "Failed to load existing mappings: "+errorMessage(err, "Unknown error"))
		errs = append(errs, err)
	} else if len(existing) > 0 {
		e.applyExisting(existing)
		e.seedPredefinedRows()
	}

	return errors.Join(errs...)
}

func (e *MappingEditor) applyExisting(existing []api.FieldMapping) {
	rows := make([]Row, 0, len(existing))
	for _, m := range existing {
		switch {
		case m.IsMandatory && m.Field == api.IdentityField:
			e.identitySource = m.SalesforceField
		case m.IsMandatory && m.Field == api.EventNameField:
			if m.SalesforceField != "" {
				e.eventName = m.SalesforceField
			}
		default:
			dataType := m.DataType
			if dataType == "" {
				dataType = api.DataTypeText
			}
			rows = append(rows, Row{ID: e.newID(), Field: m.Field, SourceField: m.SalesforceField, DataType: dataType})
		}
	}
	e.rows = rows
}

// seedPredefinedRows adds the Lead status row for event targets when absent.
func (e *MappingEditor) seedPredefinedRows() {
	if !e.IsEvent() || e.opts.SourceEntity != "Lead" {
		return
	}
	for _, r := range e.rows {
		if strings.EqualFold(r.Field, "status") {
			return
		}
	}
	e.rows = append(append([]Row{}, e.rows...), Row{ID: e.newID(), Field: "status", DataType: api.DataTypeText})
}

func (e *MappingEditor) newID() int {
	e.nextID++
	return e.nextID
}

// SetIdentitySource maps the identity slot to a source field.
func (e *MappingEditor) SetIdentitySource(field string) { e.identitySource = field }

// SetEventName sets the literal event name.
func (e *MappingEditor) SetEventName(name string) { e.eventName = name }

// AddRow appends an empty Text row and returns its id.
func (e *MappingEditor) AddRow() int {
	id := e.newID()
	e.rows = append(append([]Row{}, e.rows...), Row{ID: id, DataType: api.DataTypeText})
	return id
}

// UpdateRow replaces the row with the given id.
func (e *MappingEditor) UpdateRow(id int, fn func(Row) Row) error {
	for i, r := range e.rows {
		if r.ID != id {
			continue
		}
		next := make([]Row, len(e.rows))
		copy(next, e.rows)
		updated := fn(r)
		updated.ID = id
		next[i] = updated
		e.rows = next
		return nil
	}
	return fmt.Errorf("%w: no mapping row %d", ErrValidation, id)
}

// DeleteRow removes the row with the given id.
func (e *MappingEditor) DeleteRow(id int) {
	next := make([]Row, 0, len(e.rows))
	for _, r := range e.rows {
		if r.ID != id {
			next = append(next, r)
		}
	}
	e.rows = next
}

// Payload serializes the mandatory slots and every complete optional row.
func (e *MappingEditor) Payload() []api.FieldMapping {
	out := []api.FieldMapping{{
		Field:           api.IdentityField,
		SalesforceField: e.identitySource,
		DataType:        api.DataTypeText,
		IsMandatory:     true,
	}}
	if e.IsEvent() {
		out = append(out, api.FieldMapping{
			Field:           api.EventNameField,
			SalesforceField: e.eventName,
			DataType:        api.DataTypeText,
			IsMandatory:     true,
		})
	}
	for _, r := range e.rows {
		if !r.complete() {
			continue
		}
		dataType := r.DataType
		if dataType == "" {
			dataType = api.DataTypeText
		}
		out = append(out, api.FieldMapping{Field: r.Field, SalesforceField: r.SourceField, DataType: dataType})
	}
	return out
}

// Save validates and persists the mapping set in one call.
func (e *MappingEditor) Save(ctx context.Context) error {
	if err := e.Validate(); err != nil {
		return err
	}

	e.loading = true
	defer func() { e.loading = false }()

	if err := e.backend.SaveFieldMappings(ctx, e.opts.SyncID, e.Payload()); err != nil {
		toastError(e.toaster, "Failed to save mappings: "+errorMessage(err, "Unknown error"))
		return err
	}

	toastSuccess(e.toaster, "Field mappings saved successfully")
	if e.opts.OnSave != nil {
		e.opts.OnSave()
	}
	return nil
}

// Cancel leaves the editor without saving.
func (e *MappingEditor) Cancel(ctx context.Context) {
	if e.opts.OnCancel != nil {
		e.opts.OnCancel(ctx)
	}
}

// Validate checks the mapping set and toasts the first problem found.
func (e *MappingEditor) Validate() error {
	fail := func(msg string) error {
		toastError(e.toaster, msg)
		return fmt.Errorf("%w: %s", ErrValidation, msg)
	}

	if e.identitySource == "" {
		return fail("Please map the mandatory customer ID field")
	}
	if e.IsEvent() && strings.TrimSpace(e.eventName) == "" {
		return fail("Please provide an event name")
	}
	if !e.knownSource(e.identitySource) {
		return fail(fmt.Sprintf("Unknown source field %q", e.identitySource))
	}

	for _, r := range e.rows {
		if err := e.validateRow(r); err != "" {
			return fail(err)
		}
	}

	seen := make(map[string]bool, len(e.rows))
	for _, r := range e.rows {
		if r.Field == "" {
			continue
		}
		key := strings.ToLower(r.Field)
		if seen[key] {
			return fail("Duplicate target field names are not allowed")
		}
		seen[key] = true
	}
	return nil
}

func (e *MappingEditor) validateRow(r Row) string {
	if r.DataType != "" && !api.Contains(api.DataTypes, r.DataType) {
		return fmt.Sprintf("Invalid data type %q", r.DataType)
	}
	if r.Field != "" {
		if strings.TrimSpace(r.Field) != r.Field || len(r.Field) > maxFieldNameLength {
			return fmt.Sprintf("Invalid target field name %q", r.Field)
		}
		if strings.EqualFold(r.Field, api.IdentityField) || strings.EqualFold(r.Field, api.EventNameField) {
			return fmt.Sprintf("%q is reserved for mandatory mappings", r.Field)
		}
	}
	if r.SourceField != "" && !e.knownSource(r.SourceField) {
		return fmt.Sprintf("Unknown source field %q", r.SourceField)
	}
	return ""
}

// knownSource reports whether field is selectable. Without loaded options
// every field is accepted.
func (e *MappingEditor) knownSource(field string) bool {
	if len(e.options) == 0 {
		return true
	}
	for _, o := range e.options {
		if o.Value == field {
			return true
		}
	}
	return false
}
