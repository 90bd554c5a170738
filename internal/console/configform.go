package console

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/macjediwizard/syncbridge/internal/api"
)

// Mode is whether the form creates a new configuration or edits an existing one.
type Mode string

const (
	ModeNew  Mode = "new"
	ModeEdit Mode = "edit"
)

// Step is the visible panel of the form.
type Step int

const (
	StepBasic Step = iota
	StepMapping
)

// FormField names an editable field of the form.
type FormField string

const (
	FieldName         FormField = "name"
	FieldSyncType     FormField = "syncType"
	FieldSourceEntity FormField = "sourceEntity"
	FieldTargetEntity FormField = "targetEntity"
	FieldStatus       FormField = "status"
)

// FormData is the value held by the form. It is replaced, never mutated, on change.
type FormData struct {
	Name         string
	SyncType     string
	SourceEntity string
	TargetEntity string
	Status       string
	ConnectionID string
}

// With returns a copy of d with field set to value.
func (d FormData) With(field FormField, value string) (FormData, error) {
	switch field {
	case FieldName:
		d.Name = value
	case FieldSyncType:
		d.SyncType = value
	case FieldSourceEntity:
		d.SourceEntity = value
	case FieldTargetEntity:
		d.TargetEntity = value
	case FieldStatus:
		d.Status = value
	default:
		return d, fmt.Errorf("%w: unknown field %q", ErrValidation, field)
	}
	return d, nil
}

func (d FormData) request() api.SaveSyncRequest {
	return api.SaveSyncRequest{
		Name:         d.Name,
		SyncType:     d.SyncType,
		SourceEntity: d.SourceEntity,
		TargetEntity: d.TargetEntity,
		Status:       d.Status,
		ConnectionID: d.ConnectionID,
	}
}

// FormOptions configures a ConfigForm.
type FormOptions struct {
	ConnectionID string
	Mode         Mode
	RecordID     string
	Logger       *log.Logger
	// OnCancel is called when the user leaves the form without saving.
	OnCancel func()
	// OnSave is called with the configuration id once mappings are saved.
	OnSave func(id string)
}

// ConfigForm creates or edits a sync configuration and then hands over to the
// field mapping editor.
type ConfigForm struct {
	syncs    SyncBackend
	mappings MappingBackend
	toaster  Toaster
	logger   *log.Logger
	opts     FormOptions

	data     FormData
	recordID string
	step     Step
	loading  bool
	editor   *MappingEditor
}

// NewConfigForm creates a form. A new-mode form starts with status Active.
func NewConfigForm(syncs SyncBackend, mappings MappingBackend, toaster Toaster, opts FormOptions) *ConfigForm {
	if opts.Mode == "" {
		opts.Mode = ModeNew
	}
	return &ConfigForm{
		syncs:    syncs,
		mappings: mappings,
		toaster:  toaster,
		logger:   defaultLogger(opts.Logger),
		opts:     opts,
		recordID: opts.RecordID,
		data: FormData{
			Status:       api.StatusActive,
			ConnectionID: opts.ConnectionID,
		},
	}
}

// Mode returns the form mode.
func (f *ConfigForm) Mode() Mode { return f.opts.Mode }

// Data returns the current form values.
func (f *ConfigForm) Data() FormData { return f.data }

// RecordID returns the id of the configuration being edited or the created draft.
func (f *ConfigForm) RecordID() string { return f.recordID }

// Step returns the visible panel.
func (f *ConfigForm) Step() Step { return f.step }

// Loading reports whether a remote call is in flight.
func (f *ConfigForm) Loading() bool { return f.loading }

// Editor returns the mapping editor while on the mapping step.
func (f *ConfigForm) Editor() *MappingEditor { return f.editor }

// Open loads the record in edit mode. It is a no-op in new mode.
func (f *ConfigForm) Open(ctx context.Context) error {
	if f.opts.Mode == ModeEdit && f.recordID != "" {
		return f.Load(ctx, f.recordID)
	}
	return nil
}

// isNotFound reports whether err is a not-found error body from the server.
func isNotFound(err error) bool {
	var apiErr *api.Error
	return errors.As(err, &apiErr) && (apiErr.Code == api.CodeNotFound || apiErr.Status == http.StatusNotFound)
}

// Load fetches a configuration into the form, keeping the connection already known.
func (f *ConfigForm) Load(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}

	f.loading = true
	defer func() { f.loading = false }()

	cfg, err := f.syncs.GetSyncConfiguration(ctx, id)
	if isNotFound(err) {
		cfg, err = nil, nil
	}
	if err != nil {
		toastError(f.toaster, "Error loading sync configuration: "+errorMessage(err, "Unknown error"))
		return err
	}
	if cfg == nil {
		f.toaster.Toast(Toast{Title: "Warning", Message: "No data found for this configuration", Variant: VariantWarning})
		return nil
	}

	status := cfg.Status
	if status == "" {
		status = api.StatusInactive
	}
	f.data = FormData{
		Name:         cfg.Name,
		SyncType:     cfg.SyncType,
		SourceEntity: cfg.SourceEntity,
		TargetEntity: cfg.TargetEntity,
		Status:       status,
		ConnectionID: f.data.ConnectionID,
	}
	f.recordID = cfg.ID
	return nil
}

// Set replaces one field value.
func (f *ConfigForm) Set(field FormField, value string) error {
	next, err := f.data.With(field, value)
	if err != nil {
		return err
	}
	f.data = next
	return nil
}

// Submit validates the form, creates or updates the configuration and moves
// to the mapping step.
func (f *ConfigForm) Submit(ctx context.Context) error {
	if err := f.validate(); err != nil {
		return err
	}

	f.loading = true
	defer func() { f.loading = false }()

	if f.opts.Mode == ModeNew {
		if err := f.checkDuplicateActive(ctx); err != nil {
			return err
		}
	}

	data := f.data
	if f.opts.Mode == ModeNew {
		data.Status = api.StatusActive
	}

	if f.opts.Mode == ModeEdit {
		if err := f.syncs.UpdateSyncConfiguration(ctx, f.recordID, data.request()); err != nil {
			toastError(f.toaster, "Failed to update sync configuration: "+errorMessage(err, "Unknown error"))
			return err
		}
		toastSuccess(f.toaster, "Sync configuration updated successfully")
	} else {
		id, err := f.syncs.CreateSyncConfiguration(ctx, data.request())
		if err != nil {
			toastError(f.toaster, "Failed to create sync configuration: "+errorMessage(err, "Unknown error"))
			return err
		}
		f.recordID = id
		toastSuccess(f.toaster, "Sync configuration created successfully")
	}
	f.data = data

	f.step = StepMapping
	f.editor = NewMappingEditor(f.mappings, f.toaster, EditorOptions{
		SyncID:       f.recordID,
		SourceEntity: data.SourceEntity,
		TargetEntity: data.TargetEntity,
		OnSave:       f.mappingSaved,
		OnCancel:     f.mappingCancelled,
	})
	// Load failures are toasted by the editor; the configuration itself was saved.
	_ = f.editor.Activate(ctx)
	return nil
}

// Back leaves the form. In new mode a created draft is deleted first.
func (f *ConfigForm) Back(ctx context.Context) {
	f.cleanupDraft(ctx)
	if f.opts.OnCancel != nil {
		f.opts.OnCancel()
	}
}

// Cancel is an alias of Back.
func (f *ConfigForm) Cancel(ctx context.Context) {
	f.Back(ctx)
}

func (f *ConfigForm) mappingSaved() {
	id := f.recordID
	// The configuration is complete and no longer a draft.
	f.opts.Mode = ModeEdit
	if f.opts.OnSave != nil {
		f.opts.OnSave(id)
	}
}

func (f *ConfigForm) mappingCancelled(ctx context.Context) {
	f.cleanupDraft(ctx)
	f.step = StepBasic
	f.editor = nil
}

// cleanupDraft deletes the configuration created by this new-mode form.
// Failure is logged and never blocks navigation.
func (f *ConfigForm) cleanupDraft(ctx context.Context) {
	if f.opts.Mode != ModeNew || f.recordID == "" {
		return
	}

	f.loading = true
	defer func() { f.loading = false }()

	id := f.recordID
	if err := f.syncs.DeleteSyncConfiguration(ctx, id); err != nil {
		f.logger.Printf("Error deleting draft sync configuration %s: %v", id, err)
		return
	}
	f.recordID = ""
}

func (f *ConfigForm) validate() error {
	d := f.data
	if d.Name == "" || d.SyncType == "" || d.SourceEntity == "" || d.TargetEntity == "" {
		toastError(f.toaster, "Please fill in all required fields")
		return fmt.Errorf("%w: missing required fields", ErrValidation)
	}

	checks := []struct {
		label   string
		value   string
		options []string
	}{
		{"sync type", d.SyncType, api.SyncTypes},
		{"source entity", d.SourceEntity, api.SourceEntities},
		{"target entity", d.TargetEntity, api.TargetEntities},
		{"status", d.Status, []string{api.StatusActive, api.StatusInactive}},
	}
	for _, c := range checks {
		if !api.Contains(c.options, c.value) {
			toastError(f.toaster, fmt.Sprintf("Invalid %s: %q", c.label, c.value))
			return fmt.Errorf("%w: invalid %s %q", ErrValidation, c.label, c.value)
		}
	}
	return nil
}

func (f *ConfigForm) checkDuplicateActive(ctx context.Context) error {
	existing, err := f.syncs.ListSyncConfigurations(ctx, f.data.ConnectionID)
	if err != nil {
		toastError(f.toaster, "Error fetching sync configurations: "+errorMessage(err, "Unknown error"))
		return err
	}

	for _, cfg := range existing {
		if cfg.ID == f.recordID {
			continue
		}
		if cfg.SourceEntity == f.data.SourceEntity && cfg.Status == api.StatusActive {
			toastError(f.toaster, fmt.Sprintf(
				"A sync configuration for %q already exists. Please edit the existing configuration instead.",
				f.data.SourceEntity))
			return fmt.Errorf("%w: active configuration for %s exists", ErrValidation, f.data.SourceEntity)
		}
	}
	return nil
}
