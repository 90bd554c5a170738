// Package console implements the admin screens for managing sync
// configurations as view-models: form state, validation, row actions and
// toast notifications over a remote backend. View-models are driven from a
// single goroutine and are not safe for concurrent use.
package console

import (
	"context"
	"errors"
	"log"

	"github.com/macjediwizard/syncbridge/internal/api"
)

// Variant is the severity of a toast.
type Variant string

const (
	VariantSuccess Variant = "success"
	VariantError   Variant = "error"
	VariantWarning Variant = "warning"
	VariantInfo    Variant = "info"
)

// Toast is a transient user notification.
type Toast struct {
	Title   string
	Message string
	Variant Variant
}

// Toaster displays toasts.
type Toaster interface {
	Toast(t Toast)
}

// ToasterFunc adapts a function to Toaster.
type ToasterFunc func(t Toast)

// Toast calls f(t).
func (f ToasterFunc) Toast(t Toast) { f(t) }

// Confirmer asks the user a blocking yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, title, message string) (bool, error)
}

// ErrValidation is returned when input fails validation before any remote call.
var ErrValidation = errors.New("validation failed")

// SyncBackend is the configuration CRUD surface used by the form.
type SyncBackend interface {
	ListSyncConfigurations(ctx context.Context, connectionID string) ([]api.SyncConfiguration, error)
	GetSyncConfiguration(ctx context.Context, id string) (*api.SyncConfiguration, error)
	CreateSyncConfiguration(ctx context.Context, req api.SaveSyncRequest) (string, error)
	UpdateSyncConfiguration(ctx context.Context, id string, req api.SaveSyncRequest) error
	DeleteSyncConfiguration(ctx context.Context, id string) error
}

// MappingBackend is the field mapping surface used by the editor.
type MappingBackend interface {
	ListFields(ctx context.Context, entity string) ([]api.FieldOption, error)
	GetFieldMappings(ctx context.Context, syncID string) ([]api.FieldMapping, error)
	SaveFieldMappings(ctx context.Context, syncID string, mappings []api.FieldMapping) error
}

// ListBackend is the surface used by the sync list row actions.
type ListBackend interface {
	ListSyncConfigurations(ctx context.Context, connectionID string) ([]api.SyncConfiguration, error)
	DeleteSyncConfiguration(ctx context.Context, id string) error
	UpdateSyncStatus(ctx context.Context, id, status string) error
	TriggerHistoricalSync(ctx context.Context, id string) error
}

// EventLogBackend is the surface used by the event log viewer.
type EventLogBackend interface {
	ListEventLogs(ctx context.Context, q api.EventLogQuery) ([]api.EventLogEntry, error)
	GetEventLog(ctx context.Context, id string) (*api.EventLogEntry, error)
}

// Backend is everything the sync list needs to drive the form and editor it opens.
type Backend interface {
	SyncBackend
	MappingBackend
	ListBackend
}

// errorMessage extracts the user-facing text of a remote failure: the
// structured error body when present, else the error text, else fallback.
func errorMessage(err error, fallback string) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return fallback
}

func toastError(t Toaster, message string) {
	t.Toast(Toast{Title: "Error", Message: message, Variant: VariantError})
}

func toastSuccess(t Toaster, message string) {
	t.Toast(Toast{Title: "Success", Message: message, Variant: VariantSuccess})
}

func defaultLogger(l *log.Logger) *log.Logger {
	if l == nil {
		return log.Default()
	}
	return l
}
