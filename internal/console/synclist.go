package console

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/macjediwizard/syncbridge/internal/api"
)

// Action is a row action offered by the sync list.
type Action string

const (
	ActionEdit           Action = "edit"
	ActionDelete         Action = "delete"
	ActionActivate       Action = "activate"
	ActionDeactivate     Action = "deactivate"
	ActionHistoricalSync Action = "historicalSync"
)

// Label returns the menu label of an action.
func (a Action) Label() string {
	switch a {
	case ActionEdit:
		return "Edit"
	case ActionDelete:
		return "Delete"
	case ActionActivate:
		return "Activate"
	case ActionDeactivate:
		return "Deactivate"
	case ActionHistoricalSync:
		return "Historical Sync"
	default:
		return string(a)
	}
}

// SortDirection orders the list.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Sortable columns.
const (
	ColumnName         = "name"
	ColumnSyncType     = "syncType"
	ColumnTargetEntity = "targetEntity"
	ColumnSourceEntity = "sourceEntity"
	ColumnStatus       = "status"
)

// ListRow is a configuration with its derived display fields.
type ListRow struct {
	api.SyncConfiguration
	StatusClass string
	Actions     []Action
}

// Value returns the string value of a column, empty when unknown.
func (r ListRow) Value(column string) string {
	switch column {
	case ColumnName:
		return r.Name
	case ColumnSyncType:
		return r.SyncType
	case ColumnTargetEntity:
		return r.TargetEntity
	case ColumnSourceEntity:
		return r.SourceEntity
	case ColumnStatus:
		return r.Status
	default:
		return ""
	}
}

// StatusClass maps a status to its display class.
func StatusClass(status string) string {
	switch strings.ToLower(status) {
	case "active":
		return "success"
	case "inactive":
		return "weak"
	case "error":
		return "error"
	default:
		return ""
	}
}

// RowActions returns the actions available for a status.
func RowActions(status string) []Action {
	actions := []Action{ActionEdit, ActionDelete}
	if status == api.StatusActive {
		return append(actions, ActionDeactivate, ActionHistoricalSync)
	}
	return append(actions, ActionActivate)
}

// ListOptions configures a SyncList.
type ListOptions struct {
	ConnectionID string
	Logger       *log.Logger
}

// SyncList shows the configurations of a connection and runs row actions.
type SyncList struct {
	backend   Backend
	toaster   Toaster
	confirmer Confirmer
	logger    *log.Logger

	connectionID  string
	rows          []ListRow
	sortBy        string
	sortDirection SortDirection
	loading       bool

	deleteID string
	form     *ConfigForm
}

// NewSyncList creates a list for a connection.
func NewSyncList(backend Backend, toaster Toaster, confirmer Confirmer, opts ListOptions) *SyncList {
	return &SyncList{
		backend:       backend,
		toaster:       toaster,
		confirmer:     confirmer,
		logger:        defaultLogger(opts.Logger),
		connectionID:  opts.ConnectionID,
		sortBy:        ColumnName,
		sortDirection: SortAsc,
	}
}

// Rows returns a copy of the displayed rows.
func (l *SyncList) Rows() []ListRow {
	out := make([]ListRow, len(l.rows))
	copy(out, l.rows)
	return out
}

// ConnectionID returns the connection being listed.
func (l *SyncList) ConnectionID() string { return l.connectionID }

// Loading reports whether a remote call is in flight.
func (l *SyncList) Loading() bool { return l.loading }

// DeletePending returns the id awaiting delete confirmation, if any.
func (l *SyncList) DeletePending() string { return l.deleteID }

// Form returns the open configuration form, if any.
func (l *SyncList) Form() *ConfigForm { return l.form }

// SetConnection switches the connection and reloads when it changed.
func (l *SyncList) SetConnection(ctx context.Context, connectionID string) error {
	if connectionID == l.connectionID && l.rows != nil {
		return nil
	}
	l.connectionID = connectionID
	return l.Load(ctx)
}

// Load fetches the configurations of the current connection.
func (l *SyncList) Load(ctx context.Context) error {
	l.loading = true
	defer func() { l.loading = false }()

	cfgs, err := l.backend.ListSyncConfigurations(ctx, l.connectionID)
	if err != nil {
		toastError(l.toaster, "Error fetching sync configurations")
		l.logger.Printf("Error fetching sync configurations: %v", err)
		return err
	}

	rows := make([]ListRow, 0, len(cfgs))
	for _, cfg := range cfgs {
		rows = append(rows, ListRow{
			SyncConfiguration: cfg,
			StatusClass:       StatusClass(cfg.Status),
			Actions:           RowActions(cfg.Status),
		})
	}
	l.rows = sortRows(rows, l.sortBy, l.sortDirection)
	return nil
}

// Sort orders the rows by a column. Missing values sort as the empty string.
func (l *SyncList) Sort(column string, direction SortDirection) {
	l.sortBy = column
	l.sortDirection = direction
	l.rows = sortRows(l.rows, column, direction)
}

func sortRows(rows []ListRow, column string, direction SortDirection) []ListRow {
	out := make([]ListRow, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Value(column), out[j].Value(column)
		if direction == SortDesc {
			return a > b
		}
		return a < b
	})
	return out
}

// AddNew opens an empty form in new mode.
func (l *SyncList) AddNew() *ConfigForm {
	l.form = l.newForm(ModeNew, "")
	return l.form
}

// HandleAction runs a row action.
func (l *SyncList) HandleAction(ctx context.Context, action Action, row ListRow) error {
	switch action {
	case ActionEdit:
		l.form = l.newForm(ModeEdit, row.ID)
		return l.form.Open(ctx)
	case ActionDelete:
		l.deleteID = row.ID
		return nil
	case ActionActivate, ActionDeactivate:
		return l.changeStatus(ctx, row, action)
	case ActionHistoricalSync:
		return l.historicalSync(ctx, row)
	default:
		return fmt.Errorf("%w: unknown action %q", ErrValidation, action)
	}
}

// ConfirmDelete deletes the row awaiting confirmation and refreshes.
func (l *SyncList) ConfirmDelete(ctx context.Context) error {
	if l.deleteID == "" {
		return nil
	}

	l.loading = true
	defer func() { l.loading = false }()

	if err := l.backend.DeleteSyncConfiguration(ctx, l.deleteID); err != nil {
		toastError(l.toaster, "Error deleting sync configuration")
		l.logger.Printf("Error deleting sync configuration %s: %v", l.deleteID, err)
		return err
	}
	toastSuccess(l.toaster, "Sync configuration deleted successfully")
	l.deleteID = ""
	l.refresh(ctx)
	return nil
}

// CancelDelete closes the delete confirmation.
func (l *SyncList) CancelDelete() {
	l.deleteID = ""
}

// FormReturned closes the form and refreshes the list.
func (l *SyncList) FormReturned(ctx context.Context) {
	l.form = nil
	l.refresh(ctx)
}

func (l *SyncList) newForm(mode Mode, recordID string) *ConfigForm {
	return NewConfigForm(l.backend, l.backend, l.toaster, FormOptions{
		ConnectionID: l.connectionID,
		Mode:         mode,
		RecordID:     recordID,
		Logger:       l.logger,
		OnCancel:     func() { l.FormReturned(context.Background()) },
		OnSave:       func(string) { l.FormReturned(context.Background()) },
	})
}

func (l *SyncList) changeStatus(ctx context.Context, row ListRow, action Action) error {
	l.loading = true
	defer func() { l.loading = false }()

	status := api.StatusInactive
	if action == ActionActivate {
		status = api.StatusActive
	}

	if err := l.backend.UpdateSyncStatus(ctx, row.ID, status); err != nil {
		toastError(l.toaster, fmt.Sprintf("Error %sing sync configuration: %s", strings.TrimSuffix(string(action), "e"),
			errorMessage(err, "Unknown error")))
		l.logger.Printf("Error updating status of %s: %v", row.ID, err)
		return err
	}

	l.refresh(ctx)
	toastSuccess(l.toaster, fmt.Sprintf("Sync configuration %sd successfully", action))
	return nil
}

func (l *SyncList) historicalSync(ctx context.Context, row ListRow) error {
	ok, err := l.confirmer.Confirm(ctx, "Historical Sync", fmt.Sprintf(
		"Are you sure you want to run a historical sync for %q? This will process all existing records of type: %s.",
		row.Name, row.SourceEntity))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	l.loading = true
	defer func() { l.loading = false }()

	l.toaster.Toast(Toast{
		Title:   "Info",
		Message: fmt.Sprintf("Starting historical sync for %s records...", row.SourceEntity),
		Variant: VariantInfo,
	})

	if err := l.backend.TriggerHistoricalSync(ctx, row.ID); err != nil {
		toastError(l.toaster, "Error starting historical sync: "+errorMessage(err, "Unknown error"))
		l.logger.Printf("Error starting historical sync for %s: %v", row.ID, err)
		return err
	}

	toastSuccess(l.toaster, fmt.Sprintf(
		"Historical sync initiated for %s records. This may take some time to complete depending on data volume.",
		row.SourceEntity))
	return nil
}

// refresh reloads and re-applies the current sort. Failures are logged only.
func (l *SyncList) refresh(ctx context.Context) {
	cfgs, err := l.backend.ListSyncConfigurations(ctx, l.connectionID)
	if err != nil {
		l.logger.Printf("Error refreshing sync configurations: %v", err)
		return
	}
	rows := make([]ListRow, 0, len(cfgs))
	for _, cfg := range cfgs {
		rows = append(rows, ListRow{
			SyncConfiguration: cfg,
			StatusClass:       StatusClass(cfg.Status),
			Actions:           RowActions(cfg.Status),
		})
	}
	l.rows = sortRows(rows, l.sortBy, l.sortDirection)
}
