package console

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"strconv"

	"github.com/macjediwizard/syncbridge/internal/api"
)

// Option is a labelled filter choice.
type Option struct {
	Label string
	Value string
}

// Filter defaults.
const (
	DefaultEventDays  = 7
	DefaultEventLimit = 50
)

// StatusOptions are the selectable status filters. The empty value means all.
var StatusOptions = []Option{
	{Label: "All", Value: ""},
	{Label: "Success", Value: api.EventSuccess},
	{Label: "Failed", Value: api.EventFailed},
}

// TimeRangeOptions are the selectable look-back windows in days.
var TimeRangeOptions = []Option{
	{Label: "Last 24 hours", Value: "1"},
	{Label: "Last 7 days", Value: "7"},
	{Label: "Last 30 days", Value: "30"},
	{Label: "Last 90 days", Value: "90"},
	{Label: "All time", Value: "1000"},
}

// LimitOptions are the selectable row limits.
var LimitOptions = []Option{
	{Label: "10", Value: "10"},
	{Label: "50", Value: "50"},
	{Label: "100", Value: "100"},
	{Label: "500", Value: "500"},
}

// EventRow is a log entry with its display class.
type EventRow struct {
	api.EventLogEntry
	StatusClass string
}

// EventStatusClass maps an event status to its display class.
func EventStatusClass(status string) string {
	if status == api.EventSuccess {
		return "success"
	}
	return "error"
}

// EventLogViewer lists recent sync events and shows their details.
type EventLogViewer struct {
	backend EventLogBackend
	toaster Toaster
	logger  *log.Logger

	query    api.EventLogQuery
	rows     []EventRow
	selected *api.EventLogEntry
	loading  bool
	errMsg   string
}

// NewEventLogViewer creates a viewer with the default filters.
func NewEventLogViewer(backend EventLogBackend, toaster Toaster, logger *log.Logger) *EventLogViewer {
	return &EventLogViewer{
		backend: backend,
		toaster: toaster,
		logger:  defaultLogger(logger),
		query:   api.EventLogQuery{Days: DefaultEventDays, Limit: DefaultEventLimit},
	}
}

// Query returns the active filters.
func (v *EventLogViewer) Query() api.EventLogQuery { return v.query }

// Rows returns a copy of the displayed entries.
func (v *EventLogViewer) Rows() []EventRow {
	out := make([]EventRow, len(v.rows))
	copy(out, v.rows)
	return out
}

// Selected returns the entry shown in the details view, if any.
func (v *EventLogViewer) Selected() *api.EventLogEntry { return v.selected }

// Loading reports whether a remote call is in flight.
func (v *EventLogViewer) Loading() bool { return v.loading }

// Err returns the message of the last failed load, if any.
func (v *EventLogViewer) Err() string { return v.errMsg }

// Load fetches entries with the active filters.
func (v *EventLogViewer) Load(ctx context.Context) error {
	v.loading = true
	defer func() { v.loading = false }()

	entries, err := v.backend.ListEventLogs(ctx, v.query)
	if err != nil {
		v.handleError(err)
		return err
	}

	rows := make([]EventRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, EventRow{EventLogEntry: e, StatusClass: EventStatusClass(e.Status)})
	}
	v.rows = rows
	v.errMsg = ""
	return nil
}

// SetStatus filters by status and reloads.
func (v *EventLogViewer) SetStatus(ctx context.Context, status string) error {
	v.query.Status = status
	return v.Load(ctx)
}

// SetDays changes the look-back window and reloads.
func (v *EventLogViewer) SetDays(ctx context.Context, days string) error {
	v.query.Days = atoiOr(days, DefaultEventDays)
	return v.Load(ctx)
}

// SetLimit changes the row limit and reloads.
func (v *EventLogViewer) SetLimit(ctx context.Context, limit string) error {
	v.query.Limit = atoiOr(limit, DefaultEventLimit)
	return v.Load(ctx)
}

// ApplyFilters replaces all three filters and reloads once.
func (v *EventLogViewer) ApplyFilters(ctx context.Context, status, days, limit string) error {
	v.query = api.EventLogQuery{
		Status: status,
		Days:   atoiOr(days, DefaultEventDays),
		Limit:  atoiOr(limit, DefaultEventLimit),
	}
	return v.Load(ctx)
}

// Refresh reloads with the active filters and confirms success.
func (v *EventLogViewer) Refresh(ctx context.Context) error {
	if err := v.Load(ctx); err != nil {
		return err
	}
	toastSuccess(v.toaster, "Data refreshed successfully")
	return nil
}

// ViewDetails fetches one entry and opens the details view.
func (v *EventLogViewer) ViewDetails(ctx context.Context, id string) error {
	v.loading = true
	defer func() { v.loading = false }()

	entry, err := v.backend.GetEventLog(ctx, id)
	if err != nil {
		v.handleError(err)
		return err
	}
	v.selected = entry
	return nil
}

// CloseDetails closes the details view.
func (v *EventLogViewer) CloseDetails() {
	v.selected = nil
}

// FormattedResponse returns the selected response payload indented when it
// is JSON, verbatim otherwise.
func (v *EventLogViewer) FormattedResponse() string {
	if v.selected == nil {
		return ""
	}
	return FormatPayload(v.selected.ResponsePayload)
}

// FormatPayload pretty-prints a JSON payload with two-space indentation.
func FormatPayload(payload string) string {
	if payload == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(payload), "", "  "); err != nil {
		return payload
	}
	return buf.String()
}

func (v *EventLogViewer) handleError(err error) {
	v.errMsg = errorMessage(err, "An error occurred while fetching data")
	toastError(v.toaster, v.errMsg)
	v.logger.Printf("Event log error: %v", err)
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
