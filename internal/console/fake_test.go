package console

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/macjediwizard/syncbridge/internal/api"
)

// fakeBackend is an in-memory Backend and EventLogBackend.
type fakeBackend struct {
	configs  map[string]api.SyncConfiguration
	mappings map[string][]api.FieldMapping
	fields   map[string][]api.FieldOption
	events   []api.EventLogEntry
	nextID   int

	// Per-method failures.
	listErr       error
	getErr        error
	createErr     error
	updateErr     error
	deleteErr     error
	statusErr     error
	historicalErr error
	fieldsErr     error
	mappingsErr   error
	saveErr       error
	eventsErr     error

	calls       []string
	deleted     []string
	historical  []string
	savedSets   [][]api.FieldMapping
	lastQuery   api.EventLogQuery
	createdReqs []api.SaveSyncRequest
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		configs:  make(map[string]api.SyncConfiguration),
		mappings: make(map[string][]api.FieldMapping),
		fields: map[string][]api.FieldOption{
			"Contact": {{Label: "Contact ID", Value: "Id"}, {Label: "Email", Value: "Email"}, {Label: "First Name", Value: "FirstName"}},
			"Lead":    {{Label: "Lead ID", Value: "Id"}, {Label: "Email", Value: "Email"}, {Label: "Status", Value: "Status"}},
		},
	}
}

func (f *fakeBackend) add(cfg api.SyncConfiguration) {
	f.configs[cfg.ID] = cfg
}

func (f *fakeBackend) ListSyncConfigurations(_ context.Context, connectionID string) ([]api.SyncConfiguration, error) {
	f.calls = append(f.calls, "list")
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []api.SyncConfiguration
	for _, c := range f.configs {
		if c.ConnectionID == connectionID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeBackend) GetSyncConfiguration(_ context.Context, id string) (*api.SyncConfiguration, error) {
	f.calls = append(f.calls, "get")
	if f.getErr != nil {
		return nil, f.getErr
	}
	c, ok := f.configs[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeBackend) CreateSyncConfiguration(_ context.Context, req api.SaveSyncRequest) (string, error) {
	f.calls = append(f.calls, "create")
	f.createdReqs = append(f.createdReqs, req)
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("sync-%d", f.nextID)
	f.configs[id] = api.SyncConfiguration{
		ID: id, Name: req.Name, SyncType: req.SyncType, SourceEntity: req.SourceEntity,
		TargetEntity: req.TargetEntity, Status: req.Status, ConnectionID: req.ConnectionID,
	}
	return id, nil
}

func (f *fakeBackend) UpdateSyncConfiguration(_ context.Context, id string, req api.SaveSyncRequest) error {
	f.calls = append(f.calls, "update")
	if f.updateErr != nil {
		return f.updateErr
	}
	c, ok := f.configs[id]
	if !ok {
		return &api.Error{Status: 404, Code: api.CodeNotFound, Message: "sync configuration not found"}
	}
	c.Name, c.SyncType, c.SourceEntity, c.TargetEntity, c.Status = req.Name, req.SyncType, req.SourceEntity, req.TargetEntity, req.Status
	f.configs[id] = c
	return nil
}

func (f *fakeBackend) DeleteSyncConfiguration(_ context.Context, id string) error {
	f.calls = append(f.calls, "delete")
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	delete(f.configs, id)
	delete(f.mappings, id)
	return nil
}

func (f *fakeBackend) UpdateSyncStatus(_ context.Context, id, status string) error {
	f.calls = append(f.calls, "status")
	if f.statusErr != nil {
		return f.statusErr
	}
	c := f.configs[id]
	c.Status = status
	f.configs[id] = c
	return nil
}

func (f *fakeBackend) TriggerHistoricalSync(_ context.Context, id string) error {
	f.calls = append(f.calls, "historical")
	if f.historicalErr != nil {
		return f.historicalErr
	}
	f.historical = append(f.historical, id)
	return nil
}

func (f *fakeBackend) ListFields(_ context.Context, entity string) ([]api.FieldOption, error) {
	f.calls = append(f.calls, "fields")
	if f.fieldsErr != nil {
		return nil, f.fieldsErr
	}
	return f.fields[entity], nil
}

func (f *fakeBackend) GetFieldMappings(_ context.Context, syncID string) ([]api.FieldMapping, error) {
	f.calls = append(f.calls, "mappings")
	if f.mappingsErr != nil {
		return nil, f.mappingsErr
	}
	return f.mappings[syncID], nil
}

func (f *fakeBackend) SaveFieldMappings(_ context.Context, syncID string, mappings []api.FieldMapping) error {
	f.calls = append(f.calls, "save")
	if f.saveErr != nil {
		return f.saveErr
	}
	f.savedSets = append(f.savedSets, mappings)
	f.mappings[syncID] = mappings
	return nil
}

func (f *fakeBackend) ListEventLogs(_ context.Context, q api.EventLogQuery) ([]api.EventLogEntry, error) {
	f.calls = append(f.calls, "events")
	f.lastQuery = q
	if f.eventsErr != nil {
		return nil, f.eventsErr
	}
	var out []api.EventLogEntry
	for _, e := range f.events {
		if q.Status != "" && e.Status != q.Status {
			continue
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeBackend) GetEventLog(_ context.Context, id string) (*api.EventLogEntry, error) {
	f.calls = append(f.calls, "event")
	if f.eventsErr != nil {
		return nil, f.eventsErr
	}
	for _, e := range f.events {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, &api.Error{Status: 404, Code: api.CodeNotFound, Message: "event log not found"}
}

func (f *fakeBackend) called(name string) int {
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

// recorder collects toasts.
type recorder struct {
	toasts []Toast
}

func (r *recorder) Toast(t Toast) { r.toasts = append(r.toasts, t) }

func (r *recorder) last() Toast {
	if len(r.toasts) == 0 {
		return Toast{}
	}
	return r.toasts[len(r.toasts)-1]
}

func (r *recorder) count(v Variant) int {
	n := 0
	for _, t := range r.toasts {
		if t.Variant == v {
			n++
		}
	}
	return n
}

// confirmer answers every question with a fixed reply.
type confirmer struct {
	reply    bool
	err      error
	messages []string
}

func (c *confirmer) Confirm(_ context.Context, _, message string) (bool, error) {
	c.messages = append(c.messages, message)
	return c.reply, c.err
}

var errBoom = errors.New("boom")
