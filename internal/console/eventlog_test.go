package console

import (
	"context"
	"testing"

	"github.com/macjediwizard/syncbridge/internal/api"
)

func eventBackend() *fakeBackend {
	be := newFakeBackend()
	be.events = []api.EventLogEntry{
		{ID: "e2", Name: "EL-000002", Status: api.EventFailed, ResponsePayload: `{"status":"fail","error":"bad identity"}`},
		{ID: "e1", Name: "EL-000001", Status: api.EventSuccess, ResponsePayload: "plain text"},
	}
	return be
}

func TestEventLogViewerFilters(t *testing.T) {
	ctx := context.Background()

	t.Run("loads with defaults", func(t *testing.T) {
		be := eventBackend()
		v := NewEventLogViewer(be, &recorder{}, nil)

		if err := v.Load(ctx); err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if be.lastQuery != (api.EventLogQuery{Days: 7, Limit: 50}) {
			t.Errorf("unexpected query: %+v", be.lastQuery)
		}
		rows := v.Rows()
		if len(rows) != 2 || rows[0].StatusClass != "error" || rows[1].StatusClass != "success" {
			t.Errorf("unexpected rows: %+v", rows)
		}
	})

	t.Run("filter changes reload", func(t *testing.T) {
		be := eventBackend()
		v := NewEventLogViewer(be, &recorder{}, nil)

		if err := v.SetStatus(ctx, api.EventFailed); err != nil {
			t.Fatalf("SetStatus failed: %v", err)
		}
		if len(v.Rows()) != 1 {
			t.Errorf("expected 1 failed row, got %d", len(v.Rows()))
		}
		_ = v.SetDays(ctx, "30")
		_ = v.SetLimit(ctx, "10")
		if be.lastQuery != (api.EventLogQuery{Status: api.EventFailed, Days: 30, Limit: 10}) {
			t.Errorf("unexpected query: %+v", be.lastQuery)
		}
		if be.called("events") != 3 {
			t.Errorf("expected 3 loads, got %d", be.called("events"))
		}
	})

	t.Run("apply filters loads once", func(t *testing.T) {
		be := eventBackend()
		v := NewEventLogViewer(be, &recorder{}, nil)

		if err := v.ApplyFilters(ctx, api.EventSuccess, "90", "abc"); err != nil {
			t.Fatalf("ApplyFilters failed: %v", err)
		}
		if be.lastQuery != (api.EventLogQuery{Status: api.EventSuccess, Days: 90, Limit: 50}) {
			t.Errorf("unexpected query: %+v", be.lastQuery)
		}
		if be.called("events") != 1 {
			t.Errorf("expected 1 load, got %d", be.called("events"))
		}
	})

	t.Run("invalid numbers fall back to defaults", func(t *testing.T) {
		be := eventBackend()
		v := NewEventLogViewer(be, &recorder{}, nil)
		_ = v.SetDays(ctx, "soon")
		_ = v.SetLimit(ctx, "-1")
		if v.Query().Days != DefaultEventDays || v.Query().Limit != DefaultEventLimit {
			t.Errorf("unexpected query: %+v", v.Query())
		}
	})

	t.Run("refresh confirms", func(t *testing.T) {
		rec := &recorder{}
		v := NewEventLogViewer(eventBackend(), rec, nil)
		if err := v.Refresh(ctx); err != nil {
			t.Fatalf("Refresh failed: %v", err)
		}
		if rec.last().Message != "Data refreshed successfully" {
			t.Errorf("unexpected toast: %+v", rec.last())
		}
	})

	t.Run("failure uses fallback message", func(t *testing.T) {
		be := eventBackend()
		be.eventsErr = &api.Error{Status: 500}
		rec := &recorder{}
		v := NewEventLogViewer(be, rec, nil)

		if err := v.Load(ctx); err == nil {
			t.Fatal("expected error")
		}
		if v.Err() != "An error occurred while fetching data" {
			t.Errorf("unexpected error message %q", v.Err())
		}
		if rec.last().Variant != VariantError {
			t.Errorf("expected error toast, got %+v", rec.last())
		}
	})
}

func TestEventLogViewerDetails(t *testing.T) {
	ctx := context.Background()
	v := NewEventLogViewer(eventBackend(), &recorder{}, nil)

	if v.FormattedResponse() != "" {
		t.Error("expected empty response without selection")
	}

	if err := v.ViewDetails(ctx, "e2"); err != nil {
		t.Fatalf("ViewDetails failed: %v", err)
	}
	want := "{\n  \"status\": \"fail\",\n  \"error\": \"bad identity\"\n}"
	if got := v.FormattedResponse(); got != want {
		t.Errorf("FormattedResponse = %q, want %q", got, want)
	}

	if err := v.ViewDetails(ctx, "e1"); err != nil {
		t.Fatalf("ViewDetails failed: %v", err)
	}
	if got := v.FormattedResponse(); got != "plain text" {
		t.Errorf("expected verbatim payload, got %q", got)
	}

	v.CloseDetails()
	if v.Selected() != nil {
		t.Error("expected selection cleared")
	}

	if err := v.ViewDetails(ctx, "missing"); err == nil {
		t.Error("expected error for unknown entry")
	}
}
