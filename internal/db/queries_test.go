package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// setupTestDB creates a temporary test database.
func setupTestDB(t *testing.T) (*DB, func()) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "syncbridge-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	db, err := New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("failed to create test database: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.RemoveAll(tempDir)
	}

	return db, cleanup
}

// createTestConnection creates a connection and returns it.
func createTestConnection(t *testing.T, db *DB, name string) *Connection {
	t.Helper()

	conn := &Connection{
		Name:      name,
		Region:    "eu1",
		AccountID: "ACC-123",
		Passcode:  "encrypted-passcode",
	}
	if err := db.CreateConnection(conn); err != nil {
		t.Fatalf("failed to create test connection: %v", err)
	}
	return conn
}

// createTestSync creates a sync configuration on a connection.
func createTestSync(t *testing.T, db *DB, connectionID, entity string, status SyncStatus) *SyncConfiguration {
	t.Helper()

	cfg := &SyncConfiguration{
		ConnectionID: connectionID,
		Name:         entity + " sync",
		SyncType:     SyncTypeCRMToAnalytics,
		SourceEntity: entity,
		TargetEntity: TargetProfile,
		Status:       status,
	}
	if err := db.CreateSyncConfiguration(cfg); err != nil {
		t.Fatalf("failed to create test sync: %v", err)
	}
	return cfg
}

func TestGetOrCreateUser(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	first, err := db.GetOrCreateUser("admin@example.com", "Admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := db.GetOrCreateUser("admin@example.com", "Someone Else")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected same user, got %s and %s", first.ID, second.ID)
	}
	if second.Name != "Admin" {
		t.Errorf("expected original name to be kept, got %q", second.Name)
	}

	if _, err := db.GetUserByID("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestConnections(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	t.Run("create, update and list", func(t *testing.T) {
		conn := createTestConnection(t, db, "Production")
		conn.Region = "us1"
		if err := db.UpdateConnection(conn); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := db.GetConnectionByID(conn.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Region != "us1" {
			t.Errorf("expected region us1, got %s", got.Region)
		}

		conns, err := db.ListConnections()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(conns) != 1 {
			t.Errorf("expected 1 connection, got %d", len(conns))
		}
	})

	t.Run("delete cascades to sync configurations", func(t *testing.T) {
		conn := createTestConnection(t, db, "Staging")
		cfg := createTestSync(t, db, conn.ID, "Contact", SyncStatusActive)

		if err := db.DeleteConnection(conn.ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := db.GetSyncConfigurationByID(cfg.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected sync configuration to be deleted, got %v", err)
		}
	})

	t.Run("update missing connection", func(t *testing.T) {
		err := db.UpdateConnection(&Connection{ID: "missing"})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestSyncConfigurations(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	conn := createTestConnection(t, db, "Production")

	t.Run("defaults status to Inactive", func(t *testing.T) {
		cfg := &SyncConfiguration{
			ConnectionID: conn.ID,
			Name:         "Accounts",
			SyncType:     SyncTypeCRMToAnalytics,
			SourceEntity: "Account",
			TargetEntity: TargetProfile,
		}
		if err := db.CreateSyncConfiguration(cfg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := db.GetSyncConfigurationByID(cfg.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Status != SyncStatusInactive {
			t.Errorf("expected Inactive, got %s", got.Status)
		}
		if got.LastSyncedAt != nil {
			t.Error("expected LastSyncedAt to be nil")
		}
	})

	t.Run("rejects second active configuration for the same entity", func(t *testing.T) {
		createTestSync(t, db, conn.ID, "Lead", SyncStatusActive)

		dup := &SyncConfiguration{
			ConnectionID: conn.ID,
			Name:         "Leads again",
			SyncType:     SyncTypeCRMToAnalytics,
			SourceEntity: "Lead",
			TargetEntity: TargetEvent,
			Status:       SyncStatusActive,
		}
		if err := db.CreateSyncConfiguration(dup); !errors.Is(err, ErrDuplicate) {
			t.Errorf("expected ErrDuplicate, got %v", err)
		}

		dup.Status = SyncStatusInactive
		if err := db.CreateSyncConfiguration(dup); err != nil {
			t.Fatalf("inactive duplicate should be allowed: %v", err)
		}
		if err := db.UpdateSyncStatus(dup.ID, SyncStatusActive); !errors.Is(err, ErrDuplicate) {
			t.Errorf("expected ErrDuplicate on activation, got %v", err)
		}
	})

	t.Run("same entity on another connection is allowed", func(t *testing.T) {
		other := createTestConnection(t, db, "Other")
		createTestSync(t, db, other.ID, "Lead", SyncStatusActive)
	})

	t.Run("update keeps connection and re-checks duplicates", func(t *testing.T) {
		cfg := createTestSync(t, db, conn.ID, "Case", SyncStatusActive)
		cfg.Name = "Support cases"
		cfg.TargetEntity = TargetEvent
		if err := db.UpdateSyncConfiguration(cfg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := db.GetSyncConfigurationByID(cfg.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Name != "Support cases" || got.TargetEntity != TargetEvent {
			t.Errorf("update not applied: %+v", got)
		}
		if got.ConnectionID != conn.ID {
			t.Errorf("expected connection %s, got %s", conn.ID, got.ConnectionID)
		}

		cfg.SourceEntity = "Lead"
		if err := db.UpdateSyncConfiguration(cfg); !errors.Is(err, ErrDuplicate) {
			t.Errorf("expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("lists by connection ordered by name", func(t *testing.T) {
		cfgs, err := db.ListSyncConfigurations(conn.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i := 1; i < len(cfgs); i++ {
			if cfgs[i-1].Name > cfgs[i].Name {
				t.Errorf("not ordered: %q before %q", cfgs[i-1].Name, cfgs[i].Name)
			}
		}
		for _, cfg := range cfgs {
			if cfg.ConnectionID != conn.ID {
				t.Errorf("unexpected connection %s", cfg.ConnectionID)
			}
		}
	})

	t.Run("deactivate and mark synced", func(t *testing.T) {
		cfg := createTestSync(t, db, conn.ID, "Task", SyncStatusActive)
		if err := db.UpdateSyncStatus(cfg.ID, SyncStatusInactive); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := db.MarkSynced(cfg.ID, 42); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := db.GetSyncConfigurationByID(cfg.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.IsActive() {
			t.Error("expected configuration to be inactive")
		}
		if got.Cursor != 42 {
			t.Errorf("expected cursor 42, got %d", got.Cursor)
		}
		if got.LastSyncedAt == nil {
			t.Error("expected LastSyncedAt to be set")
		}
	})

	t.Run("delete missing configuration", func(t *testing.T) {
		if err := db.DeleteSyncConfiguration("missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestPragmasApplyToEveryConnection(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	// Hold a connection so later statements run on fresh pool connections
	held, err := db.conn.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn failed: %v", err)
	}
	defer held.Close()

	other, err := db.conn.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn failed: %v", err)
	}
	var foreignKeys, busyTimeout int
	if err := other.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		t.Fatalf("foreign_keys query failed: %v", err)
	}
	if err := other.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
		t.Fatalf("busy_timeout query failed: %v", err)
	}
	other.Close()
	if foreignKeys != 1 || busyTimeout != 5000 {
		t.Errorf("expected foreign_keys=1 busy_timeout=5000, got %d and %d", foreignKeys, busyTimeout)
	}

	conn := createTestConnection(t, db, "Production")
	cfg := createTestSync(t, db, conn.ID, "Lead", SyncStatusActive)
	if err := db.ReplaceFieldMappings(cfg.ID, []*FieldMapping{
		{Field: "Identity", SourceField: "Email", DataType: DataTypeText, IsMandatory: true},
	}); err != nil {
		t.Fatalf("ReplaceFieldMappings failed: %v", err)
	}
	if err := db.DeleteSyncConfiguration(cfg.ID); err != nil {
		t.Fatalf("DeleteSyncConfiguration failed: %v", err)
	}

	var orphans int
	if err := held.QueryRowContext(ctx, "SELECT COUNT(*) FROM field_mappings WHERE sync_id = ?", cfg.ID).Scan(&orphans); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if orphans != 0 {
		t.Errorf("expected mappings removed by cascade, found %d", orphans)
	}
}

func TestFieldMappings(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	conn := createTestConnection(t, db, "Production")
	cfg := createTestSync(t, db, conn.ID, "Contact", SyncStatusActive)

	t.Run("replace swaps the whole set", func(t *testing.T) {
		first := []*FieldMapping{
			{Field: "Identity", SourceField: "Email", DataType: DataTypeText, IsMandatory: true},
			{Field: "city", SourceField: "MailingCity"},
		}
		if err := db.ReplaceFieldMappings(cfg.ID, first); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		second := []*FieldMapping{
			{Field: "score", SourceField: "Score__c", DataType: DataTypeNumber},
			{Field: "Identity", SourceField: "Id", DataType: DataTypeText, IsMandatory: true},
		}
		if err := db.ReplaceFieldMappings(cfg.ID, second); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := db.GetFieldMappings(cfg.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 mappings, got %d", len(got))
		}
		if got[0].Field != "Identity" || !got[0].IsMandatory {
			t.Errorf("expected mandatory mapping first, got %+v", got[0])
		}
		if got[1].Field != "score" || got[1].DataType != DataTypeNumber {
			t.Errorf("unexpected optional mapping %+v", got[1])
		}
	})

	t.Run("empty data type defaults to Text", func(t *testing.T) {
		if err := db.ReplaceFieldMappings(cfg.ID, []*FieldMapping{{Field: "city", SourceField: "MailingCity"}}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got, err := db.GetFieldMappings(cfg.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got[0].DataType != DataTypeText {
			t.Errorf("expected Text, got %s", got[0].DataType)
		}
	})

	t.Run("duplicate target field rolls back", func(t *testing.T) {
		dup := []*FieldMapping{
			{Field: "city", SourceField: "MailingCity"},
			{Field: "city", SourceField: "OtherCity"},
		}
		if err := db.ReplaceFieldMappings(cfg.ID, dup); !errors.Is(err, ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
		got, err := db.GetFieldMappings(cfg.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 {
			t.Errorf("expected previous set to survive, got %d mappings", len(got))
		}
	})

	t.Run("unknown sync", func(t *testing.T) {
		if err := db.ReplaceFieldMappings("missing", nil); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("deleting the configuration removes mappings", func(t *testing.T) {
		if err := db.DeleteSyncConfiguration(cfg.ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got, err := db.GetFieldMappings(cfg.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected no mappings, got %d", len(got))
		}
	})
}

func TestEventLogs(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	t.Run("assigns sequential names", func(t *testing.T) {
		a := &EventLog{SyncID: "sync-1", Status: EventStatusSuccess, Response: `{"status":"success"}`}
		b := &EventLog{SyncID: "sync-1", Status: EventStatusFailed, Response: "boom"}
		if err := db.CreateEventLog(a); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := db.CreateEventLog(b); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if a.Name != "EL-000001" || b.Name != "EL-000002" {
			t.Errorf("unexpected names %s, %s", a.Name, b.Name)
		}
	})

	t.Run("filters by status and limit", func(t *testing.T) {
		all, err := db.ListEventLogs(EventLogFilter{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(all) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(all))
		}
		if all[0].Name != "EL-000002" {
			t.Errorf("expected newest first, got %s", all[0].Name)
		}

		failed, err := db.ListEventLogs(EventLogFilter{Status: EventStatusFailed})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(failed) != 1 || failed[0].Status != EventStatusFailed {
			t.Errorf("expected one failed entry, got %+v", failed)
		}

		limited, err := db.ListEventLogs(EventLogFilter{Limit: 1, Days: 1})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(limited) != 1 {
			t.Errorf("expected 1 entry, got %d", len(limited))
		}
	})

	t.Run("get by id", func(t *testing.T) {
		entry := &EventLog{SyncID: "sync-2", Status: EventStatusSuccess, Response: "[]", RecordCount: 3}
		if err := db.CreateEventLog(entry); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got, err := db.GetEventLog(entry.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.RecordCount != 3 || got.Response != "[]" {
			t.Errorf("unexpected entry %+v", got)
		}

		if _, err := db.GetEventLog("missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("cleanup removes old entries", func(t *testing.T) {
		deleted, err := db.CleanOldEventLogs(time.Now().Add(time.Hour))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if deleted != 3 {
			t.Errorf("expected 3 deleted, got %d", deleted)
		}
	})
}

func TestSourceRecords(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	records := []*SourceRecord{
		{RecordID: "003A", Fields: map[string]any{"Email": "a@example.com", "FirstName": "Ada"}},
		{RecordID: "003B", Fields: map[string]any{"Email": "b@example.com", "Score__c": 7.5}},
	}
	if err := db.UpsertSourceRecords("Contact", records); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("pages by revision", func(t *testing.T) {
		page, err := db.ListSourceRecords("Contact", 0, 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(page) != 1 || page[0].RecordID != "003A" {
			t.Fatalf("unexpected first page %+v", page)
		}

		next, err := db.ListSourceRecords("Contact", page[0].Rev, 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(next) != 1 || next[0].RecordID != "003B" {
			t.Fatalf("unexpected second page %+v", next)
		}
		if next[0].Fields["Score__c"] != 7.5 {
			t.Errorf("expected decoded score, got %v", next[0].Fields["Score__c"])
		}
	})

	t.Run("upsert bumps revision", func(t *testing.T) {
		before := records[1].Rev
		update := []*SourceRecord{{RecordID: "003A", Fields: map[string]any{"Email": "new@example.com"}}}
		if err := db.UpsertSourceRecords("Contact", update); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		changed, err := db.ListSourceRecords("Contact", before, 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(changed) != 1 || changed[0].Fields["Email"] != "new@example.com" {
			t.Errorf("expected updated record after cursor, got %+v", changed)
		}

		count, err := db.CountSourceRecords("Contact")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != 2 {
			t.Errorf("expected 2 records, got %d", count)
		}
	})

	t.Run("observed fields", func(t *testing.T) {
		fields, err := db.ObservedFields("Contact")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// 003A was rewritten without FirstName.
		want := []string{"Email", "Score__c"}
		if len(fields) != len(want) {
			t.Fatalf("expected %v, got %v", want, fields)
		}
		for i := range want {
			if fields[i] != want[i] {
				t.Errorf("expected %v, got %v", want, fields)
				break
			}
		}
	})
}
