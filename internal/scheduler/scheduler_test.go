package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/macjediwizard/syncbridge/internal/db"
	"github.com/macjediwizard/syncbridge/internal/engine"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	result  *engine.Result
	err     error
	release chan struct{}
	done    chan string
}

func (f *fakeRunner) run(mode string) (*engine.Result, error) {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	f.calls = append(f.calls, mode)
	f.mu.Unlock()
	if f.done != nil {
		f.done <- mode
	}
	if f.result == nil && f.err == nil {
		return &engine.Result{Success: true}, nil
	}
	return f.result, f.err
}

func (f *fakeRunner) RunHistorical(ctx context.Context, syncID string) (*engine.Result, error) {
	return f.run(engine.ModeHistorical)
}

func (f *fakeRunner) RunIncremental(ctx context.Context, syncID string) (*engine.Result, error) {
	return f.run(engine.ModeIncremental)
}

type fakeAlerter struct {
	mu        sync.Mutex
	failures  []string
	recovered []string
}

func (f *fakeAlerter) SendFailureAlert(ctx context.Context, syncID, syncName, details string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, details)
	return true
}

func (f *fakeAlerter) SendRecoveryAlert(ctx context.Context, syncID, syncName string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recovered = append(f.recovered, syncID)
	return true
}

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "syncbridge-scheduler-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	database, err := db.New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
		os.RemoveAll(tempDir)
	})
	return database
}

func createSync(t *testing.T, database *db.DB, entity string, status db.SyncStatus) *db.SyncConfiguration {
	t.Helper()

	conn := &db.Connection{Name: entity + " conn", Region: "eu1", AccountID: "A", Passcode: "x"}
	if err := database.CreateConnection(conn); err != nil {
		t.Fatalf("CreateConnection failed: %v", err)
	}
	cfg := &db.SyncConfiguration{
		ConnectionID: conn.ID,
		Name:         entity,
		SyncType:     db.SyncTypeCRMToAnalytics,
		SourceEntity: entity,
		TargetEntity: db.TargetProfile,
		Status:       status,
	}
	if err := database.CreateSyncConfiguration(cfg); err != nil {
		t.Fatalf("CreateSyncConfiguration failed: %v", err)
	}
	if err := database.ReplaceFieldMappings(cfg.ID, []*db.FieldMapping{
		{Field: "Identity", SourceField: "Id", DataType: db.DataTypeText, IsMandatory: true},
	}); err != nil {
		t.Fatalf("ReplaceFieldMappings failed: %v", err)
	}
	return cfg
}

func TestNew(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		sched := New(nil, nil, nil, Options{})

		if sched.jobs == nil || sched.syncLocks == nil {
			t.Fatal("expected maps to be initialized")
		}
		if sched.opts.Interval != defaultInterval {
			t.Errorf("expected default interval, got %v", sched.opts.Interval)
		}
		if sched.opts.RetentionDays != defaultRetentionDays {
			t.Errorf("expected default retention, got %d", sched.opts.RetentionDays)
		}
	})

	t.Run("keeps explicit options", func(t *testing.T) {
		sched := New(nil, nil, nil, Options{Interval: time.Minute, RetentionDays: 7})
		if sched.opts.Interval != time.Minute || sched.opts.RetentionDays != 7 {
			t.Errorf("unexpected options %+v", sched.opts)
		}
	})
}

// addJobDirectly adds a job to the scheduler without starting the goroutine.
func addJobDirectly(s *Scheduler, syncID string, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[syncID] = &Job{
		syncID:   syncID,
		interval: interval,
		ticker:   time.NewTicker(interval),
		stopCh:   make(chan struct{}),
	}
}

func TestJobs(t *testing.T) {
	t.Run("remove non-existent job is safe", func(t *testing.T) {
		sched := New(nil, nil, nil, Options{})
		sched.RemoveJob("missing")
	})

	t.Run("add and remove", func(t *testing.T) {
		sched := New(nil, nil, nil, Options{})
		addJobDirectly(sched, "s1", time.Hour)
		addJobDirectly(sched, "s2", time.Hour)

		if sched.GetJobCount() != 2 || !sched.HasJob("s1") {
			t.Fatalf("expected 2 jobs, got %d", sched.GetJobCount())
		}
		sched.RemoveJob("s1")
		if sched.GetJobCount() != 1 || sched.HasJob("s1") {
			t.Error("expected s1 removed")
		}
	})

	t.Run("stop clears all jobs", func(t *testing.T) {
		sched := New(nil, nil, nil, Options{})
		addJobDirectly(sched, "s1", time.Hour)
		sched.mu.Lock()
		sched.started = true
		sched.mu.Unlock()

		sched.Stop()
		sched.Stop()
		if sched.GetJobCount() != 0 {
			t.Error("expected no jobs after stop")
		}
	})
}

func TestGetSyncLock(t *testing.T) {
	sched := New(nil, nil, nil, Options{})

	var wg sync.WaitGroup
	locks := make([]*sync.Mutex, 50)
	for i := range locks {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			locks[idx] = sched.getSyncLock("s1")
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(locks); i++ {
		if locks[i] != locks[0] {
			t.Fatal("expected the same lock for the same configuration")
		}
	}
	if sched.getSyncLock("s2") == locks[0] {
		t.Error("expected different locks for different configurations")
	}
}

func TestTriggerHistorical(t *testing.T) {
	database := setupTestDB(t)
	cfg := createSync(t, database, "Lead", db.SyncStatusActive)

	runner := &fakeRunner{release: make(chan struct{}), done: make(chan string, 1)}
	alerter := &fakeAlerter{}
	sched := New(database, runner, alerter, Options{})

	if err := sched.TriggerHistorical(cfg.ID); err != nil {
		t.Fatalf("TriggerHistorical failed: %v", err)
	}
	if err := sched.TriggerHistorical(cfg.ID); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("expected ErrSyncInProgress, got %v", err)
	}

	close(runner.release)
	if mode := <-runner.done; mode != engine.ModeHistorical {
		t.Errorf("expected historical run, got %s", mode)
	}
	sched.wg.Wait()

	if err := sched.TriggerHistorical(cfg.ID); err != nil {
		t.Errorf("expected lock released after run, got %v", err)
	}
	<-runner.done
	sched.wg.Wait()

	if len(alerter.recovered) != 2 {
		t.Errorf("expected recovery checks after successful runs, got %d", len(alerter.recovered))
	}
}

func TestExecuteAlerts(t *testing.T) {
	database := setupTestDB(t)
	active := createSync(t, database, "Lead", db.SyncStatusActive)
	inactive := createSync(t, database, "Case", db.SyncStatusInactive)

	t.Run("failed result alerts", func(t *testing.T) {
		runner := &fakeRunner{result: &engine.Result{Message: "Sync stopped", Errors: []string{"quota exceeded"}}}
		alerter := &fakeAlerter{}
		sched := New(database, runner, alerter, Options{})

		sched.executeIncremental(active.ID)
		if len(alerter.failures) != 1 || alerter.failures[0] != "Sync stopped: quota exceeded" {
			t.Errorf("unexpected failures %v", alerter.failures)
		}
	})

	t.Run("setup error alerts", func(t *testing.T) {
		runner := &fakeRunner{err: engine.ErrSetupFailed}
		alerter := &fakeAlerter{}
		sched := New(database, runner, alerter, Options{})

		sched.executeIncremental(active.ID)
		if len(alerter.failures) != 1 {
			t.Errorf("expected one failure alert, got %v", alerter.failures)
		}
	})

	t.Run("unmapped configuration does not alert", func(t *testing.T) {
		runner := &fakeRunner{err: engine.ErrNotMapped}
		alerter := &fakeAlerter{}
		sched := New(database, runner, alerter, Options{})

		sched.executeIncremental(active.ID)
		if len(alerter.failures) != 0 || len(alerter.recovered) != 0 {
			t.Errorf("expected no alerts, got failures %v recovered %v", alerter.failures, alerter.recovered)
		}
	})

	t.Run("inactive configuration is skipped", func(t *testing.T) {
		runner := &fakeRunner{}
		sched := New(database, runner, nil, Options{})

		sched.executeIncremental(inactive.ID)
		if len(runner.calls) != 0 {
			t.Errorf("expected no run, got %v", runner.calls)
		}
	})

	t.Run("busy configuration is skipped", func(t *testing.T) {
		runner := &fakeRunner{}
		sched := New(database, runner, nil, Options{})

		lock := sched.getSyncLock(active.ID)
		lock.Lock()
		sched.executeIncremental(active.ID)
		lock.Unlock()

		if len(runner.calls) != 0 {
			t.Errorf("expected no run while locked, got %v", runner.calls)
		}
	})
}

func TestStartSchedulesActive(t *testing.T) {
	database := setupTestDB(t)
	active := createSync(t, database, "Lead", db.SyncStatusActive)
	createSync(t, database, "Case", db.SyncStatusInactive)

	runner := &fakeRunner{done: make(chan string, 4)}
	sched := New(database, runner, nil, Options{Interval: time.Hour})
	if err := sched.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sched.Stop()

	if sched.GetJobCount() != 1 || !sched.HasJob(active.ID) {
		t.Errorf("expected one job for the active configuration, got %d", sched.GetJobCount())
	}
	if mode := <-runner.done; mode != engine.ModeIncremental {
		t.Errorf("expected immediate incremental run, got %s", mode)
	}
}

func TestStartSkipsUnmapped(t *testing.T) {
	database := setupTestDB(t)
	cfg := createSync(t, database, "Lead", db.SyncStatusActive)
	if err := database.ReplaceFieldMappings(cfg.ID, nil); err != nil {
		t.Fatalf("ReplaceFieldMappings failed: %v", err)
	}

	runner := &fakeRunner{}
	alerter := &fakeAlerter{}
	sched := New(database, runner, alerter, Options{Interval: time.Hour})
	if err := sched.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sched.Stop()

	time.Sleep(50 * time.Millisecond)

	if sched.HasJob(cfg.ID) {
		t.Error("unmapped configuration must not be scheduled")
	}
	runner.mu.Lock()
	calls := len(runner.calls)
	runner.mu.Unlock()
	if calls != 0 || len(alerter.failures) != 0 {
		t.Errorf("expected no runs or alerts, got %d runs and %v", calls, alerter.failures)
	}
	logs, err := database.ListEventLogs(db.EventLogFilter{Days: 1, Limit: 10})
	if err != nil {
		t.Fatalf("ListEventLogs failed: %v", err)
	}
	if len(logs) != 0 {
		t.Errorf("expected no event logs, got %+v", logs)
	}
}

func TestCleanupOldLogs(t *testing.T) {
	database := setupTestDB(t)
	cfg := createSync(t, database, "Lead", db.SyncStatusActive)
	if err := database.CreateEventLog(&db.EventLog{SyncID: cfg.ID, Status: db.EventStatusSuccess}); err != nil {
		t.Fatalf("CreateEventLog failed: %v", err)
	}

	sched := New(database, nil, nil, Options{RetentionDays: 30})
	sched.cleanupOldLogs()

	logs, err := database.ListEventLogs(db.EventLogFilter{Days: 1, Limit: 10})
	if err != nil {
		t.Fatalf("ListEventLogs failed: %v", err)
	}
	if len(logs) != 1 {
		t.Errorf("expected recent log kept, got %d", len(logs))
	}
}
