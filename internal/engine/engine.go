// Package engine uploads stored CRM records to the analytics service
// according to a sync configuration and its field mappings.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/macjediwizard/syncbridge/internal/activity"
	"github.com/macjediwizard/syncbridge/internal/analytics"
	"github.com/macjediwizard/syncbridge/internal/crypto"
	"github.com/macjediwizard/syncbridge/internal/db"
	"github.com/macjediwizard/syncbridge/internal/mapping"
)

var (
	ErrInactive    = errors.New("sync configuration is not active")
	ErrSetupFailed = errors.New("sync setup failed")
	// ErrNotMapped means the configuration has no saved field mappings yet.
	// Runs are skipped without an event log entry.
	ErrNotMapped = errors.New("sync configuration has no field mappings")
)

// Run modes.
const (
	ModeHistorical  = "historical"
	ModeIncremental = "incremental"
)

const defaultBatchSize = 200

// Uploader sends one batch of records. *analytics.Client satisfies it.
type Uploader interface {
	Upload(ctx context.Context, creds analytics.Credentials, records []analytics.Record) (*analytics.UploadResponse, []byte, error)
}

// Publisher forwards event log entries. *broker.Publisher satisfies it.
type Publisher interface {
	PublishEvent(connectionID string, entry *db.EventLog) error
}

// Result represents the result of a sync run.
type Result struct {
	Success   bool          `json:"success"`
	Mode      string        `json:"mode"`
	Message   string        `json:"message"`
	Processed int           `json:"processed"`
	Uploaded  int           `json:"uploaded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Batches   int           `json:"batches"`
	Cursor    int64         `json:"cursor"`
	Errors    []string      `json:"errors,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// SyncEngine orchestrates record uploads.
type SyncEngine struct {
	db        *db.DB
	encryptor *crypto.Encryptor
	uploader  Uploader
	tracker   *activity.Tracker
	publisher Publisher
	batchSize int
}

// NewSyncEngine creates a new sync engine. batchSize is capped at the
// analytics service limit.
func NewSyncEngine(database *db.DB, encryptor *crypto.Encryptor, uploader Uploader, tracker *activity.Tracker, batchSize int) *SyncEngine {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if batchSize > analytics.MaxBatchSize {
		batchSize = analytics.MaxBatchSize
	}
	return &SyncEngine{
		db:        database,
		encryptor: encryptor,
		uploader:  uploader,
		tracker:   tracker,
		batchSize: batchSize,
	}
}

// SetPublisher enables forwarding of event log entries.
func (se *SyncEngine) SetPublisher(p Publisher) {
	se.publisher = p
}

// Tracker returns the activity tracker runs report to.
func (se *SyncEngine) Tracker() *activity.Tracker {
	return se.tracker
}

// RunHistorical uploads every stored record of the configuration's source
// entity.
func (se *SyncEngine) RunHistorical(ctx context.Context, syncID string) (*Result, error) {
	return se.run(ctx, syncID, ModeHistorical)
}

// RunIncremental uploads records changed since the configuration's cursor.
func (se *SyncEngine) RunIncremental(ctx context.Context, syncID string) (*Result, error) {
	return se.run(ctx, syncID, ModeIncremental)
}

// run returns an error only when the run could not start. Batch failures are
// reported in the Result.
func (se *SyncEngine) run(ctx context.Context, syncID, mode string) (*Result, error) {
	start := time.Now()
	result := &Result{Mode: mode, Errors: make([]string, 0)}

	cfg, err := se.db.GetSyncConfigurationByID(syncID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sync configuration: %w", err)
	}
	if !cfg.IsActive() {
		return nil, fmt.Errorf("%w: %s", ErrInactive, cfg.Name)
	}

	creds, plan, err := se.prepare(cfg)
	if errors.Is(err, ErrNotMapped) {
		return nil, fmt.Errorf("%w: %s", ErrNotMapped, cfg.Name)
	}
	if err != nil {
		se.logEvent(cfg, &db.EventLog{
			SyncID:  cfg.ID,
			Status:  db.EventStatusFailed,
			Message: err.Error(),
		})
		return nil, err
	}

	after := cfg.Cursor
	total := 0
	if mode == ModeHistorical {
		after = 0
		if total, err = se.db.CountSourceRecords(cfg.SourceEntity); err != nil {
			log.Printf("Failed to count %s records: %v", cfg.SourceEntity, err)
		}
	}
	result.Cursor = cfg.Cursor

	se.tracker.Start(cfg.ID, cfg.Name, cfg.SourceEntity, mode, total)
	log.Printf("Starting %s sync %q (%s, after rev %d)", mode, cfg.Name, cfg.SourceEntity, after)

	result.Success = true
	for {
		if err := ctx.Err(); err != nil {
			result.Success = false
			result.Errors = append(result.Errors, err.Error())
			break
		}

		records, err := se.db.ListSourceRecords(cfg.SourceEntity, after, se.batchSize)
		if err != nil {
			result.Success = false
			result.Errors = append(result.Errors, err.Error())
			break
		}
		if len(records) == 0 {
			break
		}

		ok := se.uploadBatch(ctx, cfg, creds, plan, records, result)
		if !ok {
			result.Success = false
			break
		}
		after = records[len(records)-1].Rev
		if after > result.Cursor {
			result.Cursor = after
		}
	}

	if result.Cursor > cfg.Cursor || result.Success {
		if err := se.db.MarkSynced(cfg.ID, result.Cursor); err != nil {
			log.Printf("Failed to mark sync %s synced: %v", cfg.ID, err)
		}
	}

	if result.Success {
		result.Message = fmt.Sprintf("Uploaded %d of %d records in %d batches", result.Uploaded, result.Processed, result.Batches)
	} else {
		result.Message = fmt.Sprintf("Sync stopped after %d batches with %d errors", result.Batches, len(result.Errors))
	}
	result.Duration = time.Since(start)

	se.tracker.Finish(cfg.ID, result.Success, result.Message)
	log.Printf("Finished %s sync %q: %s (%v)", mode, cfg.Name, result.Message, result.Duration)
	return result, nil
}

// prepare decrypts the connection credentials and builds the mapping plan.
func (se *SyncEngine) prepare(cfg *db.SyncConfiguration) (analytics.Credentials, *mapping.Plan, error) {
	var creds analytics.Credentials

	conn, err := se.db.GetConnectionByID(cfg.ConnectionID)
	if err != nil {
		return creds, nil, fmt.Errorf("%w: load connection: %w", ErrSetupFailed, err)
	}

	// Decrypt credentials - NEVER log these
	passcode, err := se.encryptor.Decrypt(conn.Passcode)
	if err != nil {
		return creds, nil, fmt.Errorf("%w: failed to decrypt connection credentials: %w", ErrSetupFailed, err)
	}
	creds = analytics.Credentials{Region: conn.Region, AccountID: conn.AccountID, Passcode: passcode}

	mappings, err := se.db.GetFieldMappings(cfg.ID)
	if err != nil {
		return creds, nil, fmt.Errorf("%w: load field mappings: %w", ErrSetupFailed, err)
	}
	if len(mappings) == 0 {
		return creds, nil, ErrNotMapped
	}
	plan, err := mapping.NewPlan(cfg.TargetEntity, mappings)
	if err != nil {
		return creds, nil, fmt.Errorf("%w: %w", ErrSetupFailed, err)
	}
	return creds, plan, nil
}

// uploadBatch transforms and uploads one page of records and records the
// outcome as an event log entry. It returns false when the batch failed.
func (se *SyncEngine) uploadBatch(ctx context.Context, cfg *db.SyncConfiguration, creds analytics.Credentials,
	plan *mapping.Plan, records []*db.SourceRecord, result *Result) bool {

	out := make([]analytics.Record, 0, len(records))
	skipped := 0
	for _, rec := range records {
		transformed, fieldErrs, err := plan.Transform(rec)
		if err != nil {
			skipped++
			se.tracker.AddError(cfg.ID, err.Error())
			continue
		}
		for _, fe := range fieldErrs {
			se.tracker.AddError(cfg.ID, fe.Error())
		}
		out = append(out, *transformed)
	}

	result.Batches++
	result.Processed += len(records)
	result.Skipped += skipped

	entry := &db.EventLog{SyncID: cfg.ID, RecordCount: len(records)}

	if len(out) == 0 {
		entry.Status = db.EventStatusFailed
		entry.Message = fmt.Sprintf("None of %d records could be mapped", len(records))
		result.Failed += len(records)
		se.tracker.AddBatch(cfg.ID, len(records), 0, len(records))
		se.logEvent(cfg, entry)
		// Unmappable records are skipped, not retried.
		return true
	}

	resp, raw, err := se.uploader.Upload(ctx, creds, out)
	entry.Response = string(raw)
	if err != nil {
		entry.Status = db.EventStatusFailed
		entry.Message = err.Error()
		result.Failed += len(records)
		result.Errors = append(result.Errors, err.Error())
		se.tracker.AddBatch(cfg.ID, len(records), 0, len(records))
		se.logEvent(cfg, entry)
		return false
	}

	uploaded := resp.Processed
	if uploaded == 0 && len(resp.Unprocessed) == 0 {
		uploaded = len(out)
	}
	failed := len(records) - uploaded

	entry.Status = db.EventStatusSuccess
	entry.Message = fmt.Sprintf("Uploaded %d of %d records", uploaded, len(records))
	result.Uploaded += uploaded
	result.Failed += failed
	se.tracker.AddBatch(cfg.ID, len(records), uploaded, failed)
	se.logEvent(cfg, entry)
	return true
}

// logEvent stores an event log entry and forwards it to the publisher.
func (se *SyncEngine) logEvent(cfg *db.SyncConfiguration, entry *db.EventLog) {
	if err := se.db.CreateEventLog(entry); err != nil {
		log.Printf("Failed to create event log for sync %s: %v", cfg.ID, err)
		return
	}
	if se.publisher == nil {
		return
	}
	if err := se.publisher.PublishEvent(cfg.ConnectionID, entry); err != nil {
		log.Printf("Failed to publish event %s: %v", entry.Name, err)
	}
}
