package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/macjediwizard/syncbridge/internal/db"
	"github.com/macjediwizard/syncbridge/internal/engine"
)

const (
	cleanupInterval      = 24 * time.Hour
	defaultInterval      = 15 * time.Minute
	defaultRetentionDays = 30
	syncTimeout          = 30 * time.Minute // Maximum time for a single sync run
)

// ErrSyncInProgress is returned when a run of the same configuration is
// already executing.
var ErrSyncInProgress = errors.New("a sync is already in progress for this configuration")

// Runner executes sync runs. *engine.SyncEngine satisfies it.
type Runner interface {
	RunHistorical(ctx context.Context, syncID string) (*engine.Result, error)
	RunIncremental(ctx context.Context, syncID string) (*engine.Result, error)
}

// Alerter delivers failure and recovery alerts. *notify.Notifier satisfies it.
type Alerter interface {
	SendFailureAlert(ctx context.Context, syncID, syncName, details string) bool
	SendRecoveryAlert(ctx context.Context, syncID, syncName string) bool
}

// Options configures the scheduler.
type Options struct {
	// Interval between incremental runs of each Active configuration.
	Interval time.Duration
	// RetentionDays is how long event log entries are kept.
	RetentionDays int
}

// Job represents a scheduled incremental sync job.
type Job struct {
	syncID   string
	interval time.Duration
	ticker   *time.Ticker
	stopCh   chan struct{}
}

// Scheduler manages background sync jobs.
type Scheduler struct {
	db      *db.DB
	runner  Runner
	alerter Alerter
	opts    Options

	mu        sync.RWMutex
	jobs      map[string]*Job
	syncLocks map[string]*sync.Mutex // Per-configuration locks to prevent concurrent runs
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	started   bool
}

// New creates a new scheduler. alerter may be nil.
func New(database *db.DB, runner Runner, alerter Alerter, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = defaultRetentionDays
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		db:        database,
		runner:    runner,
		alerter:   alerter,
		opts:      opts,
		jobs:      make(map[string]*Job),
		syncLocks: make(map[string]*sync.Mutex),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start loads all Active configurations and starts their incremental jobs.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	configs, err := s.db.ListActiveSyncConfigurations()
	if err != nil {
		return err
	}

	for _, cfg := range configs {
		if !s.hasMappings(cfg.ID) {
			log.Printf("Not scheduling %s until its field mappings are saved", cfg.Name)
			continue
		}
		s.AddJob(cfg.ID)
	}

	s.wg.Add(1)
	go s.cleanupRoutine()

	log.Printf("Scheduler started with %d jobs", s.GetJobCount())
	return nil
}

// Stop gracefully shuts down all jobs and waits for running syncs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	s.cancel()

	s.mu.Lock()
	for _, job := range s.jobs {
		close(job.stopCh)
		job.ticker.Stop()
	}
	s.jobs = make(map[string]*Job)
	s.mu.Unlock()

	s.wg.Wait()
	log.Println("Scheduler stopped")
}

// AddJob adds or replaces the incremental job of a configuration.
func (s *Scheduler) AddJob(syncID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, exists := s.jobs[syncID]; exists {
		close(existing.stopCh)
		existing.ticker.Stop()
	}

	job := &Job{
		syncID:   syncID,
		interval: s.opts.Interval,
		ticker:   time.NewTicker(s.opts.Interval),
		stopCh:   make(chan struct{}),
	}
	s.jobs[syncID] = job

	s.wg.Add(1)
	go s.runJob(job)

	log.Printf("Added sync job for %s with interval %v", syncID, job.interval)
}

// RemoveJob removes the incremental job of a configuration.
func (s *Scheduler) RemoveJob(syncID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, exists := s.jobs[syncID]; exists {
		close(job.stopCh)
		job.ticker.Stop()
		delete(s.jobs, syncID)
		log.Printf("Removed sync job for %s", syncID)
	}
}

// TriggerHistorical starts a historical sync in the background. It returns
// ErrSyncInProgress when a run of the configuration is already executing.
func (s *Scheduler) TriggerHistorical(syncID string) error {
	lock := s.getSyncLock(syncID)
	if !lock.TryLock() {
		return ErrSyncInProgress
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer lock.Unlock()
		s.execute(syncID, engine.ModeHistorical)
	}()
	return nil
}

// GetJobCount returns the number of scheduled jobs.
func (s *Scheduler) GetJobCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// HasJob reports whether a configuration has a scheduled job.
func (s *Scheduler) HasJob(syncID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.jobs[syncID]
	return ok
}

// runJob runs the incremental job loop.
func (s *Scheduler) runJob(job *Job) {
	defer s.wg.Done()

	s.executeIncremental(job.syncID)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-job.stopCh:
			return
		case <-job.ticker.C:
			s.executeIncremental(job.syncID)
		}
	}
}

// getSyncLock returns the mutex for a configuration, creating one if needed.
func (s *Scheduler) getSyncLock(syncID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lock, exists := s.syncLocks[syncID]; exists {
		return lock
	}

	lock := &sync.Mutex{}
	s.syncLocks[syncID] = lock
	return lock
}

func (s *Scheduler) executeIncremental(syncID string) {
	lock := s.getSyncLock(syncID)

	// Skip if a historical or earlier incremental run is still going
	if !lock.TryLock() {
		log.Printf("Skipping sync for %s - another sync is already in progress", syncID)
		return
	}
	defer lock.Unlock()

	s.execute(syncID, engine.ModeIncremental)
}

// execute runs one sync. The caller holds the configuration's lock.
func (s *Scheduler) execute(syncID, mode string) {
	cfg, err := s.db.GetSyncConfigurationByID(syncID)
	if err != nil {
		log.Printf("Failed to get sync configuration %s: %v", syncID, err)
		return
	}

	// Deactivated since the job was scheduled
	if !cfg.IsActive() {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, syncTimeout)
	defer cancel()

	var result *engine.Result
	if mode == engine.ModeHistorical {
		result, err = s.runner.RunHistorical(ctx, syncID)
	} else {
		result, err = s.runner.RunIncremental(ctx, syncID)
	}

	switch {
	case errors.Is(err, engine.ErrNotMapped):
		log.Printf("Skipping sync for %s - no field mappings saved", cfg.Name)
	case err != nil:
		log.Printf("Sync failed for %s: %v", cfg.Name, err)
		s.alertFailure(cfg, err.Error())
	case !result.Success:
		log.Printf("Sync failed for %s: %s", cfg.Name, result.Message)
		s.alertFailure(cfg, fmt.Sprintf("%s: %s", result.Message, strings.Join(result.Errors, "; ")))
	default:
		if result.Batches > 0 {
			log.Printf("Sync completed for %s: %s in %v", cfg.Name, result.Message, result.Duration)
		}
		if s.alerter != nil {
			s.alerter.SendRecoveryAlert(s.ctx, cfg.ID, cfg.Name)
		}
	}
}

func (s *Scheduler) hasMappings(syncID string) bool {
	mappings, err := s.db.GetFieldMappings(syncID)
	if err != nil {
		log.Printf("Failed to load field mappings for %s: %v", syncID, err)
		return false
	}
	return len(mappings) > 0
}

func (s *Scheduler) alertFailure(cfg *db.SyncConfiguration, details string) {
	if s.alerter == nil {
		return
	}
	s.alerter.SendFailureAlert(s.ctx, cfg.ID, cfg.Name, details)
}

// cleanupRoutine runs periodic cleanup of old event logs.
func (s *Scheduler) cleanupRoutine() {
	defer s.wg.Done()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.cleanupOldLogs()
		}
	}
}

// cleanupOldLogs deletes event logs older than the retention period.
func (s *Scheduler) cleanupOldLogs() {
	cutoff := time.Now().AddDate(0, 0, -s.opts.RetentionDays)
	deleted, err := s.db.CleanOldEventLogs(cutoff)
	if err != nil {
		log.Printf("Failed to clean old event logs: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("Cleaned %d old event logs", deleted)
	}
}
