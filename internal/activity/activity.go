package activity

import (
	"sync"
	"time"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusError     = "error"
)

const maxErrors = 20

// RunActivity is the progress of one sync run.
type RunActivity struct {
	SyncID           string     `json:"syncId"`
	SyncName         string     `json:"syncName"`
	SourceEntity     string     `json:"sourceEntity"`
	Mode             string     `json:"mode"` // "historical" or "incremental"
	Status           string     `json:"status"`
	TotalRecords     int        `json:"totalRecords"`
	RecordsProcessed int        `json:"recordsProcessed"`
	RecordsUploaded  int        `json:"recordsUploaded"`
	RecordsFailed    int        `json:"recordsFailed"`
	Batches          int        `json:"batches"`
	StartedAt        time.Time  `json:"startedAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	Duration         string     `json:"duration,omitempty"`
	Message          string     `json:"message,omitempty"`
	Errors           []string   `json:"errors,omitempty"`
}

// Snapshot is the response of the activity endpoint.
type Snapshot struct {
	Active []*RunActivity `json:"active"`
	Recent []*RunActivity `json:"recent"`
}

// Tracker tracks running and recently finished sync runs.
type Tracker struct {
	mu        sync.RWMutex
	active    map[string]*RunActivity // syncID -> run
	recent    []*RunActivity
	maxRecent int
}

// NewTracker creates a new activity tracker.
func NewTracker() *Tracker {
	return &Tracker{
		active:    make(map[string]*RunActivity),
		recent:    make([]*RunActivity, 0),
		maxRecent: 20,
	}
}

// Start begins tracking a run.
func (t *Tracker) Start(syncID, syncName, sourceEntity, mode string, totalRecords int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.active[syncID] = &RunActivity{
		SyncID:       syncID,
		SyncName:     syncName,
		SourceEntity: sourceEntity,
		Mode:         mode,
		Status:       StatusRunning,
		TotalRecords: totalRecords,
		StartedAt:    time.Now(),
	}
}

// AddBatch adds the counters of one uploaded batch.
func (t *Tracker) AddBatch(syncID string, processed, uploaded, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if run, ok := t.active[syncID]; ok {
		run.Batches++
		run.RecordsProcessed += processed
		run.RecordsUploaded += uploaded
		run.RecordsFailed += failed
	}
}

// AddError records a non-fatal problem. Only the first few are kept.
func (t *Tracker) AddError(syncID, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if run, ok := t.active[syncID]; ok && len(run.Errors) < maxErrors {
		run.Errors = append(run.Errors, msg)
	}
}

// Finish marks a run as done and moves it to the recent list.
func (t *Tracker) Finish(syncID string, success bool, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	run, ok := t.active[syncID]
	if !ok {
		return
	}

	now := time.Now()
	run.CompletedAt = &now
	run.Duration = now.Sub(run.StartedAt).Round(time.Millisecond).String()
	run.Message = message

	switch {
	case !success:
		run.Status = StatusError
	case run.RecordsFailed > 0 || len(run.Errors) > 0:
		run.Status = StatusPartial
	default:
		run.Status = StatusCompleted
	}

	t.recent = append([]*RunActivity{run}, t.recent...)
	if len(t.recent) > t.maxRecent {
		t.recent = t.recent[:t.maxRecent]
	}
	delete(t.active, syncID)
}

// Active returns copies of the running runs.
func (t *Tracker) Active() []*RunActivity {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]*RunActivity, 0, len(t.active))
	for _, run := range t.active {
		c := *run
		c.Errors = append([]string(nil), run.Errors...)
		c.Duration = time.Since(run.StartedAt).Round(time.Millisecond).String()
		result = append(result, &c)
	}
	return result
}

// Recent returns copies of recently finished runs, newest first.
func (t *Tracker) Recent() []*RunActivity {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]*RunActivity, len(t.recent))
	for i, run := range t.recent {
		c := *run
		result[i] = &c
	}
	return result
}

// Snapshot returns both active and recent runs.
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{Active: t.Active(), Recent: t.Recent()}
}

// IsRunning reports whether a run of the sync configuration is in progress.
func (t *Tracker) IsRunning(syncID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.active[syncID]
	return ok
}
