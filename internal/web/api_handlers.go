package web

import (
	"errors"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/macjediwizard/syncbridge/internal/analytics"
	"github.com/macjediwizard/syncbridge/internal/api"
	"github.com/macjediwizard/syncbridge/internal/auth"
	"github.com/macjediwizard/syncbridge/internal/crm"
	"github.com/macjediwizard/syncbridge/internal/db"
	"github.com/macjediwizard/syncbridge/internal/mapping"
	"github.com/macjediwizard/syncbridge/internal/scheduler"
)

const (
	maxNameLength     = 80
	maxEventLogLimit  = 500
	maxEventLogDays   = 1000
	maxIngestRecords  = 5000
	maxRecordIDLength = 64
)

var regionPattern = regexp.MustCompile(`^[a-zA-Z0-9-]{2,20}$`)

// sanitizeError returns a user-safe error message without exposing internal details.
// Internal error details are logged but not returned to the client.
func sanitizeError(err error, userMessage string) string {
	if err != nil {
		log.Printf("Error: %s - Details: %v", userMessage, err)
	}
	return userMessage
}

// categorizeConnectionError returns a user-friendly message for a failed
// credential check.
func categorizeConnectionError(err error) string {
	if err == nil {
		return "Connection failed"
	}

	switch {
	case errors.Is(err, analytics.ErrAuthFailed):
		return "Authentication failed. Please check the account ID and passcode."
	case errors.Is(err, analytics.ErrInvalidConfig):
		return "Invalid region. Please check the connection settings."
	case errors.Is(err, analytics.ErrUploadRejected):
		return "The analytics service rejected the request."
	case errors.Is(err, analytics.ErrInvalidResponse):
		return "Unexpected response from the analytics service."
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "no such host") || strings.Contains(errStr, "lookup"):
		return "Server not found. Please check the region."
	case strings.Contains(errStr, "connection refused"):
		return "Connection refused. Please try again later."
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return "Connection timed out. Please try again."
	case strings.Contains(errStr, "certificate") || strings.Contains(errStr, "tls"):
		return "SSL/TLS error. Please verify the server certificate."
	default:
		return "Connection failed. Please check your settings."
	}
}

// APIAuthStatus represents auth status response.
type APIAuthStatus struct {
	Authenticated bool     `json:"authenticated"`
	User          *APIUser `json:"user,omitempty"`
	CSRFToken     string   `json:"csrfToken,omitempty"`
}

// APIUser represents a user in JSON format.
type APIUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func syncToAPI(s *db.SyncConfiguration) api.SyncConfiguration {
	out := api.SyncConfiguration{
		ID:           s.ID,
		Name:         s.Name,
		SyncType:     string(s.SyncType),
		SourceEntity: s.SourceEntity,
		TargetEntity: string(s.TargetEntity),
		Status:       string(s.Status),
		ConnectionID: s.ConnectionID,
	}
	if s.LastSyncedAt != nil {
		ts := formatTime(*s.LastSyncedAt)
		out.LastSyncedAt = &ts
	}
	return out
}

func connectionToAPI(c *db.Connection) api.Connection {
	return api.Connection{
		ID:        c.ID,
		Name:      c.Name,
		Region:    c.Region,
		AccountID: c.AccountID,
		CreatedAt: formatTime(c.CreatedAt),
	}
}

func eventLogToAPI(e *db.EventLog) api.EventLogEntry {
	return api.EventLogEntry{
		ID:              e.ID,
		Name:            e.Name,
		Status:          string(e.Status),
		CreatedDate:     formatTime(e.CreatedAt),
		SyncID:          e.SyncID,
		Message:         e.Message,
		RecordCount:     e.RecordCount,
		ResponsePayload: e.Response,
	}
}

// APIAuthStatus returns the authentication status.
func (h *Handlers) APIAuthStatus(c *gin.Context) {
	session := auth.GetCurrentUser(c)
	if session == nil {
		c.JSON(http.StatusOK, APIAuthStatus{Authenticated: false})
		return
	}

	c.JSON(http.StatusOK, APIAuthStatus{
		Authenticated: true,
		User: &APIUser{
			ID:    session.UserID,
			Email: session.Email,
			Name:  session.Name,
		},
		CSRFToken: session.CSRFToken,
	})
}

// APILogout logs out the user.
func (h *Handlers) APILogout(c *gin.Context) {
	if err := h.session.Clear(c.Writer, c.Request); err != nil {
		h.respondError(c, http.StatusInternalServerError, sanitizeError(err, "Failed to logout"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// APIActivity returns running and recently finished sync runs.
func (h *Handlers) APIActivity(c *gin.Context) {
	c.JSON(http.StatusOK, h.tracker.Snapshot())
}

// Connections

func validateConnectionRequest(req *api.SaveConnectionRequest, requirePasscode bool) string {
	req.Name = strings.TrimSpace(req.Name)
	req.AccountID = strings.TrimSpace(req.AccountID)
	req.Region = strings.TrimSpace(req.Region)

	switch {
	case req.Name == "" || req.AccountID == "" || req.Region == "":
		return "Name, region and account ID are required"
	case requirePasscode && req.Passcode == "":
		return "Passcode is required"
	case len(req.Name) > maxNameLength:
		return "Name is too long"
	case !regionPattern.MatchString(req.Region):
		return "Invalid region"
	}
	return ""
}

// APIListConnections returns all analytics connections.
func (h *Handlers) APIListConnections(c *gin.Context) {
	conns, err := h.db.ListConnections()
	if err != nil {
		h.respondError(c, http.StatusInternalServerError, sanitizeError(err, "Failed to load connections"))
		return
	}

	out := make([]api.Connection, 0, len(conns))
	for _, conn := range conns {
		out = append(out, connectionToAPI(conn))
	}
	c.JSON(http.StatusOK, out)
}

// APIGetConnection returns a single connection.
func (h *Handlers) APIGetConnection(c *gin.Context) {
	conn, err := h.db.GetConnectionByID(c.Param("id"))
	if err != nil {
		h.respondDBError(c, err, "Connection not found", "Failed to load connection")
		return
	}
	c.JSON(http.StatusOK, connectionToAPI(conn))
}

// APICreateConnection stores a new connection after checking its credentials.
func (h *Handlers) APICreateConnection(c *gin.Context) {
	var req api.SaveConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg := validateConnectionRequest(&req, true); msg != "" {
		h.respondError(c, http.StatusBadRequest, msg)
		return
	}

	creds := analytics.Credentials{Region: req.Region, AccountID: req.AccountID, Passcode: req.Passcode}
	if err := h.analytics.ValidateCredentials(c.Request.Context(), creds); err != nil {
		log.Printf("Credential check failed for account %s: %v", req.AccountID, err)
		h.respondError(c, http.StatusBadRequest, "Failed to connect: "+categorizeConnectionError(err))
		return
	}

	encPasscode, err := h.encryptor.Encrypt(req.Passcode)
	if err != nil {
		h.respondError(c, http.StatusInternalServerError, sanitizeError(err, "Failed to encrypt credentials"))
		return
	}

	conn := &db.Connection{
		Name:      req.Name,
		Region:    req.Region,
		AccountID: req.AccountID,
		Passcode:  encPasscode,
	}
	if session := auth.GetCurrentUser(c); session != nil {
		conn.CreatedBy = session.UserID
	}

	if err := h.db.CreateConnection(conn); err != nil {
		h.respondError(c, http.StatusInternalServerError, sanitizeError(err, "Failed to create connection"))
		return
	}

	c.JSON(http.StatusCreated, connectionToAPI(conn))
}

// APIUpdateConnection updates a connection. An empty passcode keeps the
// stored one; a new passcode is checked before it is saved.
func (h *Handlers) APIUpdateConnection(c *gin.Context) {
	conn, err := h.db.GetConnectionByID(c.Param("id"))
	if err != nil {
		h.respondDBError(c, err, "Connection not found", "Failed to load connection")
		return
	}

	var req api.SaveConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg := validateConnectionRequest(&req, false); msg != "" {
		h.respondError(c, http.StatusBadRequest, msg)
		return
	}

	conn.Name = req.Name
	conn.Region = req.Region
	conn.AccountID = req.AccountID

	if req.Passcode != "" {
		creds := analytics.Credentials{Region: req.Region, AccountID: req.AccountID, Passcode: req.Passcode}
		if err := h.analytics.ValidateCredentials(c.Request.Context(), creds); err != nil {
			log.Printf("Credential check failed for account %s: %v", req.AccountID, err)
			h.respondError(c, http.StatusBadRequest, "Failed to connect: "+categorizeConnectionError(err))
			return
		}
		encPasscode, err := h.encryptor.Encrypt(req.Passcode)
		if err != nil {
			h.respondError(c, http.StatusInternalServerError, sanitizeError(err, "Failed to encrypt credentials"))
			return
		}
		conn.Passcode = encPasscode
	}

	if err := h.db.UpdateConnection(conn); err != nil {
		h.respondDBError(c, err, "Connection not found", "Failed to update connection")
		return
	}

	c.JSON(http.StatusOK, connectionToAPI(conn))
}

// APIDeleteConnection deletes a connection and unschedules its syncs.
func (h *Handlers) APIDeleteConnection(c *gin.Context) {
	connectionID := c.Param("id")

	syncs, err := h.db.ListSyncConfigurations(connectionID)
	if err != nil {
		h.respondError(c, http.StatusInternalServerError, sanitizeError(err, "Failed to load sync configurations"))
		return
	}

	if err := h.db.DeleteConnection(connectionID); err != nil {
		h.respondDBError(c, err, "Connection not found", "Failed to delete connection")
		return
	}

	for _, s := range syncs {
		h.unschedule(s.ID)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Connection deleted"})
}

// APIValidateCredentials checks credentials without saving them.
func (h *Handlers) APIValidateCredentials(c *gin.Context) {
	var req api.ValidateCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	creds := analytics.Credentials{
		Region:    strings.TrimSpace(req.Region),
		AccountID: strings.TrimSpace(req.AccountID),
		Passcode:  req.Passcode,
	}
	if !regionPattern.MatchString(creds.Region) {
		c.JSON(http.StatusOK, api.ValidateCredentialsResponse{Valid: false, Message: "Invalid region"})
		return
	}

	if err := h.analytics.ValidateCredentials(c.Request.Context(), creds); err != nil {
		log.Printf("Credential check failed for account %s: %v", creds.AccountID, err)
		c.JSON(http.StatusOK, api.ValidateCredentialsResponse{Valid: false, Message: categorizeConnectionError(err)})
		return
	}

	c.JSON(http.StatusOK, api.ValidateCredentialsResponse{Valid: true, Message: "Credentials are valid"})
}

// Sync configurations

// validateSyncRequest normalizes and checks a create or update request.
func validateSyncRequest(req *api.SaveSyncRequest) string {
	req.Name = strings.TrimSpace(req.Name)
	if req.Status == "" {
		req.Status = api.StatusInactive
	}

	switch {
	case req.Name == "" || req.SyncType == "" || req.SourceEntity == "" || req.TargetEntity == "":
		return "Please fill in all required fields"
	case len(req.Name) > maxNameLength:
		return "Name is too long"
	case !db.SyncType(req.SyncType).IsValid():
		return "Invalid sync type"
	case !crm.IsEntity(req.SourceEntity):
		return "Invalid source entity"
	case !db.TargetEntity(req.TargetEntity).IsValid():
		return "Invalid target entity"
	case !db.SyncStatus(req.Status).IsValid():
		return "Invalid status"
	}
	return ""
}

// schedule keeps the scheduler in step with a configuration's status. An
// active configuration only gets a job once its field mappings are saved.
func (h *Handlers) schedule(s *db.SyncConfiguration) {
	if s.IsActive() && h.hasMappings(s.ID) {
		h.scheduler.AddJob(s.ID)
		return
	}
	h.unschedule(s.ID)
}

func (h *Handlers) hasMappings(syncID string) bool {
	mappings, err := h.db.GetFieldMappings(syncID)
	if err != nil {
		log.Printf("Failed to load field mappings for %s: %v", syncID, err)
		return false
	}
	return len(mappings) > 0
}

func (h *Handlers) unschedule(syncID string) {
	h.scheduler.RemoveJob(syncID)
	if h.notifier != nil {
		h.notifier.Clear(syncID)
	}
}

// APIListSyncs returns the sync configurations of a connection.
func (h *Handlers) APIListSyncs(c *gin.Context) {
	connectionID := c.Param("id")
	if _, err := h.db.GetConnectionByID(connectionID); err != nil {
		h.respondDBError(c, err, "Connection not found", "Failed to load connection")
		return
	}

	syncs, err := h.db.ListSyncConfigurations(connectionID)
	if err != nil {
		h.respondError(c, http.StatusInternalServerError, sanitizeError(err, "Failed to load sync configurations"))
		return
	}

	out := make([]api.SyncConfiguration, 0, len(syncs))
	for _, s := range syncs {
		out = append(out, syncToAPI(s))
	}
	c.JSON(http.StatusOK, out)
}

// APIGetSync returns a single sync configuration.
func (h *Handlers) APIGetSync(c *gin.Context) {
	s, err := h.db.GetSyncConfigurationByID(c.Param("id"))
	if err != nil {
		h.respondDBError(c, err, "Sync configuration not found", "Failed to load sync configuration")
		return
	}
	c.JSON(http.StatusOK, syncToAPI(s))
}

// APICreateSync creates a sync configuration and returns its id.
func (h *Handlers) APICreateSync(c *gin.Context) {
	var req api.SaveSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg := validateSyncRequest(&req); msg != "" {
		h.respondError(c, http.StatusBadRequest, msg)
		return
	}
	if req.ConnectionID == "" {
		h.respondError(c, http.StatusBadRequest, "Connection is required")
		return
	}
	if _, err := h.db.GetConnectionByID(req.ConnectionID); err != nil {
		h.respondDBError(c, err, "Connection not found", "Failed to load connection")
		return
	}

	s := &db.SyncConfiguration{
		ConnectionID: req.ConnectionID,
		Name:         req.Name,
		SyncType:     db.SyncType(req.SyncType),
		SourceEntity: req.SourceEntity,
		TargetEntity: db.TargetEntity(req.TargetEntity),
		Status:       db.SyncStatus(req.Status),
	}
	if err := h.db.CreateSyncConfiguration(s); err != nil {
		h.respondDBError(c, err, "Connection not found", "Failed to create sync configuration")
		return
	}

	// Scheduled once mappings are saved
	c.JSON(http.StatusCreated, api.CreateSyncResponse{ID: s.ID})
}

// APIUpdateSync updates a sync configuration. Its connection never changes.
func (h *Handlers) APIUpdateSync(c *gin.Context) {
	s, err := h.db.GetSyncConfigurationByID(c.Param("id"))
	if err != nil {
		h.respondDBError(c, err, "Sync configuration not found", "Failed to load sync configuration")
		return
	}

	var req api.SaveSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg := validateSyncRequest(&req); msg != "" {
		h.respondError(c, http.StatusBadRequest, msg)
		return
	}

	s.Name = req.Name
	s.SyncType = db.SyncType(req.SyncType)
	s.SourceEntity = req.SourceEntity
	s.TargetEntity = db.TargetEntity(req.TargetEntity)
	s.Status = db.SyncStatus(req.Status)

	if err := h.db.UpdateSyncConfiguration(s); err != nil {
		h.respondDBError(c, err, "Sync configuration not found", "Failed to update sync configuration")
		return
	}

	h.schedule(s)
	c.JSON(http.StatusOK, syncToAPI(s))
}

// APIDeleteSync deletes a sync configuration and its mappings. Its event
// log entries are kept.
func (h *Handlers) APIDeleteSync(c *gin.Context) {
	syncID := c.Param("id")

	if err := h.db.DeleteSyncConfiguration(syncID); err != nil {
		h.respondDBError(c, err, "Sync configuration not found", "Failed to delete sync configuration")
		return
	}

	h.unschedule(syncID)
	c.JSON(http.StatusOK, gin.H{"message": "Sync configuration deleted"})
}

// APIUpdateSyncStatus activates or deactivates a sync configuration.
func (h *Handlers) APIUpdateSyncStatus(c *gin.Context) {
	syncID := c.Param("id")

	var req api.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	status := db.SyncStatus(req.Status)
	if !status.IsValid() {
		h.respondError(c, http.StatusBadRequest, "Invalid status")
		return
	}

	if err := h.db.UpdateSyncStatus(syncID, status); err != nil {
		h.respondDBError(c, err, "Sync configuration not found", "Failed to update status")
		return
	}

	s, err := h.db.GetSyncConfigurationByID(syncID)
	if err != nil {
		h.respondDBError(c, err, "Sync configuration not found", "Failed to load sync configuration")
		return
	}

	h.schedule(s)
	c.JSON(http.StatusOK, syncToAPI(s))
}

// APITriggerHistorical starts a backfill of every stored record. The run
// continues in the background; progress is visible through the activity
// endpoint and the event log.
func (h *Handlers) APITriggerHistorical(c *gin.Context) {
	s, err := h.db.GetSyncConfigurationByID(c.Param("id"))
	if err != nil {
		h.respondDBError(c, err, "Sync configuration not found", "Failed to load sync configuration")
		return
	}
	if !s.IsActive() {
		h.respondError(c, http.StatusBadRequest, "Only active sync configurations can run a historical sync")
		return
	}
	if !h.hasMappings(s.ID) {
		h.respondError(c, http.StatusBadRequest, "Please save field mappings before running a historical sync")
		return
	}

	if err := h.scheduler.TriggerHistorical(s.ID); err != nil {
		if errors.Is(err, scheduler.ErrSyncInProgress) {
			h.respondError(c, http.StatusConflict, "A sync is already running for this configuration")
			return
		}
		h.respondError(c, http.StatusInternalServerError, sanitizeError(err, "Failed to start historical sync"))
		return
	}

	c.JSON(http.StatusAccepted, api.HistoricalSyncResponse{Message: "Historical sync started"})
}

// Source schema

// APIListEntities returns the source entities a sync can read from.
func (h *Handlers) APIListEntities(c *gin.Context) {
	c.JSON(http.StatusOK, crm.Entities())
}

// sourceFields returns the selectable fields of an entity, including
// fields observed on pushed records.
func (h *Handlers) sourceFields(entity string) ([]api.FieldOption, error) {
	observed, err := h.db.ObservedFields(entity)
	if err != nil {
		log.Printf("Failed to load observed fields for %s: %v", entity, err)
		observed = nil
	}
	return crm.Fields(entity, observed)
}

// APIListFields returns the selectable fields of a source entity.
func (h *Handlers) APIListFields(c *gin.Context) {
	fields, err := h.sourceFields(c.Param("entity"))
	if err != nil {
		if errors.Is(err, crm.ErrUnknownEntity) {
			h.respondError(c, http.StatusNotFound, "Unknown source entity")
			return
		}
		h.respondError(c, http.StatusInternalServerError, sanitizeError(err, "Failed to load fields"))
		return
	}
	c.JSON(http.StatusOK, fields)
}

// APIGetPicklist returns the allowed values of a picklist field.
func (h *Handlers) APIGetPicklist(c *gin.Context) {
	values, err := crm.PicklistValues(c.Param("object"), c.Param("field"))
	if err != nil {
		if errors.Is(err, crm.ErrUnknownPicklist) || errors.Is(err, crm.ErrUnknownEntity) {
			h.respondError(c, http.StatusNotFound, "Picklist not found")
			return
		}
		h.respondError(c, http.StatusInternalServerError, sanitizeError(err, "Failed to load picklist"))
		return
	}
	c.JSON(http.StatusOK, values)
}

// Field mappings

// APIGetMappings returns the mapping set of a sync configuration.
func (h *Handlers) APIGetMappings(c *gin.Context) {
	syncID := c.Param("id")
	if _, err := h.db.GetSyncConfigurationByID(syncID); err != nil {
		h.respondDBError(c, err, "Sync configuration not found", "Failed to load sync configuration")
		return
	}

	mappings, err := h.db.GetFieldMappings(syncID)
	if err != nil {
		h.respondError(c, http.StatusInternalServerError, sanitizeError(err, "Failed to load field mappings"))
		return
	}
	c.JSON(http.StatusOK, mapping.FromModels(mappings))
}

// APISaveMappings replaces the mapping set of a sync configuration.
func (h *Handlers) APISaveMappings(c *gin.Context) {
	s, err := h.db.GetSyncConfigurationByID(c.Param("id"))
	if err != nil {
		h.respondDBError(c, err, "Sync configuration not found", "Failed to load sync configuration")
		return
	}

	var set []api.FieldMapping
	if err := c.ShouldBindJSON(&set); err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	fields, err := h.sourceFields(s.SourceEntity)
	if err != nil {
		h.respondError(c, http.StatusInternalServerError, sanitizeError(err, "Failed to load fields"))
		return
	}
	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f.Value] = true
	}

	if err := mapping.ValidateSet(s.TargetEntity, set, func(f string) bool { return known[f] }); err != nil {
		h.respondError(c, http.StatusBadRequest, strings.TrimPrefix(err.Error(), mapping.ErrInvalidMapping.Error()+": "))
		return
	}

	models := mapping.ToModels(s.ID, set)
	if err := h.db.ReplaceFieldMappings(s.ID, models); err != nil {
		h.respondDBError(c, err, "Sync configuration not found", "Failed to save field mappings")
		return
	}
	h.schedule(s)

	c.JSON(http.StatusOK, mapping.FromModels(models))
}

// Event log

func parseBoundedInt(value string, upper int) (int, bool) {
	if value == "" {
		return 0, true
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 || n > upper {
		return 0, false
	}
	return n, true
}

// APIListEventLogs returns event log entries, newest first.
func (h *Handlers) APIListEventLogs(c *gin.Context) {
	status := db.EventStatus(c.Query("status"))
	if status != "" && !status.IsValid() {
		h.respondError(c, http.StatusBadRequest, "Invalid status filter")
		return
	}
	days, ok := parseBoundedInt(c.Query("days"), maxEventLogDays)
	if !ok {
		h.respondError(c, http.StatusBadRequest, "Invalid days filter")
		return
	}
	limit, ok := parseBoundedInt(c.Query("limit"), maxEventLogLimit)
	if !ok {
		h.respondError(c, http.StatusBadRequest, "Invalid limit")
		return
	}

	entries, err := h.db.ListEventLogs(db.EventLogFilter{Status: status, Days: days, Limit: limit})
	if err != nil {
		h.respondError(c, http.StatusInternalServerError, sanitizeError(err, "Failed to load event logs"))
		return
	}

	out := make([]api.EventLogEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, eventLogToAPI(e))
	}
	c.JSON(http.StatusOK, out)
}

// APIGetEventLog returns one event log entry with its response payload.
func (h *Handlers) APIGetEventLog(c *gin.Context) {
	entry, err := h.db.GetEventLog(c.Param("id"))
	if err != nil {
		h.respondDBError(c, err, "Event log not found", "Failed to load event log")
		return
	}
	c.JSON(http.StatusOK, eventLogToAPI(entry))
}

// Records

// APIIngestRecords stores CRM records pushed for syncing. Scheduled
// incremental runs pick them up.
func (h *Handlers) APIIngestRecords(c *gin.Context) {
	var req api.IngestRecordsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !crm.IsEntity(req.Entity) {
		h.respondError(c, http.StatusBadRequest, "Invalid source entity")
		return
	}
	if len(req.Records) > maxIngestRecords {
		h.respondError(c, http.StatusRequestEntityTooLarge, "Too many records in one request")
		return
	}

	records := make([]*db.SourceRecord, 0, len(req.Records))
	for i, r := range req.Records {
		if r.ID == "" || len(r.ID) > maxRecordIDLength {
			h.respondError(c, http.StatusBadRequest, "Record "+strconv.Itoa(i)+" has an invalid id")
			return
		}
		records = append(records, &db.SourceRecord{RecordID: r.ID, Fields: r.Fields})
	}

	if err := h.db.UpsertSourceRecords(req.Entity, records); err != nil {
		h.respondError(c, http.StatusInternalServerError, sanitizeError(err, "Failed to store records"))
		return
	}

	c.JSON(http.StatusOK, api.IngestRecordsResponse{Accepted: len(records)})
}
