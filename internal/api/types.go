// Package api holds the JSON request and response types shared by the HTTP
// server, the typed client and the console view-models.
package api

// Sync statuses.
const (
	StatusActive   = "Active"
	StatusInactive = "Inactive"
)

// Target entities.
const (
	TargetProfile = "profile"
	TargetEvent   = "event"
)

// SyncTypeCRMToAnalytics is the only supported sync type.
const SyncTypeCRMToAnalytics = "salesforce_to_analytics"

// Mandatory mapping keys. The identity mapping is always required; the event
// name mapping only when the target is an event.
const (
	IdentityField  = "Identity"
	EventNameField = "evtName"
)

// Data types a mapped field can be declared as.
const (
	DataTypeText    = "Text"
	DataTypeNumber  = "Number"
	DataTypeDate    = "Date"
	DataTypeBoolean = "Boolean"
)

// Event log statuses.
const (
	EventSuccess = "Success"
	EventFailed  = "Failed"
)

// SourceEntities lists the CRM entities a sync can read from.
var SourceEntities = []string{
	"Contact", "Lead", "Account", "Opportunity", "Case", "Campaign", "Event", "Task",
	"CampaignMember", "ServiceAppointment", "Quote", "Contract", "Order", "Product2",
	"Pricebook2", "Asset", "OpportunityLineItem",
}

// SyncTypes lists the valid sync types.
var SyncTypes = []string{SyncTypeCRMToAnalytics}

// TargetEntities lists the valid target entities.
var TargetEntities = []string{TargetProfile, TargetEvent}

// DataTypes lists the valid mapping data types.
var DataTypes = []string{DataTypeText, DataTypeNumber, DataTypeDate, DataTypeBoolean}

// Contains reports whether value is one of options.
func Contains(options []string, value string) bool {
	for _, o := range options {
		if o == value {
			return true
		}
	}
	return false
}

// SyncConfiguration is a sync configuration as returned by the server.
type SyncConfiguration struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	SyncType     string  `json:"syncType"`
	SourceEntity string  `json:"sourceEntity"`
	TargetEntity string  `json:"targetEntity"`
	Status       string  `json:"status"`
	ConnectionID string  `json:"connectionId"`
	LastSyncedAt *string `json:"lastSyncedAt,omitempty"`
}

// SaveSyncRequest creates or updates a sync configuration.
type SaveSyncRequest struct {
	Name         string `json:"name"`
	SyncType     string `json:"syncType"`
	SourceEntity string `json:"sourceEntity"`
	TargetEntity string `json:"targetEntity"`
	Status       string `json:"status"`
	ConnectionID string `json:"connectionId"`
}

// CreateSyncResponse returns the id of a created configuration.
type CreateSyncResponse struct {
	ID string `json:"id"`
}

// UpdateStatusRequest activates or deactivates a configuration.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// HistoricalSyncResponse acknowledges a backfill request.
type HistoricalSyncResponse struct {
	Message string `json:"message"`
}

// FieldMapping is one row of the mapping set. The set travels as a bare JSON array.
type FieldMapping struct {
	Field           string `json:"field"`
	SalesforceField string `json:"salesforceField"`
	DataType        string `json:"dataType"`
	IsMandatory     bool   `json:"isMandatory"`
}

// FieldOption is a selectable source field.
type FieldOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// PicklistValue is one allowed value of a picklist field.
type PicklistValue struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// EventLogQuery filters the event log.
type EventLogQuery struct {
	Status string
	Days   int
	Limit  int
}

// EventLogEntry is a recorded sync operation.
type EventLogEntry struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Status          string `json:"status"`
	CreatedDate     string `json:"createdDate"`
	SyncID          string `json:"syncId"`
	Message         string `json:"message,omitempty"`
	RecordCount     int    `json:"recordCount"`
	ResponsePayload string `json:"responsePayload,omitempty"`
}

// Connection is an analytics account. The passcode is never returned.
type Connection struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Region    string `json:"region"`
	AccountID string `json:"accountId"`
	CreatedAt string `json:"createdAt"`
}

// SaveConnectionRequest creates or updates a connection. An empty passcode on
// update keeps the stored one.
type SaveConnectionRequest struct {
	Name      string `json:"name"`
	Region    string `json:"region"`
	AccountID string `json:"accountId"`
	Passcode  string `json:"passcode"`
}

// ValidateCredentialsRequest checks analytics credentials before saving them.
type ValidateCredentialsRequest struct {
	Region    string `json:"region"`
	AccountID string `json:"accountId"`
	Passcode  string `json:"passcode"`
}

// ValidateCredentialsResponse reports the outcome of a credential check.
type ValidateCredentialsResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// IngestRecord is one CRM record pushed to the service.
type IngestRecord struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// IngestRecordsRequest pushes changed records of one entity.
type IngestRecordsRequest struct {
	Entity  string         `json:"entity"`
	Records []IngestRecord `json:"records"`
}

// IngestRecordsResponse reports how many records were stored.
type IngestRecordsResponse struct {
	Accepted int `json:"accepted"`
}
