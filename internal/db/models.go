package db

import (
	"time"
)

// SyncStatus represents whether a sync configuration is running.
type SyncStatus string

const (
	SyncStatusActive   SyncStatus = "Active"
	SyncStatusInactive SyncStatus = "Inactive"
)

// ValidSyncStatuses contains all valid sync status values.
var ValidSyncStatuses = map[SyncStatus]bool{
	SyncStatusActive:   true,
	SyncStatusInactive: true,
}

// IsValid returns true if the sync status is a known valid value.
func (s SyncStatus) IsValid() bool {
	return ValidSyncStatuses[s]
}

// SyncType identifies the direction of a sync configuration.
type SyncType string

const (
	SyncTypeCRMToAnalytics SyncType = "salesforce_to_analytics"
)

// IsValid returns true if the sync type is a known valid value.
func (t SyncType) IsValid() bool {
	return t == SyncTypeCRMToAnalytics
}

// TargetEntity is the analytics-side representation a sync writes.
type TargetEntity string

const (
	TargetProfile TargetEntity = "profile"
	TargetEvent   TargetEntity = "event"
)

// IsValid returns true if the target entity is a known valid value.
func (t TargetEntity) IsValid() bool {
	return t == TargetProfile || t == TargetEvent
}

// DataType is the declared type of a mapped field.
type DataType string

const (
	DataTypeText    DataType = "Text"
	DataTypeNumber  DataType = "Number"
	DataTypeDate    DataType = "Date"
	DataTypeBoolean DataType = "Boolean"
)

// ValidDataTypes contains all valid data type values.
var ValidDataTypes = map[DataType]bool{
	DataTypeText:    true,
	DataTypeNumber:  true,
	DataTypeDate:    true,
	DataTypeBoolean: true,
}

// IsValid returns true if the data type is a known valid value.
func (d DataType) IsValid() bool {
	return ValidDataTypes[d]
}

// EventStatus is the outcome recorded in an event log entry.
type EventStatus string

const (
	EventStatusSuccess EventStatus = "Success"
	EventStatusFailed  EventStatus = "Failed"
)

// IsValid returns true if the event status is a known valid value.
func (s EventStatus) IsValid() bool {
	return s == EventStatusSuccess || s == EventStatusFailed
}

// User represents an authenticated admin.
type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Connection is an analytics account that sync configurations are scoped to.
type Connection struct {
	ID        string
	Name      string
	Region    string
	AccountID string
	Passcode  string // Encrypted
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SyncConfiguration describes a one-way flow from a CRM entity to an analytics target.
type SyncConfiguration struct {
	ID           string
	ConnectionID string
	Name         string
	SyncType     SyncType
	SourceEntity string
	TargetEntity TargetEntity
	Status       SyncStatus
	// Cursor is the highest source record revision already uploaded.
	Cursor       int64
	LastSyncedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsActive returns true if the configuration is Active.
func (s *SyncConfiguration) IsActive() bool {
	return s.Status == SyncStatusActive
}

// FieldMapping maps a source attribute onto a target attribute.
type FieldMapping struct {
	ID          string
	SyncID      string
	Field       string
	SourceField string
	DataType    DataType
	IsMandatory bool
	Position    int
}

// EventLog is one recorded sync operation.
type EventLog struct {
	ID          string
	Seq         int64
	Name        string
	SyncID      string
	Status      EventStatus
	Message     string
	Response    string
	RecordCount int
	CreatedAt   time.Time
}

// EventLogFilter narrows ListEventLogs.
type EventLogFilter struct {
	Status EventStatus // Empty matches all
	Days   int
	Limit  int
}

// SourceRecord is a CRM record pushed into the service for syncing.
type SourceRecord struct {
	Entity    string
	RecordID  string
	Fields    map[string]any
	Rev       int64
	UpdatedAt time.Time
}
