package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultEventLogLimit = 50
	defaultEventLogDays  = 7
)

// CreateEventLog records a sync operation and assigns its sequential name.
func (db *DB) CreateEventLog(entry *EventLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.CreatedAt = time.Now().UTC()

	query := `INSERT INTO event_logs (id, seq, name, sync_id, status, message, response, record_count, created_at)
		SELECT ?, n, printf('EL-%06d', n), ?, ?, ?, ?, ?, ?
		FROM (SELECT COALESCE(MAX(seq), 0) + 1 AS n FROM event_logs)
		RETURNING seq, name`

	err := db.conn.QueryRow(query, entry.ID, entry.SyncID, entry.Status, entry.Message,
		entry.Response, entry.RecordCount, entry.CreatedAt).Scan(&entry.Seq, &entry.Name)
	if err != nil {
		return fmt.Errorf("failed to create event log: %w", err)
	}
	return nil
}

// ListEventLogs returns entries newest first within the filter's window.
func (db *DB) ListEventLogs(filter EventLogFilter) ([]*EventLog, error) {
	if filter.Days <= 0 {
		filter.Days = defaultEventLogDays
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultEventLogLimit
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -filter.Days)

	query := `SELECT id, seq, name, sync_id, status, message, response, record_count, created_at
		FROM event_logs WHERE created_at >= ?`
	args := []any{cutoff}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, filter.Limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event logs: %w", err)
	}
	defer rows.Close()

	var entries []*EventLog
	for rows.Next() {
		entry, err := scanEventLog(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event logs: %w", err)
	}
	return entries, nil
}

// GetEventLog returns one entry by ID.
func (db *DB) GetEventLog(id string) (*EventLog, error) {
	query := `SELECT id, seq, name, sync_id, status, message, response, record_count, created_at
		FROM event_logs WHERE id = ?`
	entry, err := scanEventLog(db.conn.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return entry, err
}

// CleanOldEventLogs deletes entries older than the given time.
func (db *DB) CleanOldEventLogs(olderThan time.Time) (int64, error) {
	result, err := db.conn.Exec(`DELETE FROM event_logs WHERE created_at < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to clean old event logs: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected, nil
}

func scanEventLog(row rowScanner) (*EventLog, error) {
	entry := &EventLog{}
	err := row.Scan(&entry.ID, &entry.Seq, &entry.Name, &entry.SyncID, &entry.Status, &entry.Message,
		&entry.Response, &entry.RecordCount, &entry.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan event log: %w", err)
	}
	return entry, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
