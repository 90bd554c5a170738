package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// UpsertSourceRecords stores pushed CRM records. Every write bumps the record
// to a new revision so incremental syncs pick it up again.
func (db *DB) UpsertSourceRecords(entity string, records []*SourceRecord) error {
	if len(records) == 0 {
		return nil
	}
	now := time.Now().UTC()

	return db.withTx(func(tx *sql.Tx) error {
		var rev int64
		if err := tx.QueryRow(`SELECT COALESCE(MAX(rev), 0) FROM source_records`).Scan(&rev); err != nil {
			return fmt.Errorf("failed to read record revision: %w", err)
		}

		query := `INSERT INTO source_records (entity, record_id, fields, rev, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(entity, record_id) DO UPDATE SET
				fields = excluded.fields, rev = excluded.rev, updated_at = excluded.updated_at`

		for _, rec := range records {
			fields, err := json.Marshal(rec.Fields)
			if err != nil {
				return fmt.Errorf("failed to encode record %s: %w", rec.RecordID, err)
			}
			rev++
			if _, err := tx.Exec(query, entity, rec.RecordID, string(fields), rev, now); err != nil {
				return fmt.Errorf("failed to upsert record %s: %w", rec.RecordID, err)
			}
			rec.Entity = entity
			rec.Rev = rev
			rec.UpdatedAt = now
		}
		return nil
	})
}

// ListSourceRecords returns up to limit records of an entity with a revision
// greater than afterRev, in revision order.
func (db *DB) ListSourceRecords(entity string, afterRev int64, limit int) ([]*SourceRecord, error) {
	query := `SELECT entity, record_id, fields, rev, updated_at FROM source_records
		WHERE entity = ? AND rev > ? ORDER BY rev LIMIT ?`

	rows, err := db.conn.Query(query, entity, afterRev, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query source records: %w", err)
	}
	defer rows.Close()

	var records []*SourceRecord
	for rows.Next() {
		rec := &SourceRecord{}
		var fields string
		if err := rows.Scan(&rec.Entity, &rec.RecordID, &fields, &rec.Rev, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan source record: %w", err)
		}
		if err := json.Unmarshal([]byte(fields), &rec.Fields); err != nil {
			return nil, fmt.Errorf("failed to decode record %s: %w", rec.RecordID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source records: %w", err)
	}
	return records, nil
}

// CountSourceRecords returns how many records of an entity are stored.
func (db *DB) CountSourceRecords(entity string) (int, error) {
	var count int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM source_records WHERE entity = ?`, entity).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count source records: %w", err)
	}
	return count, nil
}

// ObservedFields returns the distinct field names seen on records of an entity.
func (db *DB) ObservedFields(entity string) ([]string, error) {
	query := `SELECT DISTINCT j.key FROM source_records, json_each(source_records.fields) AS j
		WHERE source_records.entity = ? ORDER BY j.key`

	rows, err := db.conn.Query(query, entity)
	if err != nil {
		return nil, fmt.Errorf("failed to query observed fields: %w", err)
	}
	defer rows.Close()

	var fields []string
	for rows.Next() {
		var field string
		if err := rows.Scan(&field); err != nil {
			return nil, fmt.Errorf("failed to scan observed field: %w", err)
		}
		fields = append(fields, field)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating observed fields: %w", err)
	}
	return fields, nil
}
