package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GetOrCreateUser returns an existing user by email or creates a new one.
func (db *DB) GetOrCreateUser(email, name string) (*User, error) {
	user, err := db.GetUserByEmail(email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	user = &User{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := `INSERT INTO users (id, email, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := db.conn.Exec(query, user.ID, user.Email, user.Name, user.CreatedAt, user.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// GetUserByEmail returns a user by their email address.
func (db *DB) GetUserByEmail(email string) (*User, error) {
	query := `SELECT id, email, name, created_at, updated_at FROM users WHERE email = ?`
	return scanUser(db.conn.QueryRow(query, email))
}

// GetUserByID returns a user by their ID.
func (db *DB) GetUserByID(id string) (*User, error) {
	query := `SELECT id, email, name, created_at, updated_at FROM users WHERE id = ?`
	return scanUser(db.conn.QueryRow(query, id))
}

func scanUser(row *sql.Row) (*User, error) {
	user := &User{}
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// CreateConnection creates a new analytics connection. The passcode must already be encrypted.
func (db *DB) CreateConnection(conn *Connection) error {
	if conn.ID == "" {
		conn.ID = uuid.New().String()
	}
	conn.CreatedAt = time.Now().UTC()
	conn.UpdatedAt = conn.CreatedAt

	query := `INSERT INTO connections (id, name, region, account_id, passcode, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.conn.Exec(query, conn.ID, conn.Name, conn.Region, conn.AccountID, conn.Passcode,
		conn.CreatedBy, conn.CreatedAt, conn.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create connection: %w", err)
	}
	return nil
}

// GetConnectionByID returns a connection by its ID.
func (db *DB) GetConnectionByID(id string) (*Connection, error) {
	query := `SELECT id, name, region, account_id, passcode, created_by, created_at, updated_at
		FROM connections WHERE id = ?`

	conn := &Connection{}
	err := db.conn.QueryRow(query, id).Scan(&conn.ID, &conn.Name, &conn.Region, &conn.AccountID,
		&conn.Passcode, &conn.CreatedBy, &conn.CreatedAt, &conn.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return conn, nil
}

// ListConnections returns all connections ordered by name.
func (db *DB) ListConnections() ([]*Connection, error) {
	query := `SELECT id, name, region, account_id, passcode, created_by, created_at, updated_at
		FROM connections ORDER BY name`

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}
	defer rows.Close()

	var conns []*Connection
	for rows.Next() {
		conn := &Connection{}
		if err := rows.Scan(&conn.ID, &conn.Name, &conn.Region, &conn.AccountID,
			&conn.Passcode, &conn.CreatedBy, &conn.CreatedAt, &conn.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connections: %w", err)
	}
	return conns, nil
}

// UpdateConnection updates an existing connection.
func (db *DB) UpdateConnection(conn *Connection) error {
	conn.UpdatedAt = time.Now().UTC()

	query := `UPDATE connections SET name = ?, region = ?, account_id = ?, passcode = ?, updated_at = ?
		WHERE id = ?`
	result, err := db.conn.Exec(query, conn.Name, conn.Region, conn.AccountID, conn.Passcode, conn.UpdatedAt, conn.ID)
	if err != nil {
		return fmt.Errorf("failed to update connection: %w", err)
	}
	return affectedOrNotFound(result)
}

// DeleteConnection deletes a connection and its sync configurations.
func (db *DB) DeleteConnection(id string) error {
	result, err := db.conn.Exec(`DELETE FROM connections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	return affectedOrNotFound(result)
}

const syncConfigColumns = `id, connection_id, name, sync_type, source_entity, target_entity, status,
	cursor, last_synced_at, created_at, updated_at`

// CreateSyncConfiguration inserts a sync configuration. An Active configuration
// is rejected with ErrDuplicate when the connection already has one for the same
// source entity.
func (db *DB) CreateSyncConfiguration(cfg *SyncConfiguration) error {
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	if cfg.Status == "" {
		cfg.Status = SyncStatusInactive
	}
	cfg.CreatedAt = time.Now().UTC()
	cfg.UpdatedAt = cfg.CreatedAt

	return db.withTx(func(tx *sql.Tx) error {
		if cfg.IsActive() {
			if err := checkNoOtherActive(tx, cfg.ConnectionID, cfg.SourceEntity, cfg.ID); err != nil {
				return err
			}
		}

		query := `INSERT INTO sync_configurations (` + syncConfigColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, 0, NULL, ?, ?)`
		_, err := tx.Exec(query, cfg.ID, cfg.ConnectionID, cfg.Name, cfg.SyncType, cfg.SourceEntity,
			cfg.TargetEntity, cfg.Status, cfg.CreatedAt, cfg.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create sync configuration: %w", err)
		}
		return nil
	})
}

// GetSyncConfigurationByID returns a sync configuration by its ID.
func (db *DB) GetSyncConfigurationByID(id string) (*SyncConfiguration, error) {
	query := `SELECT ` + syncConfigColumns + ` FROM sync_configurations WHERE id = ?`
	cfg, err := scanSyncConfiguration(db.conn.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return cfg, err
}

// ListSyncConfigurations returns the configurations of a connection ordered by name.
func (db *DB) ListSyncConfigurations(connectionID string) ([]*SyncConfiguration, error) {
	query := `SELECT ` + syncConfigColumns + ` FROM sync_configurations WHERE connection_id = ? ORDER BY name`
	return db.querySyncConfigurations(query, connectionID)
}

// ListActiveSyncConfigurations returns every Active configuration.
func (db *DB) ListActiveSyncConfigurations() ([]*SyncConfiguration, error) {
	query := `SELECT ` + syncConfigColumns + ` FROM sync_configurations WHERE status = ?`
	return db.querySyncConfigurations(query, SyncStatusActive)
}

func (db *DB) querySyncConfigurations(query string, args ...any) ([]*SyncConfiguration, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync configurations: %w", err)
	}
	defer rows.Close()

	var cfgs []*SyncConfiguration
	for rows.Next() {
		cfg, err := scanSyncConfiguration(rows)
		if err != nil {
			return nil, err
		}
		cfgs = append(cfgs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync configurations: %w", err)
	}
	return cfgs, nil
}

// UpdateSyncConfiguration updates the editable fields of a configuration.
// The connection is never changed by an update.
func (db *DB) UpdateSyncConfiguration(cfg *SyncConfiguration) error {
	cfg.UpdatedAt = time.Now().UTC()

	return db.withTx(func(tx *sql.Tx) error {
		if cfg.IsActive() {
			var connectionID string
			err := tx.QueryRow(`SELECT connection_id FROM sync_configurations WHERE id = ?`, cfg.ID).Scan(&connectionID)
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("failed to load sync configuration: %w", err)
			}
			if err := checkNoOtherActive(tx, connectionID, cfg.SourceEntity, cfg.ID); err != nil {
				return err
			}
		}

		query := `UPDATE sync_configurations SET name = ?, sync_type = ?, source_entity = ?, target_entity = ?,
			status = ?, updated_at = ? WHERE id = ?`
		result, err := tx.Exec(query, cfg.Name, cfg.SyncType, cfg.SourceEntity, cfg.TargetEntity,
			cfg.Status, cfg.UpdatedAt, cfg.ID)
		if err != nil {
			return fmt.Errorf("failed to update sync configuration: %w", err)
		}
		return affectedOrNotFound(result)
	})
}

// UpdateSyncStatus activates or deactivates a configuration.
func (db *DB) UpdateSyncStatus(id string, status SyncStatus) error {
	now := time.Now().UTC()

	return db.withTx(func(tx *sql.Tx) error {
		if status == SyncStatusActive {
			var connectionID, sourceEntity string
			err := tx.QueryRow(`SELECT connection_id, source_entity FROM sync_configurations WHERE id = ?`, id).
				Scan(&connectionID, &sourceEntity)
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("failed to load sync configuration: %w", err)
			}
			if err := checkNoOtherActive(tx, connectionID, sourceEntity, id); err != nil {
				return err
			}
		}

		result, err := tx.Exec(`UPDATE sync_configurations SET status = ?, updated_at = ? WHERE id = ?`, status, now, id)
		if err != nil {
			return fmt.Errorf("failed to update sync status: %w", err)
		}
		return affectedOrNotFound(result)
	})
}

// MarkSynced records the cursor reached by a sync run.
func (db *DB) MarkSynced(id string, cursor int64) error {
	now := time.Now().UTC()
	query := `UPDATE sync_configurations SET cursor = ?, last_synced_at = ?, updated_at = ? WHERE id = ?`

	result, err := db.conn.Exec(query, cursor, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark sync configuration synced: %w", err)
	}
	return affectedOrNotFound(result)
}

// DeleteSyncConfiguration deletes a configuration and its field mappings.
func (db *DB) DeleteSyncConfiguration(id string) error {
	result, err := db.conn.Exec(`DELETE FROM sync_configurations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete sync configuration: %w", err)
	}
	return affectedOrNotFound(result)
}

func checkNoOtherActive(tx *sql.Tx, connectionID, sourceEntity, excludeID string) error {
	var count int
	query := `SELECT COUNT(*) FROM sync_configurations
		WHERE connection_id = ? AND source_entity = ? AND status = ? AND id != ?`
	if err := tx.QueryRow(query, connectionID, sourceEntity, SyncStatusActive, excludeID).Scan(&count); err != nil {
		return fmt.Errorf("failed to check active configurations: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: active configuration for %s already exists", ErrDuplicate, sourceEntity)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSyncConfiguration(row rowScanner) (*SyncConfiguration, error) {
	cfg := &SyncConfiguration{}
	var lastSyncedAt sql.NullTime

	err := row.Scan(&cfg.ID, &cfg.ConnectionID, &cfg.Name, &cfg.SyncType, &cfg.SourceEntity,
		&cfg.TargetEntity, &cfg.Status, &cfg.Cursor, &lastSyncedAt, &cfg.CreatedAt, &cfg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync configuration: %w", err)
	}

	if lastSyncedAt.Valid {
		cfg.LastSyncedAt = &lastSyncedAt.Time
	}
	if cfg.Status == "" {
		cfg.Status = SyncStatusInactive
	}
	return cfg, nil
}

// GetFieldMappings returns the mappings of a sync configuration, mandatory first.
func (db *DB) GetFieldMappings(syncID string) ([]*FieldMapping, error) {
	query := `SELECT id, sync_id, field, source_field, data_type, is_mandatory, position
		FROM field_mappings WHERE sync_id = ? ORDER BY is_mandatory DESC, position`

	rows, err := db.conn.Query(query, syncID)
	if err != nil {
		return nil, fmt.Errorf("failed to query field mappings: %w", err)
	}
	defer rows.Close()

	var mappings []*FieldMapping
	for rows.Next() {
		m := &FieldMapping{}
		if err := rows.Scan(&m.ID, &m.SyncID, &m.Field, &m.SourceField, &m.DataType, &m.IsMandatory, &m.Position); err != nil {
			return nil, fmt.Errorf("failed to scan field mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating field mappings: %w", err)
	}
	return mappings, nil
}

// ReplaceFieldMappings atomically swaps the mapping set of a sync configuration.
func (db *DB) ReplaceFieldMappings(syncID string, mappings []*FieldMapping) error {
	return db.withTx(func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRow(`SELECT 1 FROM sync_configurations WHERE id = ?`, syncID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load sync configuration: %w", err)
		}

		if _, err := tx.Exec(`DELETE FROM field_mappings WHERE sync_id = ?`, syncID); err != nil {
			return fmt.Errorf("failed to clear field mappings: %w", err)
		}

		query := `INSERT INTO field_mappings (id, sync_id, field, source_field, data_type, is_mandatory, position)
			VALUES (?, ?, ?, ?, ?, ?, ?)`
		for i, m := range mappings {
			if m.ID == "" {
				m.ID = uuid.New().String()
			}
			if m.DataType == "" {
				m.DataType = DataTypeText
			}
			m.SyncID = syncID
			m.Position = i
			if _, err := tx.Exec(query, m.ID, syncID, m.Field, m.SourceField, m.DataType, m.IsMandatory, m.Position); err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("%w: field %q mapped twice", ErrDuplicate, m.Field)
				}
				return fmt.Errorf("failed to insert field mapping: %w", err)
			}
		}
		return nil
	})
}
