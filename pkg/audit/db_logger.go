package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// DBLogger implements audit logging to PostgreSQL
type DBLogger struct {
	helpers
	db *sql.DB
}

// NewDBLogger creates a database-backed audit logger. The audit_logs table is
// created by the migrations returned from GetMigrations.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	l := &DBLogger{db: db}
	l.helpers = helpers{log: l.Log}
	return l, nil
}

// Log inserts an audit event
func (l *DBLogger) Log(ctx context.Context, event *AuditEvent) error {
	var metadataJSON, changesJSON []byte
	var err error

	if len(event.Metadata) > 0 {
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}
	if event.Changes != nil {
		changesJSON, err = json.Marshal(event.Changes)
		if err != nil {
			return fmt.Errorf("failed to marshal changes: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (
			timestamp, event_type, status,
			user_id, organization_id,
			resource_type, resource_id,
			ip_address, user_agent, request_id,
			message, error_message, metadata, changes
		) VALUES (
			$1, $2, $3,
			$4, $5,
			$6, $7,
			$8, $9, $10,
			$11, $12, $13, $14
		) RETURNING id
	`

	err = l.db.QueryRowContext(ctx, query,
		event.Timestamp, string(event.EventType), string(event.Status),
		event.UserID, event.OrganizationID,
		string(event.ResourceType), event.ResourceID,
		event.IPAddress, event.UserAgent, event.RequestID,
		event.Message, event.ErrorMessage, nullJSON(metadataJSON), nullJSON(changesJSON),
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// Search returns events matching filter, newest first
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error) {
	query := `
		SELECT
			id, timestamp, event_type, status,
			user_id, organization_id,
			resource_type, resource_id,
			ip_address, user_agent, request_id,
			message, error_message, metadata, changes
		FROM audit_logs
		WHERE 1=1
	`

	args := []interface{}{}
	argCount := 1
	add := func(clause string, value interface{}) {
		query += fmt.Sprintf(clause, argCount)
		args = append(args, value)
		argCount++
	}

	if filter.StartTime != nil {
		add(" AND timestamp >= $%d", *filter.StartTime)
	}
	if filter.EndTime != nil {
		add(" AND timestamp <= $%d", *filter.EndTime)
	}
	if filter.UserID != nil {
		add(" AND user_id = $%d", *filter.UserID)
	}
	if filter.OrganizationID != nil {
		add(" AND organization_id = $%d", *filter.OrganizationID)
	}
	if len(filter.EventTypes) > 0 {
		types := make([]string, len(filter.EventTypes))
		for i, et := range filter.EventTypes {
			types[i] = string(et)
		}
		add(" AND event_type = ANY($%d)", pq.Array(types))
	}
	if filter.Status != nil {
		add(" AND status = $%d", string(*filter.Status))
	}
	if filter.ResourceType != "" {
		add(" AND resource_type = $%d", string(filter.ResourceType))
	}
	if filter.ResourceID != "" {
		add(" AND resource_id = $%d", filter.ResourceID)
	}

	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		add(" LIMIT $%d", filter.Limit)
	}
	if filter.Offset > 0 {
		add(" OFFSET $%d", filter.Offset)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit logs: %w", err)
	}
	defer rows.Close()

	events := make([]*AuditEvent, 0)
	for rows.Next() {
		event := &AuditEvent{Metadata: make(map[string]interface{})}
		var userID, orgID sql.NullInt64
		var eventType, status, resourceType string
		var metadataJSON, changesJSON []byte

		if err := rows.Scan(
			&event.ID, &event.Timestamp, &eventType, &status,
			&userID, &orgID,
			&resourceType, &event.ResourceID,
			&event.IPAddress, &event.UserAgent, &event.RequestID,
			&event.Message, &event.ErrorMessage, &metadataJSON, &changesJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}

		event.EventType = EventType(eventType)
		event.Status = EventStatus(status)
		event.ResourceType = ResourceType(resourceType)
		if userID.Valid {
			id := userID.Int64
			event.UserID = &id
		}
		if orgID.Valid {
			id := orgID.Int64
			event.OrganizationID = &id
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		if len(changesJSON) > 0 {
			event.Changes = &ChangeDetails{}
			if err := json.Unmarshal(changesJSON, event.Changes); err != nil {
				return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
			}
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}
	return events, nil
}

// Cleanup deletes events older than the retention window and returns how many were removed
func (l *DBLogger) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	result, err := l.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up audit logs: %w", err)
	}
	return result.RowsAffected()
}

// Close is a no-op; the database handle is owned by the caller
func (l *DBLogger) Close() error {
	return nil
}

func nullJSON(data []byte) interface{} {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}
