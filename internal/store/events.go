package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/RevCBH/shipyard/internal/events"
)

// AppendEvent records an event. Payload is JSON-serialized if non-nil.
func (db *DB) AppendEvent(e events.Event) error {
	var payloadJSON *string
	if e.Payload != nil {
		jsonBytes, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("failed to serialize payload: %w", err)
		}
		jsonStr := string(jsonBytes)
		payloadJSON = &jsonStr
	}

	created := e.Time
	if created.IsZero() {
		created = time.Now()
	}

	_, err := db.conn.Exec(`
		INSERT INTO events (project_id, event_type, payload_json, error, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, nullString(e.Project), string(e.Type), payloadJSON, nullString(e.Error), created.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// ListEvents returns up to limit of the most recent events for projectID,
// oldest first.
func (db *DB) ListEvents(ctx context.Context, projectID string, limit int) ([]events.Event, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT event_type, project_id, payload_json, error, created_at FROM (
			SELECT id, event_type, project_id, payload_json, error, created_at
			FROM events
			WHERE project_id = ?
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id ASC
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var (
			e         events.Event
			eventType string
			project   sql.NullString
			payload   sql.NullString
			errMsg    sql.NullString
		)
		if err := rows.Scan(&eventType, &project, &payload, &errMsg, &e.Time); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Type = events.EventType(eventType)
		e.Project = project.String
		e.Error = errMsg.String
		if payload.Valid {
			var v any
			if err := json.Unmarshal([]byte(payload.String), &v); err == nil {
				e.Payload = v
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return out, nil
}

var _ events.Recorder = (*DB)(nil)
