package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DBLogger implements audit logging to the database
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-backed audit logger
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	logger := &DBLogger{db: db}

	if err := logger.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_logs table: %w", err)
	}

	return logger, nil
}

// ensureTable creates the audit_logs table if it doesn't exist
func (l *DBLogger) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_logs (
		id SERIAL PRIMARY KEY,
		timestamp TIMESTAMP NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL,
		user_id TEXT,
		username VARCHAR(255),
		ip_address VARCHAR(45),
		user_agent TEXT,
		request_id VARCHAR(100),
		method VARCHAR(10),
		path TEXT,
		message TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_event_type ON audit_logs(event_type);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs(user_id);
	`

	_, err := l.db.Exec(query)
	return err
}

// Record writes an audit event to the database
func (l *DBLogger) Record(ctx context.Context, event *Event) error {
	if event.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if event.Status == "" {
		return fmt.Errorf("status is required")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	query := `
		INSERT INTO audit_logs (timestamp, event_type, status, user_id, username, ip_address, user_agent, request_id, method, path, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := l.db.ExecContext(ctx, query,
		event.Timestamp,
		event.EventType,
		event.Status,
		nullIfEmpty(event.UserID),
		nullIfEmpty(event.Username),
		nullIfEmpty(event.IPAddress),
		nullIfEmpty(event.UserAgent),
		nullIfEmpty(event.RequestID),
		nullIfEmpty(event.Method),
		nullIfEmpty(event.Path),
		nullIfEmpty(event.Message),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// QueryByUser returns the most recent events for a user, newest first
func (l *DBLogger) QueryByUser(ctx context.Context, userID string, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT timestamp, event_type, status, user_id, username, ip_address, user_agent, request_id, method, path, message
		FROM audit_logs
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`

	rows, err := l.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var uid, uname, ip, ua, reqID, method, path, message sql.NullString
		if err := rows.Scan(&e.Timestamp, &e.EventType, &e.Status, &uid, &uname, &ip, &ua, &reqID, &method, &path, &message); err != nil {
			return nil, err
		}
		e.UserID = uid.String
		e.Username = uname.String
		e.IPAddress = ip.String
		e.UserAgent = ua.String
		e.RequestID = reqID.String
		e.Method = method.String
		e.Path = path.String
		e.Message = message.String
		events = append(events, &e)
	}

	return events, rows.Err()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

var _ Recorder = (*DBLogger)(nil)
