// Package audit records security-relevant pipeline events to the audit_logs
// table. Writing an audit row must never block or fail the request being
// audited; callers log write errors and move on.
package audit

import (
	"context"
	"time"
)

// Event types recorded by the pipeline
const (
	EventAccessDenied     = "access.denied"
	EventThrottleExceeded = "throttle.exceeded"
	EventSessionExpired   = "session.expired"
	EventPolicyUpdated    = "policy.updated"
	EventPolicyDeleted    = "policy.deleted"
)

// Event statuses
const (
	StatusDenied  = "denied"
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Event is one audit record
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	Status    string    `json:"status"`

	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`

	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`

	Message string `json:"message,omitempty"`
}

// Recorder persists audit events. *DBLogger is the production
// implementation; tests substitute fakes.
type Recorder interface {
	Record(ctx context.Context, event *Event) error
}

// NopRecorder discards events; used when auditing is disabled
type NopRecorder struct{}

// Record implements Recorder
func (NopRecorder) Record(ctx context.Context, event *Event) error {
	return nil
}
